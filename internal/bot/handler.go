// Package bot turns chat messages into game operations. The platform adapters
// (Discord, WhatsApp) only move text in and out; Handler owns the commands.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"tapcoin/internal/auth"
	"tapcoin/internal/economy"
	"tapcoin/internal/game"
)

type Incoming struct {
	// PlayerID is namespaced by platform, e.g. "discord:1234" or "wa:15551234567".
	PlayerID string
	Profile  game.Profile
	Text     string
}

type Handler struct {
	svc       *game.Service
	tokens    *auth.Issuer
	webAppURL string
	log       *slog.Logger
}

func NewHandler(svc *game.Service, tokens *auth.Issuer, webAppURL string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, tokens: tokens, webAppURL: webAppURL, log: logger}
}

// Handle runs one command and returns the reply. Text that is not a command
// yields an empty reply.
func (h *Handler) Handle(ctx context.Context, in Incoming) string {
	cmd, args, ok := parseCommand(in.Text)
	if !ok {
		return ""
	}
	p, err := h.svc.GetOrCreate(ctx, in.PlayerID, in.Profile)
	if err != nil {
		h.log.Error("bot get or create failed", "player_id", in.PlayerID, "err", err)
		return "⚠️ Something went wrong loading your account. Try again in a moment."
	}

	var reply string
	switch cmd {
	case "start":
		reply = h.start(ctx, p, args)
	case "help":
		reply = helpText
	case "stats":
		reply = h.stats(ctx, p.ID)
	case "leaderboard", "top":
		reply = h.leaderboard(ctx)
	case "play":
		reply = h.play(p)
	case "tap":
		res, err := h.svc.Tap(ctx, p.ID)
		reply = actionReply(res, err, fmt.Sprintf("👆 +%d coins", res.Delta))
	case "bonus":
		res, err := h.svc.ClaimDailyBonus(ctx, p.ID)
		reply = actionReply(res, err, fmt.Sprintf("🎁 Daily bonus claimed: +%d coins", res.Delta))
	case "tasks":
		reply = h.tasks(ctx, p.ID)
	case "claim":
		if len(args) == 0 {
			return "Usage: /claim <task_id>. See /tasks for ids."
		}
		res, err := h.svc.CompleteTask(ctx, p.ID, args[0])
		reply = actionReply(res, err, fmt.Sprintf("🏆 Task complete: +%d coins", res.Delta))
	case "upgrade":
		if len(args) == 0 {
			return h.upgrades(ctx, p.ID)
		}
		res, err := h.svc.PurchaseUpgrade(ctx, p.ID, args[0])
		reply = actionReply(res, err, fmt.Sprintf("🛒 Upgrade bought for %d coins", -res.Delta))
	case "refer":
		reply = h.refer(ctx, p)
	default:
		reply = "Unknown command. Send /help for the list."
	}
	return reply
}

func (h *Handler) start(ctx context.Context, p game.Player, args []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🌟 Welcome to Tapcoin, %s!\n", p.Name())
	if len(args) > 0 {
		code := game.NormalizeCode(args[0])
		if code != "" && code != p.ReferralCode {
			res, err := h.svc.Redeem(ctx, code, p.ID)
			switch {
			case err == nil:
				fmt.Fprintf(&b, "🎁 You got %d bonus coins for joining through %s's link!\n", res.ReferredReward, res.ReferrerName)
			case errors.Is(err, game.ErrAlreadyReferred):
				b.WriteString("You have already used a referral link.\n")
			case errors.Is(err, game.ErrUnknownCode):
				b.WriteString("That referral code does not exist.\n")
			default:
				h.log.Warn("referral redeem failed", "player_id", p.ID, "code", code, "err", err)
			}
		}
	}
	b.WriteString(`
💎 Tap to earn coins
⚡ Watch your energy
📈 Level up
🛒 Buy upgrades
🏆 Complete tasks
👥 Invite friends

Send /play to open the game or /help for commands.`)
	return b.String()
}

const helpText = `📖 How to play Tapcoin

/tap - tap once (1 energy)
/stats - your balance and progress
/upgrade [kind] - list or buy upgrades (clickPower, energyCapacity, energyRegen)
/bonus - claim the daily bonus (1000 coins per level, every 24h)
/tasks - list tasks, /claim <task_id> to collect
/refer - your referral link: you get 1000 coins, friends get 500
/leaderboard - top players
/play - get a login link for the game`

func (h *Handler) stats(ctx context.Context, id string) string {
	sum, err := h.svc.Summary(ctx, id)
	if err != nil {
		return errorReply(err)
	}
	ref, err := h.svc.ReferralStats(ctx, id)
	if err != nil {
		return errorReply(err)
	}
	next := "max level"
	if sum.NextLevelAt != economy.Unavailable {
		next = fmt.Sprintf("%d coins", sum.NextLevelAt)
	}
	bonus := "ready"
	if !sum.DailyBonusReady && sum.DailyBonusNextAt != nil {
		bonus = "next at " + sum.DailyBonusNextAt.UTC().Format("Jan 2 15:04 UTC")
	}
	return fmt.Sprintf(`📊 Your stats

💰 Coins: %d
📈 Level: %d (next: %s)
⚡ Energy: %d/%d (+%d/s)
👆 Per tap: %d
🎯 Total taps: %d
🎁 Daily bonus: %s
👥 Friends invited: %d
💎 Referral earnings: %d`,
		sum.Coins, sum.Level, next, sum.Energy, sum.MaxEnergy, sum.EnergyRegenRate,
		sum.CoinsPerClick, sum.TotalClicks, bonus, ref.TotalReferrals, ref.TotalEarnings)
}

func (h *Handler) leaderboard(ctx context.Context) string {
	rows, err := h.svc.Leaderboard(ctx, 10, 0)
	if err != nil {
		return errorReply(err)
	}
	if len(rows) == 0 {
		return "🏆 No players yet."
	}
	var b strings.Builder
	b.WriteString("🏆 Leaderboard\n\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s %s - %d coins\n", medal(r.Rank), r.Name, r.Coins)
	}
	return strings.TrimRight(b.String(), "\n")
}

func medal(rank int64) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return fmt.Sprintf("%d.", rank)
	}
}

func (h *Handler) play(p game.Player) string {
	if h.tokens == nil {
		return "The game client is not available right now."
	}
	tok, err := h.tokens.Issue(p.ID, p.Name())
	if err != nil {
		h.log.Error("issue session token failed", "player_id", p.ID, "err", err)
		return errorReply(err)
	}
	var b strings.Builder
	b.WriteString("🎮 Your game session is ready.\n")
	if h.webAppURL != "" {
		fmt.Fprintf(&b, "Open: %s?token=%s\n", h.webAppURL, url.QueryEscape(tok))
	}
	fmt.Fprintf(&b, "Terminal: tap login %s", tok)
	return b.String()
}

func (h *Handler) tasks(ctx context.Context, id string) string {
	views, err := h.svc.ListTasks(ctx, id)
	if err != nil {
		return errorReply(err)
	}
	var b strings.Builder
	b.WriteString("🏆 Tasks\n\n")
	for _, v := range views {
		mark := "▫️"
		switch {
		case v.Completed:
			mark = "✅"
		case v.Claimable:
			mark = "🎁"
		}
		fmt.Fprintf(&b, "%s %s (%s): %d/%d, reward %d\n", mark, v.Title, v.ID, min(v.Progress, v.Requirement), v.Requirement, v.Reward)
	}
	b.WriteString("\n🎁 = ready, send /claim <id>")
	return b.String()
}

func (h *Handler) upgrades(ctx context.Context, id string) string {
	sum, err := h.svc.Summary(ctx, id)
	if err != nil {
		return errorReply(err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "🛒 Upgrades (you have %d coins)\n\n", sum.Coins)
	for _, u := range sum.Upgrades {
		if u.Maxed {
			fmt.Fprintf(&b, "%s: tier %d/%d, maxed\n", u.Kind, u.Level, u.MaxTier)
			continue
		}
		fmt.Fprintf(&b, "%s: tier %d/%d, next costs %d\n", u.Kind, u.Level, u.MaxTier, u.NextCost)
	}
	b.WriteString("\nSend /upgrade <kind> to buy.")
	return b.String()
}

func (h *Handler) refer(ctx context.Context, p game.Player) string {
	stats, err := h.svc.ReferralStats(ctx, p.ID)
	if err != nil {
		return errorReply(err)
	}
	return fmt.Sprintf(`👥 Invite friends

Your code: %s
Friends send: /start %s

You get %d coins per friend, they get %d.
Invited so far: %d (earned %d coins)`,
		stats.ReferralCode, stats.ReferralCode,
		economy.ReferrerReward, economy.ReferredReward,
		stats.TotalReferrals, stats.TotalEarnings)
}

func actionReply(res game.ActionResult, err error, ok string) string {
	if err != nil {
		return errorReply(err)
	}
	msg := fmt.Sprintf("%s\n💰 %d coins · ⚡ %d/%d", ok, res.Player.Coins, res.Player.Energy, res.Player.MaxEnergy)
	if res.LeveledUp {
		msg += fmt.Sprintf("\n📈 Level up! You are now level %d.", res.Player.Level)
	}
	return msg
}

func errorReply(err error) string {
	switch {
	case errors.Is(err, game.ErrInsufficientEnergy):
		return "⚡ Out of energy. It refills over time."
	case errors.Is(err, game.ErrInsufficientFunds):
		return "💸 Not enough coins for that."
	case errors.Is(err, game.ErrUpgradeMaxed):
		return "That upgrade is already at its max tier."
	case errors.Is(err, game.ErrUnknownUpgrade):
		return "Unknown upgrade. Options: clickPower, energyCapacity, energyRegen."
	case errors.Is(err, game.ErrBonusNotReady):
		return "⏳ Daily bonus already claimed. Come back later."
	case errors.Is(err, game.ErrTaskAlreadyCompleted):
		return "You already completed that task."
	case errors.Is(err, game.ErrTaskNotEligible):
		return "You have not met that task's requirement yet."
	case errors.Is(err, game.ErrUnknownTask):
		return "Unknown task id. See /tasks."
	default:
		return "⚠️ Something went wrong. Try again in a moment."
	}
}

// parseCommand accepts "/cmd" and "!cmd" forms and strips a "@botname" suffix.
func parseCommand(text string) (string, []string, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 {
		return "", nil, false
	}
	head := fields[0]
	if !strings.HasPrefix(head, "/") && !strings.HasPrefix(head, "!") {
		return "", nil, false
	}
	cmd := strings.ToLower(head[1:])
	if at := strings.IndexByte(cmd, '@'); at >= 0 {
		cmd = cmd[:at]
	}
	if cmd == "" {
		return "", nil, false
	}
	return cmd, fields[1:], true
}

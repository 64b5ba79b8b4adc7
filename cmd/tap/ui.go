package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"tapcoin/internal/game"

	"github.com/fatih/color"
)

var (
	stdinReader = bufio.NewReader(os.Stdin)
	accent      = color.New(color.FgCyan, color.Bold)
	success     = color.New(color.FgGreen, color.Bold)
	warn        = color.New(color.FgYellow, color.Bold)
	danger      = color.New(color.FgRed, color.Bold)
	neutral     = color.New(color.FgHiWhite)
)

type tasksPayload struct {
	Tasks []game.TaskView `json:"tasks"`
}

type leaderboardPayload struct {
	Rows []game.LeaderboardRow `json:"rows"`
}

type syncPayload struct {
	Results []struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		OK   bool   `json:"ok"`
		Code string `json:"code"`
	} `json:"results"`
}

func printSuccess(msg string) {
	success.Println(msg)
}

func printWarn(msg string) {
	warn.Println(msg)
}

func printError(msg string) {
	danger.Println(msg)
}

func printInfo(msg string) {
	neutral.Println(msg)
}

func promptRequired(label string) (string, error) {
	for {
		fmt.Printf("%s: ", label)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text != "" {
			return text, nil
		}
		printWarn(label + " is required.")
	}
}

func promptChoice(label string, options []string, defaultValue string) (string, error) {
	for {
		fmt.Printf("%s (%s) [%s]: ", label, strings.Join(options, "/"), defaultValue)
		text, err := stdinReader.ReadString('\n')
		if err != nil {
			return "", err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			text = defaultValue
		}
		for _, opt := range options {
			if strings.EqualFold(opt, text) {
				return opt, nil
			}
		}
		printWarn("Invalid option. Please pick one of the listed values.")
	}
}

func renderSummary(raw map[string]any) error {
	s, err := decodeInto[game.Summary](raw)
	if err != nil {
		return err
	}
	printSummary(s)
	return nil
}

func printSummary(s game.Summary) {
	accent.Printf("\n== %s ==\n", strings.ToUpper(s.Name))
	fmt.Printf("Coins:        %s\n", comma(s.Coins))
	fmt.Printf("Level:        %d (next at %s)\n", s.Level, comma(s.NextLevelAt))
	fmt.Printf("Energy:       %d/%d (+%d/s)\n", s.Energy, s.MaxEnergy, s.EnergyRegenRate)
	fmt.Printf("Per tap:      %d\n", s.CoinsPerClick)
	fmt.Printf("Total taps:   %s\n", comma(s.TotalClicks))
	fmt.Printf("Referral:     %s (earned %s)\n", s.ReferralCode, comma(s.ReferralEarnings))
	if s.DailyBonusReady {
		fmt.Printf("Daily bonus:  %s\n", success.Sprintf("ready, %s coins", comma(s.DailyBonusAmount)))
	} else if s.DailyBonusNextAt != nil {
		fmt.Printf("Daily bonus:  in %s\n", time.Until(*s.DailyBonusNextAt).Round(time.Minute))
	}

	fmt.Println()
	accent.Println("Upgrades")
	fmt.Printf("%-16s %6s %12s\n", "KIND", "TIER", "NEXT COST")
	for _, u := range s.Upgrades {
		cost := comma(u.NextCost)
		if u.Maxed {
			cost = neutral.Sprint("maxed")
		} else if u.NextCost > s.Coins {
			cost = danger.Sprint(cost)
		}
		fmt.Printf("%-16s %3d/%-2d %12s\n", u.Kind, u.Level, u.MaxTier, cost)
	}
	fmt.Println()
}

func decodeAction(raw map[string]any) (game.ActionResult, error) {
	return decodeInto[game.ActionResult](raw)
}

func renderAction(raw map[string]any, successMessage string) error {
	res, err := decodeAction(raw)
	if err != nil {
		return err
	}
	printSuccess(successMessage)
	fmt.Printf("Coins %s (%s)  Energy %d/%d\n",
		comma(res.Player.Coins),
		colorizeDelta(res.Delta),
		res.Player.Energy,
		res.Player.MaxEnergy,
	)
	if res.LeveledUp {
		accent.Printf("Level up! You are now level %d.\n", res.Player.Level)
	}
	return nil
}

func renderTasks(raw map[string]any) error {
	out, err := decodeInto[tasksPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== TASKS ==")
	fmt.Printf("%-16s %-32s %12s %10s\n", "ID", "TASK", "PROGRESS", "REWARD")
	for _, t := range out.Tasks {
		progress := fmt.Sprintf("%s/%s", comma(t.Progress), comma(t.Requirement))
		switch {
		case t.Completed:
			progress = neutral.Sprint("done")
		case t.Claimable:
			progress = success.Sprint("claim!")
		}
		fmt.Printf("%-16s %-32s %12s %10s\n", t.ID, truncate(t.Title, 32), progress, comma(t.Reward))
	}
	fmt.Println()
	return nil
}

func renderRedeem(raw map[string]any) error {
	res, err := decodeInto[game.RedeemResult](raw)
	if err != nil {
		return err
	}
	printSuccess(fmt.Sprintf("Joined via %s's invite: +%s coins.", res.ReferrerName, comma(res.ReferredReward)))
	fmt.Printf("Coins %s\n", comma(res.Player.Coins))
	return nil
}

func renderReferrals(raw map[string]any) error {
	s, err := decodeInto[game.ReferralStats](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== REFERRALS ==")
	fmt.Printf("Your code:  %s\n", s.ReferralCode)
	fmt.Printf("Invited:    %d\n", s.TotalReferrals)
	fmt.Printf("Earned:     %s\n", comma(s.TotalEarnings))
	if len(s.Referred) == 0 {
		printInfo("Nobody has used your code yet.")
		return nil
	}
	fmt.Println()
	fmt.Printf("%-20s %12s %-20s\n", "PLAYER", "COINS", "JOINED")
	for _, r := range s.Referred {
		fmt.Printf("%-20s %12s %-20s\n", truncate(r.Name, 20), comma(r.Coins), r.ReferredAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Println()
	return nil
}

func renderLeaderboard(raw map[string]any) error {
	out, err := decodeInto[leaderboardPayload](raw)
	if err != nil {
		return err
	}
	accent.Println("\n== LEADERBOARD ==")
	if len(out.Rows) == 0 {
		printInfo("No leaderboard rows yet.")
		return nil
	}
	fmt.Printf("%-6s %-20s %6s %14s\n", "RANK", "PLAYER", "LEVEL", "COINS")
	for _, row := range out.Rows {
		fmt.Printf("%-6d %-20s %6d %14s\n",
			row.Rank,
			truncate(row.Name, 20),
			row.Level,
			comma(row.Coins),
		)
	}
	fmt.Println()
	return nil
}

func decodeInto[T any](in any) (T, error) {
	var out T
	raw, err := json.Marshal(in)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}

func colorizeDelta(v int64) string {
	text := strconv.FormatInt(v, 10)
	switch {
	case v > 0:
		return success.Sprint("+" + comma(v))
	case v < 0:
		return danger.Sprint("-" + comma(-v))
	default:
		return neutral.Sprint(text)
	}
}

func comma(v int64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	s := strconv.FormatInt(v, 10)
	if len(s) <= 3 {
		return sign + s
	}
	var b strings.Builder
	b.WriteString(sign)
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
		b.WriteByte(',')
	}
	for i := pre; i < len(s); i += 3 {
		b.WriteString(s[i : i+3])
		if i+3 < len(s) {
			b.WriteByte(',')
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 3 {
		return s[:n]
	}
	return s[:n-3] + "..."
}

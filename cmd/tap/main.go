package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	cl "tapcoin/internal/cli"
	"tapcoin/internal/config"
	"tapcoin/internal/economy"
	"tapcoin/internal/syncq"

	"github.com/spf13/cobra"
)

func main() {
	cfg := config.LoadCLIFromEnv()
	apiBase := cfg.APIBaseURL

	root := &cobra.Command{
		Use:          "tap",
		Short:        "Tapcoin terminal client",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&apiBase, "api", apiBase, "API base URL")

	root.AddCommand(
		newLoginCmd(),
		newLogoutCmd(),
		newMeCmd(&apiBase),
		newTapCmd(&apiBase),
		newUpgradeCmd(&apiBase),
		newBonusCmd(&apiBase),
		newTasksCmd(&apiBase),
		newClaimCmd(&apiBase),
		newRedeemCmd(&apiBase),
		newReferralsCmd(&apiBase),
		newLeaderboardCmd(&apiBase),
		newSyncCmd(&apiBase),
		newPlayCmd(&apiBase),
	)

	if err := root.Execute(); err != nil {
		printError(fmt.Sprintf("error: %v", err))
		os.Exit(1)
	}
}

func newClient(apiBase *string) *cl.Client {
	return cl.NewClient(strings.TrimRight(strings.TrimSpace(*apiBase), "/"))
}

func requireSession() (cl.Session, error) {
	sess, err := cl.LoadSession()
	if err != nil {
		return cl.Session{}, fmt.Errorf("login required (send /play to the bot, then `tap login <token>`): %w", err)
	}
	return sess, nil
}

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login [token]",
		Short: "Save the session token the bot gave you",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			if len(args) > 0 {
				token = args[0]
			} else {
				var err error
				token, err = promptRequired("Token")
				if err != nil {
					return err
				}
			}
			sess, err := cl.SessionFromToken(token)
			if err != nil {
				return err
			}
			if err := cl.SaveSession(sess); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Logged in as %s.", sess.PlayerID))
			return nil
		},
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear local session token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cl.ClearSession(); err != nil {
				return err
			}
			printSuccess("Logged out.")
			return nil
		},
	}
}

func newMeCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:     "me",
		Short:   "Show your coins, energy and upgrades",
		Aliases: []string{"stats"},
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Me(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			return renderSummary(out)
		},
	}
}

func newTapCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tap [count]",
		Short: "Tap for coins",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			count := 1
			if len(args) > 0 {
				count, err = strconv.Atoi(strings.TrimSpace(args[0]))
				if err != nil || count <= 0 {
					return fmt.Errorf("invalid count")
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			client := newClient(apiBase)
			var last map[string]any
			earned := int64(0)
			for i := 0; i < count; i++ {
				out, err := client.Tap(ctx, sess.AccessToken)
				if err != nil {
					if last == nil {
						return err
					}
					printWarn(fmt.Sprintf("Stopped after %d taps: %v", i, err))
					break
				}
				res, err := decodeAction(out)
				if err != nil {
					return err
				}
				earned += res.Delta
				last = out
			}
			return renderAction(last, fmt.Sprintf("Tapped for %s coins.", comma(earned)))
		},
	}
}

func newUpgradeCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "upgrade [kind]",
		Short: "Buy an upgrade (clickPower, energyCapacity, energyRegen)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			var kind string
			if len(args) > 0 {
				kind = strings.TrimSpace(args[0])
			} else {
				options := make([]string, 0, len(economy.Kinds))
				for _, k := range economy.Kinds {
					options = append(options, string(k))
				}
				kind, err = promptChoice("Upgrade", options, string(economy.ClickPower))
				if err != nil {
					return err
				}
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).PurchaseUpgrade(ctx, sess.AccessToken, kind)
			if err != nil {
				return err
			}
			return renderAction(out, fmt.Sprintf("Bought %s.", kind))
		},
	}
}

func newBonusCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "bonus",
		Short: "Claim the daily bonus",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).ClaimDailyBonus(ctx, sess.AccessToken)
			if err != nil {
				return queueOnNetworkError(err, syncq.TypeDailyBonus, "")
			}
			return renderAction(out, "Daily bonus claimed.")
		},
	}
}

func newTasksCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List tasks and your progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).ListTasks(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			return renderTasks(out)
		},
	}
}

func newClaimCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "claim [task_id]",
		Short: "Claim a finished task's reward",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			taskID, err := argOrPrompt(args, "Task id")
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).CompleteTask(ctx, sess.AccessToken, taskID)
			if err != nil {
				return queueOnNetworkError(err, syncq.TypeCompleteTask, taskID)
			}
			return renderAction(out, fmt.Sprintf("Task %s complete.", taskID))
		},
	}
}

func newRedeemCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "redeem [code]",
		Short: "Redeem a friend's referral code",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			code, err := argOrPrompt(args, "Referral code")
			if err != nil {
				return err
			}
			code = strings.ToUpper(code)
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Redeem(ctx, sess.AccessToken, code)
			if err != nil {
				return queueOnNetworkError(err, syncq.TypeRedeem, code)
			}
			return renderRedeem(out)
		},
	}
}

func newReferralsCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "referrals",
		Short: "Show your referral code and the players you invited",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Referrals(ctx, sess.AccessToken)
			if err != nil {
				return err
			}
			return renderReferrals(out)
		},
	}
}

func newLeaderboardCmd(apiBase *string) *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:     "leaderboard",
		Short:   "Top players by coins",
		Aliases: []string{"top"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			out, err := newClient(apiBase).Leaderboard(ctx, limit, offset)
			if err != nil {
				return err
			}
			return renderLeaderboard(out)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "rows to show (max 100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")
	return cmd
}

func newSyncCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Replay commands queued while offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := requireSession()
			if err != nil {
				return err
			}
			queue, err := syncq.Load()
			if err != nil {
				return err
			}
			if len(queue) == 0 {
				printInfo("Sync queue is empty.")
				return nil
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 60*time.Second)
			defer cancel()
			out, err := newClient(apiBase).SyncReplay(ctx, sess.AccessToken, queue)
			if err != nil {
				if cl.IsOffline(err) {
					printWarn(fmt.Sprintf("Still offline, %d commands kept.", len(queue)))
					return nil
				}
				return err
			}
			payload, err := decodeInto[syncPayload](out)
			if err != nil {
				return err
			}
			applied := 0
			for _, r := range payload.Results {
				if r.OK {
					applied++
					continue
				}
				printWarn(fmt.Sprintf("%s %s: %s", r.Type, r.ID, r.Code))
			}
			if err := syncq.Save(nil); err != nil {
				return err
			}
			printSuccess(fmt.Sprintf("Sync complete: applied=%d rejected=%d", applied, len(payload.Results)-applied))
			return nil
		},
	}
}

// queueOnNetworkError keeps a replay-safe command for `tap sync` when the API
// could not be reached. API answers are returned as-is.
func queueOnNetworkError(err error, kind, arg string) error {
	if err == nil || !cl.IsOffline(err) {
		return err
	}
	q, qerr := syncq.New(kind, arg)
	if qerr != nil {
		return err
	}
	if qerr := syncq.Push(q); qerr != nil {
		return fmt.Errorf("request failed and could not be queued: %w", err)
	}
	printWarn("API unreachable; queued for `tap sync`.")
	return nil
}

func argOrPrompt(args []string, label string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return strings.TrimSpace(args[0]), nil
	}
	return promptRequired(label)
}

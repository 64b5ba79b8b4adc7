package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	cl "tapcoin/internal/cli"
	"tapcoin/internal/economy"
	"tapcoin/internal/game"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const refreshEvery = 5 * time.Second

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
	coinsStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(1, 2)
)

type playKeys struct {
	Tap     key.Binding
	Upgrade key.Binding
	Bonus   key.Binding
	Refresh key.Binding
	Quit    key.Binding
}

func (k playKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Tap, k.Upgrade, k.Bonus, k.Refresh, k.Quit}
}

func (k playKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultPlayKeys = playKeys{
	Tap:     key.NewBinding(key.WithKeys(" ", "enter"), key.WithHelp("space", "tap")),
	Upgrade: key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "buy click power")),
	Bonus:   key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "daily bonus")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"), key.WithHelp("q", "quit")),
}

type summaryMsg game.Summary

type actionMsg struct {
	res   game.ActionResult
	label string
}

type errMsg struct{ err error }

type refreshMsg struct{}

type playModel struct {
	client  *cl.Client
	token   string
	keys    playKeys
	help    help.Model
	energy  progress.Model
	summary game.Summary
	loaded  bool
	status  string
	err     error
}

func newPlayModel(client *cl.Client, token string) playModel {
	return playModel{
		client: client,
		token:  token,
		keys:   defaultPlayKeys,
		help:   help.New(),
		energy: progress.New(progress.WithDefaultGradient(), progress.WithWidth(36)),
	}
}

func (m playModel) Init() tea.Cmd {
	return tea.Batch(m.fetch(), scheduleRefresh())
}

func scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshEvery, func(time.Time) tea.Msg { return refreshMsg{} })
}

func (m playModel) fetch() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		out, err := m.client.Me(ctx, m.token)
		if err != nil {
			return errMsg{err}
		}
		s, err := decodeInto[game.Summary](out)
		if err != nil {
			return errMsg{err}
		}
		return summaryMsg(s)
	}
}

func (m playModel) act(label string, call func(ctx context.Context) (map[string]any, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		out, err := call(ctx)
		if err != nil {
			return errMsg{err}
		}
		res, err := decodeAction(out)
		if err != nil {
			return errMsg{err}
		}
		return actionMsg{res: res, label: label}
	}
}

func (m playModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Tap):
			return m, m.act("tap", func(ctx context.Context) (map[string]any, error) {
				return m.client.Tap(ctx, m.token)
			})
		case key.Matches(msg, m.keys.Upgrade):
			return m, m.act("upgrade", func(ctx context.Context) (map[string]any, error) {
				return m.client.PurchaseUpgrade(ctx, m.token, string(economy.ClickPower))
			})
		case key.Matches(msg, m.keys.Bonus):
			return m, m.act("bonus", func(ctx context.Context) (map[string]any, error) {
				return m.client.ClaimDailyBonus(ctx, m.token)
			})
		case key.Matches(msg, m.keys.Refresh):
			return m, m.fetch()
		}
	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
	case refreshMsg:
		return m, tea.Batch(m.fetch(), scheduleRefresh())
	case summaryMsg:
		m.summary = game.Summary(msg)
		m.loaded = true
		m.err = nil
	case actionMsg:
		m.summary = msg.res.Player
		m.loaded = true
		m.err = nil
		m.status = actionStatus(msg)
	case errMsg:
		m.err = msg.err
	}
	return m, nil
}

func actionStatus(msg actionMsg) string {
	switch msg.label {
	case "tap":
		if msg.res.LeveledUp {
			return fmt.Sprintf("+%d  level up! now level %d", msg.res.Delta, msg.res.Player.Level)
		}
		return fmt.Sprintf("+%d", msg.res.Delta)
	case "upgrade":
		return fmt.Sprintf("click power upgraded (%d coins)", msg.res.Delta)
	case "bonus":
		return fmt.Sprintf("daily bonus +%d", msg.res.Delta)
	default:
		return msg.label
	}
}

func (m playModel) View() string {
	if !m.loaded {
		if m.err != nil {
			return errStyle.Render("error: "+m.err.Error()) + "\n"
		}
		return "loading...\n"
	}
	s := m.summary
	var b strings.Builder
	b.WriteString(titleStyle.Render("TAPCOIN · "+s.Name) + "\n\n")
	b.WriteString(coinsStyle.Render(comma(s.Coins)+" coins") + "\n")
	b.WriteString(labelStyle.Render(fmt.Sprintf("level %d · next at %s · %d per tap", s.Level, comma(s.NextLevelAt), s.CoinsPerClick)) + "\n\n")

	pct := 0.0
	if s.MaxEnergy > 0 {
		pct = float64(s.Energy) / float64(s.MaxEnergy)
	}
	b.WriteString(m.energy.ViewAs(pct) + "\n")
	b.WriteString(labelStyle.Render(fmt.Sprintf("energy %d/%d (+%d/s)", s.Energy, s.MaxEnergy, s.EnergyRegenRate)) + "\n\n")

	for _, u := range s.Upgrades {
		if u.Kind != economy.ClickPower {
			continue
		}
		if u.Maxed {
			b.WriteString(labelStyle.Render("click power maxed") + "\n")
		} else {
			b.WriteString(labelStyle.Render(fmt.Sprintf("click power tier %d/%d · next %s", u.Level, u.MaxTier, comma(u.NextCost))) + "\n")
		}
	}
	if s.DailyBonusReady {
		b.WriteString(statusStyle.Render(fmt.Sprintf("daily bonus ready: %s", comma(s.DailyBonusAmount))) + "\n")
	}

	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(errStyle.Render(playError(m.err)) + "\n")
	case m.status != "":
		b.WriteString(statusStyle.Render(m.status) + "\n")
	default:
		b.WriteString("\n")
	}
	return boxStyle.Render(b.String()) + "\n" + m.help.View(m.keys) + "\n"
}

func playError(err error) string {
	if cl.IsOffline(err) {
		return "offline: " + err.Error()
	}
	return err.Error()
}

func newPlayCmd(apiBase *string) *cobra.Command {
	return &cobra.Command{
		Use:   "play",
		Short: "Interactive tapping screen",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("play needs an interactive terminal")
			}
			sess, err := requireSession()
			if err != nil {
				return err
			}
			p := tea.NewProgram(newPlayModel(newClient(apiBase), sess.AccessToken), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}
}

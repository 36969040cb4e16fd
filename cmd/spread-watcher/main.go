package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/betbot/crossarb/internal/discovery"
	"github.com/betbot/crossarb/internal/domain"
	"github.com/betbot/crossarb/internal/feed"
	"github.com/betbot/crossarb/internal/monitor"
	"github.com/betbot/crossarb/pkg/config"
	"github.com/betbot/crossarb/pkg/logger"
	"github.com/betbot/crossarb/pkg/ratelimit"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)

	bidStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	askStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

	goodStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

var legLabels = [4]string{"15m UP", "15m DOWN", "5m UP", "5m DOWN"}

type tickMsg time.Time

type pairMsg struct {
	pair domain.WindowPair
}

type model struct {
	symbol    string
	threshold domain.Price

	feed    feed.Feed
	disc    *discovery.GammaClient
	monitor *monitor.PairMonitor

	pair      domain.WindowPair
	connected bool
	err       error

	ctx    context.Context
	cancel context.CancelFunc
}

func newModel(symbol string, threshold domain.Price, f feed.Feed, disc *discovery.GammaClient) model {
	ctx, cancel := context.WithCancel(context.Background())
	return model{
		symbol:    symbol,
		threshold: threshold,
		feed:      f,
		disc:      disc,
		monitor:   monitor.NewPairMonitor(symbol, domain.WindowPair{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// resolveCmd finds the current window pair and subscribes its four assets.
func (m model) resolveCmd() tea.Cmd {
	return func() tea.Msg {
		pair, err := m.disc.PairForOverlap(m.ctx, m.symbol, time.Now())
		if err != nil {
			return err
		}
		if err := m.feed.Subscribe(pair.AssetIDs()...); err != nil {
			return err
		}
		return pairMsg{pair: pair}
	}
}

type quoteMsg struct{}

// pumpCmd drains one feed update into the monitor and re-arms itself via
// quoteMsg.
func (m model) pumpCmd() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-m.ctx.Done():
			return nil
		case q, ok := <-m.feed.Updates():
			if !ok {
				return nil
			}
			m.monitor.Apply(q)
			return quoteMsg{}
		}
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.resolveCmd(), m.pumpCmd())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancel()
			m.feed.Stop()
			return m, tea.Quit
		}

	case pairMsg:
		if old := m.pair; old.IsValid() {
			_ = m.feed.Unsubscribe(old.AssetIDs()...)
			m.disc.Forget(old.M15.Slug)
			m.disc.Forget(old.M5.Slug)
		}
		m.pair = msg.pair
		m.monitor.SwapPair(msg.pair)
		m.connected = true
		m.err = nil
		return m, m.pumpCmd()

	case quoteMsg:
		return m, m.pumpCmd()

	case tickMsg:
		// Roll onto the next pair once the current windows close.
		if m.pair.IsValid() && !time.Now().Before(m.pair.OverlapEnd()) {
			return m, tea.Batch(tickCmd(), m.resolveCmd())
		}
		return m, tickCmd()

	case error:
		m.err = msg
		// Discovery failures are usually listing lag; retry on a pause.
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg {
			return retryMsg{}
		})

	case retryMsg:
		return m, m.resolveCmd()
	}

	return m, nil
}

type retryMsg struct{}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf(" %s spread watcher ", strings.ToUpper(m.symbol))))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(askStyle.Render(fmt.Sprintf("error: %v", m.err)))
		b.WriteString(dimStyle.Render("\nretrying...\n\npress q to quit\n"))
		return b.String()
	}
	if !m.connected || !m.pair.IsValid() {
		b.WriteString(dimStyle.Render("resolving window pair...\n\npress q to quit\n"))
		return b.String()
	}

	pair, snap := m.monitor.Snapshot()
	now := time.Now()

	b.WriteString(dimStyle.Render(fmt.Sprintf("%s | %s\n", pair.M15.Slug, pair.M5.Slug)))
	if domain.InOverlap(now, pair.M15.Window.Start) {
		b.WriteString(goodStyle.Render(fmt.Sprintf("overlap open, closes in %s\n\n",
			pair.OverlapEnd().Sub(now).Truncate(time.Second))))
	} else {
		b.WriteString(dimStyle.Render(fmt.Sprintf("overlap opens in %s\n\n",
			pair.M5.Window.Start.Sub(now).Truncate(time.Second))))
	}

	var rows []string
	for leg := 0; leg < 4; leg++ {
		rows = append(rows, fmt.Sprintf("%-9s %s / %s",
			legLabels[leg],
			bidStyle.Render(fmtPrice(snap.Bids[leg])),
			askStyle.Render(fmtPrice(snap.Asks[leg]))))
	}
	b.WriteString(borderStyle.Render(strings.Join(rows, "\n")))
	b.WriteString("\n\n")

	upDown, downUp := monitor.Spreads(pair, snap)
	b.WriteString(renderSpread(upDown, m.threshold))
	b.WriteString("\n")
	b.WriteString(renderSpread(downUp, m.threshold))
	b.WriteString("\n\n")
	b.WriteString(dimStyle.Render("press q to quit\n"))
	return b.String()
}

func renderSpread(s domain.CandidateSpread, threshold domain.Price) string {
	if !s.Complete() {
		return dimStyle.Render(fmt.Sprintf("%-12s  --", s.Name))
	}
	line := fmt.Sprintf("%-12s  sum=%s  edge=%s", s.Name, s.Sum(), s.Edge())
	if s.Qualifies(threshold) {
		return goodStyle.Render(line + "  << qualifies")
	}
	return line
}

func fmtPrice(p domain.Price) string {
	if p.IsZero() {
		return " -- "
	}
	return fmt.Sprintf("%.2f", p.ToDecimal())
}

func main() {
	symbol := flag.String("symbol", "btc", "symbol to watch")
	configPath := flag.String("config", "", "config file path")
	flag.Parse()

	// TUI owns the terminal; keep log noise out of it.
	_ = logger.Init(logger.Config{Level: "error"})

	path := *configPath
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		defaults := config.Default()
		cfg = &defaults
	}

	wsFeed := feed.NewWSFeed(cfg.Polymarket.WSURL)
	disc := discovery.NewGammaClient(cfg.Polymarket.GammaAPIURL, ratelimit.NewManager())

	m := newModel(*symbol, domain.PriceFromDecimal(cfg.Strategy.SumThreshold), wsFeed, disc)
	if err := wsFeed.Start(m.ctx); err != nil {
		fmt.Fprintf(os.Stderr, "start feed: %v\n", err)
		os.Exit(1)
	}

	if _, err := tea.NewProgram(m).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "tui: %v\n", err)
		os.Exit(1)
	}
}

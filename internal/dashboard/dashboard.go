package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/benchan/internal/runner"
)

const (
	refreshInterval = 500 * time.Millisecond
	historyLen      = 100
	maxErrorLen     = 60
)

// RunConfig holds the run parameters shown in the summary panel.
type RunConfig struct {
	Servers        int           // number of endpoints
	ConnectRate    int           // dials per second (0 = unlimited)
	ConnectRetries int           // retries per failed dial
	ReadyTimeout   time.Duration // wait for READY
	IdleTimeout    time.Duration // longest silence while running
	ConfigFile     string        // path to config file if used
}

// Dashboard renders a live terminal UI of the run's endpoint phases.
type Dashboard struct {
	snapshot     func() runner.Snapshot
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid           *ui.Grid
	summaryPara    *widgets.Paragraph
	progressGauge  *widgets.Gauge
	statePara      *widgets.Paragraph
	runningSparkle *widgets.SparklineGroup
	endpointList   *widgets.List
	runningHistory []float64
	cfg            RunConfig
}

// New creates a new Dashboard. snapshot is polled on every refresh;
// shutdownFunc runs when the user presses q or Ctrl-C.
func New(snapshot func() runner.Snapshot, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		snapshot:       snapshot,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		runningHistory: make([]float64, 0, historyLen),
		cfg:            cfg,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Benchmark"
	d.summaryPara.Text = "Connecting..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.progressGauge = widgets.NewGauge()
	d.progressGauge.Title = "Servers Ready"
	d.progressGauge.BarColor = ui.ColorBlue
	d.progressGauge.BorderStyle.Fg = ui.ColorCyan
	d.progressGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.statePara = widgets.NewParagraph()
	d.statePara.Title = "Connections"
	d.statePara.Text = "Waiting for data..."
	d.statePara.BorderStyle.Fg = ui.ColorCyan

	sparkline := widgets.NewSparkline()
	sparkline.Title = "Running servers"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}
	d.runningSparkle = widgets.NewSparklineGroup(sparkline)
	d.runningSparkle.Title = "Activity"
	d.runningSparkle.BorderStyle.Fg = ui.ColorCyan

	d.endpointList = widgets.NewList()
	d.endpointList.Title = "Servers"
	d.endpointList.Rows = []string{"Awaiting data"}
	d.endpointList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.endpointList.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.16,
			ui.NewCol(0.5, d.progressGauge),
			ui.NewCol(0.5, d.statePara),
		),
		ui.NewRow(0.2,
			ui.NewCol(1.0, d.runningSparkle),
		),
		ui.NewRow(0.48,
			ui.NewCol(1.0, d.endpointList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.update(d.snapshot(), time.Now())
	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update(d.snapshot(), time.Now())
			d.render()
		}
	}
}

// update refreshes all widget data from snap.
func (d *Dashboard) update(snap runner.Snapshot, now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := snap.State
	total := len(snap.Endpoints)

	elapsed := time.Duration(0)
	if !snap.Started.IsZero() {
		elapsed = now.Sub(snap.Started).Round(time.Second)
	}
	d.summaryPara.Text = fmt.Sprintf(
		"Run: %s | Phase: %s | Elapsed: %s\n%s",
		snap.RunID,
		phaseLabel(snap.Phase),
		elapsed,
		d.formatRunParams(),
	)

	title, percent, label := phaseProgress(snap)
	d.progressGauge.Title = title
	d.progressGauge.Percent = percent
	d.progressGauge.Label = label

	d.statePara.Text = fmt.Sprintf(
		"Servers:      %d\nConnecting:   %d\nReady:        %d\nRunning:      %d\nFinished:     %d\nFailed:       %d",
		total, s.Initializing, s.Ready, s.Running, s.Finished, s.Failed,
	)

	d.runningHistory = append(d.runningHistory, float64(s.Running))
	if len(d.runningHistory) > historyLen {
		d.runningHistory = d.runningHistory[1:]
	}
	d.runningSparkle.Sparklines[0].Data = d.runningHistory
	d.runningSparkle.Title = fmt.Sprintf("Activity | Running: %d of %d", s.Running, total)

	d.endpointList.Rows = formatEndpointRows(snap.Endpoints)
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

// phaseProgress picks what the gauge measures: servers ready while waiting to
// start, servers done once running.
func phaseProgress(snap runner.Snapshot) (title string, percent int, label string) {
	total := len(snap.Endpoints)
	s := snap.State
	done := s.Ready + s.Running + s.Finished + s.Failed
	title = "Servers Ready"
	if snap.Phase != runner.AwaitingReady {
		done = s.Finished + s.Failed
		title = "Servers Reporting"
	}
	if total == 0 {
		return title, 0, "0/0"
	}
	percent = done * 100 / total
	if percent > 100 {
		percent = 100
	}
	return title, percent, fmt.Sprintf("%d/%d", done, total)
}

func phaseLabel(p runner.GlobalPhase) string {
	switch p {
	case runner.Complete:
		return "[complete](fg:green)"
	case runner.Aborted:
		return "[aborted](fg:red)"
	default:
		return p.String()
	}
}

func formatEndpointRows(statuses []runner.EndpointStatus) []string {
	if len(statuses) == 0 {
		return []string{"[No servers](fg:yellow)"}
	}
	rows := make([]string, 0, len(statuses))
	for _, st := range statuses {
		row := fmt.Sprintf("[%s](fg:cyan) | %s", st.URL, phaseCell(st.Phase))
		if st.Err != nil {
			row += " | " + truncate(st.Err.Error(), maxErrorLen)
		}
		rows = append(rows, row)
	}
	return rows
}

func phaseCell(p runner.ConnPhase) string {
	switch p {
	case runner.ConnRunning:
		return "[running](fg:blue)"
	case runner.ConnDone:
		return "[done](fg:green)"
	case runner.ConnFailed:
		return "[failed](fg:red)"
	default:
		return p.String()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// formatRunParams formats the run configuration for display.
func (d *Dashboard) formatRunParams() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Servers: %d", d.cfg.Servers))

	if d.cfg.ConnectRate > 0 {
		parts = append(parts, fmt.Sprintf("Connect rate: %d/s", d.cfg.ConnectRate))
	} else {
		parts = append(parts, "Connect rate: unlimited")
	}

	if d.cfg.ConnectRetries > 0 {
		parts = append(parts, fmt.Sprintf("Retries: %d", d.cfg.ConnectRetries))
	}
	if d.cfg.ReadyTimeout > 0 {
		parts = append(parts, fmt.Sprintf("Ready timeout: %s", d.cfg.ReadyTimeout))
	}
	if d.cfg.IdleTimeout > 0 {
		parts = append(parts, fmt.Sprintf("Idle timeout: %s", d.cfg.IdleTimeout))
	}
	if d.cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", d.cfg.ConfigFile))
	}

	return strings.Join(parts, " | ")
}

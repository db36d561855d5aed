// Program aethermon polls a transport telemetry endpoint over a websocket and
// shows each snapshot as a dashboard, a plain console frame, an HTML page or
// a periodic log summary.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"aethermon/config"
	"aethermon/poller"
	"aethermon/render"
	"aethermon/transport"
	"aethermon/ui"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

const fileStatsInterval = time.Minute

// Version will be set at build time
var Version = "dev"

// monitorSurface is what main needs from every ui surface.
type monitorSurface interface {
	ui.Surface
	Metrics() *ui.Metrics
}

func main() {
	cfg, err := loadMonitorConfig()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if err := transport.CheckEndpoint(cfg.Transport.Endpoint); err != nil {
		log.Fatalf("Transport: cannot monitor %s: %v", cfg.Transport.Endpoint, err)
	}

	router, logErr := setupLogging(cfg.Logging, os.Stdout)
	// The router stamps its own timestamps.
	log.SetFlags(0)
	log.SetOutput(router)
	defer router.Close()
	if logErr != nil {
		log.Printf("Logging: file logging disabled: %v", logErr)
	}
	router.SetRotateHook(func(prevDate time.Time, prevPath, newPath string) {
		log.Printf("Logging: rotated %s -> %s", prevPath, newPath)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	surface := selectSurface(cfg, isStdoutTTY(), stop)
	surface.WaitReady()
	if w := surface.SystemWriter(); w != nil {
		router.SetSurfaceSink(w, false)
	}
	switch cfg.UI.Mode {
	case config.ModeHeadless, config.ModeHTML:
		cfg.Print()
	}
	source := cfg.LoadedFrom
	if source == "" {
		source = "built-in defaults"
	}
	log.Printf("aethermon %s monitoring %s (config: %s, ui: %s)", Version, cfg.Transport.Endpoint, source, cfg.UI.Mode)

	loop := poller.New(
		poller.Options{
			Interval:       cfg.Transport.PollInterval(),
			RedialInterval: cfg.Transport.RedialInterval(),
		},
		poller.Dialer(cfg.Transport.Endpoint, transport.Options{
			HandshakeTimeout: cfg.Transport.HandshakeTimeout(),
			ReadLimit:        cfg.Transport.ReadLimitBytes,
		}),
		surface,
		nil,
	)
	go writeFileStats(ctx, router, loop, surface.Metrics(), fileStatsInterval)

	runErr := loop.Run(ctx)

	surface.Stop()
	router.SetSurfaceSink(os.Stdout, true)
	if runErr != nil {
		log.Printf("Poller: %v", runErr)
		router.Close()
		os.Exit(1)
	}
	log.Printf("aethermon: %s", statsLine(loop.Stats(), surface.Metrics()))
}

// Purpose: Load configuration from env/default locations.
// Key aspects: Env override first, then the default dir; no directory at all
// means built-in defaults.
// Upstream: main startup.
// Downstream: config.Load, config.Default.
func loadMonitorConfig() (*config.Config, error) {
	candidates := make([]string, 0, 2)
	if envPath := strings.TrimSpace(os.Getenv(config.EnvPath)); envPath != "" {
		candidates = append(candidates, envPath)
	}
	candidates = append(candidates, config.DefaultPath)

	for _, path := range candidates {
		cfg, err := config.Load(path)
		if err != nil {
			if errors.Is(err, config.ErrNotFound) {
				continue
			}
			return nil, err
		}
		return cfg, nil
	}
	return config.Default(), nil
}

// Purpose: Build the configured output surface.
// Key aspects: tview needs a terminal and falls back to the console writer;
// the console only clears the screen on a terminal.
// Upstream: main startup.
// Downstream: ui.NewDashboard, ui.NewConsole, ui.NewHTMLFile, ui.NewHeadless.
func selectSurface(cfg *config.Config, tty bool, quit func()) monitorSurface {
	mode := cfg.UI.Mode
	if mode == config.ModeTview && !tty {
		log.Printf("UI: tview requires an interactive console; using console output")
		mode = config.ModeConsole
	}
	switch mode {
	case config.ModeTview:
		return ui.NewDashboard(ui.DashboardOptions{
			Endpoint:        cfg.Transport.Endpoint,
			TargetFPS:       cfg.UI.TargetFPS,
			SystemLines:     cfg.UI.SystemLines,
			UseAlternatives: cfg.UI.Keybindings.UseAlternatives,
			OnQuit:          quit,
		})
	case config.ModeConsole:
		return ui.NewConsole(os.Stdout, cfg.UI.ClearScreen && tty, consoleSystemLines(cfg.UI.SystemLines))
	case config.ModeHTML:
		return ui.NewHTMLFile(cfg.UI.HTMLPath, render.PageOptions{
			Title:          "aethermon " + cfg.Transport.Endpoint,
			RefreshSeconds: cfg.UI.HTMLRefreshSeconds,
		})
	default:
		return ui.NewHeadless(nil)
	}
}

// consoleSystemLines keeps the log tail short enough to sit under a frame.
func consoleSystemLines(configured int) int {
	const maxConsoleLines = 10
	if configured <= 0 || configured > maxConsoleLines {
		return maxConsoleLines
	}
	return configured
}

// Purpose: Periodically record loop counters in the log file only.
// Key aspects: Never touches the surface; exits with ctx.
// Upstream: main after the poll loop is built.
// Downstream: logRouter.WriteFileOnly.
func writeFileStats(ctx context.Context, router *logRouter, loop *poller.Loop, metrics *ui.Metrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			router.WriteFileOnly("Stats: " + statsLine(loop.Stats(), metrics))
		}
	}
}

func statsLine(st poller.Stats, metrics *ui.Metrics) string {
	delay := metrics.FrameDelay()
	return fmt.Sprintf("%s polls, %s replies, %s commits (%s duplicate, %s malformed, %s degraded ticks, %s dials / %s failed), %s draws, frame delay p50 %s p99 %s",
		humanize.Comma(int64(st.Polls)),
		humanize.Comma(int64(st.Replies)),
		humanize.Comma(int64(st.Commits)),
		humanize.Comma(int64(st.Duplicates)),
		humanize.Comma(int64(st.DecodeFailures)),
		humanize.Comma(int64(st.DegradedTicks)),
		humanize.Comma(int64(st.Dials)),
		humanize.Comma(int64(st.DialFailures)),
		humanize.Comma(int64(metrics.Draws())),
		delay.P50, delay.P99,
	)
}

// Purpose: Report whether stdout is a TTY for UI gating.
// Key aspects: Uses term.IsTerminal on stdout fd.
// Upstream: main UI selection.
// Downstream: term.IsTerminal.
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"aethermon/internal/stubserver"

	"github.com/dustin/go-humanize"
)

// aetherstub serves simulated telemetry so the monitor can be exercised
// without a running transport deployment.
func main() {
	var (
		listen = flag.String("listen", "localhost:8080", "address to listen on")
		path   = flag.String("path", "/aether", "websocket path advertised to clients")
		seed   = flag.Int64("seed", 1, "simulation seed")
		tick   = flag.Duration("tick", 100*time.Millisecond, "simulation step interval")
	)
	flag.Parse()

	if *tick <= 0 {
		log.Fatalf("tick must be >0 (got %s)", tick.String())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := stubserver.NewSimulator(*seed, *tick)
	go sim.Run(ctx)

	handler := stubserver.New(sim, nil)
	srv := &http.Server{
		Addr:              *listen,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("aetherstub: serving ws://%s%s (seed=%d tick=%s)", *listen, *path, *seed, tick.String())
	started := time.Now()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("aetherstub: %v", err)
	}
	log.Printf("aetherstub: stopped after %s steps and %s frames (started %s)",
		humanize.Comma(int64(sim.Steps())), humanize.Comma(int64(handler.Frames())), humanize.Time(started))
}

// Command fake-backend serves a synthetic path planning backend.
//
// This is useful for running the dashboard without the real planner. It
// serves /api/latest/{status,code,path} with a generated pick-and-place plan
// that changes every -advance interval.
//
// Usage:
//
//	go run ./cmd/tools/fake-backend [flags]
//
// Flags:
//
//	-addr           Listen address (default: localhost:8000)
//	-advance        Plan change interval (default: 10s)
//	-seed           Random seed, 0 for time based (default: 0)
//	-invalid-every  Every Nth plan fails validation (default: 4)
//	-error-rate     Probability of a 503 per request (default: 0)
//	-corrupt-rate   Probability of a malformed body per request (default: 0)
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

	"github.com/banshee-data/pathview/internal/synthetic"
)

func main() {
	addr := flag.String("addr", "localhost:8000", "Listen address")
	advance := flag.Duration("advance", 10*time.Second, "Plan change interval")
	seed := flag.Int64("seed", 0, "Random seed (0 = time based)")
	invalidEvery := flag.Int("invalid-every", 4, "Every Nth plan fails validation (0 = never)")
	errorRate := flag.Float64("error-rate", 0, "Probability of a 503 response per request")
	corruptRate := flag.Float64("corrupt-rate", 0, "Probability of a malformed body per request")
	flag.Parse()

	gen := synthetic.NewGenerator(*seed)
	gen.InvalidEvery = *invalidEvery
	backend := synthetic.NewBackend(gen)
	for _, f := range []string{synthetic.FeedStatus, synthetic.FeedCode, synthetic.FeedPath} {
		backend.SetFaults(f, synthetic.Faults{ErrorRate: *errorRate, CorruptRate: *corruptRate})
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go backend.Run(ctx, *advance)

	srv := &http.Server{Addr: *addr, Handler: backend.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("Synthetic backend listening on %s (advance %s, error rate %.2f, corrupt rate %.2f)",
		*addr, *advance, *errorRate, *corruptRate)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Failed to serve: %v", err)
	}
	log.Printf("Shutting down...")
}

// Command ingestd runs the per-minute wallet-snapshot ingestion loop,
// interleaving a universe refresh at the configured cadence.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cohortsignal/engine/configs"
	"github.com/cohortsignal/engine/internal/ingest"
	"github.com/cohortsignal/engine/internal/scheduler"
	"github.com/cohortsignal/engine/internal/store"
	"github.com/cohortsignal/engine/internal/universe"
	"github.com/cohortsignal/engine/pkg/hyperliquid"
)

func main() {
	once := flag.Bool("once", false, "run a single ingestion cycle then exit")
	forceRefresh := flag.Bool("refresh-universe", false, "force a universe refresh before the first cycle")
	envFile := flag.String("env-file", ".env", "optional .env file to load")
	flag.Parse()

	cfg, err := configs.LoadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingestd: config init failed: %v\n", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingestd: store init failed: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	client := hyperliquid.NewClient(cfg.StatsEndpoint, cfg.InfoEndpoint, cfg.RequestTimeout)
	ingester := ingest.New(client, st, cfg.MaxConcurrency, cfg.StaleThreshold)
	refresher := universe.New(client, st, cfg.UniverseSize)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lastRefresh := time.Time{}
	if *forceRefresh {
		runRefresh(ctx, refresher, &lastRefresh)
	}

	cycle := func(ctx context.Context, boundary time.Time) error {
		if time.Since(lastRefresh) >= cfg.UniverseRefresh {
			runRefresh(ctx, refresher, &lastRefresh)
		}
		_, err := ingester.Run(ctx, boundary)
		return err
	}

	if *once {
		if err := cycle(ctx, time.Now().UTC().Truncate(time.Minute)); err != nil {
			fmt.Fprintf(os.Stderr, "ingestd: cycle failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	reportChan := make(chan scheduler.Report, 64)
	loop := &scheduler.Loop{Name: "ingest", Interval: cfg.SnapshotInterval, Cycle: cycle, ReportChan: reportChan}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	for {
		select {
		case rep := <-reportChan:
			logReport(rep)
		case sig := <-sigCh:
			log.Printf("ingestd: received %s, shutting down", sig)
			cancel()
			<-done
			os.Exit(130)
		case err := <-done:
			if err != nil {
				fmt.Fprintf(os.Stderr, "ingestd: fatal: %v\n", err)
				os.Exit(1)
			}
			os.Exit(0)
		}
	}
}

func runRefresh(ctx context.Context, refresher *universe.Refresher, lastRefresh *time.Time) {
	result, err := refresher.Refresh(ctx, time.Now().UTC())
	if err != nil {
		log.Printf("ingestd: universe refresh failed: %v", err)
		return
	}
	*lastRefresh = time.Now()
	if result.Accepted {
		log.Printf("ingestd: universe refreshed, %d valid rows, %d entered, %d exited",
			result.ValidRows, len(result.Entered), len(result.Exited))
	}
}

func logReport(rep scheduler.Report) {
	if rep.Error != "" {
		log.Printf("ingestd: %s: %s (%s)", rep.EventType, rep.Message, rep.Error)
		return
	}
	log.Printf("ingestd: %s: %s", rep.EventType, rep.Message)
}

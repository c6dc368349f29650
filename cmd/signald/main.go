// Command signald runs the 5-minute signal-computation and alert-evaluation
// loop, independent of the ingestion schedule.
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
	"github.com/cohortsignal/engine/internal/scheduler"
	"github.com/cohortsignal/engine/internal/signals/runner"
	"github.com/cohortsignal/engine/internal/store"
)

func main() {
	once := flag.Bool("once", false, "run a single signal cycle then exit")
	envFile := flag.String("env-file", ".env", "optional .env file to load")
	assetTableFile := flag.String("asset-table", "", "optional YAML file overriding per-asset epsilon floors")
	flag.Parse()

	cfg, err := configs.LoadConfig(*envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "signald: config init failed: %v\n", err)
		os.Exit(1)
	}

	assetTable, err := configs.LoadAssetTable(*assetTableFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "signald: asset table init failed: %v\n", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "signald: store init failed: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	r := runner.New(st, assetTable)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cycle := func(ctx context.Context, boundary time.Time) error {
		result, err := r.Run(boundary)
		if err != nil {
			return err
		}
		if result.Locked {
			log.Printf("signald: signal lock engaged at %s, cycle skipped", boundary)
			return nil
		}
		log.Printf("signald: computed %d assets (%d errors) at %s", result.AssetsDone, result.AssetErrors, boundary)
		return nil
	}

	if *once {
		if err := cycle(ctx, time.Now().UTC().Truncate(5*time.Minute)); err != nil {
			fmt.Fprintf(os.Stderr, "signald: cycle failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	reportChan := make(chan scheduler.Report, 64)
	loop := &scheduler.Loop{Name: "signal", Interval: cfg.SignalInterval, Cycle: cycle, ReportChan: reportChan}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	for {
		select {
		case rep := <-reportChan:
			logReport(rep)
		case sig := <-sigCh:
			log.Printf("signald: received %s, shutting down", sig)
			cancel()
			<-done
			os.Exit(130)
		case err := <-done:
			if err != nil {
				fmt.Fprintf(os.Stderr, "signald: fatal: %v\n", err)
				os.Exit(1)
			}
			os.Exit(0)
		}
	}
}

func logReport(rep scheduler.Report) {
	if rep.Error != "" {
		log.Printf("signald: %s: %s (%s)", rep.EventType, rep.Message, rep.Error)
		return
	}
	log.Printf("signald: %s: %s", rep.EventType, rep.Message)
}

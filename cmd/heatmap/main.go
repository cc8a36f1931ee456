package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jengzang/records-heatmap/internal/config"
	"github.com/jengzang/records-heatmap/internal/pipeline"
)

func main() {
	initLogging()

	cfg, err := config.Load(os.Args[1:], os.Getenv, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, "usage: heatmap -lat LAT -lon LON [flags] <directory>")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := pipeline.Run(ctx, cfg, pipeline.Deps{})
	if err != nil {
		log.Printf("[Main] Failed: %v", err)
		stop()
		os.Exit(1)
	}
	if n := summary.Skipped.Skipped(); n > 0 {
		log.Printf("[Main] Skipped %d activities (%s)", n, summary.Skipped)
	}
}

// initLogging sends logs to stderr; stdout may carry the frame stream
func initLogging() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}

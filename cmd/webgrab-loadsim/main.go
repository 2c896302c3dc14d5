package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/webgrab/webgrab/loadsim"
)

var (
	targets   = flag.String("target", "", "comma-separated page URLs to exercise (required)")
	mcpURL    = flag.String("mcp", "http://127.0.0.1:8081/mcp", "tool server streamable HTTP endpoint")
	duration  = flag.Duration("duration", 30*time.Second, "how long to run")
	workers   = flag.Int("workers", 4, "concurrent closed-loop workers")
	mixSpec   = flag.String("mix", "", "operation mix as op=weight,... (default: built-in mix)")
	recordDir = flag.String("record", "", "directory for scrubbed response fixtures (empty: no recording)")
	scrubText = flag.Bool("scrub-text", false, "also obfuscate fixture text into stable pseudowords")
	seed      = flag.Int64("seed", 1, "worker RNG seed")
	token     = flag.String("token", "", "bearer token sent as auth_token")
	profile   = flag.String("profile", "", "news source profile used by news operations")
)

func main() {
	flag.Parse()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if *targets == "" {
		fmt.Fprintln(os.Stderr, "-target is required (comma-separated URLs)")
		flag.Usage()
		os.Exit(2)
	}
	var urls []string
	for _, t := range strings.Split(*targets, ",") {
		if t = strings.TrimSpace(t); t != "" {
			urls = append(urls, t)
		}
	}

	mix, err := loadsim.ParseMix(*mixSpec)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad -mix: %v\n", err)
		os.Exit(2)
	}

	var recorder *loadsim.Recorder
	if *recordDir != "" {
		recorder = loadsim.NewRecorder(*recordDir, loadsim.NewScrubber(*scrubText))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := loadsim.NewClient(*mcpURL, *token)
	if err := client.Initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "cannot reach tool server at %s: %v\n", *mcpURL, err)
		os.Exit(1)
	}

	fmt.Printf("driving %d worker(s) for %s against %d target(s)\n", *workers, *duration, len(urls))

	runner := loadsim.NewRunner(client, mix, loadsim.Options{
		Workers:  *workers,
		Duration: *duration,
		Targets:  urls,
		Profile:  *profile,
		Seed:     *seed,
		Recorder: recorder,
	})
	report := runner.Run(ctx)
	report.WriteTable(os.Stdout)

	if report.Total == 0 {
		fmt.Fprintln(os.Stderr, "no calls completed")
		os.Exit(1)
	}
	if report.Errors == report.Total {
		fmt.Fprintln(os.Stderr, "every call failed")
		os.Exit(1)
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/webgrab/webgrab/session"
)

var (
	storageRoot string
	maxMB       float64
	group       string
	lockStale   time.Duration
	asJSON      bool
)

var rootCmd = &cobra.Command{
	Use:   "webgrab-prune",
	Short: "Prune a webgrab session store down to a size budget.",
	Long: `webgrab-prune shrinks a session store to at most --max-mb megabytes by
deleting the oldest sessions first. Orphaned blobs, widowed metadata,
and unreadable metadata are swept regardless of the budget.

The run holds the store-wide prune lock. Exit codes: 0 on success,
1 when the store could not be brought under budget or the run failed,
2 when another pruner holds the lock.`,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(run())
	},
}

func init() {
	rootCmd.Flags().StringVar(&storageRoot, "storage", envOr("WEBGRAB_STORAGE", "./data"), "session store root directory")
	rootCmd.Flags().Float64Var(&maxMB, "max-mb", 1024, "size budget in megabytes")
	rootCmd.Flags().StringVar(&group, "group", "", "prune only this group's sessions")
	rootCmd.Flags().DurationVar(&lockStale, "lock-stale", time.Hour, "age after which a leftover prune lock is reclaimed")
	rootCmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run() int {
	// The report goes to stdout; keep slog quiet unless something breaks.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	store, err := session.NewStore(storageRoot, 0, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot open store: %v\n", err)
		return session.PruneFail
	}

	report, code := store.PruneSize(maxMB, group, lockStale)

	if asJSON {
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
		return code
	}

	if code == session.PruneBusy {
		fmt.Println("another pruner holds the lock; nothing done")
		return code
	}
	fmt.Printf("examined %d sessions, deleted %d, freed %s, %d anomalies, %s remaining\n",
		report.Examined, report.Deleted, formatBytes(report.FreedBytes),
		report.Anomalies, formatBytes(report.RemainingBytes))
	if code == session.PruneFail {
		fmt.Println("store is still over budget")
	}
	return code
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(session.PruneFail)
	}
}

// Package housekeep runs the storage pruner on a fixed interval inside
// the serving binary.
package housekeep

import (
	"context"
	"log/slog"
	"time"

	"github.com/webgrab/webgrab/session"
)

// Pruner is the slice of the session store the housekeeper drives.
type Pruner interface {
	PruneSize(maxMB float64, group string, lockStale time.Duration) (*session.PruneReport, int)
}

// Housekeeper prunes the whole store (no group scope) every interval.
// Prune outcomes are logged and never stop the loop.
type Housekeeper struct {
	store     Pruner
	interval  time.Duration
	maxMB     float64
	lockStale time.Duration
}

// New builds a housekeeper targeting maxStorageMB across all groups.
func New(store Pruner, interval time.Duration, maxStorageMB int, lockStale time.Duration) *Housekeeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Housekeeper{
		store:     store,
		interval:  interval,
		maxMB:     float64(maxStorageMB),
		lockStale: lockStale,
	}
}

// Run blocks until ctx is cancelled. The first prune fires one full
// interval after start, not immediately.
func (h *Housekeeper) Run(ctx context.Context) {
	slog.Info("housekeeper started",
		"interval", h.interval,
		"max_storage_mb", h.maxMB)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("housekeeper stopped")
			return
		case <-ticker.C:
			h.tick()
		}
	}
}

func (h *Housekeeper) tick() {
	report, code := h.store.PruneSize(h.maxMB, "", h.lockStale)
	switch code {
	case session.PruneBusy:
		slog.Info("housekeeping skipped, another pruner holds the lock")
	case session.PruneFail:
		slog.Error("housekeeping failed",
			"examined", report.Examined,
			"deleted", report.Deleted,
			"anomalies", report.Anomalies)
	default:
		if report.Deleted > 0 || report.Anomalies > 0 {
			slog.Warn("housekeeping pruned storage",
				"examined", report.Examined,
				"deleted", report.Deleted,
				"freed_bytes", report.FreedBytes,
				"anomalies", report.Anomalies,
				"remaining_bytes", report.RemainingBytes)
			return
		}
		slog.Debug("housekeeping clean",
			"examined", report.Examined,
			"remaining_bytes", report.RemainingBytes)
	}
}

package loadsim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"text/tabwriter"
	"time"
)

// Options configures one load run.
type Options struct {
	Workers  int
	Duration time.Duration
	// MaxCalls caps the total number of operations across all workers;
	// 0 means duration-bounded only.
	MaxCalls int
	// Targets are the page URLs operations draw from.
	Targets []string
	// Profile names the news source profile used by news operations.
	Profile string
	Seed    int64
	// Recorder, when set, captures successful non-ping responses.
	Recorder *Recorder
}

// Runner is a closed-loop generator: each worker issues its next call as
// soon as the previous one returns.
type Runner struct {
	caller Caller
	mix    *Mix
	opts   Options
}

func NewRunner(caller Caller, mix *Mix, opts Options) *Runner {
	if mix == nil {
		mix = DefaultMix()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Duration <= 0 && opts.MaxCalls <= 0 {
		opts.Duration = 10 * time.Second
	}
	return &Runner{caller: caller, mix: mix, opts: opts}
}

type sample struct {
	op string
	d  time.Duration
	ok bool
}

// OpStats summarizes one operation's calls.
type OpStats struct {
	Op     string        `json:"op"`
	Count  int           `json:"count"`
	Errors int           `json:"errors"`
	P50    time.Duration `json:"p50_ns"`
	P95    time.Duration `json:"p95_ns"`
	P99    time.Duration `json:"p99_ns"`
}

// Report aggregates a finished run.
type Report struct {
	Elapsed  time.Duration `json:"elapsed_ns"`
	Total    int           `json:"total"`
	Errors   int           `json:"errors"`
	Ops      []OpStats     `json:"ops"`
	Recorded int           `json:"recorded"`
	Skipped  int           `json:"skipped"`
}

// Run drives the workers until the duration elapses, the call cap is hit,
// or the context is canceled.
func (r *Runner) Run(ctx context.Context) *Report {
	started := time.Now()
	deadline := started.Add(r.opts.Duration)

	var calls atomic.Int64
	results := make([][]sample, r.opts.Workers)
	var wg sync.WaitGroup
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(r.opts.Seed + int64(idx)))
			var local []sample
			for {
				if ctx.Err() != nil {
					break
				}
				if r.opts.Duration > 0 && !time.Now().Before(deadline) {
					break
				}
				if r.opts.MaxCalls > 0 && calls.Add(1) > int64(r.opts.MaxCalls) {
					break
				}

				op := r.mix.Pick(rng)
				begin := time.Now()
				body, isErr, err := r.execute(ctx, op, rng)
				ok := err == nil && !isErr
				local = append(local, sample{op: op, d: time.Since(begin), ok: ok})

				if err != nil {
					slog.Warn("load call failed", "op", op, "error", err)
					continue
				}
				if ok && r.opts.Recorder != nil && op != OpPing {
					if rerr := r.opts.Recorder.Record(op, body); rerr != nil {
						slog.Warn("fixture record failed", "op", op, "error", rerr)
					}
				}
			}
			results[idx] = local
		}(i)
	}
	wg.Wait()

	rep := &Report{Elapsed: time.Since(started)}
	byOp := make(map[string][]time.Duration)
	errsByOp := make(map[string]int)
	for _, batch := range results {
		for _, s := range batch {
			rep.Total++
			if !s.ok {
				rep.Errors++
				errsByOp[s.op]++
			}
			byOp[s.op] = append(byOp[s.op], s.d)
		}
	}

	ops := make([]string, 0, len(byOp))
	for op := range byOp {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		ds := byOp[op]
		sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })
		rep.Ops = append(rep.Ops, OpStats{
			Op:     op,
			Count:  len(ds),
			Errors: errsByOp[op],
			P50:    percentile(ds, 50),
			P95:    percentile(ds, 95),
			P99:    percentile(ds, 99),
		})
	}

	if r.opts.Recorder != nil {
		rep.Recorded, rep.Skipped = r.opts.Recorder.Stats()
	}
	return rep
}

func (r *Runner) target(rng *rand.Rand) string {
	if len(r.opts.Targets) == 0 {
		return ""
	}
	return r.opts.Targets[rng.Intn(len(r.opts.Targets))]
}

func (r *Runner) execute(ctx context.Context, op string, rng *rand.Rand) (string, bool, error) {
	switch op {
	case OpPing:
		return r.caller.CallTool(ctx, "ping", nil)
	case OpContentSingle:
		return r.caller.CallTool(ctx, "get_content", map[string]any{
			"url":   r.target(rng),
			"depth": 1,
		})
	case OpContentCrawl:
		return r.caller.CallTool(ctx, "get_content", map[string]any{
			"url":                 r.target(rng),
			"depth":               2,
			"max_pages_per_level": 3,
		})
	case OpStructure:
		return r.caller.CallTool(ctx, "get_structure", map[string]any{
			"url": r.target(rng),
		})
	case OpNews:
		args := map[string]any{
			"url":           r.target(rng),
			"depth":         1,
			"parse_results": true,
		}
		if r.opts.Profile != "" {
			args["source_profile_name"] = r.opts.Profile
		}
		return r.caller.CallTool(ctx, "get_content", args)
	case OpSessionRead:
		body, isErr, err := r.caller.CallTool(ctx, "get_content", map[string]any{
			"url":        r.target(rng),
			"session":    true,
			"chunk_size": 4000,
		})
		if err != nil || isErr {
			return body, isErr, err
		}
		var env struct {
			SessionID string `json:"session_id"`
		}
		if uerr := json.Unmarshal([]byte(body), &env); uerr != nil || env.SessionID == "" {
			return body, true, nil
		}
		return r.caller.CallTool(ctx, "get_session", map[string]any{
			"session_id": env.SessionID,
		})
	}
	return "", true, fmt.Errorf("unknown operation %q", op)
}

// percentile interpolates between the two nearest ranks of a sorted slice.
func percentile(sorted []time.Duration, p float64) time.Duration {
	switch len(sorted) {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + time.Duration(float64(sorted[hi]-sorted[lo])*frac)
}

// WriteTable renders the per-operation summary.
func (rep *Report) WriteTable(w io.Writer) {
	border := strings.Repeat("─", 72)
	fmt.Fprintln(w, border)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OPERATION\tCALLS\tERRORS\tP50\tP95\tP99")
	for _, s := range rep.Ops {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\n",
			s.Op, s.Count, s.Errors,
			fmtDuration(s.P50), fmtDuration(s.P95), fmtDuration(s.P99))
	}
	tw.Flush()

	fmt.Fprintln(w, border)
	fmt.Fprintf(w, "%d calls in %s, %d errors (%.1f calls/sec)\n",
		rep.Total, rep.Elapsed.Round(time.Millisecond), rep.Errors, rep.rate())
	if rep.Recorded > 0 || rep.Skipped > 0 {
		fmt.Fprintf(w, "fixtures: %d recorded, %d near-duplicates skipped\n",
			rep.Recorded, rep.Skipped)
	}
}

func (rep *Report) rate() float64 {
	if rep.Elapsed <= 0 {
		return 0
	}
	return float64(rep.Total) / rep.Elapsed.Seconds()
}

func fmtDuration(d time.Duration) string {
	if d >= 10*time.Millisecond {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Microsecond).String()
}

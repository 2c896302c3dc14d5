// Package seqlog ships log records to a Seq server as CLEF JSON.
//
// The handler never blocks the logging call site: records are converted to
// CLEF events and pushed onto a bounded queue consumed by one background
// poster goroutine. When the queue is full the event is dropped and counted.
// Each batch is posted once and retried once; a batch that fails twice is
// dropped and counted as well.
package seqlog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	queueSize     = 1024
	maxBatch      = 64
	flushInterval = 2 * time.Second
)

// Handler is a slog.Handler that forwards records to Seq. Install it next
// to the console handler via Fanout.
type Handler struct {
	ship *shipper
	min  slog.Level

	// base carries WithAttrs contributions, already flattened under the
	// group prefix active when they were added.
	base   map[string]any
	prefix string
}

// New builds a handler posting to {baseURL}/ingest/clef and starts its
// poster goroutine. Call Close on shutdown to flush queued events.
func New(baseURL, apiKey string, min slog.Level) *Handler {
	return &Handler{
		ship: newShipper(strings.TrimRight(baseURL, "/")+"/ingest/clef", apiKey, queueSize, true),
		min:  min,
	}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.min
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	ev := make(map[string]any, 4+len(h.base)+r.NumAttrs())
	maps.Copy(ev, h.base)

	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	ev["@t"] = ts.UTC().Format(time.RFC3339Nano)
	ev["@mt"] = r.Message
	ev["@l"] = clefLevel(r.Level)

	r.Attrs(func(a slog.Attr) bool {
		appendAttr(ev, h.prefix, a)
		return true
	})

	h.ship.enqueue(ev)
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	nh := h.clone()
	for _, a := range attrs {
		appendAttr(nh.base, nh.prefix, a)
	}
	return nh
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := h.clone()
	nh.prefix = h.prefix + name + "."
	return nh
}

func (h *Handler) clone() *Handler {
	return &Handler{
		ship:   h.ship,
		min:    h.min,
		base:   maps.Clone(h.base),
		prefix: h.prefix,
	}
}

// Close flushes queued events and stops the poster goroutine.
func (h *Handler) Close() {
	h.ship.close()
}

// Dropped reports how many events were lost to queue overflow, encoding
// failures, or exhausted delivery retries.
func (h *Handler) Dropped() int64 {
	return h.ship.dropped.Load()
}

func clefLevel(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "Debug"
	case l < slog.LevelWarn:
		return "Information"
	case l < slog.LevelError:
		return "Warning"
	default:
		return "Error"
	}
}

// appendAttr flattens one attr into the event. Groups become dotted keys.
// An error value under the "error" key also fills the CLEF exception slot.
func appendAttr(ev map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindGroup {
		gp := prefix
		if a.Key != "" {
			gp = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(ev, gp, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	key := prefix + a.Key
	switch a.Value.Kind() {
	case slog.KindString:
		ev[key] = a.Value.String()
	case slog.KindInt64:
		ev[key] = a.Value.Int64()
	case slog.KindUint64:
		ev[key] = a.Value.Uint64()
	case slog.KindFloat64:
		ev[key] = a.Value.Float64()
	case slog.KindBool:
		ev[key] = a.Value.Bool()
	case slog.KindDuration:
		ev[key] = a.Value.Duration().String()
	case slog.KindTime:
		ev[key] = a.Value.Time().UTC().Format(time.RFC3339Nano)
	default:
		v := a.Value.Any()
		if err, ok := v.(error); ok {
			ev[key] = err.Error()
			if key == "error" {
				ev["@x"] = err.Error()
			}
			return
		}
		if _, jerr := json.Marshal(v); jerr != nil {
			ev[key] = fmt.Sprint(v)
			return
		}
		ev[key] = v
	}
}

type shipper struct {
	endpoint string
	apiKey   string
	client   *http.Client

	queue   chan map[string]any
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
	dropped atomic.Int64
}

func newShipper(endpoint, apiKey string, queue int, start bool) *shipper {
	s := &shipper{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 5 * time.Second},
		queue:    make(chan map[string]any, queue),
		done:     make(chan struct{}),
	}
	if start {
		s.wg.Add(1)
		go s.run()
	}
	return s
}

func (s *shipper) enqueue(ev map[string]any) {
	select {
	case s.queue <- ev:
	default:
		s.dropped.Add(1)
	}
}

func (s *shipper) close() {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *shipper) run() {
	defer s.wg.Done()
	flush := time.NewTicker(flushInterval)
	defer flush.Stop()

	batch := make([]map[string]any, 0, maxBatch)
	for {
		select {
		case ev := <-s.queue:
			batch = append(batch, ev)
			if len(batch) >= maxBatch {
				s.post(batch)
				batch = batch[:0]
			}
		case <-flush.C:
			if len(batch) > 0 {
				s.post(batch)
				batch = batch[:0]
			}
		case <-s.done:
			// Drain whatever made it into the queue, then flush.
			for {
				select {
				case ev := <-s.queue:
					batch = append(batch, ev)
					if len(batch) >= maxBatch {
						s.post(batch)
						batch = batch[:0]
					}
				default:
					if len(batch) > 0 {
						s.post(batch)
					}
					return
				}
			}
		}
	}
}

// post ships one ndjson batch, retrying once before giving up.
func (s *shipper) post(events []map[string]any) {
	var buf bytes.Buffer
	lines := 0
	for _, ev := range events {
		line, err := json.Marshal(ev)
		if err != nil {
			s.dropped.Add(1)
			continue
		}
		buf.Write(line)
		buf.WriteByte('\n')
		lines++
	}
	if lines == 0 {
		return
	}
	body := buf.Bytes()
	if s.send(body) == nil {
		return
	}
	if s.send(body) == nil {
		return
	}
	s.dropped.Add(int64(lines))
}

func (s *shipper) send(body []byte) error {
	req, err := http.NewRequest(http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/vnd.serilog.clef")
	if s.apiKey != "" {
		req.Header.Set("X-Seq-ApiKey", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("seq returned status %d", resp.StatusCode)
	}
	return nil
}

package fetch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/webgrab/webgrab/antidetect"
	"github.com/webgrab/webgrab/models"
	"github.com/webgrab/webgrab/safeurl"
)

func newTestState() *antidetect.State {
	return antidetect.NewState(0, 100000, 1)
}

// newTestEngine allows loopback addresses so httptest servers are reachable.
func newTestEngine(opts Options) *Engine {
	return New(safeurl.New(true), newTestState(), opts)
}

func fastOpts(maxRetries int) Options {
	return Options{
		Timeout:    5 * time.Second,
		MaxRetries: maxRetries,
		BaseDelay:  time.Millisecond,
		MaxDelay:   5 * time.Millisecond,
	}
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, "<html><body>hello</body></html>")
	}))
	defer srv.Close()

	e := newTestEngine(fastOpts(3))
	res := e.Fetch(context.Background(), &Request{URL: srv.URL})

	if res.Error != nil {
		t.Fatalf("unexpected error: %+v", res.Error)
	}
	if res.Status != 200 {
		t.Errorf("status = %d, want 200", res.Status)
	}
	if !strings.Contains(res.Body, "hello") {
		t.Errorf("body = %q", res.Body)
	}
	if res.RetryCount != 0 {
		t.Errorf("retry_count = %d, want 0", res.RetryCount)
	}
	if res.Encoding != "utf-8" {
		t.Errorf("encoding = %q, want utf-8", res.Encoding)
	}
	if !res.Success() {
		t.Error("result should report success")
	}
}

func TestFetch_RetriesTransientStatus(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, "recovered")
	}))
	defer srv.Close()

	e := newTestEngine(fastOpts(3))
	res := e.Fetch(context.Background(), &Request{URL: srv.URL})

	if res.Error != nil {
		t.Fatalf("unexpected error: %+v", res.Error)
	}
	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Errorf("server hit %d times, want 3", n)
	}
	if res.RetryCount != 2 {
		t.Errorf("retry_count = %d, want 2", res.RetryCount)
	}
	if res.Body != "recovered" {
		t.Errorf("body = %q", res.Body)
	}
}

func TestFetch_RetryAfterAndRateLimitLatch(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	e := newTestEngine(fastOpts(3))
	res := e.Fetch(context.Background(), &Request{URL: srv.URL})

	if res.Error != nil {
		t.Fatalf("unexpected error: %+v", res.Error)
	}
	if !res.RateLimited {
		t.Error("rate_limited must latch true after a 429, even on eventual success")
	}
	if res.Status != 200 || res.RetryCount != 1 {
		t.Errorf("status = %d retry_count = %d", res.Status, res.RetryCount)
	}
}

func TestFetch_NoRetryOnPlain4xx(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	e := newTestEngine(fastOpts(3))
	res := e.Fetch(context.Background(), &Request{URL: srv.URL})

	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
	if res.Status != 404 {
		t.Errorf("status = %d, want 404", res.Status)
	}
	if res.Error != nil {
		t.Errorf("a 404 is reported through status alone, got error %+v", res.Error)
	}
	if res.Success() {
		t.Error("404 must not report success")
	}
}

func TestFetch_ExhaustedRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := newTestEngine(fastOpts(2))
	res := e.Fetch(context.Background(), &Request{URL: srv.URL})

	if n := atomic.LoadInt32(&hits); n != 3 {
		t.Errorf("server hit %d times, want 3", n)
	}
	if res.Error == nil || res.Error.Code != models.ErrCodeFetch {
		t.Fatalf("error = %+v, want FETCH_ERROR", res.Error)
	}
	if res.RetryCount != 2 {
		t.Errorf("retry_count = %d, want 2", res.RetryCount)
	}
	if res.Status != 503 {
		t.Errorf("status = %d, want 503", res.Status)
	}
}

func TestFetch_Exhausted429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	e := newTestEngine(fastOpts(1))
	res := e.Fetch(context.Background(), &Request{URL: srv.URL})

	if res.Error == nil || res.Error.Code != models.ErrCodeRateLimited {
		t.Fatalf("error = %+v, want RATE_LIMITED", res.Error)
	}
	if !res.RateLimited {
		t.Error("rate_limited flag not latched")
	}
}

func TestFetch_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(500 * time.Millisecond):
		}
	}))
	defer srv.Close()

	e := newTestEngine(fastOpts(0))
	res := e.Fetch(context.Background(), &Request{URL: srv.URL, Timeout: 20 * time.Millisecond})

	if res.Error == nil || res.Error.Code != models.ErrCodeTimeout {
		t.Fatalf("error = %+v, want TIMEOUT_ERROR", res.Error)
	}
}

func TestFetch_ConnectionRefused(t *testing.T) {
	e := newTestEngine(fastOpts(0))
	res := e.Fetch(context.Background(), &Request{URL: "http://127.0.0.1:1/"})

	if res.Error == nil || res.Error.Code != models.ErrCodeConnection {
		t.Fatalf("error = %+v, want CONNECTION_ERROR", res.Error)
	}
	if res.Status != 0 {
		t.Errorf("status = %d, want 0", res.Status)
	}
}

func TestFetch_SSRFBlocked(t *testing.T) {
	e := New(safeurl.New(false), newTestState(), fastOpts(0))

	for _, target := range []string{"http://127.0.0.1:9/", "http://metadata.google.internal/latest"} {
		res := e.Fetch(context.Background(), &Request{URL: target})
		if res.Error == nil || res.Error.Code != models.ErrCodeSSRFBlocked {
			t.Errorf("%s: error = %+v, want SSRF_BLOCKED", target, res.Error)
		}
		if res.Status != 0 {
			t.Errorf("%s: status = %d, want 0 (never fetched)", target, res.Status)
		}
	}
}

func TestFetch_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/b", http.StatusFound)
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "done")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := newTestEngine(fastOpts(0))
	res := e.Fetch(context.Background(), &Request{URL: srv.URL + "/a"})

	if res.Error != nil {
		t.Fatalf("unexpected error: %+v", res.Error)
	}
	if !strings.HasSuffix(res.FinalURL, "/b") {
		t.Errorf("final_url = %q, want .../b", res.FinalURL)
	}
	if res.Body != "done" {
		t.Errorf("body = %q", res.Body)
	}
}

func TestCheckRedirect(t *testing.T) {
	e := New(safeurl.New(false), newTestState(), fastOpts(0))

	req := httptest.NewRequest(http.MethodGet, "http://169.254.169.254/creds", nil)
	err := e.checkRedirect(req, nil)
	var verr *safeurl.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("redirect into link-local space not rejected: %v", err)
	}

	ok := httptest.NewRequest(http.MethodGet, "http://example.com/", nil)
	if err := e.checkRedirect(ok, make([]*http.Request, 10)); !errors.Is(err, errTooManyRedirects) {
		t.Errorf("11th hop must be refused, got %v", err)
	}
}

func TestFetch_ProfileHeaders(t *testing.T) {
	var gotUA atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA.Store(r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	state := newTestState()
	e := New(safeurl.New(true), state, fastOpts(0))

	e.Fetch(context.Background(), &Request{URL: srv.URL})
	if ua, _ := gotUA.Load().(string); !strings.HasPrefix(ua, "Mozilla/5.0") {
		t.Errorf("balanced profile UA = %q, want a browser UA", ua)
	}

	if _, terr := state.Configure(antidetect.Params{Profile: "none"}); terr != nil {
		t.Fatalf("configure: %v", terr)
	}
	e.Fetch(context.Background(), &Request{URL: srv.URL})
	if ua, _ := gotUA.Load().(string); ua != antidetect.ServiceUA {
		t.Errorf("none profile UA = %q, want %q", ua, antidetect.ServiceUA)
	}
}

func TestFetch_ExtraHeadersOverride(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("X-Client"))
	}))
	defer srv.Close()

	e := newTestEngine(fastOpts(0))
	e.Fetch(context.Background(), &Request{
		URL:          srv.URL,
		ExtraHeaders: map[string]string{"X-Client": "custom"},
	})
	if v, _ := got.Load().(string); v != "custom" {
		t.Errorf("X-Client = %q, want custom", v)
	}
}

func TestBackoff(t *testing.T) {
	e := newTestEngine(Options{
		Timeout:    time.Second,
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
	})

	for attempt, wantBase := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		d := e.backoff(attempt, "")
		if d < wantBase || d > wantBase+time.Second {
			t.Errorf("backoff(%d) = %v, want [%v, %v]", attempt, d, wantBase, wantBase+time.Second)
		}
	}
	if d := e.backoff(30, ""); d != 30*time.Second {
		t.Errorf("backoff(30) = %v, want capped at 30s", d)
	}
	if d := e.backoff(0, "7"); d != 7*time.Second {
		t.Errorf("backoff with Retry-After 7 = %v, want 7s", d)
	}
	if d := e.backoff(0, "120"); d != 30*time.Second {
		t.Errorf("backoff with Retry-After 120 = %v, want capped at 30s", d)
	}
	// Non-integer Retry-After falls back to the exponential schedule.
	if d := e.backoff(0, "Wed, 21 Oct 2026 07:28:00 GMT"); d > 2*time.Second {
		t.Errorf("backoff with date Retry-After = %v, want exponential", d)
	}
}

func TestClassifyTransport(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantCode  string
		retryable bool
	}{
		{"deadline", context.DeadlineExceeded, models.ErrCodeTimeout, true},
		{"canceled", context.Canceled, models.ErrCodeTimeout, false},
		{"dns", &net.DNSError{Err: "no such host", Name: "x.invalid"}, models.ErrCodeConnection, true},
		{"op", &net.OpError{Op: "dial", Err: errors.New("refused")}, models.ErrCodeConnection, true},
		{"eof", io.ErrUnexpectedEOF, models.ErrCodeConnection, true},
		{"redirect cap", errTooManyRedirects, models.ErrCodeFetch, false},
		{"protocol", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("malformed HTTP response")}, models.ErrCodeFetch, true},
		{"unexpected", errors.New("boom"), models.ErrCodeFetch, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, retryable := classifyTransport(tt.err)
			if code != tt.wantCode || retryable != tt.retryable {
				t.Errorf("classifyTransport() = (%s, %v), want (%s, %v)",
					code, retryable, tt.wantCode, tt.retryable)
			}
		})
	}
}

func TestClientSelection(t *testing.T) {
	e := newTestEngine(fastOpts(0))
	if e.clientFor(antidetect.ProfileBrowserTLS) != e.chrome {
		t.Error("browser_tls must use the impersonating wire")
	}
	if e.clientFor(antidetect.ProfileBalanced) != e.std {
		t.Error("balanced must use the standard wire")
	}
}

func TestHostPacer(t *testing.T) {
	p := newHostPacer()
	ctx := context.Background()

	start := time.Now()
	if err := p.Wait(ctx, "a.example", 80*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 30*time.Millisecond {
		t.Errorf("first wait took %v, want immediate", elapsed)
	}

	start = time.Now()
	if err := p.Wait(ctx, "a.example", 80*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("second wait took %v, want about 80ms", elapsed)
	}

	// Other hosts are paced independently.
	start = time.Now()
	if err := p.Wait(ctx, "b.example", 80*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 30*time.Millisecond {
		t.Errorf("other host waited %v, want immediate", elapsed)
	}

	// Dropping the delay to zero unblocks the host immediately.
	start = time.Now()
	if err := p.Wait(ctx, "a.example", 0); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 30*time.Millisecond {
		t.Errorf("zero-delay wait took %v, want immediate", elapsed)
	}
}

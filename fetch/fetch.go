package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/webgrab/webgrab/antidetect"
	"github.com/webgrab/webgrab/models"
	"github.com/webgrab/webgrab/safeurl"
)

// maxBodyBytes caps both the raw and the decompressed body size.
const maxBodyBytes = 10 << 20

var errTooManyRedirects = errors.New("stopped after 10 redirects")

// Engine performs hardened single-URL fetches: SSRF validation, per-host
// pacing, profile-derived headers, bounded retries with exponential backoff,
// and transparent content decoding. Failures are reported inside the
// FetchResult so a crawler can record them per page without aborting.
type Engine struct {
	validator *safeurl.Validator
	profile   *antidetect.State
	pacer     *hostPacer

	std    *http.Client
	chrome *http.Client

	timeout    time.Duration
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// Options bound the retry and timeout behavior of an Engine.
type Options struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Request is a single fetch order.
type Request struct {
	URL          string
	RotateUA     bool
	ExtraHeaders map[string]string

	// Timeout overrides the engine default for this call when > 0.
	Timeout time.Duration

	// MinDelay raises the per-host pacing gap for this call, typically to a
	// robots.txt crawl-delay. The profile delay still applies when larger.
	MinDelay time.Duration
}

// New creates an Engine. Zero option fields fall back to the service
// defaults (30s timeout, 1s base delay, 30s delay cap).
func New(validator *safeurl.Validator, profile *antidetect.State, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}

	e := &Engine{
		validator:  validator,
		profile:    profile,
		pacer:      newHostPacer(),
		timeout:    opts.Timeout,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		maxDelay:   opts.MaxDelay,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	e.std = &http.Client{Transport: newStdTransport(), CheckRedirect: e.checkRedirect}
	e.chrome = &http.Client{Transport: newChromeTransport(), CheckRedirect: e.checkRedirect}
	return e
}

// checkRedirect re-validates every redirect hop so an allowed URL cannot
// bounce the engine into a private or metadata address.
func (e *Engine) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= 10 {
		return errTooManyRedirects
	}
	if _, verr := e.validator.ValidateURL(req.Context(), req.URL); verr != nil {
		return verr
	}
	return nil
}

func (e *Engine) clientFor(p antidetect.Profile) *http.Client {
	if p == antidetect.ProfileBrowserTLS {
		return e.chrome
	}
	return e.std
}

// Fetch retrieves one URL. The returned result is never nil; transport
// failures, SSRF rejections and exhausted retries populate result.Error,
// while plain HTTP error statuses are reported through result.Status alone.
func (e *Engine) Fetch(ctx context.Context, req *Request) *models.FetchResult {
	res := &models.FetchResult{FinalURL: req.URL}

	checked, verr := e.validator.Validate(ctx, req.URL)
	if verr != nil {
		res.Error = verr.ToolError().ToDetail()
		return res
	}
	res.FinalURL = checked.URL.String()

	host := strings.ToLower(checked.URL.Hostname())
	delay := time.Duration(e.profile.RateLimitDelaySeconds() * float64(time.Second))
	if req.MinDelay > delay {
		delay = req.MinDelay
	}
	if err := e.pacer.Wait(ctx, host, delay); err != nil {
		res.Error = &models.ErrorDetail{Code: models.ErrCodeTimeout, Message: "canceled during pacing: " + err.Error()}
		return res
	}

	timeout := e.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	client := e.clientFor(e.profile.Profile())
	headers, _ := e.profile.Headers(req.RotateUA)

	for attempt := 0; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := e.do(attemptCtx, client, checked.URL.String(), headers, req.ExtraHeaders)
		if err != nil {
			cancel()
			code, retryable := classifyTransport(err)
			if retryable && attempt < e.maxRetries {
				if serr := sleepCtx(ctx, e.backoff(attempt, "")); serr != nil {
					return e.fail(res, attempt, models.ErrCodeTimeout, "canceled during backoff: "+serr.Error())
				}
				continue
			}
			res.Status = 0
			return e.fail(res, attempt, code, err.Error())
		}

		res.Status = resp.StatusCode
		if resp.StatusCode == http.StatusTooManyRequests {
			res.RateLimited = true
		}

		if retryableStatus(resp.StatusCode) && attempt < e.maxRetries {
			retryAfter := resp.Header.Get("Retry-After")
			io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			resp.Body.Close()
			cancel()
			if serr := sleepCtx(ctx, e.backoff(attempt, retryAfter)); serr != nil {
				return e.fail(res, attempt, models.ErrCodeTimeout, "canceled during backoff: "+serr.Error())
			}
			continue
		}

		raw, rerr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()
		cancel()

		res.RetryCount = attempt
		res.FinalURL = resp.Request.URL.String()
		res.ContentType = resp.Header.Get("Content-Type")
		res.Headers = flattenHeader(resp.Header)

		if rerr != nil {
			code, retryable := classifyTransport(rerr)
			if retryable && attempt < e.maxRetries {
				if serr := sleepCtx(ctx, e.backoff(attempt, "")); serr != nil {
					return e.fail(res, attempt, models.ErrCodeTimeout, "canceled during backoff: "+serr.Error())
				}
				continue
			}
			return e.fail(res, attempt, code, "read body: "+rerr.Error())
		}

		if retryableStatus(resp.StatusCode) {
			// Retries exhausted on a status that never cleared.
			code := models.ErrCodeFetch
			if resp.StatusCode == http.StatusTooManyRequests {
				code = models.ErrCodeRateLimited
			}
			return e.fail(res, attempt, code,
				fmt.Sprintf("HTTP %d from %s after %d attempts", resp.StatusCode, host, attempt+1))
		}

		decoded, derr := decompress(raw, resp.Header.Get("Content-Encoding"))
		if derr != nil {
			return e.fail(res, attempt, models.ErrCodeEncodingFailure, derr.Error())
		}
		text, encName, cerr := decodeCharset(decoded, res.ContentType)
		if cerr != nil {
			return e.fail(res, attempt, models.ErrCodeEncodingFailure, cerr.Error())
		}
		res.Body = string(text)
		res.Encoding = encName
		return res
	}
}

func (e *Engine) fail(res *models.FetchResult, attempt int, code, message string) *models.FetchResult {
	res.RetryCount = attempt
	res.Error = &models.ErrorDetail{Code: code, Message: message}
	return res
}

func (e *Engine) do(ctx context.Context, client *http.Client, target string, base http.Header, extra map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if base != nil {
		req.Header = base.Clone()
	}
	for k, v := range extra {
		req.Header.Set(k, v)
	}
	return client.Do(req)
}

// backoff computes the sleep before the next attempt. An integer Retry-After
// wins over the exponential schedule; both are capped at maxDelay.
func (e *Engine) backoff(attempt int, retryAfter string) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs >= 0 {
			d := time.Duration(secs) * time.Second
			if d > e.maxDelay {
				d = e.maxDelay
			}
			return d
		}
	}

	d := e.maxDelay
	if attempt < 20 {
		d = e.baseDelay * (1 << attempt)
	}
	e.mu.Lock()
	jitter := time.Duration(e.rng.Float64() * float64(e.baseDelay))
	e.mu.Unlock()
	d += jitter
	if d > e.maxDelay {
		d = e.maxDelay
	}
	return d
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// classifyTransport maps a transport-level failure onto a wire code and
// decides whether another attempt makes sense. Timeout, connection and
// protocol classes retry; anything unexpected is final.
func classifyTransport(err error) (code string, retryable bool) {
	var verr *safeurl.ValidationError
	if errors.As(err, &verr) {
		return verr.ToolError().Code, false
	}
	if errors.Is(err, errTooManyRedirects) {
		return models.ErrCodeFetch, false
	}
	if errors.Is(err, context.Canceled) {
		return models.ErrCodeTimeout, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.ErrCodeTimeout, true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return models.ErrCodeTimeout, true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return models.ErrCodeConnection, true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return models.ErrCodeConnection, true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return models.ErrCodeConnection, true
	}
	var uerr *url.Error
	if errors.As(err, &uerr) {
		// Protocol-level trouble on an otherwise sound connection, e.g. a
		// malformed response or an aborted TLS negotiation.
		return models.ErrCodeFetch, true
	}
	return models.ErrCodeFetch, false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

// Package safeurl validates outbound URLs before any socket is opened.
// It admits only http/https targets whose every resolved address is public,
// blocking the private, loopback, link-local and cloud-metadata ranges that
// make server-side request forgery useful.
package safeurl

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/webgrab/webgrab/models"
)

// Kind tags one validation failure mode.
type Kind int

const (
	KindInvalidScheme Kind = iota
	KindUnparseable
	KindUnresolvableHost
	KindPrivateAddress
	KindMetadataHost
)

// String returns the stable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidScheme:
		return "INVALID_SCHEME"
	case KindUnparseable:
		return "UNPARSEABLE"
	case KindUnresolvableHost:
		return "UNRESOLVABLE_HOST"
	case KindPrivateAddress:
		return "PRIVATE_ADDRESS"
	case KindMetadataHost:
		return "METADATA_HOST"
	}
	return "UNKNOWN"
}

// ValidationError is a tagged validation failure.
type ValidationError struct {
	Kind Kind
	Host string
	IP   string // offending address, for PRIVATE_ADDRESS
	Err  error
}

func (e *ValidationError) Error() string {
	if e.IP != "" {
		return fmt.Sprintf("%s: host %q resolves to %s", e.Kind, e.Host, e.IP)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: host %q: %v", e.Kind, e.Host, e.Err)
	}
	return fmt.Sprintf("%s: host %q", e.Kind, e.Host)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ToolError maps the tagged kind to the wire error code. The mapping is
// fixed: scheme/parse/DNS problems are INVALID_URL, address policy hits are
// SSRF_BLOCKED.
func (e *ValidationError) ToolError() *models.ToolError {
	switch e.Kind {
	case KindPrivateAddress:
		te := models.NewToolError(models.ErrCodeSSRFBlocked,
			"URL resolves to a private or reserved address", e)
		te.WithDetail("resolved_ip", e.IP)
		return te.WithDetail("host", e.Host)
	case KindMetadataHost:
		te := models.NewToolError(models.ErrCodeSSRFBlocked,
			"cloud metadata endpoints are not fetchable", e)
		return te.WithDetail("host", e.Host)
	case KindUnresolvableHost:
		te := models.NewToolError(models.ErrCodeInvalidURL,
			"hostname does not resolve", e)
		return te.WithDetail("host", e.Host).WithDetail("reason", "unresolvable_host")
	case KindInvalidScheme:
		return models.NewToolError(models.ErrCodeInvalidURL,
			"only http and https URLs are supported", e)
	default:
		return models.NewToolError(models.ErrCodeInvalidURL, "URL does not parse", e)
	}
}

// Checked is a URL that passed validation, with the addresses it resolved to.
type Checked struct {
	URL *url.URL
	IPs []net.IP
}

// Resolver is the DNS dependency, swappable in tests.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Validator checks URLs against the address policy.
type Validator struct {
	allowPrivate bool
	resolver     Resolver
}

// blockedNets holds every denied range. IPv4-mapped IPv6 addresses are
// unwrapped by net.IP.To4 before matching, so the v4 entries cover them.
var blockedNets = mustCIDRs(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
)

// metadataHosts are denied by name even when they resolve publicly.
var metadataHosts = map[string]struct{}{
	"metadata.google.internal": {},
	"metadata.google.com":      {},
	"metadata.goog":            {},
	"169.254.169.254":          {},
	"metadata.azure.com":       {},
	"instance-data":            {},
}

func mustCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(fmt.Sprintf("safeurl: bad builtin CIDR %q: %v", c, err))
		}
		nets = append(nets, n)
	}
	return nets
}

// New builds a Validator. allowPrivate skips the address and metadata-host
// checks (testing only); scheme and parse checks always apply.
func New(allowPrivate bool) *Validator {
	return &Validator{allowPrivate: allowPrivate, resolver: net.DefaultResolver}
}

// NewWithResolver builds a Validator with an injected resolver.
func NewWithResolver(allowPrivate bool, r Resolver) *Validator {
	return &Validator{allowPrivate: allowPrivate, resolver: r}
}

// Validate parses and checks a raw URL string.
func (v *Validator) Validate(ctx context.Context, raw string) (*Checked, *ValidationError) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, &ValidationError{Kind: KindUnparseable, Host: raw, Err: err}
	}
	return v.ValidateURL(ctx, u)
}

// ValidateURL checks an already-parsed URL. Redirect hops go through here.
func (v *Validator) ValidateURL(ctx context.Context, u *url.URL) (*Checked, *ValidationError) {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, &ValidationError{Kind: KindInvalidScheme, Host: u.String()}
	}
	host := u.Hostname()
	if host == "" {
		return nil, &ValidationError{Kind: KindUnparseable, Host: u.String()}
	}

	if !v.allowPrivate {
		if _, deny := metadataHosts[strings.ToLower(host)]; deny {
			return nil, &ValidationError{Kind: KindMetadataHost, Host: host}
		}
	}

	// Literal addresses skip DNS.
	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		if !v.allowPrivate {
			if verr := checkIP(host, ip); verr != nil {
				return nil, verr
			}
		}
		return &Checked{URL: u, IPs: []net.IP{ip}}, nil
	}

	addrs, err := v.resolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return nil, &ValidationError{Kind: KindUnresolvableHost, Host: host, Err: err}
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if !v.allowPrivate {
			if verr := checkIP(host, a.IP); verr != nil {
				return nil, verr
			}
		}
		ips = append(ips, a.IP)
	}
	return &Checked{URL: u, IPs: ips}, nil
}

// checkIP applies the address policy to one resolved address. Every
// resolved address must pass; one private record poisons the whole host.
func checkIP(host string, ip net.IP) *ValidationError {
	if ip.IsUnspecified() {
		return &ValidationError{Kind: KindPrivateAddress, Host: host, IP: ip.String()}
	}
	candidate := ip
	if v4 := ip.To4(); v4 != nil {
		candidate = v4
	}
	for _, n := range blockedNets {
		if n.Contains(candidate) {
			return &ValidationError{Kind: KindPrivateAddress, Host: host, IP: ip.String()}
		}
	}
	return nil
}

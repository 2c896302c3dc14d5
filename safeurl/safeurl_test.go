package safeurl

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/webgrab/webgrab/models"
)

type fakeResolver map[string][]string

func (f fakeResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	ips, ok := f[host]
	if !ok {
		return nil, errors.New("no such host")
	}
	out := make([]net.IPAddr, 0, len(ips))
	for _, s := range ips {
		out = append(out, net.IPAddr{IP: net.ParseIP(s)})
	}
	return out, nil
}

func TestValidateLiteralAddresses(t *testing.T) {
	v := New(false)

	tests := []struct {
		name string
		url  string
		kind Kind
		ok   bool
	}{
		{"public v4", "http://93.184.216.34/", 0, true},
		{"rfc1918 10", "http://10.0.0.2/", KindPrivateAddress, false},
		{"rfc1918 172", "http://172.16.5.5/x", KindPrivateAddress, false},
		{"rfc1918 192", "https://192.168.1.1/", KindPrivateAddress, false},
		{"loopback", "http://127.0.0.1:8080/", KindPrivateAddress, false},
		{"link local", "http://169.254.1.1/", KindPrivateAddress, false},
		{"metadata ip", "http://169.254.169.254/latest/meta-data", KindMetadataHost, false},
		{"cgnat", "http://100.64.0.1/", KindPrivateAddress, false},
		{"benchmarking", "http://198.18.0.1/", KindPrivateAddress, false},
		{"multicast", "http://224.0.0.1/", KindPrivateAddress, false},
		{"zero net", "http://0.0.0.0/", KindPrivateAddress, false},
		{"v6 loopback", "http://[::1]/", KindPrivateAddress, false},
		{"v6 ula", "http://[fc00::1]/", KindPrivateAddress, false},
		{"v6 link local", "http://[fe80::1]/", KindPrivateAddress, false},
		{"v4 mapped", "http://[::ffff:10.0.0.2]/", KindPrivateAddress, false},
		{"public v6", "http://[2606:2800:220:1:248:1893:25c8:1946]/", 0, true},
		{"bad scheme ftp", "ftp://example.com/file", KindInvalidScheme, false},
		{"bad scheme file", "file:///etc/passwd", KindInvalidScheme, false},
		{"no host", "http://", KindUnparseable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checked, err := v.Validate(context.Background(), tt.url)
			if tt.ok {
				if err != nil {
					t.Fatalf("Validate(%q) = %v, want ok", tt.url, err)
				}
				if len(checked.IPs) == 0 {
					t.Fatalf("Validate(%q) returned no IPs", tt.url)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate(%q) ok, want kind %v", tt.url, tt.kind)
			}
			if err.Kind != tt.kind {
				t.Errorf("Validate(%q) kind = %v, want %v", tt.url, err.Kind, tt.kind)
			}
		})
	}
}

func TestValidateResolvedHosts(t *testing.T) {
	resolver := fakeResolver{
		"public.example":  {"93.184.216.34"},
		"sneaky.example":  {"93.184.216.34", "10.0.0.2"},
		"private.example": {"192.168.0.10"},
	}
	v := NewWithResolver(false, resolver)

	if _, err := v.Validate(context.Background(), "http://public.example/"); err != nil {
		t.Fatalf("public host rejected: %v", err)
	}

	// One private record poisons the whole host.
	_, err := v.Validate(context.Background(), "http://sneaky.example/")
	if err == nil || err.Kind != KindPrivateAddress {
		t.Fatalf("split-horizon host: got %v, want PRIVATE_ADDRESS", err)
	}
	if err.IP != "10.0.0.2" {
		t.Errorf("offending IP = %q, want 10.0.0.2", err.IP)
	}

	_, err = v.Validate(context.Background(), "http://nxdomain.example/")
	if err == nil || err.Kind != KindUnresolvableHost {
		t.Fatalf("nxdomain: got %v, want UNRESOLVABLE_HOST", err)
	}
}

func TestMetadataHostsBlockedByName(t *testing.T) {
	v := NewWithResolver(false, fakeResolver{
		"metadata.google.internal": {"93.184.216.34"},
		"metadata.google.com":      {"93.184.216.34"},
	})

	_, err := v.Validate(context.Background(), "http://metadata.google.internal/computeMetadata/v1/")
	if err == nil || err.Kind != KindMetadataHost {
		t.Fatalf("metadata host: got %v, want METADATA_HOST", err)
	}

	te := err.ToolError()
	if te.Code != models.ErrCodeSSRFBlocked {
		t.Errorf("wire code = %s, want SSRF_BLOCKED", te.Code)
	}

	_, err = v.Validate(context.Background(), "https://metadata.google.com/computeMetadata/v1/")
	if err == nil || err.Kind != KindMetadataHost {
		t.Fatalf("metadata.google.com: got %v, want METADATA_HOST", err)
	}
}

func TestAllowPrivateOptOut(t *testing.T) {
	v := New(true)

	if _, err := v.Validate(context.Background(), "http://127.0.0.1:9090/page"); err != nil {
		t.Fatalf("allowPrivate should admit loopback: %v", err)
	}
	if _, err := v.Validate(context.Background(), "http://10.1.2.3/"); err != nil {
		t.Fatalf("allowPrivate should admit rfc1918: %v", err)
	}

	// Scheme checks still apply.
	_, err := v.Validate(context.Background(), "ftp://example.com/")
	if err == nil || err.Kind != KindInvalidScheme {
		t.Fatalf("allowPrivate must keep scheme check: got %v", err)
	}
}

func TestWireCodeMapping(t *testing.T) {
	tests := []struct {
		kind Kind
		code string
	}{
		{KindInvalidScheme, models.ErrCodeInvalidURL},
		{KindUnparseable, models.ErrCodeInvalidURL},
		{KindUnresolvableHost, models.ErrCodeInvalidURL},
		{KindPrivateAddress, models.ErrCodeSSRFBlocked},
		{KindMetadataHost, models.ErrCodeSSRFBlocked},
	}
	for _, tt := range tests {
		verr := &ValidationError{Kind: tt.kind, Host: "h", IP: "10.0.0.2"}
		if got := verr.ToolError().Code; got != tt.code {
			t.Errorf("kind %v → %s, want %s", tt.kind, got, tt.code)
		}
	}
}

func TestResolvedIPDetail(t *testing.T) {
	v := New(false)
	_, verr := v.Validate(context.Background(), "http://10.0.0.2/")
	if verr == nil {
		t.Fatal("expected validation error")
	}
	te := verr.ToolError()
	if te.Details["resolved_ip"] != "10.0.0.2" {
		t.Errorf("details.resolved_ip = %v, want 10.0.0.2", te.Details["resolved_ip"])
	}
}

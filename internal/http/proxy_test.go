package http

import (
	"net/http"
	"net/url"
	"testing"

	ntlmssp "github.com/Azure/go-ntlmssp"

	"github.com/jmorrison-juniper/misthelper/internal/config"
)

// TestProxyFuncWithBypass_EmptyNoProxy verifies that an empty noProxy always routes through proxy.
func TestProxyFuncWithBypass_EmptyNoProxy(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "")

	req, _ := http.NewRequest("GET", "https://api.example.com/data", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected proxy URL, got nil (direct)")
	}
	if result.Host != "proxy.corp:8080" {
		t.Errorf("expected proxy host proxy.corp:8080, got %s", result.Host)
	}
}

// TestProxyFuncWithBypass_WildcardDomain verifies *.example.com bypasses api.example.com.
func TestProxyFuncWithBypass_WildcardDomain(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "*.example.com")

	// Subdomain should bypass proxy
	req, _ := http.NewRequest("GET", "https://api.example.com/data", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil (bypass) for api.example.com, got %v", result)
	}
}

// TestProxyFuncWithBypass_ExactDomain verifies example.com bypasses root and subdomains.
func TestProxyFuncWithBypass_ExactDomain(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "example.com")

	// Root domain should bypass
	req, _ := http.NewRequest("GET", "https://example.com/data", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil (bypass) for example.com, got %v", result)
	}

	// Subdomain should also bypass (a domain without leading dot matches subdomains)
	req2, _ := http.NewRequest("GET", "https://api.example.com/data", nil)
	result2, err := proxyFunc(req2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result2 != nil {
		t.Errorf("expected nil (bypass) for api.example.com, got %v", result2)
	}
}

// TestProxyFuncWithBypass_CIDR verifies IP/CIDR range matching.
func TestProxyFuncWithBypass_CIDR(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "10.0.0.0/8")

	// IP in range should bypass
	req, _ := http.NewRequest("GET", "http://10.1.2.3:8080/api", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != nil {
		t.Errorf("expected nil (bypass) for 10.1.2.3, got %v", result)
	}
}

// TestProxyFuncWithBypass_NonMatchingHost verifies non-matching hosts route through proxy.
func TestProxyFuncWithBypass_NonMatchingHost(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "*.internal.corp,10.0.0.0/8")

	// External host should use proxy
	req, _ := http.NewRequest("GET", "https://api.mist.com/api/v1/self", nil)
	result, err := proxyFunc(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected proxy URL for api.mist.com, got nil (direct)")
	}
	if result.Host != "proxy.corp:8080" {
		t.Errorf("expected proxy host proxy.corp:8080, got %s", result.Host)
	}
}

// TestProxyFuncWithBypass_MultiplePatterns verifies comma-separated patterns work.
func TestProxyFuncWithBypass_MultiplePatterns(t *testing.T) {
	proxyURL, _ := url.Parse("http://proxy.corp:8080")
	proxyFunc := proxyFuncWithBypass(proxyURL, "*.example.com, 192.168.0.0/16, internal.corp")

	tests := []struct {
		name       string
		url        string
		wantBypass bool
	}{
		{"wildcard match", "https://api.example.com/data", true},
		{"cidr match", "http://192.168.1.100/api", true},
		{"exact domain match", "https://internal.corp/status", true},
		{"non-match", "https://api.mist.com/api/v1/self", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", tt.url, nil)
			result, err := proxyFunc(req)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantBypass && result != nil {
				t.Errorf("expected bypass (nil) for %s, got %v", tt.url, result)
			}
			if !tt.wantBypass && result == nil {
				t.Errorf("expected proxy for %s, got nil (bypass)", tt.url)
			}
		})
	}
}

func TestConfigureHTTPClient_Modes(t *testing.T) {
	t.Run("no-proxy", func(t *testing.T) {
		client, err := ConfigureHTTPClient(&config.Config{APIHost: "api.mist.com", ProxyMode: "no-proxy"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tr, ok := client.Transport.(*http.Transport)
		if !ok {
			t.Fatalf("transport type = %T, want *http.Transport", client.Transport)
		}
		if tr.Proxy != nil {
			t.Error("expected no proxy function")
		}
	})

	t.Run("basic", func(t *testing.T) {
		client, err := ConfigureHTTPClient(&config.Config{ProxyMode: "basic", ProxyHost: "proxy.corp", ProxyPort: 3128})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		tr := client.Transport.(*http.Transport)
		req, _ := http.NewRequest("GET", "https://api.mist.com/api/v1/self", nil)
		got, err := tr.Proxy(req)
		if err != nil || got == nil || got.Host != "proxy.corp:3128" {
			t.Errorf("proxy = %v, %v; want proxy.corp:3128", got, err)
		}
	})

	t.Run("ntlm", func(t *testing.T) {
		client, err := ConfigureHTTPClient(&config.Config{ProxyMode: "ntlm", ProxyHost: "proxy.corp"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := client.Transport.(ntlmssp.Negotiator); !ok {
			t.Errorf("transport type = %T, want ntlmssp.Negotiator", client.Transport)
		}
	})

	t.Run("ntlm without host falls back", func(t *testing.T) {
		client, err := ConfigureHTTPClient(&config.Config{ProxyMode: "ntlm"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := client.Transport.(*http.Transport); !ok {
			t.Errorf("transport type = %T, want *http.Transport", client.Transport)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		if _, err := ConfigureHTTPClient(&config.Config{ProxyMode: "socks5"}); err == nil {
			t.Error("expected error for unsupported proxy mode")
		}
	})
}

// TestConfigureWebSocketClient verifies the dial client speaks HTTP/1.1 only
// and leaves cancellation to the context.
func TestConfigureWebSocketClient(t *testing.T) {
	client, err := ConfigureWebSocketClient(&config.Config{APIHost: "api.mist.com", ProxyMode: "no-proxy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Timeout != 0 {
		t.Errorf("Timeout = %v, want 0", client.Timeout)
	}
	tr := client.Transport.(*http.Transport)
	if tr.ForceAttemptHTTP2 || tr.TLSNextProto == nil || len(tr.TLSNextProto) != 0 {
		t.Error("expected HTTP/2 to be disabled")
	}
}

func TestNeedsProxyPassword(t *testing.T) {
	tests := []struct {
		cfg  config.Config
		want bool
	}{
		{config.Config{ProxyMode: "basic", ProxyUser: "u"}, true},
		{config.Config{ProxyMode: "ntlm", ProxyUser: "u", ProxyPassword: "p"}, false},
		{config.Config{ProxyMode: "system", ProxyUser: "u"}, false},
		{config.Config{ProxyMode: "basic"}, false},
	}
	for _, tt := range tests {
		if got := NeedsProxyPassword(&tt.cfg); got != tt.want {
			t.Errorf("NeedsProxyPassword(%+v) = %v, want %v", tt.cfg, got, tt.want)
		}
	}
}

package http

import (
	"crypto/tls"
	"net"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/jmorrison-juniper/misthelper/internal/config"
	"github.com/jmorrison-juniper/misthelper/internal/constants"
)

// newTransport returns the base transport shared by every proxy mode.
// The REST client and the fast-mode worker pool share it, so the idle pool is
// sized for the largest worker count we allow.
func newTransport() *nethttp.Transport {
	return &nethttp.Transport{
		DialContext: (&net.Dialer{
			Timeout:   constants.HTTPDialTimeout,
			KeepAlive: constants.HTTPDialKeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   64,
		MaxConnsPerHost:       64,
		IdleConnTimeout:       constants.HTTPIdleConnTimeout,
		TLSHandshakeTimeout:   constants.HTTPTLSHandshakeTimeout,
		ExpectContinueTimeout: constants.HTTPExpectContinueTimeout,
	}
}

// configureHTTP2 enables HTTP/2 on tr unless the caller forbids it, a proxy is
// in the path, or DISABLE_HTTP2=true is set. Proxies often mishandle HTTP/2
// multiplexing.
func configureHTTP2(tr *nethttp.Transport, cfg *config.Config, allow bool) {
	if !allow || os.Getenv("DISABLE_HTTP2") == "true" || proxyActive(cfg) {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
		return
	}
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)
}

func proxyActive(cfg *config.Config) bool {
	envProxy := os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
		os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	if cfg == nil {
		return envProxy
	}
	switch cfg.ProxyMode {
	case "no-proxy", "":
		return false
	case "system":
		return envProxy
	default:
		// ntlm, basic - proxy is definitely active
		return true
	}
}

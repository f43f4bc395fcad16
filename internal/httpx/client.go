// Package httpx builds the two flavors of http.Client the download engine
// needs: a general client that negotiates HTTP/2 where available, and an
// HTTP/1.1-only client used when a routing decision forces one TCP
// connection per worker. Grounded in the teacher's
// internal/downloader/httpclient.go (transport timeouts, per-host idle pool
// sizing, same-host-only Authorization forwarding across redirects).
package httpx

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"strings"
	"time"

	"duskrelay/internal/config"
)

// Options configures client construction beyond what *config.Config carries,
// so PNDE can size idle pools to its worker count.
type Options struct {
	ForceHTTP1    bool
	MaxConnsPerHost int // 0 means use the package default
}

// New builds an *http.Client per cfg.Network and opts.
func New(cfg *config.Config, opts Options) *http.Client {
	connectTimeout := time.Duration(cfg.Network.ConnectTimeoutS) * time.Second
	if connectTimeout <= 0 {
		connectTimeout = 30 * time.Second
	}
	requestTimeout := time.Duration(cfg.Network.RequestTimeoutS) * time.Second
	if requestTimeout <= 0 {
		requestTimeout = 300 * time.Second
	}
	maxPerHost := opts.MaxConnsPerHost
	if maxPerHost <= 0 {
		maxPerHost = 16
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   maxPerHost,
		MaxConnsPerHost:       maxPerHost,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	}
	if opts.ForceHTTP1 {
		// Disabling ALPN negotiation for h2 and clearing TLSNextProto keeps
		// the transport on HTTP/1.1 so each worker owns its own connection.
		tr.TLSClientConfig.NextProtos = []string{"http/1.1"}
		tr.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
		tr.ForceAttemptHTTP2 = false
	}
	client := &http.Client{Transport: tr, Timeout: requestTimeout}
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) == 0 {
			return nil
		}
		prev := via[len(via)-1]
		if ua := prev.Header.Get("User-Agent"); ua != "" {
			req.Header.Set("User-Agent", ua)
		}
		if rng := prev.Header.Get("Range"); rng != "" {
			req.Header.Set("Range", rng)
		}
		if ir := prev.Header.Get("If-Range"); ir != "" {
			req.Header.Set("If-Range", ir)
		}
		if prev.URL != nil && req.URL != nil && strings.EqualFold(prev.URL.Host, req.URL.Host) {
			if auth := prev.Header.Get("Authorization"); auth != "" {
				req.Header.Set("Authorization", auth)
			}
		}
		return nil
	}
	return client
}

// UserAgent returns the configured User-Agent or a sensible default.
func UserAgent(cfg *config.Config) string {
	if cfg != nil && cfg.Network.UserAgent != "" {
		return cfg.Network.UserAgent
	}
	return fmt.Sprintf("duskrelay/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}

// Version is set via -ldflags at build time; "dev" otherwise.
var Version = "dev"

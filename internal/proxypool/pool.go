// Package proxypool maintains a name→*http.Client mapping plus one general
// client, each built with the same TLS/keepalive/HTTP2 tuning (spec.md
// §4.9). Reconfiguration swaps the whole client map atomically; requests
// already in flight on a dropped client finish naturally since nothing
// forces them to stop.
package proxypool

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/time/rate"
)

// Kind mirrors the three proxy selection modes of spec.md §4.9:
// Non (force no proxy), Sys (use the environment's proxy settings), or a
// fixed upstream proxy URL.
type Kind uint8

const (
	Non Kind = iota
	Sys
	Url
)

func (k Kind) String() string {
	switch k {
	case Sys:
		return "sys"
	case Url:
		return "url"
	default:
		return "non"
	}
}

type SingleProxy struct {
	Kind Kind
	URL  string // only meaningful when Kind == Url
}

// TransportTuning holds the env-configurable transport knobs of spec.md §6.4.
type TransportTuning struct {
	TCPKeepAlive           bool
	TCPKeepAliveInterval   time.Duration
	TCPKeepAliveRetries    int
	HTTP2AdaptiveWindow    bool
	HTTP2KeepAliveInterval time.Duration
	HTTP2KeepAliveTimeout  time.Duration
	HTTP2KeepAliveWhileIdle bool
	ConnectTimeout         time.Duration

	// ConnectRatePerSec and ConnectBurst throttle new outbound dials
	// across the whole pool (spec.md §4.9's proxy-pool connect guard),
	// independent of any per-client request rate. Zero ConnectRatePerSec
	// disables the guard.
	ConnectRatePerSec float64
	ConnectBurst      int
}

// DefaultTuning holds the compile-time transport defaults.
func DefaultTuning() TransportTuning {
	return TransportTuning{
		TCPKeepAlive:           true,
		TCPKeepAliveInterval:   30 * time.Second,
		TCPKeepAliveRetries:    3,
		HTTP2AdaptiveWindow:    true,
		HTTP2KeepAliveInterval: 30 * time.Second,
		HTTP2KeepAliveTimeout:  10 * time.Second,
		HTTP2KeepAliveWhileIdle: true,
		ConnectTimeout:         10 * time.Second,
		ConnectRatePerSec:      50,
		ConnectBurst:           20,
	}
}

// Config is the set of proxies the pool should hold clients for.
type Config struct {
	Proxies map[string]SingleProxy
	General string
}

type snapshot struct {
	byName  map[string]*http.Client
	byProxy map[SingleProxy]*http.Client
	general *http.Client
}

// Pool is safe for concurrent use; Reconfigure swaps the whole snapshot
// under an atomic pointer so readers never observe a half-built map.
type Pool struct {
	tuning  TransportTuning
	connect *rate.Limiter // nil disables the guard
	snap    atomic.Pointer[snapshot]
}

// New builds a pool from the initial configuration. A configuration with
// no proxies gets a single "sys" proxy as its general client; a General
// name that is not among the configured proxies is replaced by one of
// them (which one is not defined).
func New(cfg Config, tuning TransportTuning) *Pool {
	p := &Pool{tuning: tuning}
	if tuning.ConnectRatePerSec > 0 {
		p.connect = rate.NewLimiter(rate.Limit(tuning.ConnectRatePerSec), tuning.ConnectBurst)
	}
	p.Reconfigure(cfg)
	return p
}

// Reconfigure replaces the client set. Clients for proxies no longer
// present are dropped (and garbage-collected once their last user
// finishes); clients for unchanged proxies are reused; new proxies get
// freshly built clients.
func (p *Pool) Reconfigure(cfg Config) {
	if len(cfg.Proxies) == 0 {
		cfg = Config{Proxies: map[string]SingleProxy{"sys": {Kind: Sys}}, General: "sys"}
	}
	if _, ok := cfg.Proxies[cfg.General]; !ok {
		for name := range cfg.Proxies {
			cfg.General = name
			break
		}
	}

	prev := p.snap.Load()
	byProxy := make(map[SingleProxy]*http.Client, len(cfg.Proxies))
	byName := make(map[string]*http.Client, len(cfg.Proxies))

	for name, proxy := range cfg.Proxies {
		var client *http.Client
		if prev != nil {
			if existing, ok := prev.byProxy[proxy]; ok {
				client = existing
			}
		}
		if client == nil {
			client = p.buildClient(proxy)
		}
		byProxy[proxy] = client
		byName[name] = client
	}

	p.snap.Store(&snapshot{
		byName:  byName,
		byProxy: byProxy,
		general: byName[cfg.General],
	})
}

func (p *Pool) buildClient(proxy SingleProxy) *http.Client {
	dialer := &net.Dialer{
		Timeout:   p.tuning.ConnectTimeout,
		KeepAlive: -1,
	}
	if p.tuning.TCPKeepAlive {
		dialer.KeepAlive = p.tuning.TCPKeepAliveInterval
	}

	dialContext := dialer.DialContext
	if p.connect != nil {
		limiter := p.connect
		dialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
			return dialer.DialContext(ctx, network, addr)
		}
	}

	transport := &http.Transport{
		DialContext:         dialContext,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: p.tuning.ConnectTimeout,
		IdleConnTimeout:     90 * time.Second,
	}

	switch proxy.Kind {
	case Non:
		transport.Proxy = nil
	case Sys:
		transport.Proxy = http.ProxyFromEnvironment
	case Url:
		if u, err := url.Parse(proxy.URL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}

	if h2, err := http2.ConfigureTransports(transport); err == nil {
		if p.tuning.HTTP2KeepAliveWhileIdle {
			h2.ReadIdleTimeout = p.tuning.HTTP2KeepAliveInterval
			h2.PingTimeout = p.tuning.HTTP2KeepAliveTimeout
		}
	}

	return &http.Client{Transport: transport}
}

// Get returns the client registered under name, falling back to the
// general client if name is unknown or empty.
func (p *Pool) Get(name string) *http.Client {
	snap := p.snap.Load()
	if snap == nil {
		return http.DefaultClient
	}
	if name != "" {
		if c, ok := snap.byName[name]; ok {
			return c
		}
	}
	return snap.general
}

// General returns the default client used when a token has no named proxy.
func (p *Pool) General() *http.Client {
	return p.Get("")
}

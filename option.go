// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.

package flagkit

import (
	"net/http"
	"time"

	"github.com/flagkit/flagkit-go/internal/log"
)

// Logger implementations receive the SDK's log output. See WithLogger.
type Logger interface {
	Log(msg string)
}

// config holds the client configuration.
type config struct {
	// serverClient overrides the default HTTP/WebSocket transport.
	serverClient ServerClient

	// baseURL is the service endpoint the default transport talks to.
	baseURL string

	// tokens yields bearer credentials for the default transport.
	tokens TokenProvider

	// httpClient overrides the default transport's HTTP client.
	httpClient *http.Client

	// offlineMode selects the snapshot used while the worker is offline.
	offlineMode OfflineMode

	// meteringInterval is the flush interval of the metering aggregator.
	meteringInterval time.Duration

	// meteringDisabled turns off evaluation metering entirely.
	meteringDisabled bool

	// debug, when true, writes details to logs.
	debug bool
}

// Option configures a Client. Options are applied over the defaults at
// construction time.
type Option func(*config)

// defaults sets the default values for a config.
func defaults(c *config) {
	c.offlineMode = OfflineCache()
	c.meteringInterval = defaultMeteringInterval
}

// WithServerClient sets a custom transport. The base URL, token
// provider and HTTP client options are ignored when this is set.
func WithServerClient(sc ServerClient) Option {
	return func(c *config) {
		c.serverClient = sc
	}
}

// WithBaseURL sets the service endpoint used by the default transport,
// e.g. "https://eu-gb.apprapp.example.com".
func WithBaseURL(u string) Option {
	return func(c *config) {
		c.baseURL = u
	}
}

// WithTokenProvider sets the source of bearer credentials for the
// default transport.
func WithTokenProvider(tp TokenProvider) Option {
	return func(c *config) {
		c.tokens = tp
	}
}

// WithHTTPClient sets the HTTP client used by the default transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) {
		c.httpClient = hc
	}
}

// WithOfflineMode selects what reads return while the background
// worker is offline. The default is OfflineCache.
func WithOfflineMode(m OfflineMode) Option {
	return func(c *config) {
		c.offlineMode = m
	}
}

// WithMeteringInterval sets how often evaluation usage is flushed to
// the server. The default is 10 minutes.
func WithMeteringInterval(d time.Duration) Option {
	return func(c *config) {
		c.meteringInterval = d
	}
}

// WithMeteringDisabled turns off evaluation metering.
func WithMeteringDisabled() Option {
	return func(c *config) {
		c.meteringDisabled = true
	}
}

// WithDebugMode enables debug mode on the client, making logging more
// verbose.
func WithDebugMode(enabled bool) Option {
	return func(c *config) {
		c.debug = enabled
	}
}

// WithLogger sets l as the SDK's logger. By default messages go to the
// standard library logger on stderr. The logger is process-wide.
func WithLogger(l Logger) Option {
	return func(*config) {
		log.UseLogger(l)
	}
}

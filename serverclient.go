// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.

package flagkit

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/flagkit/flagkit-go/internal/log"
)

// TokenProvider yields bearer credentials for the default transport.
// Token may be called on every request; providers that exchange an
// identity token should cache internally.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed credential. Useful
// for tests and development setups.
type StaticToken string

// Token implements TokenProvider.
func (t StaticToken) Token(context.Context) (string, error) { return string(t), nil }

const (
	configurationPathFmt = "/feature/v1/instances/%s/config"
	meteringPathFmt      = "/events/v1/instances/%s/usage"
	pushChannelPath      = "/wsfeature"

	clientInstanceHeader = "X-Client-Instance-Id"

	defaultHTTPTimeout = 10 * time.Second
)

// httpServerClient is the default ServerClient: configuration fetch
// and metering over HTTP, push channel over WebSocket.
type httpServerClient struct {
	baseURL    *url.URL
	wsURL      *url.URL
	http       *http.Client
	dialer     *websocket.Dialer
	tokens     TokenProvider
	instanceID string
}

// NewServerClient builds the default HTTP/WebSocket transport against
// the given base URL, e.g. "https://eu-gb.apprapp.example.com". The
// push channel uses the ws/wss equivalent of the same host.
func NewServerClient(baseURL string, tokens TokenProvider) (ServerClient, error) {
	return newHTTPServerClient(baseURL, tokens, nil)
}

func newHTTPServerClient(baseURL string, tokens TokenProvider, hc *http.Client) (*httpServerClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("flagkit: parsing base URL: %w", err)
	}
	ws := *u
	switch u.Scheme {
	case "https":
		ws.Scheme = "wss"
	case "http":
		ws.Scheme = "ws"
	default:
		return nil, fmt.Errorf("flagkit: unsupported base URL scheme %q", u.Scheme)
	}
	if hc == nil {
		hc = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return &httpServerClient{
		baseURL:    u,
		wsURL:      &ws,
		http:       hc,
		dialer:     websocket.DefaultDialer,
		tokens:     tokens,
		instanceID: uuid.NewString(),
	}, nil
}

// GetConfiguration fetches the full configuration document. The body
// is returned raw; the caller validates and indexes it.
func (c *httpServerClient) GetConfiguration(ctx context.Context, id ConfigurationID) ([]byte, error) {
	u := *c.baseURL
	u.Path = fmt.Sprintf(configurationPathFmt, id.GUID)
	q := u.Query()
	q.Set("environment_id", id.EnvironmentID)
	q.Set("collection_id", id.CollectionID)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &UnrecoverableError{Err: err}
	}
	if err := c.authorize(ctx, req.Header); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("flagkit: configuration request: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("flagkit: configuration request: unexpected status code %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// OpenPushChannel dials the notification WebSocket. The returned
// channel maps frames onto PushMessage kinds and reports a server
// close frame as ErrPushChannelClosed.
func (c *httpServerClient) OpenPushChannel(ctx context.Context, id ConfigurationID) (PushChannel, error) {
	u := *c.wsURL
	u.Path = pushChannelPath
	q := u.Query()
	q.Set("instance_id", id.GUID)
	q.Set("environment_id", id.EnvironmentID)
	q.Set("collection_id", id.CollectionID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if err := c.authorize(ctx, header); err != nil {
		return nil, err
	}

	conn, resp, err := c.dialer.DialContext(ctx, u.String(), header)
	if resp != nil && resp.Body != nil {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("flagkit: dialing push channel: %w", err)
	}
	log.Debug("flagkit: push channel open")
	return &gorillaChannel{conn: conn}, nil
}

// PushMetering transmits one pre-serialized metering batch.
func (c *httpServerClient) PushMetering(ctx context.Context, id ConfigurationID, payload []byte) error {
	u := *c.baseURL
	u.Path = fmt.Sprintf(meteringPathFmt, id.GUID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return &UnrecoverableError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if err := c.authorize(ctx, req.Header); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("flagkit: metering request: %w", err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("flagkit: metering request: unexpected status code %d", resp.StatusCode)
	}
	return nil
}

func (c *httpServerClient) authorize(ctx context.Context, h http.Header) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return fmt.Errorf("flagkit: obtaining token: %w", err)
	}
	h.Set("Authorization", "Bearer "+token)
	h.Set(clientInstanceHeader, c.instanceID)
	return nil
}

// gorillaChannel adapts a gorilla/websocket connection to PushChannel.
type gorillaChannel struct {
	conn *websocket.Conn
}

func (g *gorillaChannel) ReadMessage() (PushMessage, error) {
	mt, data, err := g.conn.ReadMessage()
	if err != nil {
		if _, ok := err.(*websocket.CloseError); ok {
			return PushMessage{}, fmt.Errorf("%w: %v", ErrPushChannelClosed, err)
		}
		return PushMessage{}, err
	}
	switch mt {
	case websocket.TextMessage:
		return PushMessage{Kind: MessageText, Data: data}, nil
	case websocket.BinaryMessage:
		return PushMessage{Kind: MessageBinary, Data: data}, nil
	default:
		return PushMessage{Kind: MessageControl}, nil
	}
}

func (g *gorillaChannel) Close() error {
	return g.conn.Close()
}

// Package session runs interactive device shells and command output streams
// over Mist websockets.
package session

import (
	"context"
	"fmt"
	nethttp "net/http"
	"sync"

	"github.com/coder/websocket"

	mhttp "github.com/jmorrison-juniper/misthelper/internal/http"
	"github.com/jmorrison-juniper/misthelper/internal/logging"
)

// readLimit caps a single frame; stream frames carry whole command outputs.
const readLimit = 4 * 1024 * 1024

// Transport is a bidirectional frame channel.
type Transport interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, data []byte) error
	Close() error
}

// wsTransport adapts a websocket connection to Transport.
type wsTransport struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

// NewTransport wraps an established websocket connection.
func NewTransport(conn *websocket.Conn) Transport {
	conn.SetReadLimit(readLimit)
	return &wsTransport{conn: conn}
}

func (t *wsTransport) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	return t.conn.Read(ctx)
}

func (t *wsTransport) Write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	return t.conn.Write(ctx, typ, data)
}

// Close sends a normal closure once; later calls return the first result.
func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closeErr = t.conn.Close(websocket.StatusNormalClosure, "")
	})
	return t.closeErr
}

// DialOptions configures Dial.
type DialOptions struct {
	// HTTPClient carries proxy settings; nil uses the default client.
	HTTPClient *nethttp.Client
	// Header is sent with the upgrade request (e.g. Authorization).
	Header nethttp.Header
	// Retry controls redials of transient failures. Zero value uses mhttp.DefaultConfig.
	Retry mhttp.Config
	// Logger receives redial warnings; nil discards them.
	Logger *logging.Logger
}

// Dial opens a websocket, retrying network and 5xx failures with backoff.
// Credential failures (401/403 on the upgrade) are returned immediately.
func Dial(ctx context.Context, url string, opts DialOptions) (Transport, error) {
	retry := opts.Retry
	if retry.MaxRetries == 0 {
		retry = mhttp.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	if retry.OnRetry == nil {
		retry.OnRetry = func(attempt int, err error, errType mhttp.ErrorType) {
			logger.Warn().
				Err(err).
				Int("attempt", attempt).
				Str("error_type", mhttp.ErrorTypeName(errType)).
				Msg("websocket dial failed, retrying")
		}
	}

	var conn *websocket.Conn
	err := mhttp.ExecuteWithRetry(ctx, retry, func() error {
		c, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
			HTTPClient: opts.HTTPClient,
			HTTPHeader: opts.Header,
		})
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return NewTransport(conn), nil
}

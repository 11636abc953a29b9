package session

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
)

type sentFrame struct {
	typ  websocket.MessageType
	data string
}

// fakeTransport serves frames pushed on in; closing in simulates a dropped
// connection.
type fakeTransport struct {
	in chan []byte

	mu      sync.Mutex
	sent    []sentFrame
	closed  chan struct{}
	closeMu sync.Once
}

var errDropped = errors.New("connection reset")

func newFakeTransport() *fakeTransport {
	return &fakeTransport{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (f *fakeTransport) Read(ctx context.Context) (websocket.MessageType, []byte, error) {
	select {
	case data, ok := <-f.in:
		if !ok {
			return 0, nil, errDropped
		}
		return websocket.MessageText, data, nil
	case <-f.closed:
		return 0, nil, errors.New("closed")
	case <-ctx.Done():
		return 0, nil, ctx.Err()
	}
}

func (f *fakeTransport) Write(ctx context.Context, typ websocket.MessageType, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("closed")
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentFrame{typ: typ, data: string(data)})
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeMu.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) frames() []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentFrame, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

// scriptedKeys hands out keys pushed on ch; closing ch ends input.
type scriptedKeys struct {
	ch chan string
}

func (k *scriptedKeys) ReadKey() (string, error) {
	key, ok := <-k.ch
	if !ok {
		return "", errEOFKeys
	}
	return key, nil
}

var errEOFKeys = errors.New("keys exhausted")

// syncBuffer is a goroutine-safe bytes.Buffer.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// waitFor polls cond for up to two seconds.
func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

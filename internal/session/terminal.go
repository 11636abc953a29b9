package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/jmorrison-juniper/misthelper/internal/constants"
	"github.com/jmorrison-juniper/misthelper/internal/logging"
)

// TerminalSession bridges a local keyboard and screen to a device shell.
type TerminalSession struct {
	Transport Transport
	// Emulator renders device output; nil uses an 80x40 vt10x screen.
	Emulator Emulator
	Keys     KeySource
	Out      io.Writer
	// Size reports the local terminal size; nil uses TerminalSize.
	Size func() (cols, rows int)
	// WakeupDelay before the wakeup keystrokes; zero uses the default.
	WakeupDelay time.Duration
	Logger      *logging.Logger

	outMu   sync.Mutex
	emuMu   sync.Mutex
	closing atomic.Bool
}

type resizeFrame struct {
	Resize struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"resize"`
}

// Run drives the session until the exit key, a lost connection, or ctx
// cancellation. It blocks on Keys; the read loop runs in its own goroutine.
func (s *TerminalSession) Run(ctx context.Context) error {
	if s.Emulator == nil {
		s.Emulator = NewEmulator(constants.TerminalColumns, constants.TerminalRows)
	}
	if s.Size == nil {
		s.Size = TerminalSize
	}
	if s.WakeupDelay == 0 {
		s.WakeupDelay = constants.ShellWakeupDelay
	}
	if s.Logger == nil {
		s.Logger = logging.Nop()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cols, rows := s.Size()
	if err := s.sendResize(ctx, cols, rows); err != nil {
		s.close()
		return fmt.Errorf("failed to send terminal size: %w", err)
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		s.readLoop(ctx)
	}()

	go func() {
		<-ctx.Done()
		s.close()
	}()

	go s.wakeup(ctx, readerDone)

	watchResize(ctx, func() {
		if err := s.resize(ctx); err != nil {
			s.Logger.Debug().Err(err).Msg("resize not sent")
		}
	})

	for {
		key, err := s.Keys.ReadKey()
		if err != nil {
			s.close()
			<-readerDone
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("keyboard read failed: %w", err)
		}

		select {
		case <-readerDone:
			return nil
		default:
		}

		if key == constants.ShellExitKey {
			s.print("\r\n## Exit from shell ##\r\n")
			s.close()
			<-readerDone
			return nil
		}

		if err := s.Transport.Write(ctx, websocket.MessageBinary, Frame(key)); err != nil {
			s.Logger.Debug().Err(err).Str("key", key).Msg("keystroke not sent")
		}
	}
}

func (s *TerminalSession) close() {
	s.closing.Store(true)
	_ = s.Transport.Close()
}

// resize follows a local window change: the emulator takes the new size, the
// screen is redrawn and the device is told.
func (s *TerminalSession) resize(ctx context.Context) error {
	cols, rows := s.Size()
	s.emuMu.Lock()
	s.Emulator.Resize(cols, rows)
	s.emuMu.Unlock()

	s.print("\x1b[2J")
	s.render(nil)
	return s.sendResize(ctx, cols, rows)
}

func (s *TerminalSession) sendResize(ctx context.Context, cols, rows int) error {
	var f resizeFrame
	f.Resize.Width, f.Resize.Height = cols, rows
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return s.Transport.Write(ctx, websocket.MessageText, data)
}

func (s *TerminalSession) wakeup(ctx context.Context, readerDone <-chan struct{}) {
	timer := time.NewTimer(s.WakeupDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-readerDone:
		return
	case <-timer.C:
	}
	if err := s.Transport.Write(ctx, websocket.MessageBinary, []byte(constants.ShellWakeupSequence)); err != nil {
		s.Logger.Debug().Err(err).Msg("wakeup not sent")
	}
}

func (s *TerminalSession) readLoop(ctx context.Context) {
	for {
		_, data, err := s.Transport.Read(ctx)
		if err != nil {
			if !s.closing.Load() {
				s.print(fmt.Sprintf("\r\n## Connection lost: %v ##\r\n", err))
			}
			return
		}
		s.render(bytes.ToValidUTF8(data, []byte("�")))
	}
}

// render repaints the rows changed by data.
func (s *TerminalSession) render(data []byte) {
	s.emuMu.Lock()
	dirty := s.Emulator.Feed(data)
	var b strings.Builder
	for _, y := range dirty {
		fmt.Fprintf(&b, "\x1b[%d;1H%s\x1b[K", y+1, strings.TrimRight(s.Emulator.RowText(y), " "))
	}
	s.emuMu.Unlock()

	if b.Len() > 0 {
		s.print(b.String())
	}
}

func (s *TerminalSession) print(text string) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	_, _ = io.WriteString(s.Out, text)
	if f, ok := s.Out.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
}

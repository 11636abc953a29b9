package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/jmorrison-juniper/misthelper/internal/constants"
	"github.com/jmorrison-juniper/misthelper/internal/export"
	"github.com/jmorrison-juniper/misthelper/internal/logging"
)

var (
	// ErrCommandTimeout is returned when the hard timeout passes with no output.
	ErrCommandTimeout = errors.New("timeout waiting for output")
	// ErrNoOutput is returned when the stream closed without any output.
	ErrNoOutput = errors.New("no output received")
)

// CommandSession collects the streamed output of a device command (e.g. arp)
// identified by its session id.
type CommandSession struct {
	Transport Transport
	SessionID string
	SiteID    string
	DeviceID  string
	Sink      *export.Sink

	// Timeout bounds the whole listen; Idle closes early once output has
	// arrived and the stream went quiet; Poll is the supervisor period.
	Timeout time.Duration
	Idle    time.Duration
	Poll    time.Duration

	// Output file names; empty uses the arp names.
	RawFile      string
	Dataset1File string
	Dataset2File string

	Logger *logging.Logger

	mu           sync.Mutex
	buf          LineBuffer
	lastActivity time.Time
}

// CommandOutput is what Listen captured and where it was written.
type CommandOutput struct {
	Lines    []string
	RawPath  string
	Dataset1 [][]string
	Dataset2 [][]string
}

func (s *CommandSession) defaults() {
	if s.Timeout == 0 {
		s.Timeout = constants.CommandOutputTimeout
	}
	if s.Idle == 0 {
		s.Idle = constants.CommandIdleTimeout
	}
	if s.Poll == 0 {
		s.Poll = constants.SessionPollInterval
	}
	if s.RawFile == "" {
		s.RawFile = constants.ARPRawFile
	}
	if s.Dataset1File == "" {
		s.Dataset1File = constants.ARPDataset1File
	}
	if s.Dataset2File == "" {
		s.Dataset2File = constants.ARPDataset2File
	}
	if s.Logger == nil {
		s.Logger = logging.Nop()
	}
	if s.Sink == nil {
		s.Sink = export.NewSink(".", s.Logger)
	}
}

// Listen subscribes to the device command channel, buffers output for the
// session until the stream goes idle or times out, then writes the raw text
// and the two parsed datasets.
func (s *CommandSession) Listen(ctx context.Context) (*CommandOutput, error) {
	s.defaults()

	sub, err := json.Marshal(map[string]string{
		"subscribe": fmt.Sprintf("/sites/%s/devices/%s/cmd", s.SiteID, s.DeviceID),
	})
	if err != nil {
		return nil, err
	}
	if err := s.Transport.Write(ctx, websocket.MessageText, sub); err != nil {
		_ = s.Transport.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	s.Logger.Info().Str("session", s.SessionID).Msg("subscribed to command stream")

	start := time.Now()
	s.mu.Lock()
	s.lastActivity = start
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.readLoop(ctx)
	}()

	timedOut, err := s.supervise(ctx, start, done)
	_ = s.Transport.Close()
	<-done
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	lines := s.buf.Flush()
	s.mu.Unlock()

	if len(lines) == 0 {
		if timedOut {
			return nil, ErrCommandTimeout
		}
		return nil, ErrNoOutput
	}
	if timedOut {
		s.Logger.Warn().Int("lines", len(lines)).Msg("timeout waiting for output, saving what arrived")
	}
	return s.save(lines)
}

// supervise polls until the stream closes, goes idle after output, or the
// hard timeout passes.
func (s *CommandSession) supervise(ctx context.Context, start time.Time, done <-chan struct{}) (bool, error) {
	ticker := time.NewTicker(s.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-done:
			s.Logger.Debug().Msg("command stream closed by server")
			return false, nil
		case now := <-ticker.C:
			if now.Sub(start) > s.Timeout {
				return true, nil
			}
			s.mu.Lock()
			idle := now.Sub(s.lastActivity)
			lines := s.buf.Len()
			s.mu.Unlock()
			if lines > 0 && idle > s.Idle {
				s.Logger.Info().Int("lines", lines).Msg("idle timeout reached, closing stream")
				return false, nil
			}
		}
	}
}

func (s *CommandSession) readLoop(ctx context.Context) {
	for {
		_, data, err := s.Transport.Read(ctx)
		if err != nil {
			s.Logger.Debug().Err(err).Msg("command stream reader stopped")
			return
		}

		s.mu.Lock()
		s.lastActivity = time.Now()
		s.mu.Unlock()

		p, err := decodeFrame(data)
		if err != nil {
			s.Logger.Warn().Err(err).Msg("skipping malformed frame")
			continue
		}
		if p.Session != s.SessionID {
			continue
		}

		s.mu.Lock()
		s.buf.Append(p.Raw)
		s.mu.Unlock()
	}
}

func (s *CommandSession) save(lines []string) (*CommandOutput, error) {
	text := strings.Join(lines, "\n")
	rawPath, err := s.Sink.WriteText(s.RawFile, text)
	if err != nil {
		return nil, err
	}
	s.Logger.Info().Str("file", rawPath).Msg("command output saved")

	first, second := ParseTabular(text)
	if _, err := s.Sink.WriteRows(s.Dataset1File, first); err != nil {
		return nil, err
	}
	if _, err := s.Sink.WriteRows(s.Dataset2File, second); err != nil {
		return nil, err
	}
	s.Logger.Info().
		Int("dataset1_rows", len(first)).
		Int("dataset2_rows", len(second)).
		Msg("command output parsed")

	return &CommandOutput{Lines: lines, RawPath: rawPath, Dataset1: first, Dataset2: second}, nil
}

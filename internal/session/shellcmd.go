package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/coder/websocket"

	"github.com/jmorrison-juniper/misthelper/internal/constants"
	"github.com/jmorrison-juniper/misthelper/internal/export"
	"github.com/jmorrison-juniper/misthelper/internal/logging"
	"github.com/jmorrison-juniper/misthelper/internal/models"
)

// ErrNoJSON is returned when captured output holds no JSON document.
var ErrNoJSON = errors.New("no valid JSON block found in output")

// ShellCommand is a CLI command captured through a shell session. Command
// ends with an echoed marker line so the capture knows when to stop.
type ShellCommand struct {
	Description string
	Command     string
	LogFile     string
	CSVFile     string
}

// Canned captures offered by the menu.
var (
	// DefaultRouteCommand captures the default route table entry.
	DefaultRouteCommand = ShellCommand{
		Description: "Show default route",
		Command:     "show route 0.0.0.0 | display json | no-more\n" + constants.ShellDoneMarker,
		LogFile:     "ws_def_route.log",
		CSVFile:     "RouteDefault.csv",
	}
	// DHCPBindingsCommand captures DHCP snooping bindings on a switch.
	DHCPBindingsCommand = ShellCommand{
		Description: "Show DHCP security bindings",
		Command:     "show dhcp-security binding | display json | no-more\n" + constants.ShellDoneMarker,
		LogFile:     "ws_dhcp.log",
		CSVFile:     "DhcpSecurityBindings.csv",
	}
	// VLANsCommand captures the VLAN table.
	VLANsCommand = ShellCommand{
		Description: "Show VLANs",
		Command:     "show vlans | display json | no-more\n" + constants.ShellDoneMarker,
		LogFile:     "ws_vlans.log",
		CSVFile:     "Vlans.csv",
	}
)

// invisible are zero-width characters that survive copy and paste from
// documents and confuse the device CLI.
var invisible = strings.NewReplacer(
	"\u200B", "", "\u200C", "", "\u200D", "", "\uFEFF", "", "\u00AD", "", "\u2060", "",
)

var blankRun = regexp.MustCompile(`[ \t]+`)

// CleanCommand normalizes pasted command text: line endings become LF,
// invisible characters are dropped, runs of blanks collapse and empty lines
// are removed.
func CleanCommand(cmd string) string {
	cmd = strings.ReplaceAll(cmd, "\r\n", "\n")
	cmd = strings.ReplaceAll(cmd, "\r", "\n")
	cmd = invisible.Replace(cmd)

	var lines []string
	for _, line := range strings.Split(cmd, "\n") {
		line = strings.TrimSpace(blankRun.ReplaceAllString(line, " "))
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// NewShellCommand captures command; the done marker line is appended.
func NewShellCommand(description, command, logFile, csvFile string) ShellCommand {
	return ShellCommand{
		Description: description,
		Command:     CleanCommand(command) + "\n" + constants.ShellDoneMarker,
		LogFile:     logFile,
		CSVFile:     csvFile,
	}
}

// InterfaceCommand captures the detail of one port as JSON.
func InterfaceCommand(port string) ShellCommand {
	return NewShellCommand(
		"Show interface "+port,
		"show interfaces "+port+" extensive | display json | no-more",
		"ws_interface.log",
		"Interface.csv",
	)
}

// ShellCommandOptions configures RunShellCommand.
type ShellCommandOptions struct {
	Sink *export.Sink
	// Out echoes output as it arrives; nil discards it.
	Out     io.Writer
	Delay   time.Duration
	Timeout time.Duration
	Logger  *logging.Logger
}

// ShellCommandResult lists the files RunShellCommand wrote.
type ShellCommandResult struct {
	LogPath string
	CSVPath string
}

// RunShellCommand sends cmd over an open shell transport, reads until the
// done marker, saves the transcript and, when cmd has a CSV file, the first
// JSON document found in it. The transport is closed on return.
func RunShellCommand(ctx context.Context, t Transport, cmd ShellCommand, opts ShellCommandOptions) (*ShellCommandResult, error) {
	defer t.Close()

	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	if opts.Sink == nil {
		opts.Sink = export.NewSink(".", opts.Logger)
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	if opts.Delay == 0 {
		opts.Delay = constants.ShellWakeupDelay
	}
	if opts.Timeout == 0 {
		opts.Timeout = constants.ShellCommandTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	opts.Logger.Info().Str("command", cmd.Description).Msg("running shell command")

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(opts.Delay):
	}

	if err := t.Write(ctx, websocket.MessageBinary, []byte(constants.ShellFramePrefix+cmd.Command)); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	var out strings.Builder
	for {
		_, data, err := t.Read(ctx)
		if err != nil {
			return nil, fmt.Errorf("shell output incomplete after %d bytes: %w", out.Len(), err)
		}
		chunk := string(bytes.ToValidUTF8(data, nil))
		out.WriteString(chunk)
		_, _ = io.WriteString(opts.Out, chunk)

		// The marker may straddle frames.
		tail := out.Len() - len(chunk) - len(constants.ShellDoneMarker)
		if tail < 0 {
			tail = 0
		}
		if strings.Contains(out.String()[tail:], constants.ShellDoneMarker) {
			break
		}
	}

	res := &ShellCommandResult{}
	logPath, err := opts.Sink.WriteText(cmd.LogFile, out.String())
	if err != nil {
		return nil, err
	}
	res.LogPath = logPath
	opts.Logger.Info().Str("file", logPath).Msg("shell output saved")

	if cmd.CSVFile == "" {
		return res, nil
	}
	rec, err := ExtractJSON(out.String())
	if err != nil {
		return res, err
	}
	csvPath, err := opts.Sink.WriteRecords(cmd.CSVFile, []models.Record{rec}, "")
	if err != nil {
		return res, err
	}
	res.CSVPath = csvPath
	return res, nil
}

var (
	masterPrompt = regexp.MustCompile(`\{master:.*?\}\s*`)
	shellPrompt  = regexp.MustCompile(`mist@\S+>\s*`)
)

// ExtractJSON returns the first JSON object in a shell transcript, after
// dropping non-printable characters and CLI prompts.
func ExtractJSON(transcript string) (models.Record, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) {
			return r
		}
		return -1
	}, transcript)
	cleaned = masterPrompt.ReplaceAllString(cleaned, "")
	cleaned = shellPrompt.ReplaceAllString(cleaned, "")

	first := strings.IndexByte(cleaned, '{')
	last := strings.LastIndexByte(cleaned, '}')
	if first < 0 || last < first {
		return nil, ErrNoJSON
	}

	var rec models.Record
	if err := json.Unmarshal([]byte(cleaned[first:last+1]), &rec); err == nil && len(rec) > 0 {
		return rec, nil
	}

	// Trailing noise after the document: decode from each brace in turn.
	for i := first; i >= 0 && i < len(cleaned); {
		rec = nil
		dec := json.NewDecoder(strings.NewReader(cleaned[i:]))
		if err := dec.Decode(&rec); err == nil && len(rec) > 0 {
			return rec, nil
		}
		next := strings.IndexByte(cleaned[i+1:], '{')
		if next < 0 {
			break
		}
		i += next + 1
	}
	return nil, ErrNoJSON
}

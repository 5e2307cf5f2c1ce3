package sshlogs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hass-gate/hassgate/internal/config"
	"github.com/hass-gate/hassgate/internal/domain/hub"
	"github.com/hass-gate/hassgate/internal/domain/shaping"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeRunner answers commands by prefix and records what was run.
type fakeRunner struct {
	mu       sync.Mutex
	results  map[string]CommandResult
	errs     map[string]error
	commands []string
}

func (f *fakeRunner) Run(_ context.Context, command string, _ time.Duration) (CommandResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, command)
	for prefix, err := range f.errs {
		if strings.HasPrefix(command, prefix) {
			return CommandResult{}, err
		}
	}
	for prefix, res := range f.results {
		if strings.HasPrefix(command, prefix) {
			return res, nil
		}
	}
	return CommandResult{ExitCode: 1, Stderr: "no such file"}, nil
}

func (f *fakeRunner) ran() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.commands...)
}

func sshConfig(t *testing.T, enable string) *config.Config {
	t.Helper()
	s := config.Settings{
		URL:   "http://homeassistant.local:8123",
		Token: "t",
		SSH:   config.SSHSettings{Enable: enable, User: "root", Password: "pw"},
	}
	s.SetDefaults()
	cfg, err := config.Build(s, testLogger())
	if err != nil {
		t.Fatalf("config.Build() error = %v", err)
	}
	return cfg
}

func newTestClient(t *testing.T, r *fakeRunner) *Client {
	t.Helper()
	return NewClient(sshConfig(t, "true"), testLogger(), WithRunner(r))
}

func TestGetLogs_Disabled(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{}
	c := NewClient(sshConfig(t, "false"), testLogger(), WithRunner(r))

	_, err := c.GetLogs(context.Background(), hub.LogKindCore, 100)
	if !errors.Is(err, hub.ErrSSHDisabled) {
		t.Fatalf("GetLogs() error = %v, want SSH disabled", err)
	}
	if len(r.ran()) != 0 {
		t.Errorf("commands run while disabled: %v", r.ran())
	}
}

func TestGetLogs_CoreViaCLI(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{results: map[string]CommandResult{
		"ha core logs": {Stdout: "line1\nline2\nline3"},
	}}
	c := newTestClient(t, r)

	res, err := c.GetLogs(context.Background(), hub.LogKindCore, 50)
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	if res.Source != "ha core logs" || res.RequestedLines != 50 || res.Truncated {
		t.Errorf("GetLogs() = %+v", res)
	}
	if res.ActualLines == nil || *res.ActualLines != 3 {
		t.Errorf("ActualLines = %v, want 3", res.ActualLines)
	}
	if got := r.ran(); len(got) != 1 || got[0] != "ha core logs --lines 50" {
		t.Errorf("commands = %v", got)
	}
}

func TestGetLogs_FallsBackToJournalctl(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{
		results: map[string]CommandResult{
			"ha core logs": {ExitCode: 127, Stderr: "ha: command not found"},
			"journalctl":   {Stdout: "journal line\n"},
		},
	}
	c := newTestClient(t, r)

	res, err := c.GetLogs(context.Background(), hub.LogKindCore, 200)
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	if res.Source != "journalctl" {
		t.Errorf("Source = %q, want journalctl", res.Source)
	}

	want := []string{
		"ha core logs --lines 200",
		"tail -n 200 /config/home-assistant.log",
		"tail -n 200 /var/log/home-assistant.log",
		"tail -n 200 /home/homeassistant/.homeassistant/home-assistant.log",
		"journalctl -u home-assistant -n 200 --no-pager",
	}
	got := r.ran()
	if len(got) != len(want) {
		t.Fatalf("commands = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGetLogs_TailAfterConnectionError(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{
		errs:    map[string]error{"ha core logs": &hub.SSHError{Message: "Command timeout after 30s"}},
		results: map[string]CommandResult{"tail -n 10 /var/log": {Stdout: "x\n"}},
	}
	c := newTestClient(t, r)

	res, err := c.GetLogs(context.Background(), hub.LogKindCore, 10)
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	if res.Source != "tail /var/log/home-assistant.log" {
		t.Errorf("Source = %q", res.Source)
	}
}

func TestGetLogs_AllStrategiesFail(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, &fakeRunner{})

	_, err := c.GetLogs(context.Background(), hub.LogKindCore, 10)
	var sshErr *hub.SSHError
	if !errors.As(err, &sshErr) {
		t.Fatalf("GetLogs() error = %v, want *hub.SSHError", err)
	}
	if sshErr.Message != "Could not retrieve core logs. Tried: ha core logs, common log files, journalctl" {
		t.Errorf("Message = %q", sshErr.Message)
	}
	if len(sshErr.Attempts) != 5 || sshErr.Attempts[4] != "journalctl" {
		t.Errorf("Attempts = %v", sshErr.Attempts)
	}
}

func TestGetLogs_CapsLines(t *testing.T) {
	t.Parallel()

	r := &fakeRunner{results: map[string]CommandResult{"ha core logs": {Stdout: "x"}}}
	c := newTestClient(t, r)

	res, err := c.GetLogs(context.Background(), hub.LogKindCore, 10_000)
	if err != nil {
		t.Fatalf("GetLogs() error = %v", err)
	}
	if res.RequestedLines != MaxLines || r.ran()[0] != "ha core logs --lines 2000" {
		t.Errorf("RequestedLines = %d, command = %q", res.RequestedLines, r.ran()[0])
	}
}

func TestGetLogs_Supervisor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		result  CommandResult
		want    string
		wantErr string
	}{
		{name: "ok", result: CommandResult{Stdout: "sup\n"}, want: "ha supervisor logs"},
		{name: "missing cli", result: CommandResult{ExitCode: 127, Stderr: "bash: ha: command not found"},
			wantErr: "Supervisor logs not available. This requires HA OS or Supervised installation."},
		{name: "stderr", result: CommandResult{ExitCode: 1, Stderr: strings.Repeat("e", 300)},
			wantErr: "ha supervisor logs failed: " + strings.Repeat("e", 200)},
		{name: "empty", result: CommandResult{}, wantErr: "ha supervisor logs returned empty output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := newTestClient(t, &fakeRunner{results: map[string]CommandResult{"ha supervisor logs": tt.result}})

			res, err := c.GetLogs(context.Background(), hub.LogKindSupervisor, 100)
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Fatalf("error = %v, want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetLogs() error = %v", err)
			}
			if res.Source != tt.want {
				t.Errorf("Source = %q, want %q", res.Source, tt.want)
			}
		})
	}
}

func TestGetLogs_UnknownKind(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, &fakeRunner{})
	_, err := c.GetLogs(context.Background(), hub.LogKind("kernel"), 10)
	if err == nil || !strings.Contains(err.Error(), "Unknown log kind: kernel") {
		t.Errorf("error = %v", err)
	}
}

func TestFormat_Truncation(t *testing.T) {
	t.Parallel()

	line := strings.Repeat("a", 99) + "\n"
	text := strings.Repeat(line, shaping.MaxLogBytes/100+50)

	res := format(text, "journalctl", 2000)
	if !res.Truncated || res.MaxBytes != shaping.MaxLogBytes {
		t.Fatalf("Truncated/MaxBytes = %v/%d", res.Truncated, res.MaxBytes)
	}
	if res.ActualLines != nil {
		t.Error("ActualLines should be omitted for truncated output")
	}
	if res.ReturnedBytes == nil || *res.ReturnedBytes != len(res.Log) || len(res.Log) > shaping.MaxLogBytes {
		t.Errorf("ReturnedBytes = %v, len(Log) = %d", res.ReturnedBytes, len(res.Log))
	}
	if res.TotalBytes != len(text) {
		t.Errorf("TotalBytes = %d, want %d", res.TotalBytes, len(text))
	}
	if (len(res.Log)+1)%len(line) != 0 {
		t.Errorf("len(Log) = %d, want cut on a line boundary", len(res.Log))
	}
}

func TestTestConnection(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		c := NewClient(sshConfig(t, "false"), testLogger(), WithRunner(&fakeRunner{}))
		res := c.TestConnection(context.Background())
		if res.Success || res.Error != "SSH is not enabled (HA_SSH_ENABLE=false)" {
			t.Errorf("TestConnection() = %+v", res)
		}
	})

	t.Run("success", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, &fakeRunner{results: map[string]CommandResult{"whoami": {Stdout: "root\n"}}})
		res := c.TestConnection(context.Background())
		if !res.Success || res.User != "root" || res.Host != "homeassistant.local" || res.Message != "SSH connection successful" {
			t.Errorf("TestConnection() = %+v", res)
		}
	})

	t.Run("failure", func(t *testing.T) {
		t.Parallel()
		c := newTestClient(t, &fakeRunner{errs: map[string]error{
			"whoami": &hub.SSHError{Message: "SSH connection failed: connection refused"},
		}})
		res := c.TestConnection(context.Background())
		if res.Success || res.Error != "SSH connection failed: connection refused" || res.Host != "homeassistant.local" {
			t.Errorf("TestConnection() = %+v", res)
		}
	})
}

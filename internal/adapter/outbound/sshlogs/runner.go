package sshlogs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"

	"github.com/hass-gate/hassgate/internal/config"
	"github.com/hass-gate/hassgate/internal/domain/hub"
)

// CommandResult is the outcome of one remote command.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes one command on the hub host. A non-zero exit status is
// not an error; failures to connect or to finish within timeout are
// reported as *hub.SSHError.
type Runner interface {
	Run(ctx context.Context, command string, timeout time.Duration) (CommandResult, error)
}

// defaultKeyFiles are tried, in order, when neither a key path nor a
// password is configured and no agent is reachable.
var defaultKeyFiles = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// SSHRunner connects fresh for every command and closes afterwards.
type SSHRunner struct {
	cfg            config.SSHConfig
	connectTimeout time.Duration
	logger         *slog.Logger
}

// NewSSHRunner creates a runner for cfg. Host keys are not verified: the
// target is expected to be on the local network.
func NewSSHRunner(cfg config.SSHConfig, connectTimeout time.Duration, logger *slog.Logger) *SSHRunner {
	logger.Warn("SSH host key verification is disabled", "host", cfg.Host)
	return &SSHRunner{cfg: cfg, connectTimeout: connectTimeout, logger: logger}
}

// Run implements Runner.
func (r *SSHRunner) Run(ctx context.Context, command string, timeout time.Duration) (CommandResult, error) {
	client, err := r.connect(ctx)
	if err != nil {
		return CommandResult{}, err
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return CommandResult{}, &hub.SSHError{Message: fmt.Sprintf("Command execution failed: %v", err)}
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	r.logger.Debug("running SSH command", "command", command)

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err = <-done:
	case <-timer.C:
		// Closing the client unblocks session.Run.
		_ = client.Close()
		return CommandResult{}, &hub.SSHError{Message: fmt.Sprintf("Command timeout after %s", formatSeconds(timeout))}
	case <-ctx.Done():
		_ = client.Close()
		return CommandResult{}, &hub.SSHError{Message: fmt.Sprintf("Command execution failed: %v", ctx.Err())}
	}

	res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		var missing *ssh.ExitMissingError
		switch {
		case errors.As(err, &exitErr):
			res.ExitCode = exitErr.ExitStatus()
		case errors.As(err, &missing):
			res.ExitCode = 0
		default:
			return CommandResult{}, &hub.SSHError{Message: fmt.Sprintf("Command execution failed: %v", err)}
		}
	}
	return res, nil
}

// connect dials and completes the SSH handshake within connectTimeout.
// The agent connection, if any, is only needed for the handshake and is
// closed before connect returns.
func (r *SSHRunner) connect(ctx context.Context) (*ssh.Client, error) {
	auth, agentConn, err := r.authMethods()
	if err != nil {
		return nil, err
	}
	if agentConn != nil {
		defer func() { _ = agentConn.Close() }()
	}
	clientCfg := &ssh.ClientConfig{
		User:            r.cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), //nolint:gosec // local-network target, see NewSSHRunner
		Timeout:         r.connectTimeout,
	}

	addr := r.cfg.Addr()
	r.logger.Debug("connecting over SSH", "user", r.cfg.User, "addr", addr)

	dialer := net.Dialer{Timeout: r.connectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, r.connectError(err)
	}
	_ = conn.SetDeadline(time.Now().Add(r.connectTimeout))

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		_ = conn.Close()
		return nil, r.connectError(err)
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(c, chans, reqs), nil
}

func (r *SSHRunner) connectError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &hub.SSHError{Message: fmt.Sprintf("SSH connection timeout after %s", formatSeconds(r.connectTimeout))}
	}
	return &hub.SSHError{Message: fmt.Sprintf("SSH connection failed: %v", err)}
}

// authMethods selects key file, then password, then agent and default keys.
// The returned closer is the agent connection, nil when no agent is used;
// the caller closes it.
func (r *SSHRunner) authMethods() ([]ssh.AuthMethod, io.Closer, error) {
	if r.cfg.KeyPath != "" {
		signer, err := loadSigner(r.cfg.KeyPath)
		if err != nil {
			return nil, nil, &hub.SSHError{Message: fmt.Sprintf("SSH connection failed: %v", err)}
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil, nil
	}
	if r.cfg.Password != "" {
		return []ssh.AuthMethod{ssh.Password(r.cfg.Password)}, nil, nil
	}

	var methods []ssh.AuthMethod
	var agentConn io.Closer
	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			agentConn = conn
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		} else {
			r.logger.Debug("SSH agent unreachable", "error", err)
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		var signers []ssh.Signer
		for _, name := range defaultKeyFiles {
			if s, err := loadSigner(filepath.Join(home, ".ssh", name)); err == nil {
				signers = append(signers, s)
			}
		}
		if len(signers) > 0 {
			methods = append(methods, ssh.PublicKeys(signers...))
		}
	}
	if len(methods) == 0 {
		return nil, nil, &hub.SSHError{Message: "SSH connection failed: no key, password or agent available"}
	}
	return methods, agentConn, nil
}

func loadSigner(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied key path
	if err != nil {
		return nil, fmt.Errorf("reading key %s: %w", path, err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parsing key %s: %w", path, err)
	}
	return signer, nil
}

// formatSeconds renders d as seconds ("30s", "0.5s").
func formatSeconds(d time.Duration) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.3f", d.Seconds()), "0"), ".") + "s"
}

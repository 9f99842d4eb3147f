package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSH executes commands on a remote host over a single SSH connection.
type SSH struct {
	client *ssh.Client
	host   string
	logger *slog.Logger
}

// SSHConfig contains SSH connection parameters.
type SSHConfig struct {
	Host    string
	Port    int
	User    string
	KeyPath string

	// KnownHostsPath is consulted when StrictHostKeyChecking is set.
	KnownHostsPath        string
	StrictHostKeyChecking bool
	DialTimeout           time.Duration
}

// DialSSH establishes a connection bound to ctx for the handshake.
func DialSSH(ctx context.Context, config SSHConfig, logger *slog.Logger) (*SSH, error) {
	log := logger.With(slog.String("executor", "ssh"), slog.String("host", config.Host))

	client, err := createSSHClient(ctx, config, log)
	if err != nil {
		return nil, err
	}

	return &SSH{
		client: client,
		host:   config.Host,
		logger: log,
	}, nil
}

// Close closes the SSH connection.
func (e *SSH) Close() error {
	if e.client != nil {
		e.logger.Debug("closing SSH connection")
		return e.client.Close()
	}
	return nil
}

func (e *SSH) Name() string {
	return fmt.Sprintf("ssh-%s", e.host)
}

func (e *SSH) Execute(
	ctx context.Context,
	stdout, stderr io.Writer,
	command string, args ...string,
) (int, error) {
	cmdStr := shellquote.Join(append([]string{command}, args...)...)
	e.logger.Debug("executing command via SSH", slog.String("cmd", cmdStr))

	session, err := e.client.NewSession()
	if err != nil {
		return -1, fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	session.Stdout = stdout
	session.Stderr = stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmdStr)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		e.logger.Warn("SSH command interrupted",
			slog.String("cmd", cmdStr),
			slog.String("error", ctx.Err().Error()),
		)
		return -1, fmt.Errorf("command interrupted: %w", ctx.Err())
	case err = <-done:
	}

	if err == nil {
		e.logger.Debug("SSH command succeeded", slog.String("cmd", cmdStr))
		return 0, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		exitCode := exitErr.ExitStatus()
		e.logger.Debug("SSH command exited non-zero",
			slog.String("cmd", cmdStr),
			slog.Int("exit_code", exitCode),
		)
		return exitCode, fmt.Errorf("command exited with code %d: %w", exitCode, err)
	}

	e.logger.Error("SSH command execution error",
		slog.String("cmd", cmdStr),
		slog.String("error", err.Error()),
	)
	return -1, fmt.Errorf("command execution failed: %w", err)
}

func createSSHClient(ctx context.Context, config SSHConfig, logger *slog.Logger) (*ssh.Client, error) {
	port := config.Port
	if port == 0 {
		port = 22
	}

	keyPath, err := expandHome(config.KeyPath)
	if err != nil {
		return nil, err
	}

	keyBytes, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key %s: %w", keyPath, err)
	}

	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key: %w", err)
	}

	hostKeyCallback, err := hostKeyCallback(config)
	if err != nil {
		return nil, err
	}

	sshConfig := &ssh.ClientConfig{
		User: config.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: hostKeyCallback,
		Timeout:         config.DialTimeout,
	}

	addr := net.JoinHostPort(config.Host, strconv.Itoa(port))
	logger.Debug("establishing SSH connection", slog.String("addr", addr))

	dialer := net.Dialer{Timeout: config.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	// The handshake has no context of its own.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, sshConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("SSH handshake with %s failed: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Time{})

	logger.Debug("SSH connection established", slog.String("addr", addr))
	return ssh.NewClient(clientConn, chans, reqs), nil
}

func hostKeyCallback(config SSHConfig) (ssh.HostKeyCallback, error) {
	if !config.StrictHostKeyChecking {
		return ssh.InsecureIgnoreHostKey(), nil
	}

	path, err := expandHome(config.KnownHostsPath)
	if err != nil {
		return nil, err
	}

	callback, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts %s: %w", path, err)
	}
	return callback, nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[2:]), nil
}

package source

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/xtxerr/trending/config"
	"github.com/xtxerr/trending/internal/errors"
)

// SSHConfig configures an SSHProvider.
type SSHConfig struct {
	User string
	Host string
	Port int

	// KeyFile is a private key in OpenSSH or PEM format. A leading ~ is
	// expanded to the home directory.
	KeyFile string

	// Passphrase decrypts KeyFile when it is encrypted.
	Passphrase string

	// KnownHostsFile enables host key checking. Empty accepts any host key.
	KnownHostsFile string

	// HandshakeTimeout bounds dial plus SSH handshake.
	HandshakeTimeout time.Duration
}

// Addr returns host:port of the SSH server.
func (c SSHConfig) Addr() string {
	port := c.Port
	if port == 0 {
		port = config.DefaultSSHPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// SSHProvider opens local port forwards through an SSH server.
type SSHProvider struct {
	addr    string
	timeout time.Duration
	client  *ssh.ClientConfig
}

// NewSSHProvider reads the key and host key settings. It does not connect.
func NewSSHProvider(cfg SSHConfig) (*SSHProvider, error) {
	if cfg.Host == "" {
		return nil, errors.NewMissingField("ssh.host")
	}
	if cfg.User == "" {
		return nil, errors.NewMissingField("ssh.user")
	}
	if cfg.KeyFile == "" {
		return nil, errors.NewMissingField("ssh.key")
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = config.DefaultSSHHandshakeTimeout
	}

	pemBytes, err := os.ReadFile(ExpandHome(cfg.KeyFile))
	if err != nil {
		return nil, errors.Wrapf(err, "read ssh key %s", cfg.KeyFile)
	}
	signer, err := parseKey(pemBytes, cfg.Passphrase)
	if err != nil {
		return nil, errors.Wrapf(err, "parse ssh key %s", cfg.KeyFile)
	}

	hostKey := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		hostKey, err = knownhosts.New(ExpandHome(cfg.KnownHostsFile))
		if err != nil {
			return nil, errors.Wrapf(err, "load known hosts %s", cfg.KnownHostsFile)
		}
	}

	return &SSHProvider{
		addr:    cfg.Addr(),
		timeout: cfg.HandshakeTimeout,
		client: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKey,
			Timeout:         cfg.HandshakeTimeout,
		},
	}, nil
}

func parseKey(pemBytes []byte, passphrase string) (ssh.Signer, error) {
	if passphrase != "" {
		return ssh.ParsePrivateKeyWithPassphrase(pemBytes, []byte(passphrase))
	}
	return ssh.ParsePrivateKey(pemBytes)
}

// KeyNeedsPassphrase reports whether the key file is encrypted.
func KeyNeedsPassphrase(keyFile string) (bool, error) {
	pemBytes, err := os.ReadFile(ExpandHome(keyFile))
	if err != nil {
		return false, err
	}
	_, err = ssh.ParsePrivateKey(pemBytes)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		return true, nil
	}
	return false, nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Open connects to the SSH server and starts forwarding a local port to
// remoteAddr.
func (p *SSHProvider) Open(ctx context.Context, remoteAddr string) (Tunnel, error) {
	dialer := net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return nil, errors.Kind(errors.ErrConnection, err)
	}

	conn.SetDeadline(time.Now().Add(p.timeout))
	c, chans, reqs, err := ssh.NewClientConn(conn, p.addr, p.client)
	if err != nil {
		conn.Close()
		return nil, errors.Kind(errors.ErrConnection, fmt.Errorf("ssh handshake with %s: %w", p.addr, err))
	}
	conn.SetDeadline(time.Time{})
	client := ssh.NewClient(c, chans, reqs)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		client.Close()
		return nil, errors.Wrap(err, "listen for tunnel")
	}

	t := &sshTunnel{
		client: client,
		ln:     ln,
		remote: remoteAddr,
	}
	go t.serve()
	go func() {
		client.Wait()
		t.Close()
	}()

	log.Debug("ssh tunnel open", "via", p.addr, "local", ln.Addr().String(), "remote", remoteAddr)
	return t, nil
}

type sshTunnel struct {
	client *ssh.Client
	ln     net.Listener
	remote string

	dead      atomic.Bool
	closeOnce sync.Once
}

func (t *sshTunnel) LocalAddr() string { return t.ln.Addr().String() }

func (t *sshTunnel) Alive() bool { return !t.dead.Load() }

func (t *sshTunnel) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.dead.Store(true)
		t.ln.Close()
		err = t.client.Close()
	})
	return err
}

func (t *sshTunnel) serve() {
	for {
		local, err := t.ln.Accept()
		if err != nil {
			return
		}
		go t.forward(local)
	}
}

func (t *sshTunnel) forward(local net.Conn) {
	defer local.Close()

	remote, err := t.client.Dial("tcp", t.remote)
	if err != nil {
		log.Debug("tunnel dial failed", "remote", t.remote, "error", err)
		return
	}
	defer remote.Close()

	done := make(chan struct{}, 2)
	go func() {
		io.Copy(remote, local)
		done <- struct{}{}
	}()
	go func() {
		io.Copy(local, remote)
		done <- struct{}{}
	}()
	<-done
}

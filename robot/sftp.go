package robot

import (
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// RemoteFS is the slice of SFTP behavior the pipeline needs. It exists so
// tests can stand in a local fake instead of a live server.
type RemoteFS interface {
	ReadDir(dir string) ([]os.FileInfo, error)
	Download(remotePath string, localPath string) error
	Upload(localPath string, remotePath string) error
	Close() error
}

// RemoteDialer opens connections to SFTP endpoints.
type RemoteDialer interface {
	Dial(ep Endpoint) (RemoteFS, error)
}

// SSHDialer connects with password authentication, resolving the password
// from a SecretStore.
type SSHDialer struct {
	Secrets SecretStore
}

func (d SSHDialer) Dial(ep Endpoint) (RemoteFS, error) {
	password, err := d.Secrets.Password(ep.Host, ep.Username)
	if err != nil {
		return nil, err
	}
	port := ep.Port
	if port == 0 {
		port = 22
	}
	cfg := &ssh.ClientConfig{
		User:            ep.Username,
		Auth:            []ssh.AuthMethod{ssh.Password(password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         15 * time.Second,
	}
	conn, err := ssh.Dial("tcp", fmt.Sprintf("%s:%d", ep.Host, port), cfg)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", ep.Host, err)
	}
	client, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open sftp session on %s: %w", ep.Host, err)
	}
	return &sshRemote{conn: conn, client: client}, nil
}

type sshRemote struct {
	conn   *ssh.Client
	client *sftp.Client
}

func (r *sshRemote) ReadDir(dir string) ([]os.FileInfo, error) {
	return r.client.ReadDir(dir)
}

func (r *sshRemote) Download(remotePath string, localPath string) error {
	src, err := r.client.Open(remotePath)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(localPath)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil {
		_ = os.Remove(localPath)
		return copyErr
	}
	if closeErr != nil {
		_ = os.Remove(localPath)
		return closeErr
	}
	return nil
}

func (r *sshRemote) Upload(localPath string, remotePath string) error {
	src, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer src.Close()
	if err := r.client.MkdirAll(path.Dir(remotePath)); err != nil {
		return err
	}
	dst, err := r.client.Create(remotePath)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}

func (r *sshRemote) Close() error {
	cerr := r.client.Close()
	if err := r.conn.Close(); err != nil {
		return err
	}
	return cerr
}

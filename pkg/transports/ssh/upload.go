package ssh

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
)

// Upload writes a local file to the remote machine via SFTP. Phases use it
// to push configuration files and keys before running commands.
func (c *Client) Upload(ctx context.Context, localPath, remotePath string, mode os.FileMode) error {
	c.mu.Lock()
	conn, err := c.connLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return err
	}

	sftpClient, err := sftp.NewClient(conn)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to open sftp session: %w", err), IsTemporary: true}
	}
	defer sftpClient.Close()

	local, err := os.Open(localPath)
	if err != nil {
		return &TransportError{Op: "upload", Err: err}
	}
	defer local.Close()

	remote, err := sftpClient.Create(remotePath)
	if err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to create %s: %w", remotePath, err), IsTemporary: true}
	}
	defer remote.Close()

	written, err := io.Copy(remote, local)
	if err != nil {
		return &TransportError{Op: "upload", Err: err, IsTemporary: true}
	}
	if err := sftpClient.Chmod(remotePath, mode); err != nil {
		return &TransportError{Op: "upload", Err: fmt.Errorf("failed to chmod %s: %w", remotePath, err)}
	}

	log.Debug().
		Str("host", c.config.Host).
		Str("remote_path", remotePath).
		Int64("bytes", written).
		Msg("uploaded file")
	return nil
}

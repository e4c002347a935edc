package conductor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coxswain-dev/coxswain/internal/domain"
)

// The file RPC façade. Every operation serializes through the single
// command queue; two file RPCs on the same conductor never run in
// parallel. Callers block until the helper's response round-trips,
// while parser events keep dispatching on their own goroutine.

type fileResult struct {
	body   string
	status int
}

// fileExchange queues one framer file subcommand and waits for its
// completion. A negative status (including the abort delivered on
// queue drain) maps to ErrConnectionClosed; any positive status to
// ErrFileNotFound.
func (c *Conductor) fileExchange(ctx context.Context, sub *domain.FileSubcommand) (string, error) {
	ch := make(chan fileResult, 1)

	c.mu.Lock()
	c.sendLocked(domain.Command{Kind: domain.CmdFramerFile, File: sub}, &handler{
		kind: fileHandler,
		complete: func(data []byte, status int) {
			ch <- fileResult{body: string(data), status: status}
		},
	})
	fns := c.takeDeferredLocked()
	c.mu.Unlock()
	runAll(fns)

	select {
	case res := <-ch:
		switch {
		case res.status < 0:
			return "", fmt.Errorf("%w: %s", domain.ErrConnectionClosed, sub.Describe())
		case res.status > 0:
			return "", fmt.Errorf("%w: %s", domain.ErrFileNotFound, sub.Describe())
		}
		return res.body, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// ListFiles lists a remote directory in the given order.
func (c *Conductor) ListFiles(ctx context.Context, dir []byte, order domain.FileSort) ([]domain.RemoteFile, error) {
	body, err := c.fileExchange(ctx, &domain.FileSubcommand{Op: domain.FileLs, Path: dir, Sort: order})
	if err != nil {
		return nil, err
	}
	var files []domain.RemoteFile
	if err := json.Unmarshal([]byte(body), &files); err != nil {
		return nil, fmt.Errorf("%w: ls payload: %v", domain.ErrInternal, err)
	}
	return files, nil
}

// Download fetches a remote file's contents.
func (c *Conductor) Download(ctx context.Context, path []byte) ([]byte, error) {
	body, err := c.fileExchange(ctx, &domain.FileSubcommand{Op: domain.FileFetch, Path: path})
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(body, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("%w: fetch payload: %v", domain.ErrInternal, err)
	}
	return data, nil
}

// StatFile describes one remote path.
func (c *Conductor) StatFile(ctx context.Context, path []byte) (domain.RemoteFile, error) {
	body, err := c.fileExchange(ctx, &domain.FileSubcommand{Op: domain.FileStat, Path: path})
	if err != nil {
		return domain.RemoteFile{}, err
	}
	var file domain.RemoteFile
	if err := json.Unmarshal([]byte(body), &file); err != nil {
		return domain.RemoteFile{}, fmt.Errorf("%w: stat payload: %v", domain.ErrInternal, err)
	}
	return file, nil
}

// DeleteFile removes a remote path.
func (c *Conductor) DeleteFile(ctx context.Context, path []byte, recursive bool) error {
	_, err := c.fileExchange(ctx, &domain.FileSubcommand{Op: domain.FileRm, Path: path, Recursive: recursive})
	return err
}

// Symlink creates a remote symlink and returns its entry.
func (c *Conductor) Symlink(ctx context.Context, source, link []byte) (domain.RemoteFile, error) {
	body, err := c.fileExchange(ctx, &domain.FileSubcommand{Op: domain.FileLn, Source: source, Path: link})
	if err != nil {
		return domain.RemoteFile{}, err
	}
	var file domain.RemoteFile
	if err := json.Unmarshal([]byte(body), &file); err != nil {
		return domain.RemoteFile{}, fmt.Errorf("%w: ln payload: %v", domain.ErrInternal, err)
	}
	return file, nil
}

// Move renames a remote path and returns the entry at its new
// location.
func (c *Conductor) Move(ctx context.Context, source, dest []byte) (domain.RemoteFile, error) {
	body, err := c.fileExchange(ctx, &domain.FileSubcommand{Op: domain.FileMv, Source: source, Path: dest})
	if err != nil {
		return domain.RemoteFile{}, err
	}
	var file domain.RemoteFile
	if err := json.Unmarshal([]byte(body), &file); err != nil {
		return domain.RemoteFile{}, fmt.Errorf("%w: mv payload: %v", domain.ErrInternal, err)
	}
	return file, nil
}

// Mkdir creates a remote directory.
func (c *Conductor) Mkdir(ctx context.Context, path []byte) error {
	_, err := c.fileExchange(ctx, &domain.FileSubcommand{Op: domain.FileMkdir, Path: path})
	return err
}

// CreateFile writes content to a new remote file.
func (c *Conductor) CreateFile(ctx context.Context, path, content []byte) error {
	_, err := c.fileExchange(ctx, &domain.FileSubcommand{Op: domain.FileCreate, Path: path, Content: content})
	return err
}

// Replace is reserved; the deployed helper has no support for it.
func (c *Conductor) Replace(ctx context.Context, path, content []byte) error {
	return fmt.Errorf("%w: replace", domain.ErrNotImplemented)
}

// SetModificationDate is reserved; the deployed helper has no support
// for it.
func (c *Conductor) SetModificationDate(ctx context.Context, path []byte, unixSeconds int64) error {
	return fmt.Errorf("%w: setModificationDate", domain.ErrNotImplemented)
}

// Chmod is reserved; the deployed helper has no support for it.
func (c *Conductor) Chmod(ctx context.Context, path []byte, mode uint32) error {
	return fmt.Errorf("%w: chmod", domain.ErrNotImplemented)
}

// Package materialize turns a resolved payload into a file on disk.
package materialize

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/alanbriolat/universal-saver/internal/media"
)

const maxAttempts = 1000

var ErrNoFreeName = errors.New("no free filename")

type materializeConfig struct {
	targetDir string
	// Empty means a temporary directory inside targetDir, so the final rename never crosses filesystems.
	tempDir  string
	fileMode fs.FileMode
}

type Option func(*materializeConfig)

func WithTargetDir(dir string) Option {
	return func(c *materializeConfig) {
		c.targetDir = dir
	}
}

func WithTempDir(dir string) Option {
	return func(c *materializeConfig) {
		c.tempDir = dir
	}
}

func WithFileMode(mode fs.FileMode) Option {
	return func(c *materializeConfig) {
		c.fileMode = mode
	}
}

type Materializer struct {
	config materializeConfig
	log    *zap.SugaredLogger
}

func New(opts ...Option) *Materializer {
	config := materializeConfig{
		targetDir: ".",
		fileMode:  0644,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Materializer{
		config: config,
		log:    zap.S().Named("materialize"),
	}
}

func (m *Materializer) TargetDir() string {
	return m.config.targetDir
}

// Save writes r to a new file in the target directory and returns its path. An existing file is never overwritten:
// if the name is taken, " (1)", " (2)", etc. is added before the extension.
func (m *Materializer) Save(r media.Resolved) (path string, err error) {
	err = withDownloadState(m.config, func(state *downloadState) error {
		temp, err := state.writeTemp(r.Bytes)
		if err != nil {
			return fmt.Errorf("failed to write temporary file: %w", err)
		}
		path, err = m.reserve(filepath.Base(r.Filename))
		if err != nil {
			return err
		}
		if err := m.moveInto(temp, path); err != nil {
			_ = os.Remove(path)
			path = ""
			return err
		}
		return nil
	})
	if err != nil {
		m.log.Warnf("failed to save %v: %v", r, err)
		return "", err
	}
	m.log.Debugf("saved %v to %v", r, path)
	return path, nil
}

// reserve creates an empty file with the first free variant of name, so concurrent saves can't pick the same one.
func (m *Materializer) reserve(name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < maxAttempts; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(m.config.targetDir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, m.config.fileMode)
		if errors.Is(err, fs.ErrExist) {
			continue
		} else if err != nil {
			return "", fmt.Errorf("failed to create %v: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return "", err
		}
		return path, nil
	}
	return "", fmt.Errorf("%w for %v in %v", ErrNoFreeName, name, m.config.targetDir)
}

// moveInto replaces the reserved file at path with temp, copying if a rename isn't possible.
func (m *Materializer) moveInto(temp string, path string) error {
	if err := os.Rename(temp, path); err == nil {
		return os.Chmod(path, m.config.fileMode)
	} else {
		m.log.Debugf("rename failed, copying instead: %v", err)
	}
	src, err := os.Open(temp)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, m.config.fileMode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

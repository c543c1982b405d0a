package materialize

import (
	"os"

	"go.uber.org/zap"
)

type downloadState struct {
	tempDir string
}

func newDownloadState(config materializeConfig) (*downloadState, error) {
	if err := os.MkdirAll(config.targetDir, 0755); err != nil {
		return nil, err
	}
	base := config.tempDir
	if base == "" {
		base = config.targetDir
	}
	tempDir, err := os.MkdirTemp(base, ".universal-saver-*")
	if err != nil {
		return nil, err
	}
	return &downloadState{tempDir: tempDir}, nil
}

func (s *downloadState) close() {
	if err := os.RemoveAll(s.tempDir); err != nil {
		zap.S().Named("materialize").Warnf("failed to clean up %v: %v", s.tempDir, err)
	}
}

// writeTemp writes data to a new file in the temporary directory and returns its path.
func (s *downloadState) writeTemp(data []byte) (string, error) {
	f, err := os.CreateTemp(s.tempDir, "payload-*")
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return f.Name(), nil
}

// withDownloadState runs f with a fresh temporary directory, which is removed afterwards however f returns.
func withDownloadState(config materializeConfig, f func(state *downloadState) error) error {
	if state, err := newDownloadState(config); err != nil {
		return err
	} else {
		defer state.close()
		return f(state)
	}
}

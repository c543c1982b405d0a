// Package clipboard reads links from the system clipboard on a best-effort basis.
package clipboard

import (
	"context"
	"errors"
	"strings"

	"github.com/atotto/clipboard"
	"go.uber.org/zap"

	"github.com/alanbriolat/universal-saver/async"
)

// ErrUnavailable covers every way a clipboard read can fail: no clipboard support, permission denied, an empty
// clipboard, or the caller giving up.
var ErrUnavailable = errors.New("clipboard unavailable")

type Reader struct {
	readAll     func() (string, error)
	unsupported bool
}

// NewReader returns a Reader backed by the system clipboard.
func NewReader() *Reader {
	return &Reader{
		readAll:     clipboard.ReadAll,
		unsupported: clipboard.Unsupported,
	}
}

// Read returns the trimmed clipboard text, or ErrUnavailable. It never returns any other error.
func (r *Reader) Read(ctx context.Context) (string, error) {
	log := zap.S().Named("clipboard")
	if r.unsupported || r.readAll == nil {
		log.Debug("no clipboard support")
		return "", ErrUnavailable
	}
	select {
	case result := <-async.RunResult(r.readAll):
		if result.IsErr() {
			log.Debugf("clipboard read failed: %v", result.Error)
			return "", ErrUnavailable
		}
		text := strings.TrimSpace(result.Value)
		if text == "" {
			return "", ErrUnavailable
		}
		return text, nil
	case <-ctx.Done():
		return "", ErrUnavailable
	}
}

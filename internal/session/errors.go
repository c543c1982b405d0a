package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/alanbriolat/universal-saver/internal/fetch"
	"github.com/alanbriolat/universal-saver/internal/validate"
)

var (
	ErrBusy                   = errors.New("a download is already in progress")
	ErrSessionClosed          = errors.New("session closed")
	ErrUndecodableServerError = errors.New("undecodable server response")
	ErrSaveFailed             = errors.New("failed to save file")
	ErrClipboardUnavailable   = errors.New("clipboard unavailable")
)

const (
	MessageEmptyInput           = "Please paste a link first."
	MessageMissingScheme        = "Invalid link (it must start with http or https)."
	MessageUnsupportedDomain    = "Sorry, only %s links are supported."
	MessageConnectionFailed     = "Cannot connect to the server."
	MessageServerError          = "The server reported an error."
	MessageUnavailable          = "Unable to download. The link may be private or removed."
	MessageSaveFailed           = "The file could not be saved."
	MessageClipboardUnavailable = "Clipboard access is not available, paste the link manually (Ctrl+V)."
	MessageSucceeded            = "Download complete! The file has been saved."
)

// ServerError is a failure the download service described itself.
type ServerError struct {
	StatusCode int
	// The "detail" field of the error body, empty if it was missing or not a string.
	Detail string
}

func (e *ServerError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("server error (status %d): %s", e.StatusCode, e.Detail)
}

// checkResponse returns nil if raw carries a payload to save, otherwise the error it represents.
func checkResponse(raw *fetch.RawResponse) error {
	if raw.OK() {
		if len(raw.Body) == 0 {
			return fmt.Errorf("%w: empty body with status %d", ErrUndecodableServerError, raw.StatusCode)
		}
		return nil
	}
	return decodeServerError(raw.StatusCode, raw.Body)
}

// decodeServerError interprets the body of a failed response, which should be a JSON object with a "detail" field.
func decodeServerError(statusCode int, body []byte) error {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		return fmt.Errorf("%w: status %d: %v", ErrUndecodableServerError, statusCode, err)
	} else if payload == nil {
		return fmt.Errorf("%w: status %d: not an object", ErrUndecodableServerError, statusCode)
	}
	serverErr := &ServerError{StatusCode: statusCode}
	if raw, ok := payload["detail"]; ok {
		// Anything other than a string is treated as if it were missing
		_ = json.Unmarshal(raw, &serverErr.Detail)
	}
	return serverErr
}

// MessageFor maps an error from any stage of an attempt to the text shown to the user.
func MessageFor(err error) string {
	var unsupported *validate.UnsupportedDomainError
	var serverErr *ServerError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, validate.ErrEmptyInput):
		return MessageEmptyInput
	case errors.Is(err, validate.ErrMissingScheme):
		return MessageMissingScheme
	case errors.As(err, &unsupported):
		return fmt.Sprintf(MessageUnsupportedDomain, unsupported.Supported)
	case errors.Is(err, fetch.ErrConnectionFailed):
		return MessageConnectionFailed
	case errors.As(err, &serverErr):
		if strings.TrimSpace(serverErr.Detail) == "" {
			return MessageServerError
		}
		return serverErr.Detail
	case errors.Is(err, ErrSaveFailed):
		return MessageSaveFailed
	case errors.Is(err, ErrClipboardUnavailable):
		return MessageClipboardUnavailable
	default:
		return MessageUnavailable
	}
}

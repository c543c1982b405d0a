// Package validate decides whether user input is a link the download service can be asked to fetch.
package validate

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/alanbriolat/universal-saver"
)

var (
	ErrEmptyInput        = errors.New("empty input")
	ErrMissingScheme     = errors.New("link must start with http or https")
	ErrUnsupportedDomain = errors.New("unsupported domain")
)

// UnsupportedDomainError is returned when the link's host is not on the platform allow-list.
type UnsupportedDomainError struct {
	Host string
	// Human readable list of the platforms that are supported.
	Supported string
	// Why each platform rejected the host.
	Err error
}

func (e *UnsupportedDomainError) Error() string {
	if e.Host == "" {
		return "unsupported domain: link has no host"
	}
	return fmt.Sprintf("unsupported domain %q", e.Host)
}

func (e *UnsupportedDomainError) Is(target error) bool {
	return target == ErrUnsupportedDomain
}

func (e *UnsupportedDomainError) Unwrap() error {
	return e.Err
}

// URL checks input against, in order: emptiness, the http scheme prefix, and the platforms allow-list. Surrounding
// whitespace is ignored. It returns nil if the link is acceptable.
func URL(input string, platforms *universal_saver.PlatformRegistry) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return ErrEmptyInput
	}
	if !strings.HasPrefix(strings.ToLower(input), "http") {
		return ErrMissingScheme
	}
	parsed, err := url.Parse(input)
	if err != nil || parsed.Host == "" {
		return &UnsupportedDomainError{Supported: platforms.Describe(), Err: err}
	}
	host := parsed.Hostname()
	if _, err := platforms.Match(host); err != nil {
		return &UnsupportedDomainError{Host: host, Supported: platforms.Describe(), Err: err}
	}
	return nil
}

// Package media works out what a downloaded payload actually is and what it should be called.
//
// Nothing the service sends is trusted to be consistent: the header name might say .mp4 for a photo, the declared
// Content-Type might disagree with the bytes, and either might be missing entirely.
package media

import (
	"fmt"
	"mime"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/alanbriolat/universal-saver/internal/fetch"
)

const (
	DefaultMIMEType  = "video/mp4"
	DefaultExtension = "mp4"
)

var extensions = map[string]string{
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

var (
	extendedFilenameRegexp = regexp.MustCompile(`(?i)filename\*\s*=\s*UTF-8''([^;]+)`)
	filenameRegexp         = regexp.MustCompile(`(?i)filename\s*=\s*"?([^";]+)"?`)
	extensionRegexp        = regexp.MustCompile(`\.[^./\\]*$`)
)

// Resolved is a payload ready to be written to disk. Filename always ends in "." + Extension, and Extension is always
// ExtensionFor(MIMEType).
type Resolved struct {
	Bytes     []byte
	MIMEType  string
	Extension string
	Filename  string
}

func (r Resolved) String() string {
	return fmt.Sprintf("%s (%s, %d bytes)", r.Filename, r.MIMEType, len(r.Bytes))
}

// ExtensionFor maps a media type to a file extension, defaulting to mp4 for anything unrecognised.
func ExtensionFor(mimeType string) string {
	if ext, ok := extensions[strings.ToLower(mimeType)]; ok {
		return ext
	}
	return DefaultExtension
}

// Identify resolves the type, extension and filename for a successful response.
func Identify(raw fetch.RawResponse) Resolved {
	mimeType := normalizeType(raw.ContainerType)
	if mimeType == "" {
		mimeType = normalizeType(raw.HeaderType)
	}
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}
	ext := ExtensionFor(mimeType)

	fallback := syntheticName(raw.ReceivedAt)
	name := FilenameFromDisposition(raw.ContentDisposition)
	if name == "" {
		name = fallback
	}

	return Resolved{
		Bytes:     raw.Body,
		MIMEType:  mimeType,
		Extension: ext,
		Filename:  reconcile(name, ext, fallback),
	}
}

// FilenameFromDisposition extracts the filename from a Content-Disposition header value, preferring the RFC 5987
// filename* form. Any directory part is removed. Returns "" if there is no usable name.
func FilenameFromDisposition(disposition string) string {
	if disposition == "" {
		return ""
	}
	var name string
	if m := extendedFilenameRegexp.FindStringSubmatch(disposition); m != nil {
		if decoded, err := url.PathUnescape(strings.TrimSpace(m[1])); err == nil {
			name = decoded
		}
	}
	if name == "" {
		if m := filenameRegexp.FindStringSubmatch(disposition); m != nil {
			name = m[1]
		}
	}
	return baseName(strings.TrimSpace(name))
}

// normalizeType lower-cases a media type and drops its parameters, returning "" if it isn't of the form type/subtype.
func normalizeType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(value)
	if err != nil {
		return ""
	}
	mediaType = strings.ToLower(mediaType)
	if i := strings.IndexByte(mediaType, '/'); i <= 0 || i == len(mediaType)-1 {
		return ""
	}
	return mediaType
}

func syntheticName(receivedAt time.Time) string {
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	return fmt.Sprintf("download_%d", receivedAt.UnixMilli())
}

// baseName strips everything up to the last path separator, of either kind.
func baseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSpace(name)
}

// reconcile makes name end in exactly "." + ext, replacing whatever extension it had.
func reconcile(name string, ext string, fallback string) string {
	suffix := "." + ext
	if len(name) > len(suffix) && strings.EqualFold(name[len(name)-len(suffix):], suffix) {
		return name[:len(name)-len(suffix)] + suffix
	}
	stem := strings.TrimRight(extensionRegexp.ReplaceAllString(name, ""), ".")
	stem = strings.TrimSpace(stem)
	if stem == "" {
		stem = fallback
	}
	return stem + suffix
}

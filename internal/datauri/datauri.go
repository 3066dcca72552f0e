// Package datauri parses and builds base64 data URIs of the form
// data:<mime>;base64,<payload>.
package datauri

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	scheme       = "data:"
	base64Marker = ";base64"
)

var (
	// ErrMalformedDataURI is returned when a string is not a base64 data URI.
	ErrMalformedDataURI = errors.New("malformed data uri")

	// ErrInvalidBase64 is returned when a payload is not valid padded base64.
	ErrInvalidBase64 = errors.New("invalid base64")
)

// DataURI is a parsed data:<mime>;base64,<payload> string.
// Payload is kept encoded; call Decode to get the bytes.
type DataURI struct {
	MIME    string
	Payload string
}

// Parse splits s into its MIME type and base64 payload.
// The payload is not decoded, so Parse only checks syntax.
func Parse(s string) (DataURI, error) {
	header, payload, ok := strings.Cut(s, ",")
	if !ok {
		return DataURI{}, fmt.Errorf("%w: missing comma", ErrMalformedDataURI)
	}
	if !strings.HasPrefix(header, scheme) {
		return DataURI{}, fmt.Errorf("%w: header %q does not start with %q", ErrMalformedDataURI, truncate(header), scheme)
	}

	mime, ok := strings.CutSuffix(header[len(scheme):], base64Marker)
	if !ok {
		return DataURI{}, fmt.Errorf("%w: header %q is not base64 encoded", ErrMalformedDataURI, truncate(header))
	}

	return DataURI{MIME: mime, Payload: payload}, nil
}

// DecodeBase64 decodes a standard, padded base64 payload. Line breaks are
// outside the alphabet and rejected.
func DecodeBase64(payload string) ([]byte, error) {
	if i := strings.IndexAny(payload, "\r\n"); i >= 0 {
		return nil, fmt.Errorf("%w: illegal line break at offset %d", ErrInvalidBase64, i)
	}
	data, err := base64.StdEncoding.Strict().DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}
	return data, nil
}

// Encode builds a base64 data URI for data with the given MIME type.
func Encode(mime string, data []byte) string {
	return New(mime, data).String()
}

// New returns the DataURI for data without rendering it.
func New(mime string, data []byte) DataURI {
	return DataURI{MIME: mime, Payload: base64.StdEncoding.EncodeToString(data)}
}

// Decode returns the decoded payload bytes.
func (u DataURI) Decode() ([]byte, error) {
	return DecodeBase64(u.Payload)
}

// String renders the data URI.
func (u DataURI) String() string {
	return scheme + u.MIME + base64Marker + "," + u.Payload
}

// truncate keeps error messages readable when a header is an entire document.
func truncate(s string) string {
	const max = 48
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

// Package metadata decodes token-URIs returned by the token contract into
// TokenMetadata records and encodes them back.
//
// A token-URI has the shape
//
//	data:application/json;base64,<base64 of {"image": <data uri>, "animation_url": <data uri>, ...}>
//
// The two asset fields are validated as data URIs. Every other top-level field
// is carried as raw JSON and never interpreted.
package metadata

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"unicode/utf8"

	"conway-token-lab/internal/datauri"
)

// Field names of the required asset entries.
const (
	FieldImage        = "image"
	FieldAnimationURL = "animation_url"
)

// MIMEType is the content type of a token-URI document.
const MIMEType = "application/json"

var (
	// ErrInvalidMetadataJSON is returned when the decoded payload is not a JSON object.
	ErrInvalidMetadataJSON = errors.New("invalid metadata json")

	// ErrMissingRequiredField is returned when image or animation_url is absent,
	// not a string, or not a data URI.
	ErrMissingRequiredField = errors.New("missing required field")
)

// TokenMetadata is the decoded metadata document of one token.
type TokenMetadata struct {
	// Image is the data URI of the static artwork (SVG).
	Image string
	// AnimationURL is the data URI of the animated document (HTML).
	AnimationURL string
	// Extra holds every other top-level field exactly as received.
	Extra map[string]json.RawMessage
	// Raw is the JSON document the record was parsed from. Nil for records
	// built in code.
	Raw []byte
}

// Decode parses a token-URI into TokenMetadata.
func Decode(tokenURI string) (*TokenMetadata, error) {
	uri, err := datauri.Parse(tokenURI)
	if err != nil {
		return nil, fmt.Errorf("token uri: %w", err)
	}

	payload, err := uri.Decode()
	if err != nil {
		return nil, fmt.Errorf("token uri: %w", err)
	}

	return Parse(payload)
}

// Parse validates a metadata JSON document and returns its record.
func Parse(raw []byte) (*TokenMetadata, error) {
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%w: payload is not utf-8 text", ErrInvalidMetadataJSON)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMetadataJSON, err)
	}
	if fields == nil {
		// "null" unmarshals into a nil map without error.
		return nil, fmt.Errorf("%w: document is not an object", ErrInvalidMetadataJSON)
	}

	image, err := requiredDataURI(fields, FieldImage)
	if err != nil {
		return nil, err
	}
	animation, err := requiredDataURI(fields, FieldAnimationURL)
	if err != nil {
		return nil, err
	}

	delete(fields, FieldImage)
	delete(fields, FieldAnimationURL)

	return &TokenMetadata{
		Image:        image,
		AnimationURL: animation,
		Extra:        fields,
		Raw:          bytes.Clone(raw),
	}, nil
}

// requiredDataURI extracts a string field and checks that it is a data URI.
func requiredDataURI(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingRequiredField, name)
	}

	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", fmt.Errorf("%w: %s is not a string", ErrMissingRequiredField, name)
	}

	if _, err := datauri.Parse(value); err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrMissingRequiredField, name, err)
	}

	return value, nil
}

// Field returns the raw JSON of an extra field.
func (m *TokenMetadata) Field(name string) (json.RawMessage, bool) {
	raw, ok := m.Extra[name]
	return raw, ok
}

// FieldNames returns all top-level field names in sorted order.
func (m *TokenMetadata) FieldNames() []string {
	names := make([]string, 0, len(m.Extra)+2)
	names = append(names, FieldImage, FieldAnimationURL)
	for name := range m.Extra {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON renders the record as a single JSON object.
func (m *TokenMetadata) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(m.Extra)+2)
	for name, raw := range m.Extra {
		if name == FieldImage || name == FieldAnimationURL {
			continue
		}
		fields[name] = raw
	}

	image, err := json.Marshal(m.Image)
	if err != nil {
		return nil, err
	}
	animation, err := json.Marshal(m.AnimationURL)
	if err != nil {
		return nil, err
	}
	fields[FieldImage] = image
	fields[FieldAnimationURL] = animation

	return json.Marshal(fields)
}

// Encode renders meta as a token-URI. It is the inverse of Decode.
func Encode(meta *TokenMetadata) (string, error) {
	if meta == nil {
		return "", fmt.Errorf("%w: nil metadata", ErrMissingRequiredField)
	}
	required := []struct{ name, value string }{
		{FieldImage, meta.Image},
		{FieldAnimationURL, meta.AnimationURL},
	}
	for _, f := range required {
		if _, err := datauri.Parse(f.value); err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrMissingRequiredField, f.name, err)
		}
	}

	doc, err := meta.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return datauri.Encode(MIMEType, doc), nil
}

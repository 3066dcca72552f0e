// Package assets extracts the embedded image and animation documents from
// token metadata.
package assets

import (
	"fmt"

	"conway-token-lab/internal/datauri"
	"conway-token-lab/internal/metadata"
)

// DecodedAsset is one embedded asset after base64 decoding.
type DecodedAsset struct {
	Field string // metadata field the asset came from
	MIME  string // declared MIME type from the data URI header
	Data  []byte
}

// Text returns the asset bytes as a string. SVG and HTML assets are text.
func (a *DecodedAsset) Text() string {
	return string(a.Data)
}

// FieldError tags an extraction failure with the metadata field that caused it.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// ExtractImage decodes the static image.
func ExtractImage(meta *metadata.TokenMetadata) (*DecodedAsset, error) {
	if meta == nil {
		return nil, &FieldError{Field: metadata.FieldImage, Err: metadata.ErrMissingRequiredField}
	}
	return extract(metadata.FieldImage, meta.Image)
}

// ExtractAnimation decodes the animated document.
func ExtractAnimation(meta *metadata.TokenMetadata) (*DecodedAsset, error) {
	if meta == nil {
		return nil, &FieldError{Field: metadata.FieldAnimationURL, Err: metadata.ErrMissingRequiredField}
	}
	return extract(metadata.FieldAnimationURL, meta.AnimationURL)
}

// ExtractAll decodes both assets. The image is decoded first and its error
// wins if both are broken.
func ExtractAll(meta *metadata.TokenMetadata) (image, animation *DecodedAsset, err error) {
	image, err = ExtractImage(meta)
	if err != nil {
		return nil, nil, err
	}
	animation, err = ExtractAnimation(meta)
	if err != nil {
		return nil, nil, err
	}
	return image, animation, nil
}

func extract(field, value string) (*DecodedAsset, error) {
	uri, err := datauri.Parse(value)
	if err != nil {
		return nil, &FieldError{Field: field, Err: err}
	}
	data, err := uri.Decode()
	if err != nil {
		return nil, &FieldError{Field: field, Err: err}
	}
	return &DecodedAsset{Field: field, MIME: uri.MIME, Data: data}, nil
}

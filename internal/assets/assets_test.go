package assets

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conway-token-lab/internal/datauri"
	"conway-token-lab/internal/metadata"
)

const (
	svgDoc  = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 8 8"><rect x="1" y="0" width="1" height="1"/></svg>`
	htmlDoc = `<!DOCTYPE html><html><body><script>step()</script></body></html>`
)

func sampleMetadata() *metadata.TokenMetadata {
	return &metadata.TokenMetadata{
		Image:        datauri.Encode("image/svg+xml", []byte(svgDoc)),
		AnimationURL: datauri.Encode("text/html", []byte(htmlDoc)),
	}
}

func TestExtractAll(t *testing.T) {
	image, animation, err := ExtractAll(sampleMetadata())
	require.NoError(t, err)

	assert.Equal(t, metadata.FieldImage, image.Field)
	assert.Equal(t, "image/svg+xml", image.MIME)
	assert.Equal(t, svgDoc, image.Text())

	assert.Equal(t, metadata.FieldAnimationURL, animation.Field)
	assert.Equal(t, "text/html", animation.MIME)
	assert.Equal(t, htmlDoc, animation.Text())
}

func TestExtract_FromDecodedTokenURI(t *testing.T) {
	uri, err := metadata.Encode(sampleMetadata())
	require.NoError(t, err)

	meta, err := metadata.Decode(uri)
	require.NoError(t, err)

	image, err := ExtractImage(meta)
	require.NoError(t, err)
	assert.Equal(t, svgDoc, image.Text())
}

func TestExtract_FixtureHasUndecodablePayloads(t *testing.T) {
	// The published fixture carries placeholder payloads that are not base64.
	meta := &metadata.TokenMetadata{
		Image:        "data:image/svg;base64,XXX",
		AnimationURL: "data:text/html;base64,YYY",
	}

	_, err := ExtractImage(meta)
	require.ErrorIs(t, err, datauri.ErrInvalidBase64)

	var fieldErr *FieldError
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, metadata.FieldImage, fieldErr.Field)

	_, err = ExtractAnimation(meta)
	require.ErrorIs(t, err, datauri.ErrInvalidBase64)
	require.True(t, errors.As(err, &fieldErr))
	assert.Equal(t, metadata.FieldAnimationURL, fieldErr.Field)
}

func TestExtract_TagsFailingField(t *testing.T) {
	meta := sampleMetadata()
	meta.AnimationURL = "text/html;base64,PGh0bWw+"

	image, animation, err := ExtractAll(meta)
	assert.Nil(t, image)
	assert.Nil(t, animation)
	require.ErrorIs(t, err, datauri.ErrMalformedDataURI)

	var fieldErr *FieldError
	require.ErrorAs(t, err, &fieldErr)
	assert.Equal(t, metadata.FieldAnimationURL, fieldErr.Field)
	assert.Contains(t, err.Error(), "extract animation_url")
}

func TestExtract_NilMetadata(t *testing.T) {
	_, err := ExtractImage(nil)
	assert.ErrorIs(t, err, metadata.ErrMissingRequiredField)

	_, err = ExtractAnimation(nil)
	assert.ErrorIs(t, err, metadata.ErrMissingRequiredField)
}

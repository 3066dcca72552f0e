package metadata

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conway-token-lab/internal/datauri"
)

const fixtureTokenURI = "data:application/json;base64,eyJpbWFnZSI6ImRhdGE6aW1hZ2Uvc3ZnO2Jhc2U2NCxYWFgiLCJhbmltYXRpb25fdXJsIjoiZGF0YTp0ZXh0L2h0bWw7YmFzZTY0LFlZWSJ9"

func tokenURI(doc string) string {
	return "data:application/json;base64," + base64.StdEncoding.EncodeToString([]byte(doc))
}

func TestDecode_Fixture(t *testing.T) {
	meta, err := Decode(fixtureTokenURI)
	require.NoError(t, err)

	assert.Equal(t, "data:image/svg;base64,XXX", meta.Image)
	assert.Equal(t, "data:text/html;base64,YYY", meta.AnimationURL)
	assert.Empty(t, meta.Extra)
	assert.JSONEq(t, `{"image":"data:image/svg;base64,XXX","animation_url":"data:text/html;base64,YYY"}`, string(meta.Raw))
}

func TestDecode_PreservesExtraFields(t *testing.T) {
	doc := `{
		"name": "Conway #7",
		"description": "glider",
		"attributes": [{"trait_type": "generation", "value": 12}, {"trait_type": "alive", "value": 0.5e1}],
		"image": "data:image/svg+xml;base64,PHN2Zy8+",
		"animation_url": "data:text/html;base64,PGh0bWw+PC9odG1sPg=="
	}`

	meta, err := Decode(tokenURI(doc))
	require.NoError(t, err)

	assert.Equal(t, []string{"animation_url", "attributes", "description", "image", "name"}, meta.FieldNames())

	attrs, ok := meta.Field("attributes")
	require.True(t, ok)
	// Numbers are kept as written, not normalised.
	assert.Contains(t, string(attrs), "0.5e1")

	name, ok := meta.Field("name")
	require.True(t, ok)
	assert.Equal(t, `"Conway #7"`, string(name))

	_, ok = meta.Field("image")
	assert.False(t, ok, "required fields are not duplicated into Extra")
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		wantErr error
	}{
		{
			name:    "missing animation_url",
			uri:     tokenURI(`{"image":"data:image/svg;base64,XXX"}`),
			wantErr: ErrMissingRequiredField,
		},
		{
			name:    "missing image",
			uri:     tokenURI(`{"animation_url":"data:text/html;base64,YYY"}`),
			wantErr: ErrMissingRequiredField,
		},
		{
			name:    "image is not a string",
			uri:     tokenURI(`{"image":42,"animation_url":"data:text/html;base64,YYY"}`),
			wantErr: ErrMissingRequiredField,
		},
		{
			name:    "animation_url is not a data uri",
			uri:     tokenURI(`{"image":"data:image/svg;base64,XXX","animation_url":"ipfs://Qm123"}`),
			wantErr: ErrMissingRequiredField,
		},
		{
			name:    "image is null",
			uri:     tokenURI(`{"image":null,"animation_url":"data:text/html;base64,YYY"}`),
			wantErr: ErrMissingRequiredField,
		},
		{
			name:    "payload is not json",
			uri:     tokenURI(`not json`),
			wantErr: ErrInvalidMetadataJSON,
		},
		{
			name:    "payload is a json array",
			uri:     tokenURI(`["image"]`),
			wantErr: ErrInvalidMetadataJSON,
		},
		{
			name:    "payload is json null",
			uri:     tokenURI(`null`),
			wantErr: ErrInvalidMetadataJSON,
		},
		{
			name:    "payload is not utf-8",
			uri:     "data:application/json;base64," + base64.StdEncoding.EncodeToString([]byte{0xff, 0xfe, '{', '}'}),
			wantErr: ErrInvalidMetadataJSON,
		},
		{
			name:    "payload is not base64",
			uri:     "data:application/json;base64,eyJpbWFnZSI6!!!",
			wantErr: datauri.ErrInvalidBase64,
		},
		{
			name:    "token uri without comma",
			uri:     "data:application/json;base64",
			wantErr: datauri.ErrMalformedDataURI,
		},
		{
			name:    "token uri with http scheme",
			uri:     "https://example.com/0.json",
			wantErr: datauri.ErrMalformedDataURI,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, err := Decode(tt.uri)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, meta, "no partial data on failure")
		})
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	meta := &TokenMetadata{
		Image:        datauri.Encode("image/svg+xml", []byte("<svg/>")),
		AnimationURL: datauri.Encode("text/html", []byte("<html></html>")),
		Extra: map[string]json.RawMessage{
			"name":       json.RawMessage(`"Conway #0"`),
			"attributes": json.RawMessage(`[{"trait_type":"line_length","value":8}]`),
		},
	}

	uri, err := Encode(meta)
	require.NoError(t, err)

	parsed, err := datauri.Parse(uri)
	require.NoError(t, err)
	assert.Equal(t, MIMEType, parsed.MIME)

	decoded, err := Decode(uri)
	require.NoError(t, err)
	assert.Equal(t, meta.Image, decoded.Image)
	assert.Equal(t, meta.AnimationURL, decoded.AnimationURL)
	require.Len(t, decoded.Extra, 2)
	assert.JSONEq(t, string(meta.Extra["attributes"]), string(decoded.Extra["attributes"]))
	assert.JSONEq(t, string(meta.Extra["name"]), string(decoded.Extra["name"]))
}

func TestEncode_FixtureRoundTrip(t *testing.T) {
	meta, err := Decode(fixtureTokenURI)
	require.NoError(t, err)

	uri, err := Encode(meta)
	require.NoError(t, err)

	again, err := Decode(uri)
	require.NoError(t, err)
	assert.Equal(t, meta.Image, again.Image)
	assert.Equal(t, meta.AnimationURL, again.AnimationURL)
}

func TestEncode_RejectsInvalidAssets(t *testing.T) {
	_, err := Encode(&TokenMetadata{Image: "data:image/svg;base64,XXX", AnimationURL: "not a uri"})
	assert.ErrorIs(t, err, ErrMissingRequiredField)

	_, err = Encode(nil)
	assert.ErrorIs(t, err, ErrMissingRequiredField)
}

func TestMarshalJSON_RequiredFieldsWin(t *testing.T) {
	meta := &TokenMetadata{
		Image:        "data:image/svg;base64,XXX",
		AnimationURL: "data:text/html;base64,YYY",
		Extra:        map[string]json.RawMessage{"image": json.RawMessage(`"shadowed"`)},
	}

	out, err := json.Marshal(meta)
	require.NoError(t, err)
	assert.JSONEq(t, `{"image":"data:image/svg;base64,XXX","animation_url":"data:text/html;base64,YYY"}`, string(out))
}

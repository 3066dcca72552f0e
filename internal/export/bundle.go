package export

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"

	"conway-token-lab/internal/assets"
	"conway-token-lab/internal/metadata"
)

// BundleVersion is the current bundle layout.
const BundleVersion uint = 1

// Asset is a decoded asset as stored in a bundle.
type Asset struct {
	_     struct{} `cbor:",toarray"`
	Field string
	MIME  string
	Data  []byte
}

// Bundle is a self-contained snapshot of one token.
type Bundle struct {
	_         struct{} `cbor:",toarray"`
	Version   uint
	Contract  string
	TokenID   uint64
	TokenURI  string
	Metadata  []byte // JSON document
	Image     Asset
	Animation Asset
}

// NewBundle assembles a bundle from a decoded token.
func NewBundle(contract string, tokenID uint64, tokenURI string, meta *metadata.TokenMetadata, image, animation *assets.DecodedAsset) (*Bundle, error) {
	if meta == nil || image == nil || animation == nil {
		return nil, ErrNothingToExport
	}

	doc, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	return &Bundle{
		Version:   BundleVersion,
		Contract:  contract,
		TokenID:   tokenID,
		TokenURI:  tokenURI,
		Metadata:  doc,
		Image:     Asset{Field: image.Field, MIME: image.MIME, Data: image.Data},
		Animation: Asset{Field: animation.Field, MIME: animation.MIME, Data: animation.Data},
	}, nil
}

// Decoded returns the bundle's metadata and assets. The metadata is
// re-validated, so a tampered bundle fails like a bad token-URI.
func (b *Bundle) Decoded() (*metadata.TokenMetadata, *assets.DecodedAsset, *assets.DecodedAsset, error) {
	meta, err := metadata.Parse(b.Metadata)
	if err != nil {
		return nil, nil, nil, err
	}
	image := &assets.DecodedAsset{Field: b.Image.Field, MIME: b.Image.MIME, Data: b.Image.Data}
	animation := &assets.DecodedAsset{Field: b.Animation.Field, MIME: b.Animation.MIME, Data: b.Animation.Data}
	return meta, image, animation, nil
}

var encMode = mustEncMode()

// mustEncMode uses Core Deterministic Encoding so equal bundles encode to
// equal bytes.
func mustEncMode() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cbor enc mode: %v", err))
	}
	return em
}

// MarshalBundle encodes b as CBOR.
func MarshalBundle(b *Bundle) ([]byte, error) {
	if b == nil {
		return nil, ErrNothingToExport
	}
	return encMode.Marshal(b)
}

// UnmarshalBundle decodes a CBOR bundle and checks its version.
func UnmarshalBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode bundle: %w", err)
	}
	if b.Version != BundleVersion {
		return nil, fmt.Errorf("decode bundle: unsupported version %d", b.Version)
	}
	return &b, nil
}

// WriteBundle writes b to path.
func WriteBundle(path string, b *Bundle) error {
	data, err := MarshalBundle(b)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write bundle: %w", err)
	}
	return nil
}

// ReadBundle reads a bundle written by WriteBundle.
func ReadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return UnmarshalBundle(data)
}

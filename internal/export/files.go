// Package export writes decoded tokens to disk, either as the three plain
// files (data.json, image.svg, animated.html) or as a single CBOR bundle.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"conway-token-lab/internal/assets"
	"conway-token-lab/internal/metadata"
)

// File names written by WriteFiles.
const (
	MetadataFile  = "data.json"
	ImageFile     = "image.svg"
	AnimationFile = "animated.html"
)

// ErrNothingToExport is returned when metadata or an asset is nil.
var ErrNothingToExport = errors.New("nothing to export")

// WriteFiles writes the indented metadata document and both decoded assets
// into dir, creating it if needed. It returns the written paths.
func WriteFiles(dir string, meta *metadata.TokenMetadata, image, animation *assets.DecodedAsset) ([]string, error) {
	if meta == nil || image == nil || animation == nil {
		return nil, ErrNothingToExport
	}

	doc, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}

	files := []struct {
		name string
		data []byte
	}{
		{MetadataFile, append(doc, '\n')},
		{ImageFile, image.Data},
		{AnimationFile, animation.Data},
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, f.data, 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", f.name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

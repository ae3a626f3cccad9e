package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/tendant/scoped-upload/pkg/scopedupload"
)

// ManifestEntry is one element of a manifest's JSON array.
type ManifestEntry struct {
	FileName string `json:"fileName"`
	Base64   string `json:"base64"`
}

// Manifest reads a JSON array of ManifestEntry from Path. Payloads stay
// base64 encoded; the uploader decodes them. Entries missing a name or
// payload are passed through so the uploader can skip and report them.
type Manifest struct {
	Path string
}

func (m Manifest) Items(ctx context.Context) ([]*scopedupload.UploadItem, error) {
	f, err := os.Open(m.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()
	return ReadManifest(f)
}

// ReadManifest decodes a manifest from r.
func ReadManifest(r io.Reader) ([]*scopedupload.UploadItem, error) {
	var entries []ManifestEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	items := make([]*scopedupload.UploadItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, &scopedupload.UploadItem{FileName: e.FileName, Base64: e.Base64})
	}
	return items, nil
}

package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tendant/scoped-upload/pkg/scopedupload"
)

// Dir reads every regular file under Root. Item names are relative to Root
// and use forward slashes.
type Dir struct {
	Root string

	// Extensions limits the walk to these extensions, compared
	// case-insensitively with the leading dot. Empty means all files.
	Extensions []string

	// IncludeHidden includes files and directories whose name starts with a dot.
	IncludeHidden bool
}

func (d Dir) Items(ctx context.Context) ([]*scopedupload.UploadItem, error) {
	info, err := os.Stat(d.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", d.Root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", d.Root)
	}

	var items []*scopedupload.UploadItem
	err = filepath.WalkDir(d.Root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if path != d.Root && !d.IncludeHidden && strings.HasPrefix(entry.Name(), ".") {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() || !d.matches(entry.Name()) {
			return nil
		}

		rel, err := filepath.Rel(d.Root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		items = append(items, &scopedupload.UploadItem{
			FileName: filepath.ToSlash(rel),
			Buffer:   data,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool { return items[i].FileName < items[j].FileName })
	return items, nil
}

func (d Dir) matches(name string) bool {
	if len(d.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(name)
	for _, want := range d.Extensions {
		if strings.EqualFold(ext, want) {
			return true
		}
	}
	return false
}

// Package scan discovers source documents on disk.
package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// Extension is matched case-sensitively; "x.JSON" is not a source document.
const Extension = ".json"

var errStop = errors.New("scan stopped")

// Scan walks root recursively and yields every regular file whose name ends
// in Extension. Each call performs a fresh walk. A missing root yields
// nothing; any other walk error is yielded once and ends the sequence.
func Scan(root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
			return
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(d.Name(), Extension) {
				return nil
			}
			if !yield(path, nil) {
				return errStop
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStop) {
			yield("", fmt.Errorf("scan %s: %w", root, err))
		}
	}
}

// Collect drains Scan into a slice.
func Collect(root string) ([]string, error) {
	var paths []string
	for path, err := range Scan(root) {
		if err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

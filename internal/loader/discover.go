package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/leapstack-labs/structon/pkg/core"
)

// unitExtensions lists the file extensions scanned by Discover.
var unitExtensions = map[string]bool{
	".json": true,
	".yaml": true,
	".yml":  true,
}

// Discovered pairs a parsed unit with the file it came from.
type Discovered struct {
	Path string
	Unit *core.Unit
}

// Discover walks a directory for unit documents and parses each one.
// Files are visited in lexical order so repeated scans of the same
// tree yield the same result. Subdirectories are included. A duplicate
// identifier across files is an error.
func Discover(dir string) ([]*Discovered, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("discover units: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("discover units: %s is not a directory", dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if unitExtensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("discover units: %w", err)
	}
	sort.Strings(paths)

	seen := make(map[string]string, len(paths))
	out := make([]*Discovered, 0, len(paths))
	for _, path := range paths {
		u, err := ParseFile(path)
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[u.ID]; ok {
			return nil, fmt.Errorf("discover units: identifier %q declared in both %s and %s",
				u.ID, prev, filepath.Base(path))
		}
		seen[u.ID] = filepath.Base(path)
		out = append(out, &Discovered{Path: path, Unit: u})
	}
	return out, nil
}

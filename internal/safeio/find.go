package safeio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	ErrNoMatch        = errors.New("no matching file found")
	ErrAmbiguousMatch = errors.New("more than one matching file found")
)

var skipDirectories = map[string]bool{
	".git":         true,
	".vs":          true,
	".idea":        true,
	"node_modules": true,
}

// ResolveSingle returns path itself when it names a file. When it names a
// directory, the tree below it must hold exactly one file with the given
// extension.
func ResolveSingle(ctx context.Context, path, extension string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return path, nil
	}

	var found []string
	err = filepath.WalkDir(path, func(current string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if entry.IsDir() {
			if current != path && skipDirectories[entry.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), extension) {
			found = append(found, current)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	switch len(found) {
	case 0:
		return "", fmt.Errorf("%w: no *%s under %s", ErrNoMatch, extension, path)
	case 1:
		return found[0], nil
	default:
		sort.Strings(found)
		return "", fmt.Errorf("%w: %s", ErrAmbiguousMatch, strings.Join(found, ", "))
	}
}

package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// defaultExcludeDirs are never descended into, regardless of library settings.
var defaultExcludeDirs = map[string]bool{
	".git":         true,
	"@eaDir":       true, // Synology thumbnail cache
	".thumbnails":  true,
	"$RECYCLE.BIN": true,
	"System Volume Information": true,
}

// walk discovers every supported media file under opts.RootDir and
// streams it on the returned channel. The channel is closed when the
// walk finishes; a walk-level error (e.g. the root doesn't exist) is
// returned directly rather than as a WalkResult.
func walk(ctx context.Context, opts ScanOptions) (<-chan WalkResult, error) {
	absRoot, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("scanner: resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("scanner: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scanner: root is not a directory: %s", absRoot)
	}

	results := make(chan WalkResult, 64)
	go func() {
		defer close(results)
		err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if err != nil {
				return nil // unreadable entry, skip rather than abort the whole walk
			}

			if d.IsDir() {
				if path == absRoot {
					return nil
				}
				if defaultExcludeDirs[d.Name()] {
					return filepath.SkipDir
				}
				if !opts.Recursive {
					return filepath.SkipDir
				}
				return nil
			}

			if d.Type()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
				return nil
			}

			mediaType := DetectMediaType(filepath.Ext(path))
			if mediaType == "" {
				return nil
			}

			relPath, err := filepath.Rel(absRoot, path)
			if err != nil {
				return nil
			}

			fileInfo, err := d.Info()
			if err != nil {
				return nil
			}

			select {
			case results <- WalkResult{File: &FileInfo{
				Path:      relPath,
				AbsPath:   path,
				Size:      fileInfo.Size(),
				ModTime:   fileInfo.ModTime(),
				MediaType: mediaType,
			}}:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
		if err != nil && err != context.Canceled {
			select {
			case results <- WalkResult{Error: err}:
			case <-ctx.Done():
			}
		}
	}()

	return results, nil
}

package scanner

import (
	"context"
	"errors"

	"github.com/mediaengine/engine/internal/store"
)

// classifier turns one library's discovered files into Deltas against
// the Store's existing rows, per the classification rule:
//
//	P not in Store, F not in Store  -> NEW
//	P in Store, stored.F == F       -> UNCHANGED
//	P in Store, stored.F != F       -> CHANGED
//	P not in Store, F in Store      -> RENAMED (exactly one match)
//	stored path absent from scan    -> DELETED
type classifier struct {
	st        *store.Store
	libraryID string
}

func (c *classifier) classifyFile(ctx context.Context, f *FileInfo, discoveredPaths map[string]bool) (Delta, error) {
	fp, err := Fingerprint(f.AbsPath)
	if err != nil {
		return Delta{}, err
	}

	existing, err := c.st.FindItemByPath(ctx, c.libraryID, f.Path)
	switch {
	case err == nil:
		if existing.Fingerprint == fp {
			return Delta{Kind: ChangeUnchanged, File: f, Fingerprint: fp, ExistingID: existing.ID}, nil
		}
		return Delta{Kind: ChangeChanged, File: f, Fingerprint: fp, ExistingID: existing.ID}, nil

	case errors.Is(err, store.ErrNotFound):
		candidates, findErr := c.st.FindItemsByFingerprint(ctx, c.libraryID, fp)
		if findErr != nil {
			return Delta{}, findErr
		}
		// Only treat as a rename if exactly one candidate exists and its
		// old path didn't also turn up in this scan (which would mean
		// the file was copied, not moved).
		if len(candidates) == 1 && !discoveredPaths[candidates[0].Path] {
			return Delta{Kind: ChangeRenamed, File: f, Fingerprint: fp, ExistingID: candidates[0].ID}, nil
		}
		return Delta{Kind: ChangeNew, File: f, Fingerprint: fp}, nil

	default:
		return Delta{}, err
	}
}

// findDeleted returns the DELETED deltas: items the Store has on
// record for this library whose path didn't appear in the scan.
func (c *classifier) findDeleted(ctx context.Context, discoveredPaths map[string]bool) ([]Delta, error) {
	var deleted []Delta
	var cursor string
	for {
		items, next, err := c.st.ListItems(ctx, store.ItemFilter{LibraryID: c.libraryID}, false, store.Pagination{Cursor: cursor, Limit: 500})
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if !discoveredPaths[it.Path] {
				deleted = append(deleted, Delta{Kind: ChangeDeleted, ExistingID: it.ID})
			}
		}
		if next == "" {
			break
		}
		cursor = next
	}
	return deleted, nil
}

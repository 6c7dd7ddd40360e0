package scanner

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mediaengine/engine/internal/eventbus"
	"github.com/mediaengine/engine/internal/store"
)

// Scanner reconciles one library's files on disk with the Store.
type Scanner struct {
	st     *store.Store
	prober MetadataProber
	bus    *eventbus.Bus
	log    *slog.Logger
}

// New builds a Scanner. prober may be nil, in which case container/EXIF
// metadata extraction is skipped (items still get queued for indexing).
func New(st *store.Store, prober MetadataProber, bus *eventbus.Bus, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{st: st, prober: prober, bus: bus, log: log}
}

// ScanLibrary walks lib.Path, classifies every discovered file against
// the Store, applies the resulting deltas, and publishes progress
// events. Running it twice back-to-back against an unchanged
// filesystem produces zero deltas.
func (s *Scanner) ScanLibrary(ctx context.Context, lib store.Library) (Summary, error) {
	results, err := walk(ctx, ScanOptions{RootDir: lib.Path, Recursive: lib.Recursive})
	if err != nil {
		return Summary{}, err
	}

	var discovered []*FileInfo
	for r := range results {
		if r.Error != nil {
			s.log.Warn("scan walk error", slog.String("library_id", lib.ID), slog.String("error", r.Error.Error()))
			continue
		}
		discovered = append(discovered, r.File)
	}

	discoveredPaths := make(map[string]bool, len(discovered))
	for _, f := range discovered {
		discoveredPaths[f.Path] = true
	}

	c := &classifier{st: s.st, libraryID: lib.ID}

	var summary Summary
	summary.FilesFound = len(discovered)

	var newOrChanged []Delta
	for _, f := range discovered {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		delta, err := c.classifyFile(ctx, f, discoveredPaths)
		if err != nil {
			s.log.Warn("classify error", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		if err := s.applyDelta(ctx, lib.ID, delta); err != nil {
			s.log.Warn("apply delta error", slog.String("path", f.Path), slog.String("error", err.Error()))
			continue
		}
		switch delta.Kind {
		case ChangeNew:
			summary.FilesNew++
			newOrChanged = append(newOrChanged, delta)
		case ChangeChanged:
			summary.FilesChanged++
			newOrChanged = append(newOrChanged, delta)
		}

		s.publish(eventbus.ScanProgressPayload{
			LibraryID:    lib.ID,
			FilesFound:   summary.FilesFound,
			FilesNew:     summary.FilesNew,
			FilesChanged: summary.FilesChanged,
			FilesDeleted: summary.FilesDeleted,
		})
	}

	deletedDeltas, err := c.findDeleted(ctx, discoveredPaths)
	if err != nil {
		return summary, err
	}
	for _, d := range deletedDeltas {
		if err := s.applyDelta(ctx, lib.ID, d); err != nil {
			s.log.Warn("apply delete error", slog.String("item_id", d.ExistingID), slog.String("error", err.Error()))
			continue
		}
		summary.FilesDeleted++
	}

	s.probeMetadata(ctx, lib.ID, newOrChanged)
	s.pairLivePhotos(ctx, lib.ID, discovered)

	s.publish(eventbus.ScanProgressPayload{
		LibraryID:    lib.ID,
		FilesFound:   summary.FilesFound,
		FilesNew:     summary.FilesNew,
		FilesChanged: summary.FilesChanged,
		FilesDeleted: summary.FilesDeleted,
		Done:         true,
	})

	return summary, nil
}

func (s *Scanner) applyDelta(ctx context.Context, libraryID string, d Delta) error {
	switch d.Kind {
	case ChangeUnchanged:
		return nil

	case ChangeNew:
		return s.st.UpsertItem(ctx, &store.Item{
			ID:          uuid.NewString(),
			LibraryID:   libraryID,
			Path:        d.File.Path,
			Filename:    filepath.Base(d.File.Path),
			Size:        d.File.Size,
			MTime:       d.File.ModTime,
			Fingerprint: d.Fingerprint,
			MediaType:   store.MediaType(d.File.MediaType),
			Status:      store.StatusQueued,
			CreatedAt:   time.Now().UTC(),
		})

	case ChangeChanged:
		if err := s.st.UpsertItem(ctx, &store.Item{
			ID:          d.ExistingID,
			LibraryID:   libraryID,
			Path:        d.File.Path,
			Filename:    filepath.Base(d.File.Path),
			Size:        d.File.Size,
			MTime:       d.File.ModTime,
			Fingerprint: d.Fingerprint,
			MediaType:   store.MediaType(d.File.MediaType),
			Status:      store.StatusQueued,
			CreatedAt:   time.Now().UTC(),
		}); err != nil {
			return err
		}
		return s.st.SetItemStatus(ctx, d.ExistingID, store.StatusQueued, "")

	case ChangeRenamed:
		return s.st.UpdateItemPath(ctx, d.ExistingID, d.File.Path, filepath.Base(d.File.Path))

	case ChangeDeleted:
		return s.st.DeleteItem(ctx, d.ExistingID)
	}
	return nil
}

func (s *Scanner) probeMetadata(ctx context.Context, libraryID string, deltas []Delta) {
	if s.prober == nil || !s.prober.Available(ctx) {
		return
	}
	for _, d := range deltas {
		it, err := s.st.FindItemByPath(ctx, libraryID, d.File.Path)
		if err != nil {
			continue
		}

		var fields store.ItemMetadataFields
		if it.MediaType == store.MediaVideo {
			fields, err = s.prober.ProbeVideo(ctx, d.File.AbsPath)
		} else {
			fields, err = s.prober.ProbePhoto(ctx, d.File.AbsPath)
		}
		if err != nil {
			s.log.Warn("metadata probe failed", slog.String("path", d.File.Path), slog.String("error", err.Error()))
			continue
		}
		if err := s.st.SetItemMetadataFields(ctx, it.ID, fields); err != nil {
			s.log.Warn("store metadata failed", slog.String("path", d.File.Path), slog.String("error", err.Error()))
		}
	}
}

func (s *Scanner) pairLivePhotos(ctx context.Context, libraryID string, files []*FileInfo) {
	for _, pair := range FindLivePairs(files) {
		still, err := s.st.FindItemByPath(ctx, libraryID, pair.Still.Path)
		if err != nil {
			continue
		}
		clip, err := s.st.FindItemByPath(ctx, libraryID, pair.Clip.Path)
		if err != nil {
			continue
		}
		if err := s.st.MarkLivePair(ctx, still.ID, clip.ID, uuid.NewString()); err != nil {
			s.log.Warn("mark live pair failed", slog.String("still", pair.Still.Path), slog.String("error", err.Error()))
		}
	}
}

func (s *Scanner) publish(payload eventbus.ScanProgressPayload) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: eventbus.EventScanProgress, Payload: payload})
}

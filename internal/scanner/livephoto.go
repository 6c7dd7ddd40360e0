package scanner

import (
	"path/filepath"
	"strings"
	"time"
)

// livePhotoMaxGap is the largest mtime difference between a still and
// its paired clip that still counts as one live-photo pair.
const livePhotoMaxGap = 5 * time.Second

// LivePair is a still/clip pair sharing a filename stem within one directory.
type LivePair struct {
	Still *FileInfo
	Clip  *FileInfo
}

// stillExtensions are the photo extensions that can anchor a live pair.
var stillExtensions = map[string]bool{".heic": true, ".heif": true, ".jpg": true, ".jpeg": true}

// FindLivePairs groups files by directory and filename stem, pairing
// a still with a ≤5-second .mov sibling of the same stem. Non-paired
// files are left alone; a stem with more than one candidate still or
// clip is skipped as ambiguous.
func FindLivePairs(files []*FileInfo) []LivePair {
	type bucket struct {
		stills []*FileInfo
		clips  []*FileInfo
	}
	byStem := make(map[string]*bucket)

	for _, f := range files {
		dir := filepath.Dir(f.Path)
		stem := strings.TrimSuffix(filepath.Base(f.Path), filepath.Ext(f.Path))
		key := dir + "/" + stem
		b, ok := byStem[key]
		if !ok {
			b = &bucket{}
			byStem[key] = b
		}
		ext := toLowerExt(filepath.Ext(f.Path))
		switch {
		case stillExtensions[ext]:
			b.stills = append(b.stills, f)
		case ext == ".mov":
			b.clips = append(b.clips, f)
		}
	}

	var pairs []LivePair
	for _, b := range byStem {
		if len(b.stills) != 1 || len(b.clips) != 1 {
			continue
		}
		still, clip := b.stills[0], b.clips[0]
		gap := still.ModTime.Sub(clip.ModTime)
		if gap < 0 {
			gap = -gap
		}
		if gap <= livePhotoMaxGap {
			pairs = append(pairs, LivePair{Still: still, Clip: clip})
		}
	}
	return pairs
}

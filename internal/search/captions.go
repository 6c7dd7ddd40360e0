package search

import (
	"context"
	"fmt"
	"strings"
)

// CaptionFormat selects the export syntax for ExportCaptions.
type CaptionFormat string

const (
	CaptionSRT CaptionFormat = "srt"
	CaptionVTT CaptionFormat = "vtt"
)

// ExportCaptions renders an item's transcript segments as SRT or VTT.
func (s *Searcher) ExportCaptions(ctx context.Context, itemID string, format CaptionFormat) (string, error) {
	segs, err := s.st.ListTranscriptSegments(ctx, itemID)
	if err != nil {
		return "", fmt.Errorf("list transcript segments: %w", err)
	}

	var b strings.Builder
	if format == CaptionVTT {
		b.WriteString("WEBVTT\n\n")
	}
	for i, seg := range segs {
		if format == CaptionSRT {
			fmt.Fprintf(&b, "%d\n", i+1)
		}
		fmt.Fprintf(&b, "%s --> %s\n", formatTimestamp(seg.StartMs, format), formatTimestamp(seg.EndMs, format))
		b.WriteString(seg.Text)
		b.WriteString("\n\n")
	}
	return b.String(), nil
}

// formatTimestamp renders milliseconds as HH:MM:SS,mmm (SRT) or
// HH:MM:SS.mmm (VTT).
func formatTimestamp(ms int, format CaptionFormat) string {
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	sec := ms / 1000
	ms -= sec * 1000

	sep := ","
	if format == CaptionVTT {
		sep = "."
	}
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, sec, sep, ms)
}

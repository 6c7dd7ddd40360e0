package pipeline

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	enginerrors "github.com/mediaengine/engine/internal/errors"
	"github.com/mediaengine/engine/internal/store"
)

// ExecAudioExtractor shells out to ffmpeg to decode an item's audio
// track to a canonical mono 16kHz WAV file, matching the scanner
// prober's pattern of keeping ffmpeg entirely behind a narrow
// interface rather than linking a codec library.
type ExecAudioExtractor struct {
	FFmpegPath string
}

func NewExecAudioExtractor() *ExecAudioExtractor {
	return &ExecAudioExtractor{FFmpegPath: "ffmpeg"}
}

func (e *ExecAudioExtractor) Available(ctx context.Context) bool {
	_, err := exec.LookPath(e.FFmpegPath)
	return err == nil
}

func (e *ExecAudioExtractor) ExtractAudio(ctx context.Context, sourcePath, outWavPath string) error {
	if err := os.MkdirAll(filepath.Dir(outWavPath), 0o755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}
	tmp := outWavPath + ".tmp"
	cmd := exec.CommandContext(ctx, e.FFmpegPath,
		"-y", "-i", sourcePath,
		"-vn", "-ac", "1", "-ar", "16000", "-f", "wav",
		tmp,
	)
	if err := cmd.Run(); err != nil {
		os.Remove(tmp)
		return enginerrors.Wrap(enginerrors.KindFFmpegError, "ffmpeg audio extraction failed", err)
	}
	if err := os.Rename(tmp, outWavPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename audio output: %w", err)
	}
	return nil
}

// ExecFrameSampler shells out to ffmpeg to sample video frames at a
// fixed interval, and to ffmpeg's image2 demuxer (via a single-frame
// extraction) for a photo's own still.
type ExecFrameSampler struct {
	FFmpegPath string
}

func NewExecFrameSampler() *ExecFrameSampler {
	return &ExecFrameSampler{FFmpegPath: "ffmpeg"}
}

func (e *ExecFrameSampler) Available(ctx context.Context) bool {
	_, err := exec.LookPath(e.FFmpegPath)
	return err == nil
}

func (e *ExecFrameSampler) SampleFrames(ctx context.Context, sourcePath string, mediaType store.MediaType, intervalSec float64, outDir string) ([]SampledFrame, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}

	if mediaType == store.MediaPhoto {
		out := filepath.Join(outDir, "frame_0.jpg")
		cmd := exec.CommandContext(ctx, e.FFmpegPath, "-y", "-i", sourcePath, "-frames:v", "1", "-q:v", "2", out)
		if err := cmd.Run(); err != nil {
			return nil, enginerrors.Wrap(enginerrors.KindFFmpegError, "photo still extraction failed", err)
		}
		return []SampledFrame{{Index: 0, TimestampMs: 0, ImagePath: out}}, nil
	}

	if intervalSec <= 0 {
		intervalSec = 2.0
	}
	pattern := filepath.Join(outDir, "frame_%05d.jpg")
	cmd := exec.CommandContext(ctx, e.FFmpegPath,
		"-y", "-i", sourcePath,
		"-vf", fmt.Sprintf("fps=1/%g", intervalSec),
		"-q:v", "2",
		pattern,
	)
	if err := cmd.Run(); err != nil {
		return nil, enginerrors.Wrap(enginerrors.KindFFmpegError, "frame sampling failed", err)
	}

	entries, err := filepath.Glob(filepath.Join(outDir, "frame_*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("glob sampled frames: %w", err)
	}
	frames := make([]SampledFrame, 0, len(entries))
	for i, path := range entries {
		frames = append(frames, SampledFrame{
			Index:       i,
			TimestampMs: int(float64(i) * intervalSec * 1000),
			ImagePath:   path,
		})
	}
	return frames, nil
}

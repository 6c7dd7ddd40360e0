package scanner

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"
	"time"

	enginerrors "github.com/mediaengine/engine/internal/errors"
	"github.com/mediaengine/engine/internal/store"
)

// MetadataProber extracts container/EXIF metadata for one media file.
// Kept as a narrow external-tool boundary, the same way ml keeps model
// families external: the engine never links an EXIF or ffmpeg library
// directly, only shells out to it.
type MetadataProber interface {
	ProbeVideo(ctx context.Context, path string) (store.ItemMetadataFields, error)
	ProbePhoto(ctx context.Context, path string) (store.ItemMetadataFields, error)
	Available(ctx context.Context) bool
}

// ExecProber shells out to ffprobe for video containers and exiftool
// for photo EXIF, matching spec's explicit treatment of probe tools as
// external dependencies rather than bundled libraries.
type ExecProber struct {
	FFProbePath  string
	ExifToolPath string
}

// NewExecProber returns a prober using "ffprobe" and "exiftool" from PATH.
func NewExecProber() *ExecProber {
	return &ExecProber{FFProbePath: "ffprobe", ExifToolPath: "exiftool"}
}

func (p *ExecProber) Available(ctx context.Context) bool {
	_, ffErr := exec.LookPath(p.FFProbePath)
	_, exifErr := exec.LookPath(p.ExifToolPath)
	return ffErr == nil && exifErr == nil
}

type ffprobeFormat struct {
	Duration string            `json:"duration"`
	Tags     map[string]string `json:"tags"`
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
}

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

// ProbeVideo shells out to ffprobe and maps its JSON output onto the
// Item's container metadata columns.
func (p *ExecProber) ProbeVideo(ctx context.Context, path string) (store.ItemMetadataFields, error) {
	cmd := exec.CommandContext(ctx, p.FFProbePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return store.ItemMetadataFields{}, enginerrors.Wrap(enginerrors.KindFFmpegError, "ffprobe failed", err)
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(out.Bytes(), &parsed); err != nil {
		return store.ItemMetadataFields{}, enginerrors.Wrap(enginerrors.KindFFmpegError, "ffprobe output unparseable", err)
	}

	fields := store.ItemMetadataFields{}
	if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
		fields.Duration = d
	}

	var codecs []string
	for _, s := range parsed.Streams {
		codecs = append(codecs, s.CodecName)
		if s.CodecType == "video" {
			fields.Width = s.Width
			fields.Height = s.Height
			fields.FPS = parseFrameRate(s.AvgFrameRate)
		}
	}
	fields.Codecs = strings.Join(codecs, ",")

	if tag, ok := parsed.Format.Tags["creation_time"]; ok {
		if t, err := time.Parse(time.RFC3339, tag); err == nil {
			fields.CreationTime = &t
		}
	}
	if make_, ok := parsed.Format.Tags["com.apple.quicktime.make"]; ok {
		fields.CameraMake = make_
	}
	if model, ok := parsed.Format.Tags["com.apple.quicktime.model"]; ok {
		fields.CameraModel = model
	}
	if loc, ok := parsed.Format.Tags["com.apple.quicktime.location.ISO6709"]; ok {
		fields.GPS = loc
	}

	return fields, nil
}

func parseFrameRate(s string) float64 {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return 0
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}

// exifToolOutput is the subset of exiftool's -json output consumed here.
type exifToolOutput struct {
	ImageWidth   int    `json:"ImageWidth"`
	ImageHeight  int    `json:"ImageHeight"`
	Make         string `json:"Make"`
	Model        string `json:"Model"`
	GPSPosition  string `json:"GPSPosition"`
	DateTimeOrig string `json:"DateTimeOriginal"`
}

// ProbePhoto shells out to exiftool and normalizes its
// "YYYY:MM:DD HH:MM:SS" timestamp form into time.Time.
func (p *ExecProber) ProbePhoto(ctx context.Context, path string) (store.ItemMetadataFields, error) {
	cmd := exec.CommandContext(ctx, p.ExifToolPath, "-json", "-n", path)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return store.ItemMetadataFields{}, enginerrors.Wrap(enginerrors.KindDependencyMissing, "exiftool failed", err)
	}

	var parsed []exifToolOutput
	if err := json.Unmarshal(out.Bytes(), &parsed); err != nil || len(parsed) == 0 {
		return store.ItemMetadataFields{}, enginerrors.Wrap(enginerrors.KindFFmpegError, "exiftool output unparseable", err)
	}
	exif := parsed[0]

	fields := store.ItemMetadataFields{
		Width:       exif.ImageWidth,
		Height:      exif.ImageHeight,
		CameraMake:  exif.Make,
		CameraModel: exif.Model,
		GPS:         exif.GPSPosition,
	}
	if exif.DateTimeOrig != "" {
		if t, err := time.Parse("2006:01:02 15:04:05", exif.DateTimeOrig); err == nil {
			fields.CreationTime = &t
		}
	}
	return fields, nil
}

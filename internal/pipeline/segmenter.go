package pipeline

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/mediaengine/engine/internal/ml"
)

// WavSegmenter reads a canonical mono 16-bit 16kHz WAV file (the
// output of AudioExtractor) and chops it into fixed-length segments
// for transcription. When vadEnabled is set, a segment whose RMS
// energy falls below silenceRMSThreshold is dropped, a simple energy
// gate standing in for full voice-activity detection.
type WavSegmenter struct{}

func NewWavSegmenter() *WavSegmenter { return &WavSegmenter{} }

const (
	sampleRateHz          = 16000
	bytesPerSample        = 2 // 16-bit mono
	silenceRMSThreshold   = 200.0
	minSegmentDurationSec = 0.5
	minSegmentBytes       = 1024
)

// Segment reads wavPath and returns one AudioSegment per
// chunkSeconds window, skipping any window shorter than 0.5s or
// smaller than 1 KiB (per spec: short/empty segments are not fatal,
// just skipped), and any window that looks silent when vadEnabled.
func (s *WavSegmenter) Segment(ctx context.Context, wavPath string, chunkSeconds int, vadEnabled bool) ([]ml.AudioSegment, error) {
	if chunkSeconds <= 0 {
		chunkSeconds = 30
	}
	pcm, err := readWavPCM(wavPath)
	if err != nil {
		return nil, err
	}

	bytesPerSec := sampleRateHz * bytesPerSample
	windowBytes := chunkSeconds * bytesPerSec

	var segments []ml.AudioSegment
	for offset := 0; offset < len(pcm); offset += windowBytes {
		end := offset + windowBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		chunk := pcm[offset:end]

		durationSec := float64(len(chunk)) / float64(bytesPerSec)
		if durationSec < minSegmentDurationSec || len(chunk) < minSegmentBytes {
			continue
		}
		if vadEnabled && rms(chunk) < silenceRMSThreshold {
			continue
		}

		startMs := int(float64(offset) / float64(bytesPerSec) * 1000)
		endMs := int(float64(end) / float64(bytesPerSec) * 1000)
		segments = append(segments, ml.AudioSegment{StartMs: startMs, EndMs: endMs, PCM: chunk})
	}
	return segments, nil
}

// readWavPCM parses a canonical PCM WAV file (RIFF/WAVE with a "data"
// chunk) and returns the raw sample bytes, skipping the header and any
// other chunk the encoder may have written before "data".
func readWavPCM(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	var riffHeader [12]byte
	if _, err := f.Read(riffHeader[:]); err != nil {
		return nil, fmt.Errorf("read riff header: %w", err)
	}
	if string(riffHeader[0:4]) != "RIFF" || string(riffHeader[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	for {
		var chunkHeader [8]byte
		if _, err := f.Read(chunkHeader[:]); err != nil {
			return nil, fmt.Errorf("read chunk header: %w", err)
		}
		chunkID := string(chunkHeader[0:4])
		chunkSize := binary.LittleEndian.Uint32(chunkHeader[4:8])

		if chunkID == "data" {
			buf := make([]byte, chunkSize)
			if _, err := f.Read(buf); err != nil {
				return nil, fmt.Errorf("read data chunk: %w", err)
			}
			return buf, nil
		}

		if _, err := f.Seek(int64(chunkSize), 1); err != nil {
			return nil, fmt.Errorf("skip chunk %q: %w", chunkID, err)
		}
	}
}

func rms(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}
	var sumSq float64
	n := len(pcm) / 2
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2]))
		sumSq += float64(sample) * float64(sample)
	}
	return math.Sqrt(sumSq / float64(n))
}

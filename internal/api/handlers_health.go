package api

import (
	"net/http"
	"os/exec"
	"runtime"
)

type healthResponse struct {
	Status          string   `json:"status"`
	Version         string   `json:"version"`
	EngineUUID      string   `json:"engine_uuid"`
	UptimeSeconds   float64  `json:"uptime_seconds"`
	ModelsReady     bool     `json:"models_ready"`
	MissingModels   []string `json:"missing_models"`
	FFmpegAvailable bool     `json:"ffmpeg_available"`
	FFprobeAvailable bool    `json:"ffprobe_available"`
	GPUAvailable    bool     `json:"gpu_available"`
}

// handleHealth is the one unauthenticated endpoint: the probing
// Lifecycle Manager of a second engine instance uses it to decide
// between ALREADY_RUNNING and a stale lockfile.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	missing := []string{}
	if s.d.Downloads != nil {
		missing = append(missing, s.d.Downloads.MissingModels()...)
	}
	resp := healthResponse{
		Status:           "ok",
		Version:          s.versionString(),
		EngineUUID:       s.d.EngineUUID,
		UptimeSeconds:    s.uptime().Seconds(),
		ModelsReady:      len(missing) == 0,
		MissingModels:    missing,
		FFmpegAvailable:  binaryOnPath("ffmpeg"),
		FFprobeAvailable: binaryOnPath("ffprobe"),
		GPUAvailable:     gpuAvailable(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func binaryOnPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// gpuAvailable reports whether hardware acceleration is plausibly
// present. Apple Silicon always has the unified GPU; elsewhere the
// engine only claims a GPU when the NVIDIA tooling is installed.
func gpuAvailable() bool {
	if runtime.GOOS == "darwin" && runtime.GOARCH == "arm64" {
		return true
	}
	return binaryOnPath("nvidia-smi")
}

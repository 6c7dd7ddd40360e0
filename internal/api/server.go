// Package api is the engine's localhost HTTP + event-stream surface:
// thin chi handlers that parse, authenticate, and serialize, with all
// actual logic living in the Store, Searcher, Face Learner, Scanner,
// and Pipeline Coordinator. Encoding and decoding happen at the edge;
// handlers dispatch into the service objects and never hold state of
// their own beyond the network ledger.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mediaengine/engine/internal/config"
	"github.com/mediaengine/engine/internal/eventbus"
	"github.com/mediaengine/engine/internal/faces"
	"github.com/mediaengine/engine/internal/ml"
	"github.com/mediaengine/engine/internal/pipeline"
	"github.com/mediaengine/engine/internal/scanner"
	"github.com/mediaengine/engine/internal/search"
	"github.com/mediaengine/engine/internal/store"
	"github.com/mediaengine/engine/pkg/version"
)

// Deps bundles every component the API dispatches into. It is built
// once at startup by cmd/engined and handed to New.
type Deps struct {
	Store       *store.Store
	Shards      *store.ShardStore
	FTS         *store.TranscriptIndex
	Models      *ml.Cache
	Downloads   *ml.Downloader
	Searcher    *search.Searcher
	Faces       *faces.Learner
	Scanner     *scanner.Scanner
	Coordinator *pipeline.Coordinator
	Settings    *config.LiveSettings
	Bus         *eventbus.Bus
	Config      config.EngineConfig
	Log         *slog.Logger

	// Token is the bearer token the desktop shell must present. It is
	// the same token written to the lockfile by lifecycle.Acquire.
	Token string
	// EngineUUID is advertised by /health so a probing Lifecycle
	// Manager can tell "this instance" apart from "a different engine
	// that happens to be listening on this port".
	EngineUUID string
	// StartedAt is used to compute /health's uptime_seconds.
	StartedAt time.Time
	// Shutdown is invoked by POST /shutdown, after the handler has
	// written its response, to begin graceful shutdown. Wired by
	// cmd/engined to cancel the root context.
	Shutdown func()
}

// Server owns the routed handler tree. It is deliberately free of any
// net.Listener or http.Server management — cmd/engined owns the
// listener lifecycle; this type only answers requests.
type Server struct {
	d       Deps
	network *networkLedger
}

// New builds a Server against the given dependencies.
func New(d Deps) *Server {
	if d.Log == nil {
		d.Log = slog.Default()
	}
	s := &Server{d: d, network: newNetworkLedger()}
	if d.Downloads != nil {
		// Route every model fetch through the offline gate and the
		// network ledger so /network/privacy-report stays truthful.
		d.Downloads.Offline = func() bool { return d.Settings.Get().OfflineMode }
		d.Downloads.OnRequest = s.network.Record
		d.Downloads.OnBlocked = s.network.RecordBlocked
	}
	return s
}

// Router builds the full chi.Mux: every route except /health passes
// through the bearer-token + Origin middleware chain.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.d.Log))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authAndOrigin)

		r.Get("/libraries", s.handleListLibraries)
		r.Post("/libraries", s.handleCreateLibrary)
		r.Get("/libraries/{id}", s.handleGetLibrary)
		r.Patch("/libraries/{id}", s.handleUpdateLibrary)
		r.Delete("/libraries/{id}", s.handleDeleteLibrary)
		r.Post("/libraries/{id}/scan", s.handleScanLibrary)

		r.Get("/videos", s.handleListItems(store.MediaVideo))
		r.Get("/media", s.handleListItems(""))
		r.Get("/media/grouped", s.handleGroupedMedia)
		r.Get("/videos/{id}", s.handleGetItem)
		r.Get("/videos/{id}/frames", s.handleItemFrames)
		r.Get("/videos/{id}/metadata", s.handleItemMetadata)
		r.Post("/videos/{id}/retry", s.handleRetryItem)
		r.Post("/videos/retry-failed/all", s.handleRetryAllFailed)

		r.Post("/search", s.handleSearch)
		r.Get("/search/export/captions/{id}", s.handleExportCaptions)

		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Post("/jobs/start", s.handleJobsStart)
		r.Post("/jobs/pause", s.handleJobsPause)
		r.Post("/jobs/resume", s.handleJobsResume)
		r.Get("/jobs/status", s.handleJobsStatus)

		r.Get("/faces", s.handleListUnassignedFaces)
		r.Get("/faces/{id}", s.handleGetFace)
		r.Post("/faces/{id}/assign", s.handleAssignFace)
		r.Post("/faces/{id}/mark-reference", s.handleMarkReferenceFace)
		r.Post("/faces/cluster", s.handleClusterFaces)
		r.Post("/faces/merge", s.handleMergeFaces)
		r.Get("/faces/stats", s.handleFaceStats)
		r.Get("/faces/review-queue", s.handleReviewQueue)
		r.Get("/faces/confusing-pairs", s.handleConfusingPairs)
		r.Get("/faces/persons", s.handleListPersons)
		r.Post("/faces/persons", s.handleCreatePerson)
		r.Get("/faces/persons/{id}", s.handleGetPerson)
		r.Patch("/faces/persons/{id}", s.handleRenamePerson)
		r.Delete("/faces/persons/{id}", s.handleDeletePerson)
		r.Get("/faces/persons/{id}/timeline", s.handlePersonTimeline)
		r.Patch("/faces/persons/{id}/recognition-mode", s.handlePersonRecognitionMode)

		r.Get("/models", s.handleListModels)
		r.Get("/models/{name}/progress", s.handleModelProgress)
		r.Post("/models/import", s.handleModelImport)

		r.Get("/settings", s.handleGetSettings)
		r.Patch("/settings", s.handlePatchSettings)

		r.Get("/favorites", s.handleListFavorites)
		r.Post("/favorites", s.handleSetFavorite)
		r.Delete("/favorites", s.handleSetFavorite)
		r.Get("/favorites/tags", s.handleListTags)
		r.Post("/favorites/tags", s.handleAddTag)
		r.Delete("/favorites/tags", s.handleRemoveTag)

		r.Post("/backup/export", s.handleBackupExport)
		r.Post("/backup/restore", s.handleBackupRestore)

		r.Post("/maintenance/wipe-derived", s.handleWipeDerived)
		r.Post("/maintenance/wipe-faces", s.handleWipeFaces)

		r.Get("/network/status", s.handleNetworkStatus)
		r.Get("/network/privacy-report", s.handleNetworkPrivacyReport)

		r.Get("/assets/thumbnail", s.handleAssetThumbnail)
		r.Get("/assets/face", s.handleAssetFace)
		r.Get("/assets/video", s.handleAssetVideo)

		r.Post("/shutdown", s.handleShutdown)

		r.Get("/events", s.handleEventStream)
	})

	return r
}

// requestLogger logs each request at Debug level with method, path,
// status, and duration — one structured line per call rather than an
// access-log format.
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)))
		})
	}
}

func (s *Server) uptime() time.Duration {
	return time.Since(s.d.StartedAt)
}

func (s *Server) versionString() string {
	return version.Short()
}

func (s *Server) ctx(r *http.Request) context.Context {
	return r.Context()
}

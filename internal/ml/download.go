package ml

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	enginerrors "github.com/mediaengine/engine/internal/errors"
	"github.com/mediaengine/engine/internal/eventbus"
)

// ModelSpec names one downloadable model file: the family it serves,
// the filename it lives under in the models directory, and where it
// can be fetched from when the user opts in.
type ModelSpec struct {
	Name     string
	Filename string
	URL      string
}

// DefaultModelSpecs is the catalog of model files the engine knows how
// to fetch. The static fallback backends work without any of them;
// real backends check presence before loading.
var DefaultModelSpecs = []ModelSpec{
	{Name: "speech-base", Filename: "speech-base.bin"},
	{Name: "visual-embedder", Filename: "visual-embedder.bin"},
	{Name: "text-embedder", Filename: "text-embedder.bin"},
	{Name: "object-detector", Filename: "object-detector.bin"},
	{Name: "face-model", Filename: "face-model.bin"},
}

// ModelStatus is the presence/progress snapshot /models reports for
// one catalog entry.
type ModelStatus struct {
	Name        string  `json:"name"`
	Filename    string  `json:"filename"`
	Present     bool    `json:"present"`
	SizeBytes   int64   `json:"size_bytes"`
	Downloading bool    `json:"downloading"`
	Progress    float64 `json:"progress"`
	Error       string  `json:"error,omitempty"`
}

type downloadState struct {
	active   bool
	received int64
	total    int64
	err      string
}

// Downloader fetches model weights into the models directory with
// resume via ranged reads and exponential backoff, and imports offline
// packs. Every outbound request first passes the Offline gate and is
// recorded through OnRequest so the network ledger sees it.
type Downloader struct {
	Dir     string
	Specs   []ModelSpec
	Client  *http.Client
	Bus     *eventbus.Bus
	Offline func() bool
	// OnRequest is called with the URL of every request actually sent.
	OnRequest func(url string)
	// OnBlocked is called with the URL of every request refused by
	// offline mode.
	OnBlocked func(url string)

	mu     sync.Mutex
	states map[string]*downloadState
}

// downloadBackoff is the retry schedule for a failed fetch attempt.
var downloadBackoff = []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second}

func NewDownloader(dir string, specs []ModelSpec, bus *eventbus.Bus) *Downloader {
	if specs == nil {
		specs = DefaultModelSpecs
	}
	return &Downloader{
		Dir:    dir,
		Specs:  specs,
		Client: &http.Client{Timeout: 10 * time.Minute},
		Bus:    bus,
		states: make(map[string]*downloadState),
	}
}

func (d *Downloader) spec(name string) (ModelSpec, bool) {
	for _, s := range d.Specs {
		if s.Name == name {
			return s, true
		}
	}
	return ModelSpec{}, false
}

// List reports presence and in-flight progress for every catalog entry.
func (d *Downloader) List() []ModelStatus {
	out := make([]ModelStatus, 0, len(d.Specs))
	for _, s := range d.Specs {
		out = append(out, d.Status(s.Name))
	}
	return out
}

// Status reports one model's presence and download progress.
func (d *Downloader) Status(name string) ModelStatus {
	st := ModelStatus{Name: name}
	spec, ok := d.spec(name)
	if !ok {
		st.Error = "unknown model"
		return st
	}
	st.Filename = spec.Filename
	if info, err := os.Stat(filepath.Join(d.Dir, spec.Filename)); err == nil {
		st.Present = true
		st.SizeBytes = info.Size()
	}

	d.mu.Lock()
	if ds, ok := d.states[name]; ok {
		st.Downloading = ds.active
		st.Error = ds.err
		if ds.total > 0 {
			st.Progress = float64(ds.received) / float64(ds.total)
		}
	}
	d.mu.Unlock()
	return st
}

// MissingModels returns the catalog names with no file on disk.
func (d *Downloader) MissingModels() []string {
	var missing []string
	for _, s := range d.Specs {
		if _, err := os.Stat(filepath.Join(d.Dir, s.Filename)); err != nil {
			missing = append(missing, s.Name)
		}
	}
	return missing
}

// Download fetches one model into the models directory, resuming a
// partial file via a Range request and retrying transient failures on
// the fixed backoff schedule. A cross-process flock serializes
// concurrent downloads of the same file.
func (d *Downloader) Download(ctx context.Context, name string) error {
	spec, ok := d.spec(name)
	if !ok {
		return enginerrors.New(enginerrors.KindModelMissing, fmt.Sprintf("unknown model %q", name))
	}
	if spec.URL == "" {
		return enginerrors.New(enginerrors.KindModelMissing, fmt.Sprintf("model %q has no download source; use /models/import", name))
	}
	if d.Offline != nil && d.Offline() {
		if d.OnBlocked != nil {
			d.OnBlocked(spec.URL)
		}
		return enginerrors.New(enginerrors.KindOfflineBlocked, "offline mode forbids model downloads")
	}

	lock := flock.New(filepath.Join(d.Dir, spec.Filename+".lock"))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock model download: %w", err)
	}
	defer func() {
		_ = lock.Unlock()
		_ = os.Remove(lock.Path())
	}()

	d.setState(name, &downloadState{active: true})
	defer d.clearActive(name)

	var lastErr error
	for attempt := 0; attempt <= len(downloadBackoff); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(downloadBackoff[attempt-1]):
			}
		}
		lastErr = d.fetchOnce(ctx, name, spec)
		if lastErr == nil {
			d.publish(eventbus.EventModelDownloadComplete, map[string]any{"name": name})
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	d.setError(name, lastErr.Error())
	d.publish(eventbus.EventModelDownloadError, map[string]any{"name": name, "error": lastErr.Error()})
	return lastErr
}

func (d *Downloader) fetchOnce(ctx context.Context, name string, spec ModelSpec) error {
	partial := filepath.Join(d.Dir, spec.Filename+".part")
	final := filepath.Join(d.Dir, spec.Filename)

	var offset int64
	if info, err := os.Stat(partial); err == nil {
		offset = info.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, spec.URL, nil)
	if err != nil {
		return err
	}
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}
	if d.OnRequest != nil {
		d.OnRequest(spec.URL)
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// Server ignored the Range header; start over.
		offset = 0
	case http.StatusPartialContent:
	default:
		return fmt.Errorf("download %s: unexpected status %d", name, resp.StatusCode)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if offset == 0 {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(partial, flags, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	total := int64(0)
	if resp.ContentLength > 0 {
		total = offset + resp.ContentLength
	}
	received := offset
	buf := make([]byte, 256*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return werr
			}
			received += int64(n)
			d.setProgress(name, received, total)
			d.publish(eventbus.EventModelDownloadProgress, map[string]any{
				"name": name, "received": received, "total": total,
			})
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(partial, final)
}

// ImportPack copies model files from a local directory (an offline
// pack) into the models directory, matching catalog filenames. Returns
// the names imported.
func (d *Downloader) ImportPack(srcDir string) ([]string, error) {
	if !validPackPath(srcDir) {
		return nil, fmt.Errorf("invalid pack path %q", srcDir)
	}
	var imported []string
	for _, s := range d.Specs {
		src := filepath.Join(srcDir, s.Filename)
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := copyFileAtomic(src, filepath.Join(d.Dir, s.Filename)); err != nil {
			return imported, fmt.Errorf("import %s: %w", s.Name, err)
		}
		imported = append(imported, s.Name)
	}
	if len(imported) == 0 {
		return nil, fmt.Errorf("no recognized model files in %s", srcDir)
	}
	return imported, nil
}

func copyFileAtomic(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

func (d *Downloader) setState(name string, st *downloadState) {
	d.mu.Lock()
	d.states[name] = st
	d.mu.Unlock()
}

func (d *Downloader) setProgress(name string, received, total int64) {
	d.mu.Lock()
	if st, ok := d.states[name]; ok {
		st.received, st.total = received, total
	}
	d.mu.Unlock()
}

func (d *Downloader) setError(name, msg string) {
	d.mu.Lock()
	if st, ok := d.states[name]; ok {
		st.err = msg
	}
	d.mu.Unlock()
}

func (d *Downloader) clearActive(name string) {
	d.mu.Lock()
	if st, ok := d.states[name]; ok {
		st.active = false
	}
	d.mu.Unlock()
}

func (d *Downloader) publish(t eventbus.EventType, payload any) {
	if d.Bus != nil {
		d.Bus.Publish(eventbus.Event{Type: t, Payload: payload})
	}
}

// validPackPath rejects traversal in a user-supplied pack path.
func validPackPath(p string) bool {
	return p != "" && !strings.Contains(p, "..")
}

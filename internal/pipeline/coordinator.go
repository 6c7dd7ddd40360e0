package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	enginerrors "github.com/mediaengine/engine/internal/errors"
	"github.com/mediaengine/engine/internal/eventbus"
	"github.com/mediaengine/engine/internal/store"
)

// sweepInterval is how often the Coordinator polls for queued items, a
// background safety net that also re-discovers work after a
// requeue-on-lock-contention or a settings change.
const sweepInterval = 5 * time.Second

// Coordinator owns queueing, concurrency, pause/resume, and
// cancellation for every item's journey through its Stages. Stage is
// what to run; Coordinator decides when and how many to run at once.
type Coordinator struct {
	rt *Runtime

	mu      sync.Mutex
	running bool
	paused  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	kickCh  chan struct{}

	cancelsMu sync.Mutex
	cancels   map[string]context.CancelFunc
}

func NewCoordinator(rt *Runtime) *Coordinator {
	return &Coordinator{
		rt:      rt,
		kickCh:  make(chan struct{}, 1),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start begins the background dispatch loop. Non-blocking; call Stop
// to shut it down.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.mu.Unlock()

	go c.run(ctx)
}

// Stop signals the loop to exit and waits for in-flight jobs to
// return.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	stopCh := c.stopCh
	doneCh := c.doneCh
	c.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// Pause stops new jobs from being dispatched; jobs already running
// continue to their next cooperative yield point.
func (c *Coordinator) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

func (c *Coordinator) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

// Kick nudges the dispatch loop to look for queued work now rather
// than at the next sweep tick. Safe to call from any goroutine; a
// kick while one is already pending is coalesced.
func (c *Coordinator) Kick() {
	select {
	case c.kickCh <- struct{}{}:
	default:
	}
}

func (c *Coordinator) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// CancelItem cooperatively cancels an item's in-flight job, if any,
// and sets the item to CANCELLED, keeping its last completed stage and
// the artifacts already produced.
func (c *Coordinator) CancelItem(ctx context.Context, itemID string) error {
	c.cancelsMu.Lock()
	cancel, ok := c.cancels[itemID]
	c.cancelsMu.Unlock()
	if ok {
		cancel()
	}
	item, err := c.rt.Store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	return c.rt.Store.SetItemStatus(ctx, itemID, store.StatusCancelled, item.LastCompletedStage)
}

func (c *Coordinator) run(ctx context.Context) {
	defer close(c.doneCh)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stopCh:
			cancel()
		case <-loopCtx.Done():
		}
	}()

	concurrency := c.rt.Settings.Get().ConcurrentJobLimit
	if concurrency <= 0 {
		concurrency = 10
	}
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	c.dispatch(loopCtx, sem, &wg)
	for {
		select {
		case <-loopCtx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			c.dispatch(loopCtx, sem, &wg)
		case <-c.kickCh:
			c.dispatch(loopCtx, sem, &wg)
		}
	}
}

// dispatch fills any free semaphore slots with queued items, oldest
// or most-recent-first per the live PrioritizeRecentMedia setting.
func (c *Coordinator) dispatch(ctx context.Context, sem chan struct{}, wg *sync.WaitGroup) {
	if c.Paused() {
		return
	}
	free := cap(sem) - len(sem)
	if free <= 0 {
		return
	}

	settings := c.rt.Settings.Get()
	items, _, err := c.rt.Store.ListItems(ctx, store.ItemFilter{Status: store.StatusQueued}, settings.PrioritizeRecentMedia, store.Pagination{Limit: free})
	if err != nil {
		c.rt.logger().Warn("dispatch: list queued items failed", slog.String("error", err.Error()))
		return
	}

	for _, item := range items {
		select {
		case sem <- struct{}{}:
		default:
			return
		}
		wg.Add(1)
		go func(it *store.Item) {
			defer wg.Done()
			defer func() { <-sem }()
			c.runItem(ctx, it)
		}(item)
	}
}

// runItem advances one item through every remaining stage until it
// reaches DONE, FAILED, or is cancelled/paused out from under it.
func (c *Coordinator) runItem(ctx context.Context, item *store.Item) {
	jobCtx, cancel := context.WithCancel(ctx)
	c.cancelsMu.Lock()
	c.cancels[item.ID] = cancel
	c.cancelsMu.Unlock()
	defer func() {
		cancel()
		c.cancelsMu.Lock()
		delete(c.cancels, item.ID)
		c.cancelsMu.Unlock()
	}()

	job, err := c.rt.Store.CreateJob(jobCtx, item.ID)
	if err != nil {
		c.rt.logger().Error("create job failed", slog.String("item_id", item.ID), slog.String("error", err.Error()))
		return
	}

	settings := c.rt.Settings.Get()
	stages := StagesFor(item.MediaType, settings.FaceDetectionOnPhotos)

	lastCompleted := Stage(item.LastCompletedStage)
	if stage, missing, err := earliestMissingArtifact(c.rt.Store, c.rt.Config, item, stages, lastCompleted); err == nil && missing {
		lastCompleted = previousStage(stages, stage)
	}

	for {
		if c.Paused() {
			return
		}
		select {
		case <-jobCtx.Done():
			return
		default:
		}

		stage, done := NextStage(stages, lastCompleted)
		if done {
			if err := c.rt.Store.IndexDone(jobCtx, item.ID); err != nil {
				c.rt.logger().Error("mark item done failed", slog.String("item_id", item.ID), slog.String("error", err.Error()))
				return
			}
			c.rt.Store.FinishJob(jobCtx, job.ID, store.JobDone, "", "")
			c.rt.publish(eventbus.Event{Type: eventbus.EventJobComplete, Payload: eventbus.JobCompletePayload{ItemID: item.ID, JobID: job.ID}})
			c.Kick()
			return
		}

		c.rt.Store.SetItemStatus(jobCtx, item.ID, stage, string(lastCompleted))
		c.rt.Store.UpdateJobProgress(jobCtx, job.ID, string(stage), stageProgress(stages, stage), "")
		c.rt.publish(eventbus.Event{Type: eventbus.EventJobProgress, Payload: eventbus.JobProgressPayload{
			ItemID: item.ID, JobID: job.ID, Stage: string(stage), Progress: stageProgress(stages, stage),
		}})

		runErr := RunStage(jobCtx, c.rt, item, stage)
		if runErr != nil {
			if enginerrors.IsCancelled(runErr) {
				c.rt.Store.SetItemStatus(jobCtx, item.ID, store.StatusCancelled, string(lastCompleted))
				c.rt.Store.FinishJob(jobCtx, job.ID, store.JobCancelled, string(enginerrors.KindCancelled), runErr.Error())
				return
			}
			if enginerrors.IsLockContention(runErr) {
				// Requeued once, not marked FAILED: the caller's next
				// sweep will retry this item from the same stage.
				c.rt.Store.SetItemStatus(jobCtx, item.ID, store.StatusQueued, string(lastCompleted))
				c.rt.Store.FinishJob(jobCtx, job.ID, store.JobFailed, string(enginerrors.KindLockContention), runErr.Error())
				return
			}
			kind := enginerrors.KindOf(runErr)
			c.rt.Store.SetItemError(jobCtx, item.ID, string(kind), runErr.Error())
			c.rt.Store.FinishJob(jobCtx, job.ID, store.JobFailed, string(kind), runErr.Error())
			c.rt.publish(eventbus.Event{Type: eventbus.EventJobFailed, Payload: eventbus.JobFailedPayload{
				ItemID: item.ID, JobID: job.ID, ErrorCode: string(kind), Message: runErr.Error(),
			}})
			return
		}

		if isLastPrimaryStage(stages, stage) {
			if err := trimRetainedFrames(jobCtx, c.rt, item.ID); err != nil {
				c.rt.logger().Warn("frame retention trim failed", slog.String("item_id", item.ID), slog.String("error", err.Error()))
			}
		}

		lastCompleted = stage
	}
}

func previousStage(stages []Stage, stage Stage) Stage {
	for i, s := range stages {
		if s == stage {
			if i == 0 {
				return ""
			}
			return stages[i-1]
		}
	}
	return ""
}

func stageProgress(stages []Stage, stage Stage) float64 {
	for i, s := range stages {
		if s == stage {
			return float64(i) / float64(len(stages))
		}
	}
	return 0
}

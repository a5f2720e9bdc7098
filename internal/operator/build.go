package operator

import (
	"context"
	"log/slog"
	"sync"

	"cardscan/internal/catalog"
	"cardscan/internal/logging"
)

const eventBuildProgress = "catalog.build"

// BuildStatus reports the latest catalog build seen by the server.
type BuildStatus struct {
	Running bool              `json:"running"`
	Last    *catalog.Progress `json:"last,omitempty"`
}

// buildRunner allows one background build at a time and forwards its
// progress to the hub.
type buildRunner struct {
	builder *catalog.Builder
	source  catalog.Source
	hub     *hub
	logger  *slog.Logger

	mu      sync.Mutex
	job     *catalog.BuildJob
	running bool
	last    *catalog.Progress
	idle    chan struct{}
}

func newBuildRunner(builder *catalog.Builder, source catalog.Source, h *hub, logger *slog.Logger) *buildRunner {
	idle := make(chan struct{})
	close(idle)
	return &buildRunner{builder: builder, source: source, hub: h, logger: logger, idle: idle}
}

func (b *buildRunner) start(ctx context.Context, limit int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return catalog.ErrBuildInProgress
	}
	job := catalog.StartBuild(ctx, b.builder, b.source, limit)
	b.job = job
	b.running = true
	b.last = nil
	b.idle = make(chan struct{})
	go b.forward(job, b.idle)
	b.logger.Debug("catalog build requested", logging.Int("limit", limit))
	return nil
}

func (b *buildRunner) forward(job *catalog.BuildJob, idle chan struct{}) {
	for p := range job.Progress() {
		b.mu.Lock()
		event := p
		b.last = &event
		b.mu.Unlock()
		b.hub.broadcast(Event{Type: eventBuildProgress, Data: p})
	}
	result, err := job.Wait()
	attrs := []logging.Attr{
		logging.Int("added", result.Added),
		logging.Int("skipped", result.Skipped),
		logging.Int("failed", result.Failed),
		logging.Duration("elapsed", result.Elapsed),
	}
	if err != nil {
		attrs = append(attrs, logging.Error(err))
		logging.WarnWithContext(b.logger, "catalog build ended with error", "catalog_build_failed", attrs...)
	} else {
		b.logger.Info("catalog build finished", logging.Args(attrs...)...)
	}

	b.mu.Lock()
	b.running = false
	b.job = nil
	b.mu.Unlock()
	close(idle)
}

func (b *buildRunner) status() BuildStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	status := BuildStatus{Running: b.running}
	if b.last != nil {
		last := *b.last
		status.Last = &last
	}
	return status
}

// wait blocks until the current build, if any, has finished forwarding.
func (b *buildRunner) wait() {
	b.mu.Lock()
	idle := b.idle
	b.mu.Unlock()
	<-idle
}

func (b *buildRunner) cancel() {
	b.mu.Lock()
	job := b.job
	b.mu.Unlock()
	if job != nil {
		job.Cancel()
	}
}

package catalog

import (
	"context"
	"sync"
)

const progressBuffer = 64

// Progress is one build event. The last event of a job has Done set and
// carries the result.
type Progress struct {
	Current int          `json:"current"`
	Total   int          `json:"total"`
	Label   string       `json:"label"`
	Done    bool         `json:"done"`
	Result  *BuildResult `json:"result,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// BuildJob is a build running on a background goroutine.
type BuildJob struct {
	progress chan Progress
	done     chan struct{}
	cancel   context.CancelFunc

	mu     sync.Mutex
	result BuildResult
	err    error
}

// StartBuild runs builder.Build in the background. Progress events are
// delivered on Progress() so the consumer's goroutine handles them; when the
// consumer falls behind, intermediate events are dropped.
func StartBuild(ctx context.Context, builder *Builder, source Source, limit int) *BuildJob {
	ctx, cancel := context.WithCancel(ctx)
	job := &BuildJob{
		progress: make(chan Progress, progressBuffer),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	go job.run(ctx, builder, source, limit)
	return job
}

func (j *BuildJob) run(ctx context.Context, builder *Builder, source Source, limit int) {
	defer close(j.done)
	defer j.cancel()

	result, err := builder.Build(ctx, source, limit, func(current, total int, label string) {
		select {
		case j.progress <- Progress{Current: current, Total: total, Label: label}:
		default:
		}
	})

	j.mu.Lock()
	j.result, j.err = result, err
	j.mu.Unlock()

	final := Progress{Current: result.Processed, Total: result.Total, Done: true, Result: &result}
	if err != nil {
		final.Error = err.Error()
	}
	j.deliverFinal(final)
	close(j.progress)
}

// deliverFinal evicts the oldest queued events until the final one fits.
func (j *BuildJob) deliverFinal(final Progress) {
	for {
		select {
		case j.progress <- final:
			return
		default:
		}
		select {
		case <-j.progress:
		default:
		}
	}
}

// Progress returns the event stream. It is closed after the final event.
func (j *BuildJob) Progress() <-chan Progress { return j.progress }

// Done is closed when the build returns.
func (j *BuildJob) Done() <-chan struct{} { return j.done }

// Cancel asks the build to stop before its next item.
func (j *BuildJob) Cancel() { j.cancel() }

// Wait blocks until the build returns.
func (j *BuildJob) Wait() (BuildResult, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

package render

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/inkframe/internal/display"
)

// Pool runs renders on a bounded set of workers so CPU-bound pixel work
// never executes inline in a request handler. The pipeline itself stays
// synchronous; the pool only dispatches it.
type Pool struct {
	jobs    chan renderJob
	workers int
	logger  *slog.Logger
}

type renderJob struct {
	id      string
	src     []byte
	profile display.Profile
	opts    Options
	result  chan renderResult
}

type renderResult struct {
	data []byte
	err  error
}

// NewPool creates a Pool with the given number of workers.
// If workers <= 0, it defaults to the number of CPUs.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{
		jobs:    make(chan renderJob),
		workers: workers,
		logger:  slog.Default(),
	}
}

// Run starts the workers and blocks until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		g.Go(func() error {
			p.work(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-p.jobs:
			start := time.Now()
			data, err := Transform(job.src, job.profile, job.opts)
			if err != nil {
				p.logger.Warn("render failed", "job_id", job.id, "display", job.profile.Name, "error", err)
			} else {
				p.logger.Debug("render complete",
					"job_id", job.id,
					"display", job.profile.Name,
					"duration", time.Since(start),
					"bytes", len(data))
			}
			select {
			case job.result <- renderResult{data: data, err: err}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// Render dispatches one render to the pool and waits for the result,
// honoring ctx cancellation on both the enqueue and the wait.
func (p *Pool) Render(ctx context.Context, src []byte, profile display.Profile, opts Options) ([]byte, error) {
	job := renderJob{
		id:      uuid.New().String(),
		src:     src,
		profile: profile,
		opts:    opts,
		result:  make(chan renderResult, 1),
	}

	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-job.result:
		return res.data, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

package chatservice

import (
	"context"

	"github.com/mixaill76/cursor-gateway/internal/requestlog"
	"github.com/mixaill76/cursor-gateway/internal/worker"
)

// jobResult satisfies worker.Result for the fire-and-forget jobs below;
// none of them produce a caller-visible error today, but the shape leaves
// room for one without changing the worker.Job contract.
type jobResult struct{ err error }

func (r jobResult) Error() error { return r.err }

type profileRefreshJob struct {
	svc *Service
	id  int
}

func (j profileRefreshJob) Execute(ctx context.Context) worker.Result {
	j.svc.refreshProfileAsync(j.id)
	return jobResult{}
}

type usageFetchJob struct {
	svc   *Service
	logID requestlog.ID
}

func (j usageFetchJob) Execute(ctx context.Context) worker.Result {
	j.svc.fetchUsageAsync(ctx, j.logID)
	return jobResult{}
}

// submit enqueues job onto the background worker pool (spec.md §4.7 step 7
// and the usage-fetch step are both detached background tasks). Without a
// queue wired in — e.g. in a unit test that constructs a bare Service — it
// falls back to running the job on a new goroutine, matching the pre-pool
// behavior.
func (s *Service) submit(job worker.Job) {
	if s.Jobs == nil {
		go job.Execute(context.Background())
		return
	}
	select {
	case s.Jobs <- job:
	default:
		// Queue saturated; do not block the request path waiting for a
		// slot. Run it on a new goroutine instead of dropping it silently.
		go job.Execute(context.Background())
	}
}

// Package workerpool runs independent hive-edit jobs concurrently. Edits to
// one hive are strictly serial; only distinct hives or distinct images run
// in parallel, each job with its own working directory.
package workerpool

import (
	"context"
	"runtime/debug"
	"sync"

	"github.com/virtshift/virtshift/internal/logging"
	"github.com/virtshift/virtshift/pkg/report"
)

var log = logging.L("workerpool")

// Job is one hive operation. Run must be self-contained: it owns its
// session and working directory and returns a finished report. The context
// is the pool's run context; jobs may hang a tagged logger on it.
type Job struct {
	Name string
	Run  func(ctx context.Context) *report.Report
}

// Result pairs a job with its outcome. A panicked job yields a failed
// report rather than taking down sibling jobs.
type Result struct {
	Name   string
	Report *report.Report
}

// Run executes jobs on at most workers goroutines and returns results in
// job order. Cancellation stops jobs that have not started; running jobs
// finish, since an interrupted hive commit is worse than a late one.
func Run(ctx context.Context, workers int, jobs []Job) []Result {
	if workers < 1 {
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}

	results := make([]Result, len(jobs))
	idx := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idx {
				log.Debug("hive job started", "job", jobs[i].Name)
				results[i] = Result{Name: jobs[i].Name, Report: runJob(ctx, jobs[i])}
			}
		}()
	}

	for i := range jobs {
		select {
		case idx <- i:
		case <-ctx.Done():
			rpt := report.New(jobs[i].Name, false)
			rpt.Errorf("canceled before start: %v", ctx.Err())
			results[i] = Result{Name: jobs[i].Name, Report: rpt.Finish()}
		}
	}
	close(idx)
	wg.Wait()
	return results
}

// runJob executes one job with panic recovery.
func runJob(ctx context.Context, j Job) (rpt *report.Report) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("hive job panicked", "job", j.Name, "panic", r, "stack", string(debug.Stack()))
			failed := report.New(j.Name, false)
			failed.Errorf("job panicked: %v", r)
			rpt = failed.Finish()
		}
	}()
	return j.Run(ctx)
}

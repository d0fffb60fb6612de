package pipeline

import (
	"context"
	"runtime"
	"sync"

	"github.com/chrissnell/oceandata/internal/report"
	"github.com/chrissnell/oceandata/internal/types"
)

// ProcessFiles runs ProcessFile over paths on a bounded pool of workers.
// Results come back in input order.  A failing file does not stop the
// others; once ctx is cancelled no new files are started and the remaining
// results carry the context error.
func (p *Pipeline) ProcessFiles(ctx context.Context, paths []string) []Result {
	results := make([]Result, len(paths))
	workers := p.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(paths) {
		workers = len(paths)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, _ := p.ProcessFile(ctx, paths[i])
				results[i] = *res
			}
		}()
	}

	next := 0
schedule:
	for ; next < len(paths); next++ {
		select {
		case jobs <- next:
		case <-ctx.Done():
			break schedule
		}
	}
	close(jobs)
	wg.Wait()

	for i := next; i < len(paths); i++ {
		rep := report.New(paths[i])
		err := &types.FileError{Path: paths[i], Stage: types.StageDetect, Err: ctx.Err()}
		rep.Fail(err)
		results[i] = Result{Path: paths[i], Report: rep, Err: err}
	}
	if next < len(paths) {
		p.logger.Warnf("pipeline cancelled, %d of %d files not started", len(paths)-next, len(paths))
	}
	return results
}

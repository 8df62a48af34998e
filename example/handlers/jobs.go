package handlers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mnehpets/typedrpc/rpc"
)

// maxDelay caps the simulated job duration.
const maxDelay = 10 * time.Second

// Job is the outcome of a completed job.
type Job struct {
	Name     string `json:"name"`
	Run      int64  `json:"run"`
	Duration string `json:"duration"`
}

// Jobs runs simulated background work and returns futures.
type Jobs struct {
	runs atomic.Int64
}

func (j *Jobs) Methods() []rpc.Method {
	return []rpc.Method{
		rpc.Func3("Run", rpc.Context("ctx"), rpc.Arg[string]("name"), rpc.Optional("delayMs", 0), j.Run),
		rpc.Func1("Fire", rpc.Arg[string]("name"), j.Fire),
		rpc.Func1("Find", rpc.Arg[int64]("run"), j.Find),
	}
}

// Run completes after delayMs milliseconds. It stops early, with an internal
// error, when the caller's context is cancelled.
func (j *Jobs) Run(ctx context.Context, name string, delayMs int) (*rpc.Future[Job], error) {
	delay := time.Duration(delayMs) * time.Millisecond
	if delay < 0 || delay > maxDelay {
		return nil, rpc.NewError(CodeInvalidInput, "delayMs out of range").WithData(map[string]int64{"max": maxDelay.Milliseconds()})
	}
	run := j.runs.Add(1)
	return rpc.Go(func() (Job, error) {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
			return Job{Name: name, Run: run, Duration: delay.String()}, nil
		case <-ctx.Done():
			return Job{}, ctx.Err()
		}
	}), nil
}

// Fire starts a job and yields no value.
func (j *Jobs) Fire(name string) (*rpc.Task, error) {
	if name == "" {
		return rpc.Rejected[struct{}](rpc.NewError(CodeInvalidInput, "name is required")), nil
	}
	return rpc.Async(func() error {
		j.runs.Add(1)
		return nil
	}), nil
}

// Find reports, asynchronously, whether run has already been started. Unknown
// run numbers are domain errors carried by the result.
func (j *Jobs) Find(run int64) (*rpc.Future[rpc.Result[int64]], error) {
	return rpc.Go(func() (rpc.Result[int64], error) {
		if run <= 0 || run > j.runs.Load() {
			return rpc.Fail[int64](rpc.NewError(CodeNotFound, "run not found")), nil
		}
		return rpc.Ok(run), nil
	}), nil
}

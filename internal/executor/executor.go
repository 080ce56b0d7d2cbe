// Package executor abstracts where an agent run executes. Most
// environments run the browser driver inline; environments that cannot
// spawn subprocesses from arbitrary goroutines get a dedicated worker
// goroutine pinned to an OS thread. Callers depend only on the
// interface; results are identical either way.
package executor

import (
	"context"
	"os"
	"runtime"

	"polistep/internal/logging"
	"polistep/internal/types"
)

// RunFunc is one complete agent run.
type RunFunc func(ctx context.Context) *types.AgentRunResult

// Executor executes a run and returns its result. Execute honors ctx
// cancellation: the run receives the same ctx and is expected to wind
// down, after which its (possibly partial) result is returned.
type Executor interface {
	Execute(ctx context.Context, run RunFunc) *types.AgentRunResult
}

// Inline executes the run on the calling goroutine.
type Inline struct{}

func (Inline) Execute(ctx context.Context, run RunFunc) *types.AgentRunResult {
	return run(ctx)
}

// Worker executes each run on a fresh goroutine locked to an OS thread.
// The calling goroutine blocks until the run finishes; cancellation
// propagates through the shared context.
type Worker struct{}

func (Worker) Execute(ctx context.Context, run RunFunc) *types.AgentRunResult {
	results := make(chan *types.AgentRunResult, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		results <- run(ctx)
	}()
	return <-results
}

// Detect picks the executor for the current environment. The worker is
// used only when forced or when the platform cannot spawn the browser
// subprocess from an arbitrary thread.
func Detect() Executor {
	if os.Getenv("POLISTEP_FORCE_WORKER") != "" {
		logging.Boot("executor: worker (forced)")
		return Worker{}
	}
	switch runtime.GOOS {
	case "ios", "android", "js":
		logging.Boot("executor: worker (platform %s)", runtime.GOOS)
		return Worker{}
	}
	logging.Boot("executor: inline")
	return Inline{}
}

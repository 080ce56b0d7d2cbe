package executor

import (
	"context"
	"testing"

	"go.uber.org/goleak"

	"polistep/internal/types"
)

// Both executors must be observationally identical to the caller.
func TestExecutors_Transparent(t *testing.T) {
	defer goleak.VerifyNone(t)

	run := func(ctx context.Context) *types.AgentRunResult {
		return &types.AgentRunResult{
			Matched:  types.MatchedTrue,
			FinalURL: "https://example.go.kr/policy",
		}
	}

	for name, ex := range map[string]Executor{"inline": Inline{}, "worker": Worker{}} {
		t.Run(name, func(t *testing.T) {
			r := ex.Execute(context.Background(), run)
			if r == nil || r.Matched != types.MatchedTrue || r.FinalURL != "https://example.go.kr/policy" {
				t.Fatalf("result = %+v", r)
			}
		})
	}
}

func TestExecutors_CancellationPropagates(t *testing.T) {
	defer goleak.VerifyNone(t)

	run := func(ctx context.Context) *types.AgentRunResult {
		<-ctx.Done()
		return &types.AgentRunResult{Error: ctx.Err().Error()}
	}

	for name, ex := range map[string]Executor{"inline": Inline{}, "worker": Worker{}} {
		t.Run(name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			r := ex.Execute(ctx, run)
			if r.Error != context.Canceled.Error() {
				t.Fatalf("error = %q", r.Error)
			}
		})
	}
}

func TestDetect_ForcedWorker(t *testing.T) {
	t.Setenv("POLISTEP_FORCE_WORKER", "1")
	if _, ok := Detect().(Worker); !ok {
		t.Fatal("forced worker not selected")
	}
}

func TestDetect_DefaultInline(t *testing.T) {
	t.Setenv("POLISTEP_FORCE_WORKER", "")
	if _, ok := Detect().(Inline); !ok {
		t.Fatal("inline not selected by default")
	}
}

// Package verify drives one verification from task to persisted record:
// run the browsing agent, repair its output, extract artifact text,
// bundle the evidence, generate guidance, decide the terminal status,
// persist, and notify the observer. There is no pipeline-level retry; a
// run that fails is a FAILED record, rerun by a new task.
package verify

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"polistep/internal/artifacts"
	"polistep/internal/browser"
	"polistep/internal/bundle"
	"polistep/internal/config"
	"polistep/internal/executor"
	"polistep/internal/guidance"
	"polistep/internal/llm"
	"polistep/internal/logging"
	"polistep/internal/navcache"
	"polistep/internal/parse"
	"polistep/internal/progress"
	"polistep/internal/store"
	"polistep/internal/types"
)

// ErrAlreadyRunning is returned when a PENDING record blocks a new run.
var ErrAlreadyRunning = fmt.Errorf("verification already running for this program")

// Runner executes one supervised agent run.
type Runner interface {
	Run(ctx context.Context, task browser.RunTask, sink progress.Sink) *types.AgentRunResult
}

// GuideGenerator produces the final guidance from a bundle.
type GuideGenerator interface {
	Generate(ctx context.Context, title, sourceURL, bundleText string) *types.FinalGuidance
}

// Recorder is the store surface the orchestrator needs.
type Recorder interface {
	SaveRecord(rec *types.VerificationRecord) error
	HasPending(programTitle string) (bool, error)
	MarkPending(id, programTitle, targetURL string) (*types.VerificationRecord, error)
}

// Orchestrator owns the verification state machine.
type Orchestrator struct {
	cfg       config.Config
	runner    Runner
	exec      executor.Executor
	extractor *artifacts.Extractor
	generator GuideGenerator
	cache     *navcache.Cache
	store     Recorder
}

// New wires the production orchestrator.
func New(cfg config.Config, client llm.Client, st *store.Store) *Orchestrator {
	cache := navcache.New()
	if paths, err := st.SuccessfulPaths(); err == nil {
		for url, path := range paths {
			cache.Record(url, path)
		}
	} else {
		logging.VerifyWarn("seed navcache: %v", err)
	}

	return &Orchestrator{
		cfg:       cfg,
		runner:    browser.NewSupervisor(cfg, client),
		exec:      executor.Detect(),
		extractor: artifacts.New(cfg.Artifacts),
		generator: guidance.New(client, cfg.LLM),
		cache:     cache,
		store:     st,
	}
}

// NewWithDeps wires an orchestrator with explicit dependencies.
func NewWithDeps(cfg config.Config, runner Runner, exec executor.Executor,
	ex *artifacts.Extractor, gen GuideGenerator, cache *navcache.Cache, rec Recorder) *Orchestrator {
	return &Orchestrator{
		cfg: cfg, runner: runner, exec: exec,
		extractor: ex, generator: gen, cache: cache, store: rec,
	}
}

// Verify runs one verification end to end and always returns a record.
// A panic anywhere in the pipeline is captured as a FAILED record.
func (o *Orchestrator) Verify(ctx context.Context, task types.VerificationTask, sink progress.Sink) (rec *types.VerificationRecord) {
	runID := uuid.NewString()
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			logging.VerifyError("verification panicked: %v", r)
			rec = o.finalize(failedRecord(runID, task, fmt.Sprintf("verification panicked: %v", r)), sink)
		}
	}()

	if !task.Force {
		if pending, err := o.store.HasPending(task.ProgramTitle); err == nil && pending {
			logging.VerifyWarn("run blocked, already pending: %s", task.ProgramTitle)
			return o.finalize(failedRecord(runID, task, ErrAlreadyRunning.Error()), sink)
		}
	}
	if _, err := o.store.MarkPending(runID, task.ProgramTitle, task.TargetURL); err != nil {
		logging.VerifyWarn("mark pending: %v", err)
	}

	logging.Verify("verification %s started: %q %s", runID, task.ProgramTitle, task.TargetURL)
	sink.Log(fmt.Sprintf("검증 시작: %s", task.ProgramTitle))

	// Prior path: explicit task hint wins over the cache.
	prior := task.PriorPath
	if len(prior) == 0 {
		prior = o.cache.Lookup(task.TargetURL)
	}
	prompt := navcache.HintedPrompt(buildAgentPrompt(task.ProgramTitle, task.TargetURL), prior)

	downloadsDir := filepath.Join(o.cfg.Run.DownloadsRoot, runID)
	runTask := browser.RunTask{
		Prompt:       prompt,
		EntryURL:     task.TargetURL,
		DownloadsDir: downloadsDir,
	}

	result := o.exec.Execute(ctx, func(ctx context.Context) *types.AgentRunResult {
		return o.runner.Run(ctx, runTask, sink)
	})
	if result == nil {
		result = &types.AgentRunResult{
			Matched:     types.MatchedUnknown,
			NeedsReview: true,
			Error:       "agent run returned no result",
		}
	}
	repaired := parse.Repair(*result)
	result = &repaired

	arts := o.extractor.Extract(ctx, result.DownloadedFiles, downloadsDir)
	if o.cfg.Artifacts.EnableImageOCR && len(result.ImageURLs) > 0 {
		arts = append(arts, o.extractor.FetchImages(ctx, result.ImageURLs, downloadsDir)...)
	}

	corpus := bundle.Build(bundle.ProgramMeta{
		Title:   task.ProgramTitle,
		URL:     task.TargetURL,
		RawText: task.RawText,
	}, result, arts)

	var guide *types.FinalGuidance
	if result.Error == "" {
		guide = o.generator.Generate(ctx, task.ProgramTitle, task.TargetURL, corpus.Text)
	}

	rec = buildRecord(runID, task, result, guide)
	if rec.Status == types.StatusSuccess {
		o.cache.Record(task.TargetURL, rec.NavigationPath)
	}

	logging.Verify("verification %s finished in %s: status=%s", runID, time.Since(started).Round(time.Second), rec.Status)
	return o.finalize(rec, sink)
}

// DecideStatus is the terminal-status invariant: SUCCESS exactly when
// the agent confirmed the page, nothing needs review, and no error
// occurred. Everything else is FAILED.
func DecideStatus(r *types.AgentRunResult) types.VerificationStatus {
	if r.Matched == types.MatchedTrue && !r.NeedsReview && r.Error == "" {
		return types.StatusSuccess
	}
	return types.StatusFailed
}

func buildRecord(runID string, task types.VerificationTask, r *types.AgentRunResult, guide *types.FinalGuidance) *types.VerificationRecord {
	now := time.Now().UTC()
	return &types.VerificationRecord{
		ID:                runID,
		ProgramTitle:      task.ProgramTitle,
		TargetURL:         task.TargetURL,
		Status:            DecideStatus(r),
		Criteria:          r.Criteria,
		RequiredDocuments: r.RequiredDocuments,
		ApplySteps:        r.ApplySteps,
		ApplyChannel:      types.ApplyChannel(r.ApplyChannel),
		ApplyPeriod:       r.ApplyPeriod,
		Contact:           r.Contact,
		EvidenceText:      r.EvidenceText,
		NavigationPath:    r.NavigationPath,
		FinalURL:          r.FinalURL,
		Confidence:        r.Confidence,
		NeedsReview:       r.NeedsReview,
		Reason:            r.Reason,
		Error:             r.Error,
		Guidance:          guide,
		CreatedAt:         now,
		LastVerifiedAt:    now,
	}
}

func failedRecord(runID string, task types.VerificationTask, msg string) *types.VerificationRecord {
	now := time.Now().UTC()
	return &types.VerificationRecord{
		ID:             runID,
		ProgramTitle:   task.ProgramTitle,
		TargetURL:      task.TargetURL,
		Status:         types.StatusFailed,
		NeedsReview:    true,
		Error:          msg,
		CreatedAt:      now,
		LastVerifiedAt: now,
	}
}

// finalize persists the record and emits the done event. The done event
// echoes the record so a connected observer needs no follow-up query.
func (o *Orchestrator) finalize(rec *types.VerificationRecord, sink progress.Sink) *types.VerificationRecord {
	if err := o.store.SaveRecord(rec); err != nil {
		logging.VerifyError("persist record %s: %v", rec.ID, err)
	}
	sink.Done(progress.DoneEvent{
		Status:         rec.Status,
		FinalURL:       rec.FinalURL,
		Criteria:       rec.Criteria,
		EvidenceText:   rec.EvidenceText,
		NavigationPath: rec.NavigationPath,
		Error:          rec.Error,
	})
	return rec
}

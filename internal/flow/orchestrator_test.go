// internal/flow/orchestrator_test.go
package flow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shashank9mittal/uxray/api/schemas"
	"github.com/shashank9mittal/uxray/internal/config"
)

func stepCandidates(ids ...string) []schemas.CandidateElement {
	out := make([]schemas.CandidateElement, 0, len(ids))
	for _, id := range ids {
		out = append(out, schemas.CandidateElement{
			LocalID:  id,
			Tag:      "button",
			Category: schemas.CategoryButton,
			Text:     "Next",
		})
	}
	return out
}

type harness struct {
	browser   *fakeBrowser
	store     *spyStore
	perceiver *fakePerceiver
	oracle    *fakeOracle
	executor  *fakeExecutor
	orch      *Orchestrator
}

func newHarness(t *testing.T, mutate func(cfg *config.Config)) *harness {
	t.Helper()

	cfg := config.NewDefaultConfig()
	cfg.Flow.MaxSteps = 5
	cfg.Flow.InterStepDelay = 0
	if mutate != nil {
		mutate(cfg)
	}

	h := &harness{
		browser:   &fakeBrowser{page: &fakePage{title: "Example", text: "welcome"}},
		perceiver: &fakePerceiver{perStep: [][]schemas.CandidateElement{stepCandidates("ux-1", "ux-2")}},
		oracle:    &fakeOracle{},
		executor:  &fakeExecutor{},
	}
	h.store = newSpyStore(h.browser)

	orch, err := New(cfg, zap.NewNop(), h.store, h.perceiver, h.oracle,
		WithExecutorFactory(func(bool) schemas.Executor { return h.executor }))
	require.NoError(t, err)
	h.orch = orch
	return h
}

func defaultRequest() schemas.FlowRequest {
	return schemas.FlowRequest{
		StartLocation: "https://example.com/start",
		Goal:          "reach the login page",
	}
}

func TestRunGoalAchievedMidway(t *testing.T) {
	h := newHarness(t, nil)
	h.oracle.achieveAfter = 2

	result, err := h.orch.Run(context.Background(), defaultRequest(), nil)

	require.NoError(t, err)
	assert.True(t, result.GoalAchieved)
	assert.Equal(t, 2, result.StepsCompleted)
	require.Len(t, result.Steps, 2)
	assert.Equal(t, 1, result.Steps[0].StepIndex)
	assert.Equal(t, 2, result.Steps[1].StepIndex)
	assert.Equal(t, 2, h.executor.calls)
	assert.Equal(t, int32(1), h.browser.page.closeCount.Load(), "page released exactly once")
	assert.Equal(t, "https://example.com/start", result.FinalLocation)
}

func TestRunBudgetExhausted(t *testing.T) {
	h := newHarness(t, nil) // oracle never achieves

	result, err := h.orch.Run(context.Background(), defaultRequest(), nil)

	require.NoError(t, err)
	assert.False(t, result.GoalAchieved)
	assert.Equal(t, 5, result.StepsCompleted)
	assert.Len(t, result.Steps, 5)
	assert.Equal(t, int32(1), h.browser.page.closeCount.Load())
}

func TestRunStalledOnZeroCandidates(t *testing.T) {
	h := newHarness(t, nil)
	h.perceiver.perStep = nil // every perceive returns an empty list

	result, err := h.orch.Run(context.Background(), defaultRequest(), nil)

	require.NoError(t, err)
	assert.False(t, result.GoalAchieved)
	assert.Equal(t, 0, result.StepsCompleted)
	assert.Empty(t, result.Steps)
	assert.Equal(t, 0, h.oracle.decideCalls, "stalled flows never consult the oracle")
	assert.Equal(t, int32(1), h.browser.page.closeCount.Load())
}

func TestRunValidationRejectsBeforeResources(t *testing.T) {
	h := newHarness(t, nil)

	cases := []schemas.FlowRequest{
		{StartLocation: "https://example.com", Goal: "   "},
		{StartLocation: "", Goal: "log in"},
		{StartLocation: "ftp://example.com/files", Goal: "log in"},
		{StartLocation: "https://", Goal: "log in"},
	}
	for _, req := range cases {
		result, err := h.orch.Run(context.Background(), req, nil)
		require.Error(t, err)
		assert.Equal(t, schemas.KindValidation, schemas.KindOf(err))
		assert.Equal(t, 0, result.StepsCompleted)
	}
	assert.Equal(t, 0, h.browser.newPageCalls, "no page may be acquired for invalid requests")
}

func TestRunNavigationFailureIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	h.browser.page.navigateFn = func(string) (schemas.NavigationResult, error) {
		return schemas.NavigationResult{}, schemas.NewFlowError(schemas.KindNavigation, nil, "status 503")
	}

	result, err := h.orch.Run(context.Background(), defaultRequest(), nil)

	require.Error(t, err)
	assert.Equal(t, schemas.KindNavigation, schemas.KindOf(err))
	assert.Equal(t, 0, result.StepsCompleted)
	assert.Empty(t, result.Steps)
	assert.Equal(t, int32(1), h.browser.page.closeCount.Load())
}

func TestRunOracleFailureKeepsPartialSteps(t *testing.T) {
	h := newHarness(t, nil)
	// First decision works, second blows up.
	decideErr := schemas.NewFlowError(schemas.KindOracle, nil, "decision maker unreachable")
	calls := 0
	h.oracle.decideErr = nil
	base := h.oracle
	h.orch.oracle = oracleFunc{
		selectFn: func(ctx context.Context, goal string, cs []schemas.CandidateElement) (schemas.Decision, error) {
			calls++
			if calls >= 2 {
				return schemas.Decision{}, decideErr
			}
			return base.SelectNextAction(ctx, goal, cs)
		},
		checkFn: base.IsGoalAchieved,
	}

	result, err := h.orch.Run(context.Background(), defaultRequest(), nil)

	require.Error(t, err)
	assert.Equal(t, schemas.KindOracle, schemas.KindOf(err))
	assert.Equal(t, 1, result.StepsCompleted, "the completed first step is preserved")
	assert.Len(t, result.Steps, 1)
	assert.Equal(t, int32(1), h.browser.page.closeCount.Load())
}

func TestRunPerceptionFailureIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	h.perceiver.err = schemas.NewFlowError(schemas.KindPerception, nil, "evaluate failed")

	result, err := h.orch.Run(context.Background(), defaultRequest(), nil)

	require.Error(t, err)
	assert.Equal(t, schemas.KindPerception, schemas.KindOf(err))
	assert.Equal(t, 0, result.StepsCompleted)
	assert.Equal(t, int32(1), h.browser.page.closeCount.Load())
}

func TestRunExecutionFailureContinuesByDefault(t *testing.T) {
	h := newHarness(t, nil)
	h.executor.results = []schemas.ExecutionResult{
		{Success: false, Error: "all strategies exhausted"},
		{Success: true, MethodUsed: "structural"},
	}
	h.oracle.achieveAfter = 2

	result, err := h.orch.Run(context.Background(), defaultRequest(), nil)

	require.NoError(t, err)
	assert.True(t, result.GoalAchieved)
	require.Len(t, result.Steps, 2)
	assert.False(t, result.Steps[0].ExecutionResult.Success)
	assert.True(t, result.Steps[1].ExecutionResult.Success)
}

func TestRunExecutionFailureHaltsWhenConfigured(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Flow.HaltOnExecutionError = true })
	h.executor.results = []schemas.ExecutionResult{{Success: false, Error: "intercepted"}}

	result, err := h.orch.Run(context.Background(), defaultRequest(), nil)

	require.Error(t, err)
	assert.Equal(t, schemas.KindExecution, schemas.KindOf(err))
	require.Len(t, result.Steps, 1, "the failed step is still recorded")
	assert.Equal(t, 1, result.StepsCompleted)
	assert.Equal(t, 0, h.oracle.checkCalls, "no goal check after a halting failure")
}

func TestRunCancellationStopsAtPhaseBoundary(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.orch.Run(ctx, defaultRequest(), nil)

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, result.StepsCompleted)
	assert.Equal(t, int32(1), h.browser.page.closeCount.Load())
}

func TestRunPageAcquisitionFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.browser.page = &fakePage{}
	h.browser.newPageErr = errors.New("browser did not start")

	result, err := h.orch.Run(context.Background(), defaultRequest(), nil)

	require.Error(t, err)
	assert.Equal(t, schemas.KindNavigation, schemas.KindOf(err))
	assert.Equal(t, 0, result.StepsCompleted)
}

func TestRunEmitsOrderedProgress(t *testing.T) {
	h := newHarness(t, nil)
	h.oracle.achieveAfter = 1

	progress := make(chan schemas.ProgressEvent, 64)
	result, err := h.orch.Run(context.Background(), defaultRequest(), progress)
	close(progress)

	require.NoError(t, err)
	require.True(t, result.GoalAchieved)

	last := -1
	var stages []schemas.Stage
	for ev := range progress {
		assert.GreaterOrEqual(t, ev.Percent, last, "percent must never regress")
		last = ev.Percent
		stages = append(stages, ev.Stage)
	}
	require.NotEmpty(t, stages)
	assert.Equal(t, schemas.StageInit, stages[0])
	assert.Equal(t, schemas.StageDone, stages[len(stages)-1])
	assert.Equal(t, 100, last)
}

func TestRunAppliesConfigDefaults(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) { cfg.Flow.MaxSteps = 3 })

	result, err := h.orch.Run(context.Background(), defaultRequest(), nil)

	require.NoError(t, err)
	assert.Equal(t, 3, result.StepsCompleted, "zero maxSteps falls back to the configured default")
}

func TestRunRoutesPageWorkThroughSessionStore(t *testing.T) {
	h := newHarness(t, nil)
	h.oracle.achieveAfter = 1

	result, err := h.orch.Run(context.Background(), defaultRequest(), nil)

	require.NoError(t, err)
	require.True(t, result.GoalAchieved)
	// navigate + (perceive, execute, goal snapshot) for the single step +
	// the final snapshot, each under the session's phase lock.
	assert.Equal(t, int32(5), h.store.withCalls.Load())
	assert.Equal(t, int32(1), h.store.closeCalls.Load(), "session released through the store")
	assert.Equal(t, 1, h.browser.newPageCalls, "one page per run, created through the store")
	assert.Equal(t, int32(1), h.browser.page.closeCount.Load())
}

func TestNewRejectsNilCollaborators(t *testing.T) {
	cfg := config.NewDefaultConfig()
	logger := zap.NewNop()
	s := newSpyStore(&fakeBrowser{page: &fakePage{}})
	p := &fakePerceiver{}
	o := &fakeOracle{}

	_, err := New(nil, logger, s, p, o)
	assert.Error(t, err)
	_, err = New(cfg, nil, s, p, o)
	assert.Error(t, err)
	_, err = New(cfg, logger, nil, p, o)
	assert.Error(t, err)
	_, err = New(cfg, logger, s, nil, o)
	assert.Error(t, err)
	_, err = New(cfg, logger, s, p, nil)
	assert.Error(t, err)
}

// oracleFunc adapts bare functions to the oracle interface for scenario
// scripting.
type oracleFunc struct {
	selectFn func(ctx context.Context, goal string, candidates []schemas.CandidateElement) (schemas.Decision, error)
	checkFn  func(ctx context.Context, goal string, state schemas.PageState) (bool, error)
}

func (o oracleFunc) SelectNextAction(ctx context.Context, goal string, candidates []schemas.CandidateElement) (schemas.Decision, error) {
	return o.selectFn(ctx, goal, candidates)
}

func (o oracleFunc) IsGoalAchieved(ctx context.Context, goal string, state schemas.PageState) (bool, error) {
	return o.checkFn(ctx, goal, state)
}

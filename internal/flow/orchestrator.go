// internal/flow/orchestrator.go
package flow

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shashank9mittal/uxray/api/schemas"
	"github.com/shashank9mittal/uxray/internal/config"
	"github.com/shashank9mittal/uxray/internal/engine"
)

// ExecutorFactory builds the executor for one flow run. It exists so tests
// can substitute a scripted executor for the real action engine.
type ExecutorFactory func(captureArtifacts bool) schemas.Executor

// Orchestrator drives the perceive → decide → execute → check-goal loop for
// a single flow invocation. It owns no browser state itself; a page session
// is created in the store per run, every page touch runs under that
// session's phase lock, and the session is released exactly once on every
// exit path.
type Orchestrator struct {
	cfg         *config.Config
	logger      *zap.Logger
	sessions    schemas.SessionStore
	perceiver   schemas.Perceiver
	oracle      schemas.Oracle
	newExecutor ExecutorFactory
}

// Option customizes orchestrator construction.
type Option func(*Orchestrator)

// WithExecutorFactory replaces the default action engine factory.
func WithExecutorFactory(f ExecutorFactory) Option {
	return func(o *Orchestrator) { o.newExecutor = f }
}

// New wires the pipeline stages into an orchestrator. All collaborators are
// required.
func New(cfg *config.Config, logger *zap.Logger, sessions schemas.SessionStore, perceiver schemas.Perceiver, oracle schemas.Oracle, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session store must not be nil")
	}
	if perceiver == nil {
		return nil, fmt.Errorf("perceiver must not be nil")
	}
	if oracle == nil {
		return nil, fmt.Errorf("oracle must not be nil")
	}

	o := &Orchestrator{
		cfg:       cfg,
		logger:    logger.Named("flow"),
		sessions:  sessions,
		perceiver: perceiver,
		oracle:    oracle,
	}
	o.newExecutor = func(captureArtifacts bool) schemas.Executor {
		return engine.NewEngine(cfg.Network, captureArtifacts, logger)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// validateRequest rejects malformed invocations before any browser resource
// is acquired.
func (o *Orchestrator) validateRequest(req *schemas.FlowRequest) error {
	if strings.TrimSpace(req.Goal) == "" {
		return schemas.NewFlowError(schemas.KindValidation, nil, "goal must not be empty")
	}
	u, err := url.Parse(req.StartLocation)
	if err != nil {
		return schemas.NewFlowError(schemas.KindValidation, err, "start location %q is not a valid URL", req.StartLocation)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return schemas.NewFlowError(schemas.KindValidation, nil, "start location %q must use http or https", req.StartLocation)
	}
	if u.Host == "" {
		return schemas.NewFlowError(schemas.KindValidation, nil, "start location %q has no host", req.StartLocation)
	}

	// Fill unset knobs from configured defaults.
	if req.MaxSteps <= 0 {
		req.MaxSteps = o.cfg.Flow.MaxSteps
	}
	if req.InterStepDelay <= 0 {
		req.InterStepDelay = o.cfg.Flow.InterStepDelay
	}
	return nil
}

// Run executes one flow. The returned FlowResult is populated on every exit
// path, including errors, so callers always see the partial step history.
// progress may be nil.
func (o *Orchestrator) Run(ctx context.Context, req schemas.FlowRequest, progress chan<- schemas.ProgressEvent) (*schemas.FlowResult, error) {
	reporter := NewReporter(progress)

	result := &schemas.FlowResult{
		StartingLocation: req.StartLocation,
		Steps:            []schemas.StepRecord{},
	}

	if err := o.validateRequest(&req); err != nil {
		return result, err
	}

	log := o.logger.With(zap.String("goal", req.Goal), zap.String("start", req.StartLocation))
	log.Info("Starting flow", zap.Int("maxSteps", req.MaxSteps))
	reporter.Report(ctx, schemas.StageInit, 0, "acquiring browser page", nil)

	sessionID, err := o.sessions.Create(ctx)
	if err != nil {
		return result, schemas.NewFlowError(schemas.KindNavigation, err, "failed to acquire browser page")
	}

	// The session is released exactly once, whichever path exits the run.
	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if cerr := o.sessions.Close(closeCtx, sessionID); cerr != nil {
				log.Warn("Failed to close page cleanly", zap.Error(cerr))
			}
		})
	}
	defer release()

	// Best-effort final snapshot, taken before the session goes away.
	defer o.finalize(result, sessionID)

	var nav schemas.NavigationResult
	if err := o.sessions.WithSession(sessionID, func(page schemas.Page) error {
		var nerr error
		nav, nerr = page.Navigate(ctx, req.StartLocation)
		return nerr
	}); err != nil {
		log.Error("Initial navigation failed", zap.Error(err))
		return result, err
	}
	result.StartingLocation = nav.Location
	log.Info("Initial navigation complete",
		zap.String("location", nav.Location),
		zap.Int("status", nav.StatusCode),
		zap.Duration("loadTime", nav.LoadTime))
	reporter.Report(ctx, schemas.StageInit, 5, "navigated to start location",
		map[string]string{"location": nav.Location, "status": strconv.Itoa(nav.StatusCode)})

	executor := o.newExecutor(req.CaptureArtifacts)

	// The loop owns 90 percentage points; INIT took the first 5 and DONE
	// takes the last 5.
	span := 90 / req.MaxSteps
	if span < 1 {
		span = 1
	}

	for step := 1; step <= req.MaxSteps; step++ {
		if err := ctx.Err(); err != nil {
			log.Warn("Flow cancelled", zap.Int("step", step))
			return result, err
		}
		base := 5 + (step-1)*span
		stepLog := log.With(zap.Int("step", step))

		// -- PERCEIVE --
		reporter.Report(ctx, schemas.StagePerceive, base, "perceiving page", nil)
		var candidates []schemas.CandidateElement
		if err := o.sessions.WithSession(sessionID, func(page schemas.Page) error {
			var perr error
			candidates, perr = o.perceiver.Perceive(ctx, page)
			return perr
		}); err != nil {
			stepLog.Error("Perception failed", zap.Error(err))
			return result, err
		}
		if len(candidates) == 0 {
			stepLog.Warn("No actionable candidates, flow is stalled")
			reporter.Report(ctx, schemas.StageDone, 100, "stalled: no actionable elements", nil)
			return result, nil
		}
		stepLog.Debug("Perception complete", zap.Int("candidates", len(candidates)))

		if err := ctx.Err(); err != nil {
			return result, err
		}

		// -- DECIDE --
		reporter.Report(ctx, schemas.StageDecide, base+span/4, "selecting next action", nil)
		decision, err := o.oracle.SelectNextAction(ctx, req.Goal, candidates)
		if err != nil {
			stepLog.Error("Oracle decision failed", zap.Error(err))
			return result, err
		}
		candidate, ok := findCandidate(candidates, decision.SelectedLocalID)
		if !ok {
			// The oracle adapter validates membership; a miss here means the
			// adapter contract was broken.
			return result, schemas.NewFlowError(schemas.KindOracle, nil,
				"decision references unknown candidate %q", decision.SelectedLocalID)
		}
		stepLog.Info("Action selected",
			zap.String("action", string(decision.Action)),
			zap.String("target", decision.SelectedLocalID),
			zap.String("rationale", decision.Rationale))

		if err := ctx.Err(); err != nil {
			return result, err
		}

		// -- EXECUTE --
		reporter.Report(ctx, schemas.StageExecute, base+span/2, "executing action",
			map[string]string{"action": string(decision.Action)})
		var execResult schemas.ExecutionResult
		var location string
		if err := o.sessions.WithSession(sessionID, func(page schemas.Page) error {
			execResult = executor.Execute(ctx, page, candidate, decision)
			loc, lerr := page.Location(ctx)
			if lerr != nil {
				stepLog.Debug("Could not read location after step", zap.Error(lerr))
				return nil
			}
			location = loc
			return nil
		}); err != nil {
			return result, err
		}
		result.Steps = append(result.Steps, schemas.StepRecord{
			StepIndex:         step,
			LocationAfterStep: location,
			Decision:          decision,
			ExecutionResult:   execResult,
			Timestamp:         time.Now().UTC(),
		})
		result.StepsCompleted = step

		if !execResult.Success {
			stepLog.Warn("Action execution failed",
				zap.String("action", string(decision.Action)),
				zap.String("error", execResult.Error))
			if o.cfg.Flow.HaltOnExecutionError {
				return result, engine.ActionError(execResult, decision)
			}
		} else {
			stepLog.Debug("Action executed", zap.String("method", execResult.MethodUsed))
		}

		if err := ctx.Err(); err != nil {
			return result, err
		}

		// -- CHECK_GOAL --
		reporter.Report(ctx, schemas.StageCheckGoal, base+3*span/4, "checking goal", nil)
		state := o.snapshot(ctx, sessionID)
		achieved, err := o.oracle.IsGoalAchieved(ctx, req.Goal, state)
		if err != nil {
			stepLog.Error("Goal check failed", zap.Error(err))
			return result, err
		}
		if achieved {
			result.GoalAchieved = true
			log.Info("Goal achieved", zap.Int("steps", step))
			reporter.Report(ctx, schemas.StageDone, 100, "goal achieved", nil)
			return result, nil
		}

		if step < req.MaxSteps && req.InterStepDelay > 0 {
			select {
			case <-time.After(req.InterStepDelay):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}

	log.Info("Step budget exhausted without achieving goal",
		zap.Int("steps", result.StepsCompleted))
	reporter.Report(ctx, schemas.StageDone, 100, "step budget exhausted", nil)
	return result, nil
}

// snapshot reads the observable page identity for goal checking. Individual
// read failures degrade to empty fields rather than aborting the check.
func (o *Orchestrator) snapshot(ctx context.Context, sessionID string) schemas.PageState {
	var state schemas.PageState
	serr := o.sessions.WithSession(sessionID, func(page schemas.Page) error {
		var err error
		if state.Location, err = page.Location(ctx); err != nil {
			o.logger.Debug("Snapshot: location read failed", zap.Error(err))
		}
		if state.Title, err = page.Title(ctx); err != nil {
			o.logger.Debug("Snapshot: title read failed", zap.Error(err))
		}
		if state.VisibleText, err = page.VisibleText(ctx); err != nil {
			o.logger.Debug("Snapshot: visible text read failed", zap.Error(err))
		}
		return nil
	})
	if serr != nil {
		o.logger.Debug("Snapshot: session unavailable", zap.Error(serr))
	}
	return state
}

// finalize stamps the result with the page's last known identity. It uses a
// fresh short-lived context so it still works when the run's context is the
// reason the flow is exiting; it must run before the session is released.
func (o *Orchestrator) finalize(result *schemas.FlowResult, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	serr := o.sessions.WithSession(sessionID, func(page schemas.Page) error {
		if loc, err := page.Location(ctx); err == nil && loc != "" {
			result.FinalLocation = loc
		}
		if title, err := page.Title(ctx); err == nil {
			result.FinalTitle = title
		}
		return nil
	})
	if serr != nil {
		o.logger.Debug("Finalize: session unavailable", zap.Error(serr))
	}
	if result.FinalLocation == "" {
		result.FinalLocation = result.StartingLocation
	}
}

func findCandidate(candidates []schemas.CandidateElement, localID string) (schemas.CandidateElement, bool) {
	for _, c := range candidates {
		if c.LocalID == localID {
			return c, true
		}
	}
	return schemas.CandidateElement{}, false
}

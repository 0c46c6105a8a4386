// internal/engine/executor.go
// The execution engine maps a (candidate, action) pair onto an ordered
// strategy chain and runs it until one strategy lands. Resilience lives
// here: a page that rejects the nice way of clicking usually accepts one of
// the cruder ways.
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/shashank9mittal/uxray/api/schemas"
	"github.com/shashank9mittal/uxray/internal/config"
)

// artifactTimeout bounds the screenshot side channel so it can never stall a
// step.
const artifactTimeout = 5 * time.Second

// Engine executes validated decisions against the page.
type Engine struct {
	settleTimeout    time.Duration
	quietPeriod      time.Duration
	captureArtifacts bool
	logger           *zap.Logger
}

var _ schemas.Executor = (*Engine)(nil)

// NewEngine creates an execution engine. captureArtifacts attaches a bounded
// screenshot to every result, success or failure.
func NewEngine(netCfg config.NetworkConfig, captureArtifacts bool, logger *zap.Logger) *Engine {
	return &Engine{
		settleTimeout:    netCfg.SettleTimeout,
		quietPeriod:      netCfg.QuietPeriod,
		captureArtifacts: captureArtifacts,
		logger:           logger.Named("engine"),
	}
}

// Execute runs the decision's strategy chain. A result is always returned;
// exhausting every strategy yields success=false with the last error.
func (e *Engine) Execute(ctx context.Context, page schemas.Page, candidate schemas.CandidateElement, decision schemas.Decision) schemas.ExecutionResult {
	log := e.logger.With(
		zap.String("local_id", candidate.LocalID),
		zap.String("action", string(decision.Action)),
	)

	strategies, err := e.buildStrategies(page, candidate, decision)
	if err != nil {
		// Unknown action kinds fail immediately; there is nothing to retry.
		result := schemas.ExecutionResult{Success: false, Error: err.Error()}
		e.attachArtifact(ctx, page, &result)
		return result
	}

	method, runErr := RunOrdered(ctx, log, strategies)

	result := schemas.ExecutionResult{
		Success:    runErr == nil,
		MethodUsed: method,
	}
	if runErr != nil {
		result.Error = runErr.Error()
		log.Warn("All strategies exhausted.", zap.Error(runErr))
	} else {
		log.Info("Action executed.", zap.String("method", method))
		if decision.Action == schemas.ActionClick {
			e.settle(ctx, page, log)
		}
	}

	e.attachArtifact(ctx, page, &result)
	return result
}

// buildStrategies maps the action kind to its ordered chain. All strategies
// for an action share the same (candidate, input) parameters.
func (e *Engine) buildStrategies(page schemas.Page, candidate schemas.CandidateElement, decision schemas.Decision) ([]Strategy, error) {
	selector := schemas.SelectorForLocalID(candidate.LocalID)

	switch decision.Action {
	case schemas.ActionClick:
		return []Strategy{
			{
				// A raw pointer click at the box center bypasses overlay
				// interception entirely.
				Name: "pointer-center",
				Attempt: func(ctx context.Context) error {
					if candidate.BoundingBox == nil {
						return errors.New("no bounding box for pointer click")
					}
					x, y := candidate.BoundingBox.Center()
					return page.ClickAt(ctx, x, y)
				},
			},
			{
				Name: "structural",
				Attempt: func(ctx context.Context) error {
					return page.Click(ctx, selector)
				},
			},
			{
				Name: "forced",
				Attempt: func(ctx context.Context) error {
					return page.ForceClick(ctx, selector)
				},
			},
		}, nil

	case schemas.ActionFill:
		value := decision.InputData
		return []Strategy{
			{
				Name: "focus-type",
				Attempt: func(ctx context.Context) error {
					return page.Fill(ctx, selector, value)
				},
			},
			{
				Name: "clear-set",
				Attempt: func(ctx context.Context) error {
					return page.SetValue(ctx, selector, value)
				},
			},
		}, nil

	case schemas.ActionSelect:
		// The option value rides in decision.InputData. Decision validation
		// currently only accepts inputData on fill, so select runs with an
		// empty value until the decision payload grows a select field;
		// SelectOption still verifies whatever value it is handed.
		return []Strategy{
			{
				Name: "set-option",
				Attempt: func(ctx context.Context) error {
					return page.SelectOption(ctx, selector, decision.InputData)
				},
			},
		}, nil

	default:
		return nil, schemas.NewFlowError(schemas.KindExecution, nil,
			"unsupported action kind %q", decision.Action)
	}
}

// settle waits for page activity to go quiet after a click. Exceeding the
// timeout is logged, never a failure.
func (e *Engine) settle(ctx context.Context, page schemas.Page, log *zap.Logger) {
	settleCtx, cancel := context.WithTimeout(ctx, e.settleTimeout)
	defer cancel()
	if err := page.WaitQuiet(settleCtx, e.quietPeriod); err != nil {
		log.Debug("Post-click settle wait expired.", zap.Error(err))
	}
}

// attachArtifact best-effort captures a screenshot onto the result. Capture
// failure degrades to a nil artifact and never overrides the execution's own
// outcome.
func (e *Engine) attachArtifact(ctx context.Context, page schemas.Page, result *schemas.ExecutionResult) {
	if !e.captureArtifacts {
		return
	}
	captureCtx, cancel := context.WithTimeout(ctx, artifactTimeout)
	defer cancel()

	shot, err := page.CaptureScreenshot(captureCtx)
	if err != nil {
		e.logger.Debug("Artifact capture failed.", zap.Error(err))
		return
	}
	result.Artifact = shot
}

// ActionError renders the engine's failure as a typed execution error for
// callers that halt on execution failures.
func ActionError(result schemas.ExecutionResult, decision schemas.Decision) error {
	if result.Success {
		return nil
	}
	return schemas.NewFlowError(schemas.KindExecution, nil,
		"action %q failed: %s", decision.Action, result.Error)
}

// internal/oracle/adapter.go
package oracle

import (
	"context"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shashank9mittal/uxray/api/schemas"
	"github.com/shashank9mittal/uxray/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// GoalChecker judges whether the goal is satisfied by the observable page
// state. It is a seam: swap it without touching the loop contract.
type GoalChecker func(ctx context.Context, goal string, state schemas.PageState) (bool, error)

// Adapter validates and normalizes the external decision-maker's responses
// into typed decisions. With no LLM client configured it applies a
// deterministic fallback policy instead.
type Adapter struct {
	client      schemas.LLMClient
	goalChecker GoalChecker
	limiter     *rate.Limiter
	temperature float32
	logger      *zap.Logger
}

var _ schemas.Oracle = (*Adapter)(nil)

// Option customizes the adapter.
type Option func(*Adapter)

// WithGoalChecker replaces the goal-achievement check.
func WithGoalChecker(gc GoalChecker) Option {
	return func(a *Adapter) { a.goalChecker = gc }
}

// NewAdapter creates the oracle adapter. client may be nil, in which case
// the deterministic fallback policy selects actions.
func NewAdapter(client schemas.LLMClient, cfg config.OracleConfig, logger *zap.Logger, opts ...Option) *Adapter {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	a := &Adapter{
		client:      client,
		limiter:     rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		temperature: cfg.Temperature,
		logger:      logger.Named("oracle"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// wireDecision is the loosely typed shape coming back from the LLM. Pointer
// fields distinguish absent from empty so validation can be strict.
type wireDecision struct {
	SelectedLocalID string  `json:"selectedLocalId"`
	Action          string  `json:"action"`
	InputData       *string `json:"inputData"`
	Rationale       string  `json:"rationale"`
}

// SelectNextAction asks the decision maker to pick one candidate and action
// for the goal, then validates the response. Malformed responses are never
// repaired; they raise an oracle error.
func (a *Adapter) SelectNextAction(ctx context.Context, goal string, candidates []schemas.CandidateElement) (schemas.Decision, error) {
	if len(candidates) == 0 {
		return schemas.Decision{}, schemas.NewFlowError(schemas.KindOracle, nil,
			"no candidates to decide between")
	}

	if a.client == nil {
		return a.fallbackDecision(candidates)
	}

	if err := a.limiter.Wait(ctx); err != nil {
		return schemas.Decision{}, schemas.NewFlowError(schemas.KindOracle, err,
			"rate limiter interrupted")
	}

	req := schemas.GenerationRequest{
		SystemPrompt: decisionSystemPrompt,
		UserPrompt:   buildDecisionPrompt(goal, candidates),
		Options: schemas.GenerationOptions{
			Temperature:     a.temperature,
			ForceJSONFormat: true,
		},
	}

	raw, err := a.client.GenerateResponse(ctx, req)
	if err != nil {
		return schemas.Decision{}, schemas.NewFlowError(schemas.KindOracle, err,
			"decision maker unreachable")
	}

	var wire wireDecision
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &wire); err != nil {
		return schemas.Decision{}, schemas.NewFlowError(schemas.KindOracle, err,
			"decision response is not valid JSON")
	}

	decision, err := a.validate(wire, candidates)
	if err != nil {
		return schemas.Decision{}, err
	}

	a.logger.Info("Decision selected.",
		zap.String("local_id", decision.SelectedLocalID),
		zap.String("action", string(decision.Action)),
	)
	return decision, nil
}

// validate enforces the decision schema: the selected id must reference a
// member of the candidate set, the action must be a known kind, and
// inputData must be present exactly when the action is fill.
func (a *Adapter) validate(wire wireDecision, candidates []schemas.CandidateElement) (schemas.Decision, error) {
	if wire.SelectedLocalID == "" {
		return schemas.Decision{}, schemas.NewFlowError(schemas.KindOracle, nil,
			"decision is missing selectedLocalId")
	}

	found := false
	for i := range candidates {
		if candidates[i].LocalID == wire.SelectedLocalID {
			found = true
			break
		}
	}
	if !found {
		return schemas.Decision{}, schemas.NewFlowError(schemas.KindOracle, nil,
			"selectedLocalId %q does not reference a candidate from this step", wire.SelectedLocalID)
	}

	action := schemas.ActionType(wire.Action)
	if !schemas.ValidActionTypes[action] {
		return schemas.Decision{}, schemas.NewFlowError(schemas.KindOracle, nil,
			"unknown action kind %q", wire.Action)
	}

	if action == schemas.ActionFill {
		if wire.InputData == nil {
			return schemas.Decision{}, schemas.NewFlowError(schemas.KindOracle, nil,
				"fill action requires inputData")
		}
	} else if wire.InputData != nil {
		return schemas.Decision{}, schemas.NewFlowError(schemas.KindOracle, nil,
			"inputData is only valid for fill actions")
	}

	decision := schemas.Decision{
		SelectedLocalID: wire.SelectedLocalID,
		Action:          action,
		Rationale:       wire.Rationale,
	}
	if wire.InputData != nil {
		decision.InputData = *wire.InputData
	}
	return decision, nil
}

// fallbackDecision is the deterministic policy used when no decision
// capability is configured: the first button or link, clicked.
func (a *Adapter) fallbackDecision(candidates []schemas.CandidateElement) (schemas.Decision, error) {
	for i := range candidates {
		c := &candidates[i]
		if c.Category == schemas.CategoryButton || c.Category == schemas.CategoryLink {
			a.logger.Debug("Fallback policy selected candidate.", zap.String("local_id", c.LocalID))
			return schemas.Decision{
				SelectedLocalID: c.LocalID,
				Action:          schemas.ActionClick,
				Rationale:       "fallback policy: first actionable button or link",
			}, nil
		}
	}
	return schemas.Decision{}, schemas.NewFlowError(schemas.KindOracle, nil,
		"fallback policy found no button or link candidate")
}

// IsGoalAchieved delegates to the configured checker, the LLM, or the
// default token heuristic, in that order of preference.
func (a *Adapter) IsGoalAchieved(ctx context.Context, goal string, state schemas.PageState) (bool, error) {
	if a.goalChecker != nil {
		return a.goalChecker(ctx, goal, state)
	}
	if a.client != nil {
		return a.llmGoalCheck(ctx, goal, state)
	}
	return DefaultGoalHeuristic(goal, state), nil
}

func (a *Adapter) llmGoalCheck(ctx context.Context, goal string, state schemas.PageState) (bool, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return false, schemas.NewFlowError(schemas.KindOracle, err, "rate limiter interrupted")
	}

	req := schemas.GenerationRequest{
		SystemPrompt: goalCheckSystemPrompt,
		UserPrompt:   buildGoalCheckPrompt(goal, state),
		Options: schemas.GenerationOptions{
			Temperature:     0,
			ForceJSONFormat: true,
		},
	}
	raw, err := a.client.GenerateResponse(ctx, req)
	if err != nil {
		return false, schemas.NewFlowError(schemas.KindOracle, err, "goal check unreachable")
	}

	var verdict struct {
		Achieved bool `json:"achieved"`
	}
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &verdict); err != nil {
		return false, schemas.NewFlowError(schemas.KindOracle, err,
			"goal check response is not valid JSON")
	}
	return verdict.Achieved, nil
}

// DefaultGoalHeuristic reports the goal achieved when any lower-cased
// whitespace-separated token of the goal appears as a substring of the
// current location, title, or visible text. Intentionally simplistic; swap
// it via WithGoalChecker rather than hardening it here.
func DefaultGoalHeuristic(goal string, state schemas.PageState) bool {
	haystack := strings.ToLower(state.Location + " " + state.Title + " " + state.VisibleText)
	for _, token := range strings.Fields(strings.ToLower(goal)) {
		if strings.Contains(haystack, token) {
			return true
		}
	}
	return false
}

// stripCodeFences removes a surrounding markdown code fence, which some
// models add even when asked for raw JSON.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

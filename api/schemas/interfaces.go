// api/schemas/interfaces.go
// Canonical interface definitions. Keeping them here (rather than in the
// packages that implement them) establishes the contract at the API level
// and prevents import cycles between the pipeline stages.
package schemas

import (
	"context"
	"time"
)

// Page is the handle to one live browser tab. It is the introspection and
// action surface the pipeline stages share. Implementations must be safe to
// call from a single flow goroutine; callers sharing a page across flows
// must serialize access themselves.
type Page interface {
	// Navigate loads a location and reports the HTTP status. A status >= 400
	// or a network/timeout condition is surfaced as a navigation failure,
	// not a generic error.
	Navigate(ctx context.Context, location string) (NavigationResult, error)

	Location(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Viewport(ctx context.Context) (Viewport, error)
	VisibleText(ctx context.Context) (string, error)

	// Evaluate runs a read/query expression against the live document and
	// unmarshals the result into out.
	Evaluate(ctx context.Context, expression string, out interface{}) error

	// CaptureScreenshot returns a bounded-size JPEG of the current view.
	CaptureScreenshot(ctx context.Context) ([]byte, error)

	// WaitQuiet blocks until network activity has been quiet for the given
	// period, or ctx expires.
	WaitQuiet(ctx context.Context, quiet time.Duration) error

	// -- Action surface used by the execution engine --

	ClickAt(ctx context.Context, x, y float64) error
	Click(ctx context.Context, selector string) error
	ForceClick(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	SetValue(ctx context.Context, selector, value string) error
	SelectOption(ctx context.Context, selector, value string) error

	Close(ctx context.Context) error
}

// BrowserManager owns the browser process and hands out page sessions.
type BrowserManager interface {
	NewPage(ctx context.Context) (Page, error)
	Shutdown(ctx context.Context) error
}

// SessionStore tracks page sessions by identifier and serializes access to
// each: WithSession holds the session's phase lock, so two callers sharing
// one session never interleave page work. Flow callers acquire pages through
// a store rather than from the manager directly.
type SessionStore interface {
	Create(ctx context.Context) (string, error)
	WithSession(id string, fn func(page Page) error) error
	Close(ctx context.Context, id string) error
}

// PageState is a snapshot of the observable page identity, handed to the
// oracle for goal checking.
type PageState struct {
	Location    string
	Title       string
	VisibleText string
}

// Oracle is the external decision-making capability. SelectNextAction is
// keyed on (goal, ranked candidate list); IsGoalAchieved on (goal, state).
type Oracle interface {
	SelectNextAction(ctx context.Context, goal string, candidates []CandidateElement) (Decision, error)
	IsGoalAchieved(ctx context.Context, goal string, state PageState) (bool, error)
}

// Perceiver turns a live page into a ranked, enriched candidate list.
type Perceiver interface {
	Perceive(ctx context.Context, page Page) ([]CandidateElement, error)
}

// Executor runs a validated decision against the page.
type Executor interface {
	Execute(ctx context.Context, page Page, candidate CandidateElement, decision Decision) ExecutionResult
}

// GenerationOptions tunes one LLM generation call.
type GenerationOptions struct {
	Temperature     float32
	ForceJSONFormat bool
}

// GenerationRequest is the provider-agnostic LLM request contract.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Options      GenerationOptions
}

// LLMClient abstracts the language-model provider behind the oracle.
type LLMClient interface {
	GenerateResponse(ctx context.Context, req GenerationRequest) (string, error)
}

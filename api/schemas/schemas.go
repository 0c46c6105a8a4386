// api/schemas/schemas.go
// Canonical data model for the flow pipeline. All packages depend on these
// types rather than on each other, which keeps the import graph acyclic.
package schemas

import "time"

// ElementCategory classifies a candidate by the kind of interaction it affords.
type ElementCategory string

const (
	CategoryButton      ElementCategory = "button"
	CategoryLink        ElementCategory = "link"
	CategoryInput       ElementCategory = "input"
	CategoryInteractive ElementCategory = "interactive"
)

// ActionType is the vocabulary of actions the oracle may select.
type ActionType string

const (
	ActionClick  ActionType = "click"
	ActionFill   ActionType = "fill"
	ActionSelect ActionType = "select"
)

// ValidActionTypes enumerates the known action kinds for validation.
var ValidActionTypes = map[ActionType]bool{
	ActionClick:  true,
	ActionFill:   true,
	ActionSelect: true,
}

// BoundingBox is an element's layout rectangle in CSS pixels.
type BoundingBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the geometric center of the box.
func (b BoundingBox) Center() (float64, float64) {
	return b.X + b.Width/2, b.Y + b.Height/2
}

// Area returns the box area. Zero-area boxes mark unrendered elements.
func (b BoundingBox) Area() float64 {
	return b.Width * b.Height
}

// Viewport holds the rendering surface dimensions in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ElementContext carries best-effort textual surroundings of a candidate.
// Every field is optional; absence must never block decision-making.
type ElementContext struct {
	Label       string `json:"label,omitempty"`
	ParentText  string `json:"parentText,omitempty"`
	SiblingText string `json:"siblingText,omitempty"`
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	ClassName   string `json:"className,omitempty"`
}

// CandidateElement is a structurally identified interactive region of a page.
// LocalID is minted fresh each perception pass and is only valid within the
// step that produced it; no component may hold one across steps.
type CandidateElement struct {
	LocalID       string          `json:"localId"`
	Tag           string          `json:"tag"`
	Category      ElementCategory `json:"category"`
	Text          string          `json:"text,omitempty"`
	AriaLabel     string          `json:"ariaLabel,omitempty"`
	Href          string          `json:"href,omitempty"`
	Placeholder   string          `json:"placeholder,omitempty"`
	InputType     string          `json:"inputType,omitempty"`
	BoundingBox   *BoundingBox    `json:"boundingBox,omitempty"`
	LocationScore int             `json:"locationScore"`
	Context       *ElementContext `json:"context,omitempty"`
}

// Decision is the oracle's validated choice of what to do next.
type Decision struct {
	SelectedLocalID string     `json:"selectedLocalId"`
	Action          ActionType `json:"action"`
	InputData       string     `json:"inputData,omitempty"`
	Rationale       string     `json:"rationale,omitempty"`
}

// ExecutionResult reports the outcome of running a decision against the page.
type ExecutionResult struct {
	Success    bool   `json:"success"`
	MethodUsed string `json:"methodUsed,omitempty"`
	Error      string `json:"error,omitempty"`
	// Artifact is an optional observability capture (screenshot bytes).
	// Capture failure never overrides the execution's own outcome.
	Artifact []byte `json:"artifact,omitempty"`
}

// StepRecord is the immutable record of one completed execute phase.
type StepRecord struct {
	StepIndex         int             `json:"stepIndex"`
	LocationAfterStep string          `json:"locationAfterStep"`
	Decision          Decision        `json:"decision"`
	ExecutionResult   ExecutionResult `json:"executionResult"`
	Timestamp         time.Time       `json:"timestamp"`
}

// FlowRequest is the invocation contract for one flow run.
type FlowRequest struct {
	StartLocation    string        `json:"startLocation"`
	Goal             string        `json:"goal"`
	MaxSteps         int           `json:"maxSteps"`
	InterStepDelay   time.Duration `json:"interStepDelayMs"`
	CaptureArtifacts bool          `json:"captureArtifacts"`
}

// FlowResult accumulates step records across a whole invocation and is
// finalized exactly once, on every exit path.
type FlowResult struct {
	GoalAchieved     bool         `json:"goalAchieved"`
	StartingLocation string       `json:"startingLocation"`
	FinalLocation    string       `json:"finalLocation"`
	FinalTitle       string       `json:"finalTitle"`
	StepsCompleted   int          `json:"stepsCompleted"`
	Steps            []StepRecord `json:"steps"`
}

// Stage identifies which phase of the loop a progress event belongs to.
type Stage string

const (
	StageInit      Stage = "INIT"
	StagePerceive  Stage = "PERCEIVE"
	StageDecide    Stage = "DECIDE"
	StageExecute   Stage = "EXECUTE"
	StageCheckGoal Stage = "CHECK_GOAL"
	StageDone      Stage = "DONE"
)

// ProgressEvent is one entry in the ordered progress stream of a flow.
// Percent is monotonically non-decreasing within a single flow, 0-100.
type ProgressEvent struct {
	Stage    Stage             `json:"stage"`
	Percent  int               `json:"percent"`
	Message  string            `json:"message"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NavigationResult reports the outcome of a page navigation.
type NavigationResult struct {
	Location   string        `json:"location"`
	StatusCode int           `json:"statusCode"`
	LoadTime   time.Duration `json:"loadTimeMs"`
}

// internal/perception/filter.go
package perception

import (
	"go.uber.org/zap"

	"github.com/shashank9mittal/uxray/internal/config"
)

// Filter removes invisible and meaningless candidates. The two passes are
// independently toggleable.
type Filter struct {
	cfg    config.PerceptionConfig
	logger *zap.Logger
}

// NewFilter creates a candidate filter with the given toggles.
func NewFilter(cfg config.PerceptionConfig, logger *zap.Logger) *Filter {
	return &Filter{cfg: cfg, logger: logger.Named("filter")}
}

// Apply runs the enabled filters in order and returns the survivors. The
// result is always a subset of the input, in input order.
func (f *Filter) Apply(candidates []RawCandidate) []RawCandidate {
	out := candidates
	if f.cfg.VisibilityFilter {
		out = filterBy(out, isRendered)
	}
	if f.cfg.SemanticFilter {
		out = filterBy(out, func(c *RawCandidate) bool { return c.hasSemanticSignal() })
	}
	if dropped := len(candidates) - len(out); dropped > 0 {
		f.logger.Debug("Filtered candidates.",
			zap.Int("in", len(candidates)),
			zap.Int("out", len(out)),
			zap.Int("dropped", dropped),
		)
	}
	return out
}

// isRendered reports whether the candidate is currently rendered. Candidates
// without a resolvable bounding box are kept; they simply score zero later.
func isRendered(c *RawCandidate) bool {
	if c.StyleHidden {
		return false
	}
	box := c.BoundingBox
	if box == nil {
		return true
	}
	if box.Area() == 0 {
		return false
	}
	// Boxes entirely above or left of the document origin can never be
	// scrolled into view; below or right can.
	if box.X+box.Width <= 0 || box.Y+box.Height <= 0 {
		return false
	}
	return true
}

func filterBy(candidates []RawCandidate, keep func(*RawCandidate) bool) []RawCandidate {
	out := make([]RawCandidate, 0, len(candidates))
	for i := range candidates {
		if keep(&candidates[i]) {
			out = append(out, candidates[i])
		}
	}
	return out
}

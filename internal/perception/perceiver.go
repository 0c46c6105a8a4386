// internal/perception/perceiver.go
// Perception is the first phase of every step: extract raw interactive
// candidates, filter out the invisible and the meaningless, rank the rest by
// location score, and attach nearby textual context.
package perception

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/shashank9mittal/uxray/api/schemas"
	"github.com/shashank9mittal/uxray/internal/config"
)

// Perceiver wires the extractor, filter, scorer, and enricher into the
// single Perceive operation the orchestrator calls.
type Perceiver struct {
	cfg       config.PerceptionConfig
	logger    *zap.Logger
	extractor *Extractor
	filter    *Filter
	enricher  *Enricher
}

var _ schemas.Perceiver = (*Perceiver)(nil)

// NewPerceiver assembles the perception pipeline.
func NewPerceiver(cfg config.PerceptionConfig, logger *zap.Logger) *Perceiver {
	log := logger.Named("perception")
	return &Perceiver{
		cfg:       cfg,
		logger:    log,
		extractor: NewExtractor(log),
		filter:    NewFilter(cfg, log),
		enricher:  NewEnricher(cfg.EnrichConcurrency, log),
	}
}

// Perceive returns the ranked, enriched candidate list for the current page
// state. LocalIDs in the result are scoped to this call only.
func (p *Perceiver) Perceive(ctx context.Context, page schemas.Page) ([]schemas.CandidateElement, error) {
	nonce := newStepNonce()

	raw, err := p.extractor.Extract(ctx, page, nonce)
	if err != nil {
		return nil, schemas.NewFlowError(schemas.KindPerception, err, "candidate extraction failed")
	}

	surviving := p.filter.Apply(raw)

	viewport := schemas.Viewport{}
	if p.cfg.LocationScoring {
		vp, vpErr := page.Viewport(ctx)
		if vpErr != nil {
			// Scoring degrades to zero scores; perception itself still works.
			p.logger.Warn("Could not read viewport; location scores default to zero.", zap.Error(vpErr))
		} else {
			viewport = vp
		}
	}

	candidates := make([]schemas.CandidateElement, 0, len(surviving))
	for _, rc := range surviving {
		c := schemas.CandidateElement{
			LocalID:     rc.LocalID,
			Tag:         rc.Tag,
			Category:    rc.Category,
			Text:        rc.Text,
			AriaLabel:   rc.AriaLabel,
			Href:        rc.Href,
			Placeholder: rc.Placeholder,
			InputType:   rc.InputType,
			BoundingBox: rc.BoundingBox,
		}
		if p.cfg.LocationScoring {
			c.LocationScore = LocationScore(rc.BoundingBox, viewport)
		}
		candidates = append(candidates, c)
	}

	if p.cfg.LocationScoring {
		SortByScore(candidates)
	}

	p.enricher.Enrich(ctx, page, candidates)

	p.logger.Info("Perception complete.",
		zap.Int("extracted", len(raw)),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// newStepNonce mints the per-step identifier prefix. A fresh nonce each pass
// is what makes stale LocalIDs from earlier steps unresolvable.
func newStepNonce() string {
	id := uuid.New().String()
	return "ux-" + strings.SplitN(id, "-", 2)[0]
}

// internal/perception/enricher.go
package perception

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shashank9mittal/uxray/api/schemas"
)

// enrichmentScript re-identifies a candidate in the live page and collects
// nearby textual context. Matching order: same-tag element whose box agrees
// within the pixel tolerance per dimension, then exact text, then give up and
// return null. Parent text longer than its cap is discarded outright to
// avoid pulling in whole-page noise.
const enrichmentScript = `
(() => {
	const tag = %s;
	const text = %s;
	const box = %s;
	const tol = 5;
	const parentCap = 200;
	const siblingCap = 100;

	const near = (a, b) => Math.abs(a - b) <= tol;
	const matchesBox = (el) => {
		if (!box) return false;
		const r = el.getBoundingClientRect();
		return near(r.x, box.x) && near(r.y, box.y) &&
			near(r.width, box.width) && near(r.height, box.height);
	};

	const pool = document.getElementsByTagName(tag);
	let target = null;
	for (const el of pool) {
		if (matchesBox(el)) { target = el; break; }
	}
	if (!target && text) {
		for (const el of pool) {
			if ((el.textContent || "").trim().replace(/\s+/g, " ") === text) {
				target = el;
				break;
			}
		}
	}
	if (!target) return null;

	const clean = (s) => (s || "").trim().replace(/\s+/g, " ");

	let label = "";
	if (target.id) {
		const lab = document.querySelector('label[for="' + target.id + '"]');
		if (lab) label = clean(lab.textContent);
	}

	let parentText = "";
	if (target.parentElement) {
		const pt = clean(target.parentElement.textContent);
		if (pt.length <= parentCap) parentText = pt;
	}

	let siblingText = "";
	const prev = target.previousElementSibling;
	const next = target.nextElementSibling;
	if (prev) siblingText = clean(prev.textContent);
	if (!siblingText && next) siblingText = clean(next.textContent);
	siblingText = siblingText.slice(0, siblingCap);

	return {
		label: label,
		parentText: parentText,
		siblingText: siblingText,
		id: target.id || "",
		name: target.getAttribute("name") || "",
		className: target.className || ""
	};
})()`

// Enricher attaches nearby textual context to filtered candidates. It is
// best effort: a candidate that cannot be re-identified gets a minimal
// context record instead of failing the step.
type Enricher struct {
	concurrency int
	logger      *zap.Logger
}

// NewEnricher creates a context enricher with the given fan-out bound.
func NewEnricher(concurrency int, logger *zap.Logger) *Enricher {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Enricher{concurrency: concurrency, logger: logger.Named("enricher")}
}

// Enrich fills the Context of each candidate in place. Candidates are read
// concurrently up to the fan-out bound; results land by index, so the final
// ordering never depends on completion order.
func (e *Enricher) Enrich(ctx context.Context, page schemas.Page, candidates []schemas.CandidateElement) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for i := range candidates {
		i := i
		g.Go(func() error {
			candidates[i].Context = e.enrichOne(gctx, page, &candidates[i])
			return nil
		})
	}
	// Workers never return errors; enrichment failures degrade per candidate.
	_ = g.Wait()
}

func (e *Enricher) enrichOne(ctx context.Context, page schemas.Page, c *schemas.CandidateElement) *schemas.ElementContext {
	var boxJSON string
	if c.BoundingBox != nil {
		b, err := json.Marshal(c.BoundingBox)
		if err != nil {
			boxJSON = "null"
		} else {
			boxJSON = string(b)
		}
	} else {
		boxJSON = "null"
	}

	expr := fmt.Sprintf(enrichmentScript, jsQuote(c.Tag), jsQuote(c.Text), boxJSON)

	var enriched *schemas.ElementContext
	if err := page.Evaluate(ctx, expr, &enriched); err != nil {
		e.logger.Debug("Context enrichment failed for candidate.",
			zap.String("local_id", c.LocalID), zap.Error(err))
		return &schemas.ElementContext{}
	}
	if enriched == nil {
		// Re-identification failed; context stays minimal.
		return &schemas.ElementContext{}
	}
	return enriched
}

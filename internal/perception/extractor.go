// internal/perception/extractor.go
package perception

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/shashank9mittal/uxray/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RawCandidate is a candidate as it comes out of the extraction script,
// before filtering and scoring. StyleHidden and the box carry the rendering
// facts the visibility filter needs, so no second round trip is required.
type RawCandidate struct {
	LocalID     string                   `json:"localId"`
	Tag         string                   `json:"tag"`
	Category    schemas.ElementCategory  `json:"category"`
	Text        string                   `json:"text"`
	AriaLabel   string                   `json:"ariaLabel"`
	Href        string                   `json:"href"`
	Placeholder string                   `json:"placeholder"`
	InputType   string                   `json:"inputType"`
	Role        string                   `json:"role"`
	BoundingBox *schemas.BoundingBox     `json:"box"`
	StyleHidden bool                     `json:"styleHidden"`
}

// extractionScript merges four independent queries into one evaluation:
// buttons/submit controls, links with non-trivial targets, fillable fields,
// and generic interactive areas not already covered. Each discovered element
// is stamped with the per-step discovery attribute so later phases can target
// it. Failures on a single element drop that element, never the whole pass.
const extractionScript = `
(() => {
	const nonce = %s;
	const attr = %s;

	const seen = new Set();
	const out = [];
	let counter = 0;

	const isTrivialHref = (href) => {
		if (!href) return true;
		const h = href.trim().toLowerCase();
		return h === "" || h === "#" || h.startsWith("javascript:");
	};

	const labelText = (el) => {
		let t = (el.textContent || "").trim().replace(/\s+/g, " ");
		if (!t) t = (el.getAttribute("aria-label") || "").trim();
		if (!t) t = (el.value || "").trim();
		return t.slice(0, 120);
	};

	const record = (el, category) => {
		if (seen.has(el)) return;
		seen.add(el);
		try {
			const style = window.getComputedStyle(el);
			const rect = el.getBoundingClientRect();
			const localId = nonce + "-" + (counter++);
			el.setAttribute(attr, localId);
			out.push({
				localId: localId,
				tag: el.tagName.toLowerCase(),
				category: category,
				text: labelText(el),
				ariaLabel: el.getAttribute("aria-label") || "",
				href: el.getAttribute("href") || "",
				placeholder: el.getAttribute("placeholder") || "",
				inputType: (el.getAttribute("type") || "").toLowerCase(),
				role: el.getAttribute("role") || "",
				// Viewport-relative coordinates: the scorer compares against
				// the viewport and the engine clicks at these coordinates.
				box: rect ? {
					x: rect.x,
					y: rect.y,
					width: rect.width,
					height: rect.height
				} : null,
				styleHidden: style.display === "none" ||
					style.visibility === "hidden" ||
					style.opacity === "0"
			});
		} catch (e) { /* drop this candidate, keep going */ }
	};

	// Query 1: buttons and submit controls.
	document.querySelectorAll('button, input[type="submit"]')
		.forEach(el => record(el, "button"));

	// Query 2: links with non-trivial targets.
	document.querySelectorAll("a[href]").forEach(el => {
		if (!isTrivialHref(el.getAttribute("href"))) record(el, "link");
	});

	// Query 3: fillable fields.
	document.querySelectorAll("input, textarea, select").forEach(el => {
		const t = (el.getAttribute("type") || "").toLowerCase();
		if (t === "hidden" || t === "submit" || t === "reset") return;
		record(el, "input");
	});

	// Query 4: generic interactive areas not already covered.
	document.querySelectorAll('[onclick], [role="button"], [role="link"], [tabindex]')
		.forEach(el => {
			const ti = el.getAttribute("tabindex");
			const hasTab = ti !== null && parseInt(ti, 10) >= 0;
			const hasHandler = el.hasAttribute("onclick");
			const role = el.getAttribute("role");
			const hasRole = role === "button" || role === "link";
			if (hasHandler || hasRole || hasTab) record(el, "interactive");
		});

	return out;
})()`

// Extractor scans a page and returns raw interactive candidates.
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates a candidate extractor.
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger.Named("extractor")}
}

// Extract runs the discovery script with the given per-step nonce. The nonce
// scopes every minted LocalID to this perception pass.
func (e *Extractor) Extract(ctx context.Context, page schemas.Page, nonce string) ([]RawCandidate, error) {
	expr := fmt.Sprintf(extractionScript, jsQuote(nonce), jsQuote(schemas.DiscoveryAttr))

	var payload []jsoniter.RawMessage
	if err := page.Evaluate(ctx, expr, &payload); err != nil {
		return nil, fmt.Errorf("extraction script failed: %w", err)
	}

	candidates := make([]RawCandidate, 0, len(payload))
	for _, raw := range payload {
		var c RawCandidate
		if err := json.Unmarshal(raw, &c); err != nil {
			// A malformed entry drops that candidate, never the whole call.
			e.logger.Debug("Dropping malformed candidate payload.", zap.Error(err))
			continue
		}
		if c.LocalID == "" || c.Tag == "" {
			continue
		}
		candidates = append(candidates, c)
	}

	e.logger.Debug("Extraction complete.", zap.Int("candidates", len(candidates)))
	return candidates, nil
}

// jsQuote renders s as a JavaScript string literal.
func jsQuote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// hasSemanticSignal reports whether anything about the candidate could let a
// reasoner judge its purpose.
func (c *RawCandidate) hasSemanticSignal() bool {
	return strings.TrimSpace(c.Text) != "" ||
		strings.TrimSpace(c.AriaLabel) != "" ||
		strings.TrimSpace(c.Placeholder) != "" ||
		strings.TrimSpace(c.Href) != "" ||
		strings.TrimSpace(c.Role) != ""
}

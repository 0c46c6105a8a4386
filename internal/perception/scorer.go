// internal/perception/scorer.go
package perception

import (
	"math"
	"sort"

	"github.com/shashank9mittal/uxray/api/schemas"
)

// LocationScore computes the deterministic ranking value for a bounding box
// against the viewport. It is a pure function: identical inputs always yield
// identical output. Candidates without a box score zero.
func LocationScore(box *schemas.BoundingBox, vp schemas.Viewport) int {
	if box == nil || vp.Width <= 0 || vp.Height <= 0 {
		return 0
	}

	vpW := float64(vp.Width)
	vpH := float64(vp.Height)
	score := 0

	fullyInViewport := box.X >= 0 && box.Y >= 0 &&
		box.X+box.Width <= vpW && box.Y+box.Height <= vpH

	if fullyInViewport {
		score += 100
	} else {
		score -= 50
	}

	cx, cy := box.Center()

	// Upper-half bonus keys off the box's vertical position.
	if cy < vpH/2 {
		score += 50
	}

	// Radial proximity bonus: closer to the viewport center is better.
	dx := cx - vpW/2
	dy := cy - vpH/2
	d := math.Hypot(dx, dy)
	diag := math.Hypot(vpW, vpH)
	score += int(math.Round(50 * (1 - d/diag)))

	// Footer heuristic: content in the bottom fifth is rarely the goal.
	if cy > vpH*0.8 {
		score -= 20
	}

	return score
}

// SortByScore orders candidates by location score descending. The sort is
// stable, so ties keep their extraction order.
func SortByScore(candidates []schemas.CandidateElement) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].LocationScore > candidates[j].LocationScore
	})
}

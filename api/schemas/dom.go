// api/schemas/dom.go
package schemas

import "fmt"

// DiscoveryAttr is the data attribute stamped onto elements during
// perception. Its value is the candidate's LocalID, so the attribute shares
// the LocalID's lifetime: valid for one step only.
const DiscoveryAttr = "data-uxray-id"

// SelectorForLocalID builds the CSS selector that targets the element a
// candidate was minted from, within the same step.
func SelectorForLocalID(localID string) string {
	return fmt.Sprintf(`[%s="%s"]`, DiscoveryAttr, localID)
}

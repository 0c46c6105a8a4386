// api/schemas/schemas_test.go
package schemas

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundingBoxCenterAndArea(t *testing.T) {
	box := BoundingBox{X: 100, Y: 200, Width: 80, Height: 40}
	cx, cy := box.Center()
	assert.Equal(t, 140.0, cx)
	assert.Equal(t, 220.0, cy)
	assert.Equal(t, 3200.0, box.Area())

	assert.Equal(t, 0.0, BoundingBox{Width: 0, Height: 50}.Area())
}

func TestSelectorForLocalID(t *testing.T) {
	assert.Equal(t, `[data-uxray-id="ux-3f2c"]`, SelectorForLocalID("ux-3f2c"))
}

func TestStepRecordSerializesForReplay(t *testing.T) {
	record := StepRecord{
		StepIndex:         2,
		LocationAfterStep: "https://example.com/cart",
		Decision: Decision{
			SelectedLocalID: "ux-7",
			Action:          ActionClick,
			Rationale:       "the add-to-cart button advances the goal",
		},
		ExecutionResult: ExecutionResult{Success: true, MethodUsed: "pointer-center"},
		Timestamp:       time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(record)
	require.NoError(t, err)

	var decoded StepRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, record, decoded)
}

func TestValidActionTypes(t *testing.T) {
	assert.True(t, ValidActionTypes[ActionClick])
	assert.True(t, ValidActionTypes[ActionFill])
	assert.True(t, ValidActionTypes[ActionSelect])
	assert.False(t, ValidActionTypes[ActionType("hover")])
}

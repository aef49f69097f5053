package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchStagesEphemeralData(t *testing.T) {
	m := New(samplePayload(), "t", "o", "wf", 1, "task", "")
	require.Nil(t, m.EphemeralData())

	staged := map[string]any{"fx_rate": "1.0842", "valuta": "2024-01-18"}
	require.NoError(t, m.Fetch(staged, "Staged FX context", "wf", 1, "t-fetch"))

	assert.Equal(t, staged, m.EphemeralData())
	assert.Equal(t, uint16(2), m.Version)
	require.Len(t, m.Audit, 2)
	entry := m.Audit[1]
	assert.Equal(t, "Staged FX context", entry.Description)
	assert.Empty(t, entry.Changes)
}

func TestFetchDefaultDescription(t *testing.T) {
	m := New(samplePayload(), "t", "o", "wf", 1, "task", "")
	require.NoError(t, m.Fetch(nil, "", "wf", 1, "t-fetch"))
	assert.Equal(t, "Fetch applied", m.Audit[1].Description)
}

func TestFetchThenEnrichUsesStagedContext(t *testing.T) {
	m := New(samplePayload(), "t", "o", "wf", 1, "task", "")
	m.Data = map[string]any{}

	require.NoError(t, m.Fetch(map[string]any{"rate": "1.0842"}, "", "wf", 1, "t-fetch"))

	rules := []EnrichmentRule{{Field: "data.fx.rate", Logic: map[string]any{"var": []any{"rate"}}}}
	require.NoError(t, m.Enrich(rules, m.EphemeralData(), "", "wf", 1, "t-enrich"))

	data := m.Data.(map[string]any)
	fx := data["fx"].(map[string]any)
	assert.Equal(t, "1.0842", fx["rate"])
	assert.Equal(t, uint16(3), m.Version)
	assert.Len(t, m.Audit, 3)
}

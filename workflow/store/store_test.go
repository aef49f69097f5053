package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/payflowio/payflow/message"
	"github.com/payflowio/payflow/workflow"
)

// marshalDoc builds the bson.Raw a cursor would hand back for a stored
// workflow document.
func marshalDoc(t *testing.T, doc bson.M) bson.Raw {
	t.Helper()
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	return bson.Raw(raw)
}

func TestDecodeWorkflow(t *testing.T) {
	raw := marshalDoc(t, bson.M{
		"_id":         bson.NewObjectID(),
		"id":          "wf-1",
		"name":        "payment-enrichment",
		"description": "Enrich pacs.008 payments",
		"version":     int32(3),
		"tenant":      "tenant1",
		"origin":      "api",
		"status":      "Active",
		"condition": bson.M{
			"==": bson.A{bson.M{"var": bson.A{"scheme"}}, "sepa"},
		},
		"input_topic":         "message.incoming",
		"persist_on_complete": true,
		"tasks": bson.A{
			bson.M{
				"task_id":        "t1",
				"name":           "parse-payload",
				"message_status": "Received",
				"prev_task":      "initiate",
				"function":       "Parse",
			},
			bson.M{
				"task_id":        "t2",
				"name":           "enrich-fx",
				"message_status": "Received",
				"prev_task":      "t1",
				"function":       "Enrich",
				"input": bson.A{
					bson.M{
						"field": "data.fx.rate",
						"logic": bson.M{"var": bson.A{"rate"}},
					},
				},
			},
		},
	})

	w, err := decodeWorkflow(raw)
	require.NoError(t, err)

	assert.Equal(t, "wf-1", w.ID)
	assert.Equal(t, uint16(3), w.Version)
	assert.Equal(t, "tenant1", w.Tenant)
	assert.Equal(t, workflow.StatusActive, w.Status)
	assert.Equal(t, "message.incoming", w.InputTopic)
	assert.True(t, w.PersistOnComplete)

	require.Len(t, w.Tasks, 2)
	assert.Equal(t, "t1", w.Tasks[0].ID)
	assert.Equal(t, workflow.FunctionParse, w.Tasks[0].Function)
	assert.Equal(t, message.StatusReceived, w.Tasks[0].MessageStatus)

	// Condition and input decode as plain JSON trees, not bson documents,
	// so they feed the rule evaluator directly.
	cond, ok := w.Condition.(map[string]any)
	require.True(t, ok)
	_, hasOp := cond["=="]
	assert.True(t, hasOp)

	input, ok := w.Tasks[1].Input.([]any)
	require.True(t, ok)
	rule := input[0].(map[string]any)
	assert.Equal(t, "data.fx.rate", rule["field"])
	logic := rule["logic"].(map[string]any)
	assert.Equal(t, []any{"rate"}, logic["var"])
}

func TestDecodeWorkflowLegacyStatusSpelling(t *testing.T) {
	raw := marshalDoc(t, bson.M{
		"id": "wf-legacy",
		"tasks": bson.A{
			bson.M{"task_id": "t1", "message_status": "Recieved", "function": "Parse"},
		},
	})

	w, err := decodeWorkflow(raw)
	require.NoError(t, err)
	assert.Equal(t, message.StatusReceived, w.Tasks[0].MessageStatus)
}

func TestDecodeWorkflowRejectsBadDocument(t *testing.T) {
	raw := marshalDoc(t, bson.M{
		"id":      "wf-bad",
		"version": "not-a-number",
	})

	_, err := decodeWorkflow(raw)
	require.Error(t, err)
}

func TestNewLoaderValidation(t *testing.T) {
	ctx := context.Background()

	_, err := NewLoader(ctx, Options{Database: "payflow"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uri")

	_, err = NewLoader(ctx, Options{URI: "mongodb://127.0.0.1:27017"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database")
}

package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/payflowio/payflow/message"
	"github.com/payflowio/payflow/processor"
)

const pacs008Body = `<?xml version="1.0" encoding="UTF-8"?>
<Document xmlns="urn:iso:std:iso:20022:tech:xsd:pacs.008.001.07">
  <FIToFICstmrCdtTrf>
    <GrpHdr><MsgId>MSG-1</MsgId></GrpHdr>
  </FIToFICstmrCdtTrf>
</Document>`

type fakePub struct {
	err       error
	published []*nats.Msg
}

func (f *fakePub) PublishMsg(_ context.Context, msg *nats.Msg, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.published = append(f.published, msg)
	return &jetstream.PubAck{Stream: "PAYFLOW", Sequence: uint64(len(f.published))}, nil
}

func newTestServer(pub Publisher) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(pub, Config{InputTopic: "message.incoming"}, logger)
}

func TestInitiateProducesMessage(t *testing.T) {
	pub := &fakePub{}
	handler := newTestServer(pub).Routes()

	req := httptest.NewRequest(http.MethodPost, "/initiate", strings.NewReader(pacs008Body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp["message_id"])

	require.Len(t, pub.published, 1)
	produced := pub.published[0]
	assert.Equal(t, "message.incoming", produced.Subject)
	assert.Equal(t, resp["message_id"], produced.Header.Get(processor.KeyHeader))

	var m message.Message
	require.NoError(t, json.Unmarshal(produced.Data, &m))
	assert.Equal(t, "tenant1", m.Tenant)
	assert.Equal(t, "api", m.Origin)
	assert.Equal(t, message.StatusReceived, m.Progress.Status)
	assert.Equal(t, []byte(pacs008Body), m.Payload.Content)
	require.Len(t, m.Audit, 1)
	assert.Equal(t, "Payment created", m.Audit[0].Description)
}

func TestInitiateRoutingHeaders(t *testing.T) {
	pub := &fakePub{}
	handler := newTestServer(pub).Routes()

	req := httptest.NewRequest(http.MethodPost, "/initiate", strings.NewReader(pacs008Body))
	req.Header.Set(TenantHeader, "acme-bank")
	req.Header.Set(OriginHeader, "sftp")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, pub.published, 1)

	var m message.Message
	require.NoError(t, json.Unmarshal(pub.published[0].Data, &m))
	assert.Equal(t, "acme-bank", m.Tenant)
	assert.Equal(t, "sftp", m.Origin)
}

func TestInitiateRejectsEmptyBody(t *testing.T) {
	pub := &fakePub{}
	handler := newTestServer(pub).Routes()

	req := httptest.NewRequest(http.MethodPost, "/initiate", strings.NewReader(""))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errs []string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errs))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "empty")
	assert.Empty(t, pub.published)
}

func TestInitiateReportsBrokerFailure(t *testing.T) {
	pub := &fakePub{err: errors.New("no responders")}
	handler := newTestServer(pub).Routes()

	req := httptest.NewRequest(http.MethodPost, "/initiate", strings.NewReader(pacs008Body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)

	var errs []string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&errs))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "broker delivery error")
}

func TestHealthz(t *testing.T) {
	handler := newTestServer(&fakePub{}).Routes()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	handler := newTestServer(&fakePub{}).Routes()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "payflow_ingress_messages_initiated_total")
}

func TestConfigDefaults(t *testing.T) {
	s := New(&fakePub{}, Config{InputTopic: "message.incoming"}, nil)
	assert.Equal(t, "tenant1", s.cfg.DefaultTenant)
	assert.Equal(t, "api", s.cfg.DefaultOrigin)
	assert.Equal(t, "processor", s.cfg.WorkflowID)
	assert.Equal(t, uint16(1), s.cfg.WorkflowVersion)
	assert.Equal(t, "initiate", s.cfg.TaskID)
	assert.NotZero(t, s.cfg.PublishTimeout)
}

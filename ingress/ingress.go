// Package ingress accepts raw ISO 20022 payloads over HTTP, wraps each
// in a fresh Message and produces it to the configured input topic. The
// caller gets the message id back on produce-ack.
package ingress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/payflowio/payflow/message"
	"github.com/payflowio/payflow/processor"
)

// Tenant and origin routing keys are taken from these headers, falling
// back to the configured defaults.
const (
	TenantHeader = "X-Tenant"
	OriginHeader = "X-Origin"
)

const maxBodyBytes = 10 << 20

var (
	messagesInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payflow_ingress_messages_initiated_total",
		Help: "Messages accepted and produced to the input topic.",
	})
	initiationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payflow_ingress_initiation_failures_total",
		Help: "Initiation requests rejected or failed to produce.",
	})
)

// Publisher is the produce surface the ingress needs from JetStream.
type Publisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Config parameterises the ingress server.
type Config struct {
	InputTopic     string
	PublishTimeout time.Duration
	DefaultTenant  string
	DefaultOrigin  string

	// Workflow/task ids stamped on the creation audit entry.
	WorkflowID      string
	WorkflowVersion uint16
	TaskID          string
}

// Server handles message initiation requests.
type Server struct {
	cfg    Config
	pub    Publisher
	logger *slog.Logger
}

// New builds the ingress server over an established publisher.
func New(pub Publisher, cfg Config, logger *slog.Logger) *Server {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.DefaultTenant == "" {
		cfg.DefaultTenant = "tenant1"
	}
	if cfg.DefaultOrigin == "" {
		cfg.DefaultOrigin = "api"
	}
	if cfg.WorkflowID == "" {
		cfg.WorkflowID = "processor"
	}
	if cfg.WorkflowVersion == 0 {
		cfg.WorkflowVersion = 1
	}
	if cfg.TaskID == "" {
		cfg.TaskID = "initiate"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, pub: pub, logger: logger}
}

// Routes assembles the HTTP handler: the initiation endpoint plus
// health and metrics.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(corsHeaders)

	r.Post("/initiate", s.handleInitiate)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	return r
}

func corsHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

// handleInitiate wraps the request body in an inline ISO 20022 payload,
// creates a message and produces it. 200 with the message id on
// produce-ack, 400 with an error array otherwise.
func (s *Server) handleInitiate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.respondErrors(w, fmt.Sprintf("read request body: %v", err))
		return
	}
	if len(body) == 0 {
		s.respondErrors(w, "request body is empty")
		return
	}

	tenant := r.Header.Get(TenantHeader)
	if tenant == "" {
		tenant = s.cfg.DefaultTenant
	}
	origin := r.Header.Get(OriginHeader)
	if origin == "" {
		origin = s.cfg.DefaultOrigin
	}

	payload := message.NewInlinePayload(body, message.FormatXml, message.SchemaISO20022, message.EncodingUtf8)
	msg := message.New(payload, tenant, origin, s.cfg.WorkflowID, s.cfg.WorkflowVersion, s.cfg.TaskID, "Payment")

	data, err := json.Marshal(msg)
	if err != nil {
		s.respondErrors(w, fmt.Sprintf("message serialization error: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.PublishTimeout)
	defer cancel()

	key := strconv.FormatUint(msg.ID, 10)
	header := nats.Header{}
	header.Set(processor.KeyHeader, key)

	if _, err := s.pub.PublishMsg(ctx, &nats.Msg{
		Subject: s.cfg.InputTopic,
		Data:    data,
		Header:  header,
	}); err != nil {
		s.respondErrors(w, fmt.Sprintf("broker delivery error: %v", err))
		return
	}

	messagesInitiated.Inc()
	s.logger.Info("message initiated",
		"message_id", msg.ID,
		"tenant", tenant,
		"origin", origin,
		"size", len(body))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"message_id": key})
}

func (s *Server) respondErrors(w http.ResponseWriter, errs ...string) {
	initiationFailures.Inc()
	s.logger.Warn("message initiation failed", "errors", errs)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(errs)
}

// Package processor is the broker-consumer worker runtime: it pulls
// JSON-serialised messages from the input topics, runs the first
// matching workflow against each, and republishes the transformed
// message before acknowledging the record. Acknowledgement strictly
// after produce gives at-least-once delivery; unacked records are
// redelivered.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/semaphore"

	"github.com/payflowio/payflow/message"
	"github.com/payflowio/payflow/workflow"
)

// KeyHeader carries the record key across hops; it is preserved
// verbatim from input to output record.
const KeyHeader = "Msg-Key"

const fetchMaxWait = 5 * time.Second

// ErrInvalidInput marks records that can never process successfully.
var ErrInvalidInput = errors.New("invalid input record")

// Publisher is the produce surface of jetstream.JetStream, split out so
// tests can observe the produce/ack ordering.
type Publisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Config bounds the worker runtime.
type Config struct {
	StreamName     string
	ConsumerName   string
	OutputTopic    string
	MaxConcurrency int64
	PublishTimeout time.Duration
}

// Processor owns the long-lived broker clients and the immutable
// workflow snapshot. Worker goroutines share nothing else.
type Processor struct {
	cfg       Config
	js        jetstream.JetStream
	pub       Publisher
	consumer  jetstream.Consumer
	workflows []workflow.Workflow
	sem       *semaphore.Weighted
	logger    *slog.Logger

	running bool
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New builds a processor over an established JetStream context and a
// loaded workflow snapshot.
func New(js jetstream.JetStream, workflows []workflow.Workflow, cfg Config, logger *slog.Logger) (*Processor, error) {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.OutputTopic == "" {
		return nil, errors.New("output topic is required")
	}
	if len(workflows) == 0 {
		return nil, errors.New("at least one workflow is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		cfg:       cfg,
		js:        js,
		pub:       js,
		workflows: workflows,
		sem:       semaphore.NewWeighted(cfg.MaxConcurrency),
		logger:    logger,
	}, nil
}

// InputTopics returns the union of input topics across the workflow
// snapshot, preserving first-seen order.
func InputTopics(workflows []workflow.Workflow) []string {
	seen := make(map[string]struct{}, len(workflows))
	topics := make([]string, 0, len(workflows))
	for _, w := range workflows {
		if _, ok := seen[w.InputTopic]; ok || w.InputTopic == "" {
			continue
		}
		seen[w.InputTopic] = struct{}{}
		topics = append(topics, w.InputTopic)
	}
	return topics
}

// EnsureStream creates or updates the stream carrying the input and
// output topics.
func EnsureStream(ctx context.Context, js jetstream.JetStream, name string, workflows []workflow.Workflow, outputTopic string) error {
	subjects := append(InputTopics(workflows), outputTopic)
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     name,
		Subjects: subjects,
	})
	if err != nil {
		return fmt.Errorf("create or update stream %s: %w", name, err)
	}
	return nil
}

// Start subscribes the durable consumer and begins the consume loop.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("processor already running")
	}
	p.running = true
	subCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	stream, err := p.js.Stream(subCtx, p.cfg.StreamName)
	if err != nil {
		p.rollbackStart(cancel)
		return fmt.Errorf("get stream %s: %w", p.cfg.StreamName, err)
	}

	// Explicit acks only; start from the earliest available record.
	consumer, err := stream.CreateOrUpdateConsumer(subCtx, jetstream.ConsumerConfig{
		Durable:        p.cfg.ConsumerName,
		FilterSubjects: InputTopics(p.workflows),
		AckPolicy:      jetstream.AckExplicitPolicy,
		DeliverPolicy:  jetstream.DeliverAllPolicy,
		AckWait:        p.cfg.PublishTimeout + 30*time.Second,
	})
	if err != nil {
		p.rollbackStart(cancel)
		return fmt.Errorf("create consumer %s: %w", p.cfg.ConsumerName, err)
	}
	p.consumer = consumer

	p.wg.Add(1)
	go p.consumeLoop(subCtx)

	p.logger.Info("processor started",
		"stream", p.cfg.StreamName,
		"consumer", p.cfg.ConsumerName,
		"topics", InputTopics(p.workflows),
		"output_topic", p.cfg.OutputTopic,
		"max_concurrency", p.cfg.MaxConcurrency)
	return nil
}

func (p *Processor) rollbackStart(cancel context.CancelFunc) {
	p.mu.Lock()
	p.running = false
	p.cancel = nil
	p.mu.Unlock()
	cancel()
}

// Stop cancels the consume loop and waits for in-flight workers.
func (p *Processor) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
	p.logger.Info("processor stopped")
}

// consumeLoop pulls records and hands each to a worker goroutine gated
// by the concurrency semaphore.
func (p *Processor) consumeLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msgs, err := p.consumer.Fetch(int(p.cfg.MaxConcurrency), jetstream.FetchMaxWait(fetchMaxWait))
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Debug("fetch timeout or error", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			recordsConsumed.Inc()
			if err := p.sem.Acquire(ctx, 1); err != nil {
				// Shutting down; leave the record unacked for redelivery.
				return
			}
			p.wg.Add(1)
			go func(msg jetstream.Msg) {
				defer p.wg.Done()
				defer p.sem.Release(1)
				p.handleRecord(ctx, msg)
			}(msg)
		}

		if err := msgs.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			p.logger.Warn("record fetch error", "error", err)
		}
	}
}

// handleRecord runs one record end to end: process, produce, ack. A
// failure leaves the record unacked and the broker redelivers it, with
// one exception: records that can never deserialise are acked away as
// poison. There is no dead-letter queue: a record that fails
// persistently keeps coming back and needs operator intervention.
func (p *Processor) handleRecord(ctx context.Context, msg jetstream.Msg) {
	processed, err := p.Process(msg.Data())
	if err != nil {
		processingFailures.Inc()
		p.logger.Error("failed to process record",
			"subject", msg.Subject(),
			"error", err)
		if errors.Is(err, ErrInvalidInput) {
			// Poison record; redelivery can never succeed.
			if ackErr := msg.Ack(); ackErr != nil {
				p.logger.Warn("failed to ACK poison record", "error", ackErr)
			}
			return
		}
		if nakErr := msg.Nak(); nakErr != nil {
			p.logger.Warn("failed to NAK record", "error", nakErr)
		}
		return
	}
	recordsProcessed.Inc()

	if err := p.publish(ctx, msg, processed); err != nil {
		publishFailures.Inc()
		p.logger.Error("failed to produce processed message",
			"topic", p.cfg.OutputTopic,
			"error", err)
		if nakErr := msg.Nak(); nakErr != nil {
			p.logger.Warn("failed to NAK record", "error", nakErr)
		}
		return
	}
	recordsPublished.Inc()

	// Commit strictly after produce-ack.
	if err := msg.Ack(); err != nil {
		p.logger.Warn("failed to ACK record", "subject", msg.Subject(), "error", err)
	}
}

// Process deserialises a record payload, executes the first matching
// workflow and returns the re-serialised message. A message with no
// matching workflow passes through unchanged.
func (p *Processor) Process(data []byte) ([]byte, error) {
	start := time.Now()

	if len(data) == 0 {
		return nil, fmt.Errorf("cannot process empty record: %w", ErrInvalidInput)
	}

	var msg message.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("deserialise message: %w: %v", ErrInvalidInput, err)
	}

	p.logger.Debug("processing message",
		"message_id", msg.ID,
		"tenant", msg.Tenant)

	matched := false
	for i := range p.workflows {
		w := &p.workflows[i]
		if !w.Matches(&msg) {
			continue
		}
		matched = true
		p.logger.Debug("executing workflow",
			"workflow_id", w.ID,
			"message_id", msg.ID)
		if err := workflow.Execute(&msg, w); err != nil {
			return nil, fmt.Errorf("workflow execution: %w", err)
		}
		break
	}

	if !matched {
		p.logger.Warn("no matching workflow found",
			"message_id", msg.ID,
			"tenant", msg.Tenant,
			"origin", msg.Origin)
	}

	out, err := json.Marshal(&msg)
	if err != nil {
		return nil, fmt.Errorf("serialise processed message: %w", err)
	}

	p.logger.Info("message processing completed",
		"message_id", msg.ID,
		"duration_ms", time.Since(start).Milliseconds())
	return out, nil
}

// publish produces the processed message to the output topic with the
// original record key preserved and a bounded send timeout.
func (p *Processor) publish(ctx context.Context, original jetstream.Msg, processed []byte) error {
	pubCtx, cancel := context.WithTimeout(ctx, p.cfg.PublishTimeout)
	defer cancel()

	header := nats.Header{}
	if key := original.Headers().Get(KeyHeader); key != "" {
		header.Set(KeyHeader, key)
	}

	_, err := p.pub.PublishMsg(pubCtx, &nats.Msg{
		Subject: p.cfg.OutputTopic,
		Data:    processed,
		Header:  header,
	})
	if err != nil {
		return fmt.Errorf("produce to %s: %w", p.cfg.OutputTopic, err)
	}
	return nil
}

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/jobhook/signing"
	"github.com/xraph/jobhook/worker"
)

// QueueConfig names the stream and consumer group.
type QueueConfig struct {
	Stream   string        // Redis stream name
	Group    string        // Redis consumer group name
	Consumer string        // Redis consumer name, unique per process
	Block    time.Duration // How long a read blocks waiting for messages
}

// DefaultQueueConfig returns the default stream settings.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		Stream:   "jobhook:jobs",
		Group:    "jobhook",
		Consumer: "jobhook-1",
		Block:    5 * time.Second,
	}
}

// Queue appends signed deliveries to a Redis stream and reads them back
// through a consumer group. It implements worker.Dispatcher and
// worker.Source.
type Queue struct {
	client *redis.Client
	cfg    QueueConfig
	signer *signing.Signer
	logger *slog.Logger
}

// NewQueue creates a Queue and its consumer group.
func NewQueue(ctx context.Context, client *redis.Client, signer *signing.Signer, cfg QueueConfig, logger *slog.Logger) (*Queue, error) {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		client: client,
		cfg:    cfg,
		signer: signer,
		logger: logger,
	}
	if err := q.ensureGroup(ctx); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *Queue) ensureGroup(ctx context.Context) error {
	// Start from "0" so messages added before the group existed are not lost.
	if err := q.client.XGroupCreateMkStream(ctx, q.cfg.Stream, q.cfg.Group, "0").Err(); err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("jobhook/stream: creating consumer group: %w", err)
	}
	return nil
}

// Dispatch signs req and appends it to the stream.
func (q *Queue) Dispatch(ctx context.Context, req worker.Request) error {
	canonical, err := req.Options.Canonical()
	if err != nil {
		return err
	}
	req.Signature = q.signer.Sign(canonical)

	values := encodeRequest(req)
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		values["trace_id"] = sc.TraceID().String()
	}

	if err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.cfg.Stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("jobhook/stream: enqueue job %s: %w", req.JobID, err)
	}

	q.logger.DebugContext(ctx, "enqueued job",
		slog.String("job_definition_id", req.DefinitionID),
		slog.String("job_id", req.JobID),
		slog.Bool("retry", req.Retry),
	)
	return nil
}

// Receive reads up to max new deliveries for this consumer. Messages that
// cannot be decoded are acked and dropped.
func (q *Queue) Receive(ctx context.Context, max int) ([]worker.Delivery, error) {
	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.cfg.Group,
		Consumer: q.cfg.Consumer,
		Streams:  []string{q.cfg.Stream, ">"},
		Count:    int64(max),
		Block:    q.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("jobhook/stream: reading from stream: %w", err)
	}

	var deliveries []worker.Delivery
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			req, parseErr := decodeRequest(msg.Values)
			if parseErr != nil {
				q.logger.ErrorContext(ctx, "failed to parse message",
					slog.String("error", parseErr.Error()),
					slog.String("message_id", msg.ID),
					slog.String("stream", q.cfg.Stream),
				)
				_ = q.Ack(ctx, worker.Delivery{ID: msg.ID})
				continue
			}
			deliveries = append(deliveries, worker.Delivery{ID: msg.ID, Request: req})
		}
	}
	return deliveries, nil
}

// Ack removes d from the consumer group's pending list.
func (q *Queue) Ack(ctx context.Context, d worker.Delivery) error {
	if err := q.client.XAck(ctx, q.cfg.Stream, q.cfg.Group, d.ID).Err(); err != nil {
		return fmt.Errorf("jobhook/stream: xack (stream=%s): %w", q.cfg.Stream, err)
	}
	return nil
}

func encodeRequest(req worker.Request) map[string]any {
	payload := string(req.Options.Payload)
	if payload == "" {
		payload = "null"
	}
	values := map[string]any{
		"definition_id": req.DefinitionID,
		"job_id":        req.JobID,
		"name":          req.Options.Name,
		"payload":       payload,
		"signature":     req.Signature,
	}
	if req.Retry {
		values["retry"] = "1"
	}
	if req.RetrySource != "" {
		values["retry_source"] = req.RetrySource
	}
	return values
}

func decodeRequest(values map[string]any) (worker.Request, error) {
	var req worker.Request
	for key, dst := range map[string]*string{
		"definition_id": &req.DefinitionID,
		"job_id":        &req.JobID,
		"name":          &req.Options.Name,
		"signature":     &req.Signature,
	} {
		raw, ok := values[key]
		if !ok {
			return worker.Request{}, fmt.Errorf("missing %s", key)
		}
		*dst = fmt.Sprint(raw)
	}

	payload := fmt.Sprint(values["payload"])
	if !json.Valid([]byte(payload)) {
		return worker.Request{}, fmt.Errorf("payload is not valid JSON")
	}
	req.Options.Payload = json.RawMessage(payload)

	_, req.Retry = values["retry"]
	if src, ok := values["retry_source"]; ok {
		req.RetrySource = fmt.Sprint(src)
	}
	return req, nil
}

// Compile-time interface checks.
var (
	_ worker.Dispatcher = (*Queue)(nil)
	_ worker.Source     = (*Queue)(nil)
)

package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jordanmaier/copperline-backend/pkg/config"
	"github.com/jordanmaier/copperline-backend/pkg/db/models"
	"github.com/jordanmaier/copperline-backend/pkg/enums"
	"github.com/jordanmaier/copperline-backend/pkg/logger"
	"github.com/jordanmaier/copperline-backend/pkg/outbox/registry"
)

const (
	fallbackBatchSize   = 50
	fallbackPollMs      = 500
	fallbackMaxAttempts = 10

	publishTimeout = 15 * time.Second
	maxRetryDelay  = 10 * time.Second
	jitterWindow   = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// messagePublisher is the seam between the drain loop and Pub/Sub.
type messagePublisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error)
}

type DrainerParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        dbClient
	PubSub    pubSubClient
	Repo      outboxRepository
	Resolver  eventResolver
	DLQ       dlqRepository
	Publisher messagePublisher
}

// Drainer moves committed outbox rows onto the order-events topic. A batch
// runs inside one transaction, so a crash mid-batch re-delivers instead of
// dropping rows. Rows that fail resolution or exhaust their attempt budget
// are quarantined in the DLQ table.
type Drainer struct {
	cfg          *config.Config
	logg         *logger.Logger
	db           dbClient
	pubsub       pubSubClient
	repo         outboxRepository
	resolver     eventResolver
	dlq          dlqRepository
	publisher    messagePublisher
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewDrainer(params DrainerParams) (*Drainer, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Repo == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Resolver == nil {
		return nil, errors.New("event resolver is required")
	}
	if params.DLQ == nil {
		return nil, errors.New("dlq repository is required")
	}

	publisher := params.Publisher
	if publisher == nil {
		publisher = newTopicPublisher(params.PubSub)
	}

	d := &Drainer{
		cfg:          params.Config,
		logg:         params.Logger,
		db:           params.DB,
		pubsub:       params.PubSub,
		repo:         params.Repo,
		resolver:     params.Resolver,
		dlq:          params.DLQ,
		publisher:    publisher,
		batchSize:    params.Config.Outbox.BatchSize,
		maxAttempts:  params.Config.Outbox.MaxAttempts,
		pollInterval: time.Duration(params.Config.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if d.batchSize <= 0 {
		d.batchSize = fallbackBatchSize
	}
	if d.maxAttempts <= 0 {
		d.maxAttempts = fallbackMaxAttempts
	}
	if d.pollInterval <= 0 {
		d.pollInterval = fallbackPollMs * time.Millisecond
	}
	return d, nil
}

// Run drains until the context is canceled. An empty poll sleeps one
// jittered interval; a failed batch backs off exponentially up to
// maxRetryDelay.
func (d *Drainer) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := d.checkDeps(ctx); err != nil {
		return err
	}

	delay := newRetrySchedule(d.pollInterval, maxRetryDelay)
	for {
		if err := ctx.Err(); err != nil {
			d.logg.Info(ctx, "outbox drainer stopping")
			return err
		}

		drained, err := d.drainOnce(ctx)
		switch {
		case err != nil:
			d.logg.Error(ctx, "outbox batch failed", err)
			if sleepErr := sleepCtx(ctx, delay.next()); sleepErr != nil {
				return sleepErr
			}
		case drained == 0:
			delay.reset()
			if sleepErr := sleepCtx(ctx, delay.idle()); sleepErr != nil {
				return sleepErr
			}
		default:
			delay.reset()
		}
	}
}

func (d *Drainer) checkDeps(ctx context.Context) error {
	if err := d.db.Ping(ctx); err != nil {
		d.logg.Error(ctx, "database unreachable", err)
		return fmt.Errorf("database ping: %w", err)
	}
	if err := d.pubsub.Ping(ctx); err != nil {
		d.logg.Error(ctx, "pubsub unreachable", err)
		return fmt.Errorf("pubsub ping: %w", err)
	}
	return nil
}

// drainOnce claims one batch under FOR UPDATE SKIP LOCKED and settles every
// row in the same transaction. It returns how many rows the batch held.
func (d *Drainer) drainOnce(ctx context.Context) (int, error) {
	var drained int
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := d.repo.FetchUnpublishedForPublish(tx, d.batchSize, d.maxAttempts)
		if err != nil {
			return err
		}
		drained = len(rows)
		for _, row := range rows {
			if err := d.dispatch(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return drained, nil
}

// dispatch settles a single row: published, retried later, or quarantined.
// A returned error aborts the whole batch transaction.
func (d *Drainer) dispatch(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	resolved, err := d.resolver.Resolve(row)
	if err != nil {
		return d.quarantine(ctx, tx, row, "", enums.OutboxDLQReasonNonRetryable, err)
	}
	topic := resolved.Descriptor.Topic

	if err := d.publishRow(ctx, topic, row, resolved.Envelope.EventID); err != nil {
		var fatal registry.NonRetryableError
		if errors.As(err, &fatal) {
			return d.quarantine(ctx, tx, row, topic, enums.OutboxDLQReasonNonRetryable, err)
		}
		if row.AttemptCount+1 >= d.maxAttempts {
			budgetErr := fmt.Errorf("attempt budget exhausted: %w", err)
			return d.quarantine(ctx, tx, row, topic, enums.OutboxDLQReasonMaxAttempts, budgetErr)
		}

		logCtx := d.logg.WithField(d.rowContext(ctx, row, topic), "error", err.Error())
		d.logg.Warn(logCtx, "publish attempt failed, row will be retried")
		if markErr := d.repo.MarkFailedTx(tx, row.ID, err); markErr != nil {
			return fmt.Errorf("mark failed %s: %w", row.ID, markErr)
		}
		return nil
	}

	if markErr := d.repo.MarkPublishedTx(tx, row.ID); markErr != nil {
		return fmt.Errorf("mark published %s: %w", row.ID, markErr)
	}
	d.logg.Info(d.rowContext(ctx, row, topic), "outbox row published")
	return nil
}

func (d *Drainer) publishRow(ctx context.Context, topic string, row models.OutboxEvent, eventID string) error {
	attrs := map[string]string{
		"event_id":       eventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"created_at":     row.CreatedAt.Format(time.RFC3339Nano),
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	_, err := d.publisher.Publish(pubCtx, topic, row.Payload, attrs)
	return err
}

// quarantine copies the row into the DLQ and marks it terminal, both inside
// the batch transaction so the row cannot land in the DLQ twice.
func (d *Drainer) quarantine(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, topic string, reason enums.OutboxDLQErrorReason, cause error) error {
	logCtx := d.logg.WithFields(d.rowContext(ctx, row, topic), map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	})
	d.logg.Warn(logCtx, "outbox row quarantined")

	message := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &message,
		AttemptCount:  row.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := d.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := d.repo.MarkTerminalTx(tx, row.ID, cause, d.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	return nil
}

func (d *Drainer) rowContext(ctx context.Context, row models.OutboxEvent, topic string) context.Context {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	return d.logg.WithFields(ctx, fields)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retrySchedule produces doubling delays between failed batches and a flat
// jittered interval between empty polls.
type retrySchedule struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
	rng     *rand.Rand
}

func newRetrySchedule(base, max time.Duration) *retrySchedule {
	return &retrySchedule{
		base: base,
		max:  max,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *retrySchedule) reset() {
	r.current = 0
}

func (r *retrySchedule) next() time.Duration {
	if r.current == 0 {
		r.current = r.base
	} else {
		r.current *= 2
		if r.current > r.max {
			r.current = r.max
		}
	}
	return r.jittered(r.current)
}

func (r *retrySchedule) idle() time.Duration {
	return r.jittered(r.base)
}

func (r *retrySchedule) jittered(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(r.rng.Int63n(int64(jitterWindow)))
}

// topicPublisher adapts the Pub/Sub client to the messagePublisher seam and
// reuses one Publisher handle per topic across batches.
type topicPublisher struct {
	client pubSubClient

	mu     sync.Mutex
	topics map[string]*gcppubsub.Publisher
}

func newTopicPublisher(client pubSubClient) *topicPublisher {
	return &topicPublisher{
		client: client,
		topics: make(map[string]*gcppubsub.Publisher),
	}
}

func (t *topicPublisher) Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error) {
	pub := t.publisherFor(topic)
	if pub == nil {
		return "", registry.NewNonRetryableError(fmt.Errorf("no publisher configured for topic %s", topic))
	}
	result := pub.Publish(ctx, &gcppubsub.Message{Data: data, Attributes: attrs})
	if result == nil {
		return "", registry.NewNonRetryableError(fmt.Errorf("publisher for topic %s returned no result", topic))
	}
	return result.Get(ctx)
}

func (t *topicPublisher) publisherFor(topic string) *gcppubsub.Publisher {
	t.mu.Lock()
	defer t.mu.Unlock()
	if pub, ok := t.topics[topic]; ok {
		return pub
	}
	pub := t.client.Publisher(topic)
	if pub == nil {
		return nil
	}
	t.topics[topic] = pub
	return pub
}

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"traffic-quiz-service/internal/domain"
	"traffic-quiz-service/internal/logger"
)

// Routing keys consumed from the billing exchange.
const (
	RoutingPaymentSucceeded    = "payment.succeeded"
	RoutingSubscriptionRenewed = "subscription.renewed"
)

// PaymentRecorder applies a paid transaction to the quota ledger.
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, event domain.PaymentEvent) error
}

// paymentMessage is the wire shape published by the billing service.
type paymentMessage struct {
	EventID   string  `json:"eventId"`
	UserID    int64   `json:"userId"`
	Tier      string  `json:"tier"`
	PeriodEnd string  `json:"periodEnd"`
	Amount    float64 `json:"amount"`
	OrderCode string  `json:"orderCode"`
}

// Consumer reads billing events and records payments. Redelivered events
// with an already applied id are acknowledged without reprocessing.
type Consumer struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	queue    string
	recorder PaymentRecorder
	enabled  bool
	log      *logger.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewConsumer(uri, exchange, queue string, recorder PaymentRecorder, log *logger.Logger) (*Consumer, error) {
	c := &Consumer{recorder: recorder, log: log.With("component", "events.consumer"), seen: make(map[string]struct{})}
	if uri == "" {
		c.log.Warn("rabbitmq uri is empty, billing consumption is disabled")
		return c, nil
	}

	conn, err := amqp091.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	fail := func(err error) (*Consumer, error) {
		channel.Close()
		conn.Close()
		return nil, err
	}
	if err := declareExchange(channel, exchange); err != nil {
		return fail(err)
	}
	q, err := channel.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fail(fmt.Errorf("declare queue: %w", err))
	}
	for _, key := range []string{RoutingPaymentSucceeded, RoutingSubscriptionRenewed} {
		if err := channel.QueueBind(q.Name, key, exchange, false, nil); err != nil {
			return fail(fmt.Errorf("bind queue to %s: %w", key, err))
		}
	}

	c.conn, c.channel, c.queue, c.enabled = conn, channel, q.Name, true
	return c, nil
}

// Start consumes until ctx is cancelled or the channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	if !c.enabled {
		return nil
	}
	if err := c.channel.Qos(10, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := c.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("register consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if err := c.Handle(ctx, msg.RoutingKey, msg.Body); err != nil {
					c.log.Error("billing event failed", "routing_key", msg.RoutingKey, "error", err)
					_ = msg.Nack(false, true)
				} else {
					_ = msg.Ack(false)
				}
			}
		}
	}()
	c.log.Info("billing consumer started", "queue", c.queue)
	return nil
}

// Handle processes a single delivery. Malformed messages are dropped (nil
// error) so they are not requeued forever.
func (c *Consumer) Handle(ctx context.Context, routingKey string, body []byte) error {
	switch routingKey {
	case RoutingPaymentSucceeded, RoutingSubscriptionRenewed:
	default:
		c.log.Debug("ignoring billing event", "routing_key", routingKey)
		return nil
	}

	var msg paymentMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		c.log.Warn("malformed billing event", "error", err)
		return nil
	}
	event, err := msg.toDomain()
	if err != nil {
		c.log.Warn("invalid billing event", "event_id", msg.EventID, "error", err)
		return nil
	}
	if c.applied(event.EventID) {
		return nil
	}

	hctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := c.recorder.RecordPayment(hctx, event); err != nil {
		return err
	}
	c.markApplied(event.EventID)
	return nil
}

func (m paymentMessage) toDomain() (domain.PaymentEvent, error) {
	if m.UserID == 0 {
		return domain.PaymentEvent{}, fmt.Errorf("missing user id")
	}
	tier := domain.Tier(m.Tier)
	if !tier.Valid() {
		return domain.PaymentEvent{}, fmt.Errorf("unknown tier %q", m.Tier)
	}
	end, err := time.Parse(time.RFC3339, m.PeriodEnd)
	if err != nil {
		return domain.PaymentEvent{}, fmt.Errorf("period end: %w", err)
	}
	return domain.PaymentEvent{
		EventID:   m.EventID,
		UserID:    m.UserID,
		Tier:      tier,
		PeriodEnd: end.UTC(),
		Amount:    m.Amount,
		OrderCode: m.OrderCode,
	}, nil
}

func (c *Consumer) applied(id string) bool {
	if id == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[id]
	return ok
}

func (c *Consumer) markApplied(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	c.seen[id] = struct{}{}
	c.mu.Unlock()
}

func (c *Consumer) Close() error {
	if !c.enabled {
		return nil
	}
	if err := c.channel.Close(); err != nil {
		c.log.Warn("close rabbitmq channel", "error", err)
	}
	return c.conn.Close()
}

package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/qjdesk/complaint-desk/internal/config"
	"github.com/qjdesk/complaint-desk/internal/lock"
)

// auditLockID names the Lock Manager resource guarding the audit file.
const auditLockID = "audit-log"

// AuditConsumer binds a durable queue to the complaints exchange and
// appends every event to the audit log file.  Writers of the file go
// through the Lock Manager so lines never interleave.
type AuditConsumer struct {
	cfg         config.BrokerConfig
	locks       *lock.Manager
	lockTimeout time.Duration
	log         *slog.Logger
}

func NewAuditConsumer(cfg config.BrokerConfig, locks *lock.Manager, lockTimeout time.Duration, log *slog.Logger) *AuditConsumer {
	return &AuditConsumer{cfg: cfg, locks: locks, lockTimeout: lockTimeout, log: log.With("component", "audit-consumer")}
}

// Run dials the broker and consumes until ctx is cancelled, reconnecting
// with exponential backoff.  It returns nil on cancellation.
func (a *AuditConsumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(a.cfg.URL)
		if err != nil {
			a.log.Warn("dial broker failed", "err", err, "retry_in", backoff)
			if !sleepCtx(ctx, backoff) {
				return nil
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = a.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		a.log.Warn("consume loop ended, reconnecting", "err", err)
		if !sleepCtx(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (a *AuditConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		a.log.Warn("set QoS failed", "err", err)
	}
	if err := declareExchange(ch, a.cfg.Exchange); err != nil {
		return err
	}
	if _, err := ch.QueueDeclare(a.cfg.AuditQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(a.cfg.AuditQueue, "complaint.*", a.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	msgs, err := ch.Consume(a.cfg.AuditQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := a.Handle(ctx, d.RoutingKey, d.Body); err != nil {
				a.log.Error("handle message failed", "routing_key", d.RoutingKey, "err", err)
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle appends one event to the audit log.
func (a *AuditConsumer) Handle(ctx context.Context, routingKey string, body []byte) error {
	line, err := AuditLine(routingKey, body)
	if err != nil {
		return err
	}
	return a.locks.WithLock(ctx, auditLockID, a.lockTimeout, func() error {
		return appendLine(a.cfg.AuditLogPath, line)
	})
}

func appendLine(path, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// declareExchange declares the durable topic exchange shared by the
// publisher and the consumer.
func declareExchange(ch *amqp.Channel, name string) error {
	if err := ch.ExchangeDeclare(name, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

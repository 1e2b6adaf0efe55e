package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// Consumer listens to the purchase.confirmed queue and appends every
// confirmation to <Dir>/purchase.log in a single-line format.
type Consumer struct {
	URL string
	Dir string
	log *logrus.Entry
}

// NewConsumer returns a Consumer for the broker at url writing to dir.
func NewConsumer(url, dir string) *Consumer {
	if dir == "" {
		dir = "logs"
	}
	return &Consumer{URL: url, Dir: dir, log: logrus.WithField("component", "purchase-consumer")}
}

// Run dials the broker and consumes until ctx is cancelled, reconnecting
// with a growing delay after connection failures.  Messages that cannot be
// handled are rejected without requeueing.
func (c *Consumer) Run(ctx context.Context) error {
	delay := time.Second
	for {
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.log.WithError(err).Warnf("failed to dial broker; retrying in %s", delay)
			if !sleep(ctx, delay) {
				return nil
			}
			if delay < 30*time.Second {
				delay *= 2
			}
			continue
		}
		delay = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		c.log.WithError(err).Warn("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.WithError(err).Warn("set QoS failed")
	}
	if _, err := ch.QueueDeclare(PurchaseConfirmedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(PurchaseConfirmedQueue, "", false, false, false, false, nil)
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
			if err := c.HandleMessage(d.Body); err != nil {
				c.log.WithError(err).Error("handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage decodes one confirmation and appends it to the log file.
func (c *Consumer) HandleMessage(body []byte) error {
	var ev PurchaseConfirmedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", c.Dir, err)
	}
	f, err := os.OpenFile(filepath.Join(c.Dir, "purchase.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	tickets := make([]string, len(ev.TicketIDs))
	for i, id := range ev.TicketIDs {
		tickets[i] = fmt.Sprint(id)
	}
	line := fmt.Sprintf("[%s] Purchase confirmed | order_id=%d | user_id=%d | seat_sale_id=%d | total=%d | tickets=[%s]\n",
		ev.ConfirmedAt, ev.OrderID, ev.UserID, ev.SeatSaleID, ev.TotalPrice, strings.Join(tickets, ","))
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

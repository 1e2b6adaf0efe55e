// Package service publishes domain events to RabbitMQ.  Errors are
// logged and returned so callers can ignore failures without interrupting
// the main flow.
package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-reconciler/internal/logging"
	"github.com/iliyamo/ticket-reconciler/internal/model"
	q "github.com/iliyamo/ticket-reconciler/internal/queue"
)

// Publisher sends purchase confirmations to the purchase.confirmed queue.
// It dials the broker per message; confirmations are rare compared to the
// cost of keeping a channel healthy across broker restarts.
type Publisher struct {
	URL string
	now func() time.Time
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string) *Publisher {
	return &Publisher{URL: url, now: time.Now}
}

// SendPurchaseConfirmation publishes the confirmation of a settled order.
func (p *Publisher) SendPurchaseConfirmation(ctx context.Context, order model.Order, reserves []model.TicketReserve) error {
	return p.Publish(ctx, NewPurchaseConfirmedEvent(order, reserves, p.now()))
}

// NewPurchaseConfirmedEvent builds the event for a settled order.
func NewPurchaseConfirmedEvent(order model.Order, reserves []model.TicketReserve, at time.Time) q.PurchaseConfirmedEvent {
	ev := q.PurchaseConfirmedEvent{
		OrderID:     order.ID,
		UserID:      order.UserID,
		SeatSaleID:  order.SeatSaleID,
		TotalPrice:  order.TotalPrice,
		ConfirmedAt: at.UTC().Format(time.RFC3339),
	}
	for _, r := range reserves {
		ev.TicketIDs = append(ev.TicketIDs, r.TicketID)
		ev.ReserveIDs = append(ev.ReserveIDs, r.ID)
	}
	return ev
}

// Publish sends ev as a persistent message.
func (p *Publisher) Publish(ctx context.Context, ev q.PurchaseConfirmedEvent) error {
	log := logging.FromContext(ctx).WithFields(logrus.Fields{"order_id": ev.OrderID, "queue": q.PurchaseConfirmedQueue})

	conn, err := amqp.Dial(p.URL)
	if err != nil {
		log.WithError(err).Warn("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.WithError(err).Warn("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(q.PurchaseConfirmedQueue, true, false, false, false, nil); err != nil {
		log.WithError(err).Warn("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", q.PurchaseConfirmedQueue, false, false, pub); err != nil {
		log.WithError(err).Warn("rabbitmq: publish failed")
		return err
	}
	return nil
}

package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"gopherai-docchat/internal/model"
)

type TurnPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewTurnPublisher(conn *amqp.Connection, queueName string) *TurnPublisher {
	return &TurnPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *TurnPublisher) Publish(ctx context.Context, event model.TurnEvent) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	msg, err := turnPublishing(event)
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, "", p.queueName, false, false, msg); err != nil {
		return fmt.Errorf("publish turn failed: %w", err)
	}
	return nil
}

func turnPublishing(event model.TurnEvent) (amqp.Publishing, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal turn event failed: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		Type:         "docchat.turn.appended",
		MessageId:    fmt.Sprintf("%s:%d", event.SessionID, event.Index),
		Timestamp:    event.CreatedAt,
		Body:         payload,
		DeliveryMode: amqp.Persistent,
	}, nil
}

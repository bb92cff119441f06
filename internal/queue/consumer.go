package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/rythmix/auth-service/internal/mailer"
)

// StartMailConsumer connects to RabbitMQ, declares the durable
// auth.verification_email queue and delivers each job through the given
// mailer. It runs a reconnect loop with exponential backoff and never
// returns under normal operation; failed jobs are rejected without
// requeue so a broken payload cannot spin the consumer.
func StartMailConsumer(url string, m mailer.Mailer, log *zap.Logger) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("mail-consumer: broker dial failed",
				zap.Error(err), zap.Duration("retry_in", backoff))
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn, m, log); err != nil {
			log.Warn("mail-consumer: consume loop ended, reconnecting", zap.Error(err))
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeLoop(conn *amqp.Connection, m mailer.Mailer, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("mail-consumer: set QoS failed", zap.Error(err))
	}

	if _, err := ch.QueueDeclare(verificationQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(verificationQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleJob(d.Body, m); err != nil {
			log.Error("mail-consumer: job failed", zap.Error(err))
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleJob(body []byte, m mailer.Mailer) error {
	var job VerificationEmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.SendVerification(ctx, job.Email, job.Username, job.VerifyURL); err != nil {
		return fmt.Errorf("send verification to %s: %w", job.Email, err)
	}
	return nil
}

package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Publisher enqueues verification-email jobs. It implements
// mailer.Mailer so the auth service stays unaware of the broker: from
// its point of view the email was "sent" once the job is durable.
type Publisher struct {
	url string
	log *zap.Logger
}

func NewPublisher(url string, log *zap.Logger) *Publisher {
	return &Publisher{url: url, log: log}
}

// SendVerification publishes a VerificationEmailJob to the
// auth.verification_email queue. Messages are marked persistent so they
// survive broker restarts. A fresh connection per publish keeps the
// publisher robust against stale channels at the cost of latency the
// registration path can afford.
func (p *Publisher) SendVerification(ctx context.Context, toEmail, username, verifyURL string) error {
	job := VerificationEmailJob{
		Email:     toEmail,
		Username:  username,
		VerifyURL: verifyURL,
		IssuedAt:  time.Now().UTC().Format(time.RFC3339),
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Error("rabbitmq dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Error("rabbitmq channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	// Idempotent declare; durable so jobs survive broker restarts.
	if _, err := ch.QueueDeclare(verificationQueueName, true, false, false, false, nil); err != nil {
		p.log.Error("rabbitmq queue declare failed", zap.Error(err))
		return err
	}

	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",                    // default exchange
		verificationQueueName, // routing key = queue name
		false,                 // mandatory
		false,                 // immediate
		pub,
	); err != nil {
		p.log.Error("rabbitmq publish failed", zap.Error(err))
		return err
	}
	return nil
}

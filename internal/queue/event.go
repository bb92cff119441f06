// Package queue moves verification-email jobs through RabbitMQ so that
// registration never blocks on the mail provider.
package queue

// verificationQueueName is the durable queue carrying email jobs.
const verificationQueueName = "auth.verification_email"

// VerificationEmailJob is published when a verification token has been
// issued for a user. It contains everything the consumer needs to send
// the email without querying the primary database. The verify URL
// embeds the full selector.verifier token string.
type VerificationEmailJob struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	VerifyURL string `json:"verify_url"`
	IssuedAt  string `json:"issued_at"`
}

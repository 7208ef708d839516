package jobs

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
)

// Client enqueues tasks from the web process.
type Client struct {
	client *asynq.Client
}

// NewClient opens an asynq client on redis.
func NewClient(redis asynq.RedisConnOpt) (*Client, error) {
	if redis == nil {
		return nil, errors.New("jobs client: redis options required")
	}
	return &Client{client: asynq.NewClient(redis)}, nil
}

// EnqueueSendEmail queues payload on the mail queue.
func (c *Client) EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error) {
	task, err := NewSendEmailTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// SendMail satisfies the mailer interfaces of the auth and proposal services.
func (c *Client) SendMail(ctx context.Context, to, subject, text, html string) error {
	_, err := c.EnqueueSendEmail(ctx, SendEmailPayload{To: to, Subject: subject, Text: text, HTML: html})
	return err
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}

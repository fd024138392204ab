// Package notify announces completed ingest runs on a message queue
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// EventIngestCompleted is the event type published after a successful run
const EventIngestCompleted = "ingest_completed"

var (
	// ErrInvalidAMQPURL is returned for a URL without the amqp or amqps scheme
	ErrInvalidAMQPURL = errors.New("notify AMQP URL must use amqp:// or amqps://")
	// ErrQueueRequired is returned when notifications are enabled without a queue
	ErrQueueRequired = errors.New("notify queue is required")
)

// Config holds the optional completion notification settings
type Config struct {
	AMQPURL string `yaml:"amqpURL"`
	Queue   string `yaml:"queue" default:"civicpulse.ingest"`
}

// Enabled reports whether notifications are configured
func (c *Config) Enabled() bool {
	return c.AMQPURL != ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if !c.Enabled() {
		return nil
	}

	u, err := url.Parse(c.AMQPURL)
	if err != nil || (u.Scheme != "amqp" && u.Scheme != "amqps") {
		return ErrInvalidAMQPURL
	}

	if c.Queue == "" {
		return ErrQueueRequired
	}

	return nil
}

// Event is the message body
type Event struct {
	Type        string     `json:"type"`
	RunID       string     `json:"run_id"`
	Mode        string     `json:"mode"`
	WindowLabel string     `json:"window_label"`
	Pages       int        `json:"pages"`
	Records     int        `json:"records"`
	Watermark   *time.Time `json:"watermark,omitempty"`
	CompletedAt time.Time  `json:"completed_at"`
}

// Publisher sends events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type amqpPublisher struct {
	log   logrus.FieldLogger
	url   string
	queue string
}

// NewPublisher returns nil when notifications are disabled
func NewPublisher(log logrus.FieldLogger, cfg *Config) Publisher {
	if !cfg.Enabled() {
		return nil
	}

	return &amqpPublisher{
		log:   log.WithField("component", "notify"),
		url:   cfg.AMQPURL,
		queue: cfg.Queue,
	}
}

// Publish dials a fresh connection for each event
func (p *amqpPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("failed to dial AMQP: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open AMQP channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", p.queue, err)
	}

	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.CompletedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.queue, err)
	}

	p.log.WithFields(logrus.Fields{
		"queue":  p.queue,
		"run_id": event.RunID,
	}).Info("Published completion event")

	return nil
}

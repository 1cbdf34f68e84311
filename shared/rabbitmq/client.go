package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds RabbitMQ connection configuration
type Config struct {
	Host               string
	Port               int
	User               string
	Password           string
	VHost              string
	ExchangeName       string
	ExchangeType       string
	ExchangeDurable    bool
	ExchangeAutoDelete bool

	// Queue settings are only needed by consumers; publishers leave QueueName empty.
	QueueName       string
	QueueDurable    bool
	QueueAutoDelete bool
	QueueExclusive  bool
	BindingKeys     []string

	RetryAttempts      int
	RetryInterval      time.Duration
	Heartbeat          time.Duration
	PublishRetries     int
	PublishRetryDelay  time.Duration
	PublishBackoffMult float64
	PrefetchCount      int
}

// ErrClientClosed is returned by operations on a closed client
var ErrClientClosed = errors.New("rabbitmq client closed")

// Client represents a RabbitMQ client. A lost channel is redialed once on the
// next Publish or Consume.
type Client struct {
	config *Config
	logger *slog.Logger

	dialMu      sync.Mutex
	mu          sync.Mutex
	conn        *amqp.Connection
	channel     *amqp.Channel
	isConnected bool
	closed      bool
}

// NewClient connects and declares the exchange (and queue when configured)
func NewClient(config *Config, logger *slog.Logger) (*Client, error) {
	client := &Client{
		config: config,
		logger: logger,
	}

	if err := client.connect(config.RetryAttempts); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// connect establishes connection to RabbitMQ, dialing up to attempts times
func (c *Client) connect(attempts int) error {
	var (
		conn *amqp.Connection
		err  error
	)

	dsn := fmt.Sprintf("amqp://%s:%s@%s:%d%s",
		c.config.User,
		c.config.Password,
		c.config.Host,
		c.config.Port,
		c.config.VHost,
	)

	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}

	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		c.logger.Info("Connecting to RabbitMQ",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", attempts),
		)

		conn, err = amqp.DialConfig(dsn, amqpConfig)
		if err == nil {
			break
		}

		c.logger.Error("Failed to connect to RabbitMQ",
			slog.Any("error", err),
			slog.Int("attempt", attempt),
		)

		if attempt < attempts {
			time.Sleep(c.config.RetryInterval)
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", attempts, err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if err := c.setup(channel); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("failed to setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		channel.Close()
		conn.Close()
		return ErrClientClosed
	}
	closeChan := channel.NotifyClose(make(chan *amqp.Error, 1))
	go c.watchClose(channel, closeChan)
	c.conn = conn
	c.channel = channel
	c.isConnected = true
	c.mu.Unlock()

	c.logger.Info("RabbitMQ client initialized",
		slog.String("exchange", c.config.ExchangeName),
		slog.String("queue", c.config.QueueName),
	)

	return nil
}

// watchClose marks the client disconnected when the broker closes channel.
// A channel already replaced by a reconnect is ignored.
func (c *Client) watchClose(channel *amqp.Channel, closeChan <-chan *amqp.Error) {
	amqpErr, ok := <-closeChan
	c.mu.Lock()
	if c.channel == channel {
		c.isConnected = false
	}
	c.mu.Unlock()

	if ok && amqpErr != nil {
		c.logger.Warn("RabbitMQ channel closed",
			slog.String("reason", amqpErr.Reason),
			slog.Int("code", amqpErr.Code),
		)
	}
}

// setup declares exchange, queue, and bindings
func (c *Client) setup(channel *amqp.Channel) error {
	err := channel.ExchangeDeclare(
		c.config.ExchangeName,       // name
		c.config.ExchangeType,       // type
		c.config.ExchangeDurable,    // durable
		c.config.ExchangeAutoDelete, // auto-deleted
		false,                       // internal
		false,                       // no-wait
		nil,                         // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	if c.config.QueueName == "" {
		return nil
	}

	_, err = channel.QueueDeclare(
		c.config.QueueName,       // name
		c.config.QueueDurable,    // durable
		c.config.QueueAutoDelete, // auto-delete
		c.config.QueueExclusive,  // exclusive
		false,                    // no-wait
		nil,                      // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range c.config.BindingKeys {
		if err := channel.QueueBind(c.config.QueueName, key, c.config.ExchangeName, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue with key %q: %w", key, err)
		}
	}

	if c.config.PrefetchCount > 0 {
		// prefetch size 0: no byte limit; global false: per consumer
		if err := channel.Qos(c.config.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	return nil
}

func (c *Client) current() (*amqp.Channel, error) {
	c.mu.Lock()
	channel, ok, closed := c.channel, c.isConnected && c.channel != nil, c.closed
	c.mu.Unlock()

	switch {
	case closed:
		return nil, ErrClientClosed
	case ok:
		return channel, nil
	}

	if err := c.reconnect(); err != nil {
		return nil, fmt.Errorf("not connected to RabbitMQ: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil {
		return nil, fmt.Errorf("not connected to RabbitMQ")
	}
	return c.channel, nil
}

// reconnect replaces a lost connection with a single dial attempt
func (c *Client) reconnect() error {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	c.mu.Lock()
	if c.isConnected && c.channel != nil {
		c.mu.Unlock()
		return nil
	}
	stale := c.conn
	c.conn, c.channel = nil, nil
	c.mu.Unlock()

	if stale != nil && !stale.IsClosed() {
		stale.Close()
	}

	c.logger.Warn("RabbitMQ connection lost, reconnecting")
	return c.connect(1)
}

// Publish publishes a persistent message once
func (c *Client) Publish(ctx context.Context, routingKey string, body []byte, contentType string) error {
	channel, err := c.current()
	if err != nil {
		return err
	}

	err = channel.PublishWithContext(
		ctx,
		c.config.ExchangeName, // exchange
		routingKey,            // routing key
		false,                 // mandatory
		false,                 // immediate
		amqp.Publishing{
			ContentType:  contentType,
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	c.logger.Debug("Message published to RabbitMQ",
		slog.String("routing_key", routingKey),
		slog.Int("body_size", len(body)),
	)
	return nil
}

// PublishWithRetry publishes with exponential backoff between attempts
func (c *Client) PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error {
	maxRetries := c.config.PublishRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	baseDelay := c.config.PublishRetryDelay
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}

	backoffMult := c.config.PublishBackoffMult
	if backoffMult <= 0 {
		backoffMult = 2.0
	}

	var lastErr error
	delay := baseDelay
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := c.Publish(ctx, routingKey, body, contentType)
		if err == nil {
			if attempt > 0 {
				c.logger.Info("Successfully published message to RabbitMQ after retry",
					slog.Int("attempt", attempt+1),
					slog.String("routing_key", routingKey),
				)
			}
			return nil
		}

		lastErr = err
		if attempt == maxRetries {
			break
		}

		c.logger.Warn("Failed to publish message to RabbitMQ, retrying...",
			slog.Int("attempt", attempt+1),
			slog.Int("max_retries", maxRetries),
			slog.Duration("retry_after", delay),
			slog.Any("error", err),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("publish canceled: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * backoffMult)
	}

	c.logger.Error("Failed to publish message to RabbitMQ after all retries",
		slog.Int("attempts", maxRetries+1),
		slog.Any("error", lastErr),
	)
	return fmt.Errorf("failed to publish message after %d attempts: %w", maxRetries+1, lastErr)
}

// Consume starts consuming messages from the configured queue with manual ack
func (c *Client) Consume(consumerTag string) (<-chan amqp.Delivery, error) {
	channel, err := c.current()
	if err != nil {
		return nil, err
	}

	messages, err := channel.Consume(
		c.config.QueueName, // queue
		consumerTag,        // consumer tag
		false,              // auto-ack
		false,              // exclusive
		false,              // no-local
		false,              // no-wait
		nil,                // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	c.logger.Info("Started consuming messages from RabbitMQ",
		slog.String("queue", c.config.QueueName),
		slog.String("consumer_tag", consumerTag),
	)

	return messages, nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected && c.conn != nil && !c.conn.IsClosed()
}

// Close closes the RabbitMQ channel and connection
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")

	c.mu.Lock()
	c.isConnected = false
	c.closed = true
	channel, conn := c.channel, c.conn
	c.mu.Unlock()

	if channel != nil {
		if err := channel.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}

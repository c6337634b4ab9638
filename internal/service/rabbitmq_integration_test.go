//go:build integration
// +build integration

package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/rpicam-archiver/rpicam-archiver-go/internal/config"
	"github.com/rpicam-archiver/rpicam-archiver-go/internal/models"
)

func setupTestRabbitMQ(t *testing.T) *config.RabbitMQConfig {
	t.Helper()
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx,
		"rabbitmq:3.13-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	url, err := container.AmqpURL(ctx)
	require.NoError(t, err)

	return &config.RabbitMQConfig{
		URL:        url,
		Exchange:   "test.archive",
		RoutingKey: "day.published",
	}
}

// bindTestQueue declares a throwaway queue bound to the notifier's exchange.
func bindTestQueue(t *testing.T, cfg *config.RabbitMQConfig) <-chan amqp.Delivery {
	t.Helper()

	conn, err := amqp.Dial(cfg.URL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	ch, err := conn.Channel()
	require.NoError(t, err)

	require.NoError(t, ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil))
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	require.NoError(t, err)
	require.NoError(t, ch.QueueBind(q.Name, cfg.RoutingKey, cfg.Exchange, false, nil))

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	require.NoError(t, err)
	return deliveries
}

func TestMessagePublisher_NotifyDayPublished(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	cfg := setupTestRabbitMQ(t)

	mp, err := NewMessagePublisher(cfg)
	require.NoError(t, err)
	defer mp.Close()

	deliveries := bindTestQueue(t, cfg)

	event := &models.DayPublishedEvent{
		ID:          uuid.New(),
		Date:        "2025-08-12",
		VideoID:     "vid123",
		Title:       "RPiCam 2025-08-12",
		FileCount:   12,
		PublishedAt: time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, mp.NotifyDayPublished(context.Background(), event))

	select {
	case d := <-deliveries:
		assert.Equal(t, event.ID.String(), d.MessageId)
		assert.Equal(t, "application/json", d.ContentType)

		var got models.DayPublishedEvent
		require.NoError(t, json.Unmarshal(d.Body, &got))
		assert.Equal(t, event.Date, got.Date)
		assert.Equal(t, event.VideoID, got.VideoID)
		assert.Equal(t, event.FileCount, got.FileCount)
	case <-time.After(10 * time.Second):
		t.Fatal("no delivery received")
	}
}

func TestMessagePublisher_IsHealthy(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	cfg := setupTestRabbitMQ(t)

	mp, err := NewMessagePublisher(cfg)
	require.NoError(t, err)

	assert.True(t, mp.IsHealthy())

	require.NoError(t, mp.Close())
	assert.False(t, mp.IsHealthy())

	err = mp.NotifyDayPublished(context.Background(), &models.DayPublishedEvent{ID: uuid.New()})
	assert.Error(t, err)
}

func TestNewNotifier_WithURL(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	cfg := setupTestRabbitMQ(t)

	n, err := NewNotifier(cfg)
	require.NoError(t, err)
	defer n.Close()

	assert.IsType(t, &MessagePublisher{}, n)
}

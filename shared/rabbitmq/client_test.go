package rabbitmq

import (
	"context"
	"testing"
	"time"

	"github.com/cuongbtq/pathogen-analysis/shared/logger"
	"github.com/stretchr/testify/assert"
)

func TestConfig_URL(t *testing.T) {
	cfg := Config{Host: "mq", Port: 5672, User: "guest", Password: "guest", VHost: "/"}
	assert.Equal(t, "amqp://guest:guest@mq:5672/", cfg.URL())
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		mult    float64
		attempt int
		want    time.Duration
	}{
		{"defaults first attempt", 0, 0, 0, 100 * time.Millisecond},
		{"defaults third attempt", 0, 0, 2, 400 * time.Millisecond},
		{"custom multiplier", time.Second, 1.5, 2, 2250 * time.Millisecond},
		{"multiplier of one is constant", 50 * time.Millisecond, 1, 5, 50 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, backoff(tt.base, tt.mult, tt.attempt))
		})
	}
}

func TestClient_PublishWhenClosed(t *testing.T) {
	c := &Client{config: &Config{}, logger: logger.NewDiscard(), closed: true}

	assert.False(t, c.IsConnected())
	assert.ErrorIs(t, c.PublishWithRetry(context.Background(), []byte("{}"), "application/json"), ErrNotConnected)
	assert.NoError(t, c.Close())
}

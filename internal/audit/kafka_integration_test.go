//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"storegate/internal/audit"
	"storegate/pkg/testutil/containers"
)

func TestKafkaPublisherRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	rp := containers.NewRedpandaContainer(t)
	ctx := context.Background()

	producer, err := kgo.NewClient(kgo.SeedBrokers(rp.Brokers...))
	require.NoError(t, err)
	defer producer.Close()

	require.NoError(t, audit.EnsureTopic(ctx, producer, audit.DefaultTopic, 1))
	// Second call must be idempotent.
	require.NoError(t, audit.EnsureTopic(ctx, producer, audit.DefaultTopic, 1))

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	pub := audit.NewKafka(producer, logger)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = pub.Run(runCtx)
	}()

	ev := audit.NewEvent(audit.EventOAuthLogin)
	ev.UserID = "u1"
	ev.Path = "/oauth/callback"
	pub.Emit(ctx, ev)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics(audit.DefaultTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetchCtx, fetchCancel := context.WithTimeout(ctx, 30*time.Second)
	defer fetchCancel()

	fetches := consumer.PollFetches(fetchCtx)
	require.False(t, fetches.IsClientClosed())
	records := fetches.Records()
	require.NotEmpty(t, records)

	var got audit.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, audit.EventOAuthLogin, got.Type)
	assert.Equal(t, "u1", got.UserID)

	cancel()
	<-done
}

package bus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"scriptd/internal/domain/execution"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func note(id string) execution.Notification {
	return execution.Notification{Event: execution.EventExecutionFinished, ExecutionID: id, Outcome: execution.OutcomeSuccess}
}

func TestPublishFansOut(t *testing.T) {
	b := New(4, nil)
	defer b.Close()

	first, cancelFirst := b.Subscribe()
	defer cancelFirst()
	second, cancelSecond := b.Subscribe()
	defer cancelSecond()

	require.NoError(t, b.Publish(context.Background(), note("a")))

	require.Equal(t, "a", (<-first).ExecutionID)
	require.Equal(t, "a", (<-second).ExecutionID)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(1, nil)
	defer b.Close()

	ch, cancel := b.Subscribe()
	cancel()
	cancel()

	_, ok := <-ch
	require.False(t, ok)
	require.NoError(t, b.Publish(context.Background(), note("a")))
}

func TestSlowSubscriberDropsAndLogs(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	b := New(1, zap.New(core))
	defer b.Close()

	ch, cancel := b.Subscribe()
	defer cancel()

	require.NoError(t, b.Publish(context.Background(), note("a")))
	require.NoError(t, b.Publish(context.Background(), note("b")))

	require.Equal(t, "a", (<-ch).ExecutionID)
	require.Equal(t, 1, logs.FilterMessage("notification dropped for slow subscriber").Len())
}

func TestCloseEndsSubscriptionsAndRejectsPublish(t *testing.T) {
	b := New(1, nil)
	ch, cancel := b.Subscribe()
	defer cancel()

	require.NoError(t, b.Close())
	_, ok := <-ch
	require.False(t, ok)
	require.ErrorIs(t, b.Publish(context.Background(), note("a")), ErrClosed)

	late, _ := b.Subscribe()
	_, ok = <-late
	require.False(t, ok)
}

func TestPublishHonoursContext(t *testing.T) {
	b := New(1, nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, b.Publish(ctx, note("a")), context.Canceled)
}

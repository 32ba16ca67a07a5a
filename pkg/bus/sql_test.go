package bus

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/relay/pkg/config"
)

func newTestSQLRecorder(t *testing.T) *SQLRecorder {
	t.Helper()

	rec, err := NewSQLRecorderFromConfig(&config.BusConfig{
		Backend: config.BusBackendSQL,
		Driver:  "sqlite",
		DSN:     filepath.Join(t.TempDir(), "bus.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })
	return rec
}

func TestSQLRecorder_RecordAndList(t *testing.T) {
	rec := newTestSQLRecorder(t)
	ctx := context.Background()

	require.NoError(t, rec.Record(ctx, &Message{
		FromAgent:     "relay",
		ToAgent:       "worker",
		Channel:       "dispatch",
		Type:          "command",
		Content:       "send",
		CorrelationID: "corr-1",
	}))
	require.NoError(t, rec.Record(ctx, &Message{
		FromAgent:     "worker",
		Channel:       "dispatch",
		Type:          "result",
		Content:       "sent",
		CorrelationID: "corr-1",
	}))
	require.NoError(t, rec.Record(ctx, &Message{
		FromAgent:     "relay",
		Channel:       "dispatch",
		Type:          "command",
		Content:       "other",
		CorrelationID: "corr-2",
	}))

	msgs, err := rec.ListByCorrelation(ctx, "corr-1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	// Oldest first, defaults filled on insert.
	assert.Equal(t, "send", msgs[0].Content)
	assert.Equal(t, "sent", msgs[1].Content)
	for _, msg := range msgs {
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, StatusPending, msg.Status)
		assert.False(t, msg.CreatedAt.IsZero())
		assert.Nil(t, msg.DeliveredAt)
	}
}

func TestSQLRecorder_MarkDelivered(t *testing.T) {
	rec := newTestSQLRecorder(t)
	ctx := context.Background()

	require.NoError(t, rec.Record(ctx, &Message{
		FromAgent:     "relay",
		Channel:       "dispatch",
		Type:          "command",
		Content:       "send",
		CorrelationID: "corr-1",
	}))

	require.NoError(t, rec.MarkDelivered(ctx, "corr-1"))

	msgs, err := rec.ListByCorrelation(ctx, "corr-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, StatusDelivered, msgs[0].Status)
	require.NotNil(t, msgs[0].DeliveredAt)
	assert.False(t, msgs[0].DeliveredAt.IsZero())
}

func TestSQLRecorder_Errors(t *testing.T) {
	rec := newTestSQLRecorder(t)
	ctx := context.Background()

	assert.ErrorIs(t, rec.Record(ctx, nil), ErrNilMessage)
	assert.ErrorIs(t, rec.MarkDelivered(ctx, ""), ErrEmptyCorrelationID)

	_, err := rec.ListByCorrelation(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyCorrelationID)

	_, err = NewSQLRecorder(nil, "sqlite")
	assert.Error(t, err)
}

func TestNewSQLRecorder_UnsupportedDialect(t *testing.T) {
	rec := newTestSQLRecorder(t)

	_, err := NewSQLRecorder(rec.db, "oracle")
	assert.ErrorContains(t, err, "unsupported dialect")
}

package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/homestead/pkg/observability"
)

// memoryLogger keeps events in memory
type memoryLogger struct {
	events []*Event
	err    error
}

func (m *memoryLogger) Log(_ context.Context, event *Event) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func TestMultiLogger(t *testing.T) {
	first := &memoryLogger{}
	broken := &memoryLogger{err: errors.New("audit table missing")}
	last := &memoryLogger{}
	multi := NewMultiLogger(first, nil, broken, last)

	err := multi.Log(context.Background(), &Event{EventType: EventAuthLogout, Status: StatusSuccess})
	assert.ErrorContains(t, err, "audit table missing")
	assert.Len(t, first.events, 1)
	assert.Len(t, last.events, 1, "a failing destination does not stop the others")

	assert.NoError(t, NewMultiLogger().Log(context.Background(), &Event{}))
}

func TestAppLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewAppLogger(observability.NewLogger(observability.InfoLevel, &buf))

	require.NoError(t, logger.Log(context.Background(), &Event{
		EventType:    EventTenantSuspended,
		Status:       StatusSuccess,
		ActorID:      int64p(3),
		TenantID:     int64p(12),
		ResourceType: ResourceTenant,
		ResourceID:   "12",
		StatusCode:   204,
	}))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "audit event", entry["msg"])
	assert.Equal(t, "audit", entry["component"])
	assert.Equal(t, "tenant.suspended", entry["event_type"])
	assert.Equal(t, float64(3), entry["actor_id"])
	assert.Equal(t, float64(12), entry["tenant_id"])
	assert.Equal(t, "tenant", entry["resource_type"])

	assert.NoError(t, NopLogger{}.Log(context.Background(), &Event{}))
}

package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/homestead/pkg/storage"
)

const eventColumns = `id, occurred_at, event_type, status, actor_id, tenant_id, resource_type, resource_id,
	request_id, ip_address, method, path, status_code, metadata`

// Store persists audit events in the audit_events table
type Store struct {
	q   storage.Querier
	now func() time.Time
}

// NewStore creates an audit store over a database or transaction
func NewStore(q storage.Querier) *Store {
	return &Store{
		q:   q,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the store's clock
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Log implements Logger. A zero OccurredAt is stamped with the store clock.
func (s *Store) Log(ctx context.Context, event *Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	var metadata sql.NullString
	if len(event.Metadata) > 0 {
		raw, err := json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	err := s.q.QueryRowContext(ctx, `
		INSERT INTO audit_events (
			occurred_at, event_type, status, actor_id, tenant_id, resource_type, resource_id,
			request_id, ip_address, method, path, status_code, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id
	`, event.OccurredAt, string(event.EventType), string(event.Status),
		storage.NullInt64(event.ActorID), storage.NullInt64(event.TenantID),
		string(event.ResourceType), event.ResourceID,
		event.RequestID, event.IPAddress, event.Method, event.Path, event.StatusCode, metadata,
	).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// Search returns matching events, newest first
func (s *Store) Search(ctx context.Context, filter SearchFilter) ([]Event, error) {
	filter = filter.Normalize()

	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.TenantID != nil {
		where = append(where, "tenant_id = "+arg(*filter.TenantID))
	}
	if filter.ActorID != nil {
		where = append(where, "actor_id = "+arg(*filter.ActorID))
	}
	if len(filter.EventTypes) > 0 {
		placeholders := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			placeholders[i] = arg(string(t))
		}
		where = append(where, "event_type IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}
	if filter.Since != nil {
		where = append(where, "occurred_at >= "+arg(filter.Since.UTC()))
	}
	if filter.Until != nil {
		where = append(where, "occurred_at < "+arg(filter.Until.UTC()))
	}

	query := `SELECT ` + eventColumns + ` FROM audit_events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY occurred_at DESC, id DESC LIMIT ` + arg(filter.Limit) + ` OFFSET ` + arg(filter.Offset)

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit events: %w", err)
	}
	return events, nil
}

// Purge deletes events older than the cutoff
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.q.ExecContext(ctx, `DELETE FROM audit_events WHERE occurred_at < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit events: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit events: %w", err)
	}
	return n, nil
}

func scanEvent(rows *sql.Rows) (*Event, error) {
	var (
		event             Event
		eventType, status string
		resourceType      string
		actorID, tenantID sql.NullInt64
		metadata          sql.NullString
	)
	err := rows.Scan(&event.ID, &event.OccurredAt, &eventType, &status, &actorID, &tenantID,
		&resourceType, &event.ResourceID, &event.RequestID, &event.IPAddress, &event.Method,
		&event.Path, &event.StatusCode, &metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to scan audit event: %w", err)
	}
	event.EventType = EventType(eventType)
	event.Status = Status(status)
	event.ResourceType = ResourceType(resourceType)
	event.ActorID = storage.Int64Ptr(actorID)
	event.TenantID = storage.Int64Ptr(tenantID)
	event.OccurredAt = event.OccurredAt.UTC()
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &event.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode audit metadata: %w", err)
		}
	}
	return &event, nil
}

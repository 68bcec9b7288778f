package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/lims-calendar/internal/persistence"
)

// wallClockLayout stores slot and event bounds as local wall-clock time.
const wallClockLayout = "2006-01-02T15:04:05"

// EventRepository implements persistence.EventRepository. Slot collections are
// stored as rows of time_slots and replaced wholesale on every update.
type EventRepository struct {
	pool   *ConnectionPool
	logger *slog.Logger
	now    func() time.Time
}

// NewEventRepository returns a repository over pool.
func NewEventRepository(pool *ConnectionPool, logger *slog.Logger) *EventRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventRepository{pool: pool, logger: logger, now: time.Now}
}

const eventColumns = `id, title, discipline, state, created_by, start_date, end_date, last_state_change, version, created_at, updated_at`

// CreateEvent inserts event and both of its slot collections.
func (r *EventRepository) CreateEvent(ctx context.Context, event persistence.Event) error {
	if event.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if event.Version <= 0 {
		event.Version = 1
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = r.now().UTC()
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = event.CreatedAt
	}
	change, err := encodeStateChange(event.LastStateChange)
	if err != nil {
		return err
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			event.ID,
			event.Title,
			event.Discipline,
			event.State,
			event.CreatedBy,
			formatOptionalWallClock(event.StartDate),
			formatOptionalWallClock(event.EndDate),
			change,
			event.Version,
			event.CreatedAt.UTC().Format(time.RFC3339),
			event.UpdatedAt.UTC().Format(time.RFC3339),
		)
		if err != nil {
			return fmt.Errorf("sqlite: insert event %s: %w", event.ID, MapError(err))
		}
		return insertSlotCollections(ctx, tx, event)
	})
}

// GetEvent loads an event with both slot collections.
func (r *EventRepository) GetEvent(ctx context.Context, id string) (persistence.Event, error) {
	if id == "" {
		return persistence.Event{}, persistence.ErrNotFound
	}

	var event persistence.Event
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
		loaded, err := r.scanEvent(ctx, row)
		if err != nil {
			return err
		}
		if err := r.loadSlots(ctx, tx, &loaded); err != nil {
			return err
		}
		event = loaded
		return nil
	})
	if err != nil {
		return persistence.Event{}, err
	}
	return event, nil
}

// UpdateEvent rewrites event when the stored version equals expectedVersion.
// CreatedBy and CreatedAt are never changed.
func (r *EventRepository) UpdateEvent(ctx context.Context, event persistence.Event, expectedVersion int64) error {
	if event.ID == "" {
		return persistence.ErrNotFound
	}
	if event.Version <= expectedVersion {
		event.Version = expectedVersion + 1
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = r.now().UTC()
	}
	change, err := encodeStateChange(event.LastStateChange)
	if err != nil {
		return err
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE events
			SET title = ?, discipline = ?, state = ?, start_date = ?, end_date = ?,
			    last_state_change = ?, version = ?, updated_at = ?
			WHERE id = ? AND version = ?`,
			event.Title,
			event.Discipline,
			event.State,
			formatOptionalWallClock(event.StartDate),
			formatOptionalWallClock(event.EndDate),
			change,
			event.Version,
			event.UpdatedAt.UTC().Format(time.RFC3339),
			event.ID,
			expectedVersion,
		)
		if err != nil {
			return fmt.Errorf("sqlite: update event %s: %w", event.ID, MapError(err))
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: rows affected: %w", err)
		}
		if affected == 0 {
			var stored int64
			if err := tx.QueryRowContext(ctx, `SELECT version FROM events WHERE id = ?`, event.ID).Scan(&stored); err != nil {
				return MapError(err)
			}
			return fmt.Errorf("sqlite: event %s at version %d, expected %d: %w", event.ID, stored, expectedVersion, persistence.ErrVersionConflict)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM time_slots WHERE event_id = ?`, event.ID); err != nil {
			return fmt.Errorf("sqlite: clear slots of %s: %w", event.ID, MapError(err))
		}
		return insertSlotCollections(ctx, tx, event)
	})
}

// ListEvents returns events matching filter ordered by start date, falling
// back to creation time, then id.
func (r *EventRepository) ListEvents(ctx context.Context, filter persistence.EventFilter) ([]persistence.Event, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.CreatedBy != "" {
		clauses = append(clauses, "created_by = ?")
		args = append(args, filter.CreatedBy)
	}
	if filter.Discipline != "" {
		clauses = append(clauses, "discipline = ?")
		args = append(args, filter.Discipline)
	}
	if filter.State != "" {
		clauses = append(clauses, "state = ?")
		args = append(args, filter.State)
	}
	query := `SELECT ` + eventColumns + ` FROM events`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY COALESCE(start_date, created_at), id`

	var events []persistence.Event
	err := r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("sqlite: list events: %w", MapError(err))
		}
		var loaded []persistence.Event
		for rows.Next() {
			event, err := r.scanEvent(ctx, rows)
			if err != nil {
				rows.Close()
				return err
			}
			loaded = append(loaded, event)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("sqlite: iterate events: %w", err)
		}
		rows.Close()

		for i := range loaded {
			if err := r.loadSlots(ctx, tx, &loaded[i]); err != nil {
				return err
			}
		}
		events = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []persistence.Event{}
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *EventRepository) scanEvent(ctx context.Context, row rowScanner) (persistence.Event, error) {
	var (
		event                persistence.Event
		start, end, change   sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&event.ID,
		&event.Title,
		&event.Discipline,
		&event.State,
		&event.CreatedBy,
		&start,
		&end,
		&change,
		&event.Version,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.Event{}, persistence.ErrNotFound
		}
		return persistence.Event{}, fmt.Errorf("sqlite: scan event: %w", err)
	}

	if event.StartDate, err = parseOptionalWallClock(start); err != nil {
		return persistence.Event{}, fmt.Errorf("sqlite: event %s start: %w", event.ID, err)
	}
	if event.EndDate, err = parseOptionalWallClock(end); err != nil {
		return persistence.Event{}, fmt.Errorf("sqlite: event %s end: %w", event.ID, err)
	}
	event.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	event.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	if change.Valid && change.String != "" {
		var decoded persistence.StateChange
		if err := json.Unmarshal([]byte(change.String), &decoded); err != nil {
			r.logger.WarnContext(ctx, "discarding malformed state change", "event_id", event.ID, "error", err)
		} else {
			event.LastStateChange = &decoded
		}
	}
	return event, nil
}

func (r *EventRepository) loadSlots(ctx context.Context, tx *sql.Tx, event *persistence.Event) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT kind, id, position, start_date, end_date, status, room, notes,
		       referent_actuel_time_id, created_by, modified_by
		FROM time_slots
		WHERE event_id = ?
		ORDER BY kind, position`, event.ID)
	if err != nil {
		return fmt.Errorf("sqlite: load slots of %s: %w", event.ID, MapError(err))
	}
	defer rows.Close()

	event.TimeSlots = []persistence.Slot{}
	event.ActualSlots = []persistence.Slot{}
	for rows.Next() {
		var (
			slot          persistence.Slot
			kind          string
			start, end    string
			referent      sql.NullString
			modifiedByRaw string
		)
		if err := rows.Scan(&kind, &slot.ID, &slot.Position, &start, &end, &slot.Status, &slot.Room, &slot.Notes, &referent, &slot.CreatedBy, &modifiedByRaw); err != nil {
			return fmt.Errorf("sqlite: scan slot: %w", err)
		}
		slot.Kind = persistence.SlotKind(kind)
		if slot.StartDate, err = time.ParseInLocation(wallClockLayout, start, time.Local); err != nil {
			return fmt.Errorf("sqlite: slot %s start: %w", slot.ID, err)
		}
		if slot.EndDate, err = time.ParseInLocation(wallClockLayout, end, time.Local); err != nil {
			return fmt.Errorf("sqlite: slot %s end: %w", slot.ID, err)
		}
		if referent.Valid {
			ref := referent.String
			slot.ReferentActuelTimeID = &ref
		}
		slot.ModifiedBy = r.decodeHistory(ctx, event.ID, slot.ID, modifiedByRaw)

		switch slot.Kind {
		case persistence.SlotKindActual:
			event.ActualSlots = append(event.ActualSlots, slot)
		default:
			event.TimeSlots = append(event.TimeSlots, slot)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: iterate slots: %w", err)
	}
	return nil
}

// decodeHistory never fails: a malformed history reads as empty.
func (r *EventRepository) decodeHistory(ctx context.Context, eventID, slotID, raw string) []persistence.SlotModification {
	history := []persistence.SlotModification{}
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return history
	}
	if err := json.Unmarshal([]byte(raw), &history); err != nil {
		r.logger.WarnContext(ctx, "discarding malformed slot history",
			"event_id", eventID,
			"slot_id", slotID,
			"error", err,
		)
		return []persistence.SlotModification{}
	}
	if history == nil {
		history = []persistence.SlotModification{}
	}
	return history
}

func insertSlotCollections(ctx context.Context, tx *sql.Tx, event persistence.Event) error {
	if err := insertSlots(ctx, tx, event.ID, persistence.SlotKindProposed, event.TimeSlots); err != nil {
		return err
	}
	return insertSlots(ctx, tx, event.ID, persistence.SlotKindActual, event.ActualSlots)
}

func insertSlots(ctx context.Context, tx *sql.Tx, eventID string, kind persistence.SlotKind, slots []persistence.Slot) error {
	if len(slots) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO time_slots (event_id, kind, id, position, start_date, end_date, status, room, notes,
		                        referent_actuel_time_id, created_by, modified_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite: prepare slot insert: %w", MapError(err))
	}
	defer stmt.Close()

	for position, slot := range slots {
		history := slot.ModifiedBy
		if history == nil {
			history = []persistence.SlotModification{}
		}
		encoded, err := json.Marshal(history)
		if err != nil {
			return fmt.Errorf("sqlite: encode history of slot %s: %w", slot.ID, err)
		}
		var referent any
		if slot.ReferentActuelTimeID != nil {
			referent = *slot.ReferentActuelTimeID
		}
		if _, err := stmt.ExecContext(ctx,
			eventID,
			string(kind),
			slot.ID,
			position,
			slot.StartDate.Format(wallClockLayout),
			slot.EndDate.Format(wallClockLayout),
			slot.Status,
			slot.Room,
			slot.Notes,
			referent,
			slot.CreatedBy,
			string(encoded),
		); err != nil {
			return fmt.Errorf("sqlite: insert %s slot %s: %w", kind, slot.ID, MapError(err))
		}
	}
	return nil
}

func encodeStateChange(change *persistence.StateChange) (any, error) {
	if change == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(change)
	if err != nil {
		return nil, fmt.Errorf("sqlite: encode state change: %w", err)
	}
	return string(encoded), nil
}

func formatOptionalWallClock(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(wallClockLayout)
}

func parseOptionalWallClock(value sql.NullString) (*time.Time, error) {
	if !value.Valid || value.String == "" {
		return nil, nil
	}
	parsed, err := time.ParseInLocation(wallClockLayout, value.String, time.Local)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

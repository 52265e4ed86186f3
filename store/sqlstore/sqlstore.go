// Package sqlstore keeps locations and queue entries in SQLite through dbx.
// Timestamps are stored as unix nanoseconds; NULL marks an unset instant.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"service-queue/internal/status"
	"service-queue/models"

	"github.com/pocketbase/dbx"
	_ "modernc.org/sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS locations (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		queue_enabled INTEGER NOT NULL DEFAULT 0,
		max_capacity INTEGER NOT NULL DEFAULT 0,
		average_service_minutes REAL,
		last_average_reset INTEGER NOT NULL DEFAULT 0,
		version INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS queue_entries (
		id TEXT PRIMARY KEY,
		location_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		service_type_id TEXT,
		ticket_code TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		joined_at INTEGER NOT NULL,
		called_at INTEGER,
		service_started_at INTEGER,
		completed_at INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_queue_entries_location_state ON queue_entries (location_id, state)`,
}

type locationRow struct {
	ID                    string          `db:"id"`
	Name                  string          `db:"name"`
	QueueEnabled          bool            `db:"queue_enabled"`
	MaxCapacity           int             `db:"max_capacity"`
	AverageServiceMinutes sql.NullFloat64 `db:"average_service_minutes"`
	LastAverageReset      int64           `db:"last_average_reset"`
	Version               int64           `db:"version"`
}

type entryRow struct {
	ID               string         `db:"id"`
	LocationID       string         `db:"location_id"`
	CustomerID       string         `db:"customer_id"`
	ServiceTypeID    sql.NullString `db:"service_type_id"`
	TicketCode       string         `db:"ticket_code"`
	State            string         `db:"state"`
	JoinedAt         int64          `db:"joined_at"`
	CalledAt         sql.NullInt64  `db:"called_at"`
	ServiceStartedAt sql.NullInt64  `db:"service_started_at"`
	CompletedAt      sql.NullInt64  `db:"completed_at"`
}

var (
	locationColumns = []string{"id", "name", "queue_enabled", "max_capacity", "average_service_minutes", "last_average_reset", "version"}
	entryColumns    = []string{"id", "location_id", "customer_id", "service_type_id", "ticket_code", "state", "joined_at", "called_at", "service_started_at", "completed_at"}
	terminalStates  = []any{string(models.StateCompleted), string(models.StateCancelled), string(models.StateNoShow)}
)

type Store struct {
	db *dbx.DB
}

// Open connects to the SQLite database at path and creates the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := dbx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one writer; also keeps a :memory: database on a single connection
	db.DB().SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.NewQuery(stmt).WithContext(ctx).Execute(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) CreateLocation(ctx context.Context, loc models.Location) error {
	_, err := s.db.Insert("locations", locationParams(loc)).WithContext(ctx).Execute()
	if err != nil {
		return fmt.Errorf("create location %s: %w", loc.ID, err)
	}
	return nil
}

func (s *Store) ListLocations(ctx context.Context) ([]models.Location, error) {
	var rows []locationRow
	err := s.db.Select(locationColumns...).
		From("locations").
		OrderBy("id ASC").
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("list locations: %w", err)
	}

	locations := make([]models.Location, 0, len(rows))
	for _, row := range rows {
		locations = append(locations, row.toModel())
	}
	return locations, nil
}

func (s *Store) GetLocation(ctx context.Context, id string) (models.Location, error) {
	var row locationRow
	err := s.db.Select(locationColumns...).
		From("locations").
		Where(dbx.HashExp{"id": id}).
		WithContext(ctx).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Location{}, status.ErrLocationNotFound
	}
	if err != nil {
		return models.Location{}, fmt.Errorf("get location %s: %w", id, err)
	}
	return row.toModel(), nil
}

// UpdateLocation writes loc only when the stored version still equals
// loc.Version.
func (s *Store) UpdateLocation(ctx context.Context, loc models.Location) (models.Location, error) {
	expected := loc.Version
	loc.Version++

	params := locationParams(loc)
	delete(params, "id")
	res, err := s.db.Update("locations", params, dbx.HashExp{"id": loc.ID, "version": expected}).
		WithContext(ctx).
		Execute()
	if err != nil {
		return models.Location{}, fmt.Errorf("update location %s: %w", loc.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return models.Location{}, fmt.Errorf("update location %s: %w", loc.ID, err)
	}
	if affected == 0 {
		if _, err := s.GetLocation(ctx, loc.ID); err != nil {
			return models.Location{}, err
		}
		return models.Location{}, status.ErrVersionConflict
	}
	return loc, nil
}

func (s *Store) ListActiveEntries(ctx context.Context, locationID string) ([]models.QueueEntry, error) {
	var rows []entryRow
	err := s.db.Select(entryColumns...).
		From("queue_entries").
		Where(dbx.HashExp{"location_id": locationID}).
		AndWhere(dbx.NotIn("state", terminalStates...)).
		WithContext(ctx).
		All(&rows)
	if err != nil {
		return nil, fmt.Errorf("list active entries: %w", err)
	}

	entries := make([]models.QueueEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toModel())
	}
	return entries, nil
}

func (s *Store) GetEntry(ctx context.Context, id string) (models.QueueEntry, error) {
	var row entryRow
	err := s.db.Select(entryColumns...).
		From("queue_entries").
		Where(dbx.HashExp{"id": id}).
		WithContext(ctx).
		One(&row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.QueueEntry{}, status.ErrEntryNotFound
	}
	if err != nil {
		return models.QueueEntry{}, fmt.Errorf("get entry %s: %w", id, err)
	}
	return row.toModel(), nil
}

func (s *Store) SaveEntry(ctx context.Context, entry models.QueueEntry) error {
	_, err := s.db.NewQuery(`
		INSERT INTO queue_entries (id, location_id, customer_id, service_type_id, ticket_code, state, joined_at, called_at, service_started_at, completed_at)
		VALUES ({:id}, {:location_id}, {:customer_id}, {:service_type_id}, {:ticket_code}, {:state}, {:joined_at}, {:called_at}, {:service_started_at}, {:completed_at})
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			service_type_id = excluded.service_type_id,
			called_at = excluded.called_at,
			service_started_at = excluded.service_started_at,
			completed_at = excluded.completed_at`).
		Bind(entryParams(entry)).
		WithContext(ctx).
		Execute()
	if err != nil {
		return fmt.Errorf("save entry %s: %w", entry.ID, err)
	}
	return nil
}

func locationParams(loc models.Location) dbx.Params {
	var avg sql.NullFloat64
	if loc.AverageServiceMinutes != nil {
		avg = sql.NullFloat64{Float64: *loc.AverageServiceMinutes, Valid: true}
	}
	return dbx.Params{
		"id":                      loc.ID,
		"name":                    loc.Name,
		"queue_enabled":           loc.QueueEnabled,
		"max_capacity":            loc.MaxCapacity,
		"average_service_minutes": avg,
		"last_average_reset":      toNanos(loc.LastAverageReset),
		"version":                 loc.Version,
	}
}

func entryParams(e models.QueueEntry) dbx.Params {
	var svc sql.NullString
	if e.ServiceTypeID != nil {
		svc = sql.NullString{String: *e.ServiceTypeID, Valid: true}
	}
	return dbx.Params{
		"id":                 e.ID,
		"location_id":        e.LocationID,
		"customer_id":        e.CustomerID,
		"service_type_id":    svc,
		"ticket_code":        e.TicketCode,
		"state":              string(e.State),
		"joined_at":          toNanos(e.JoinedAt),
		"called_at":          nullNanos(e.CalledAt),
		"service_started_at": nullNanos(e.ServiceStartedAt),
		"completed_at":       nullNanos(e.CompletedAt),
	}
}

func (r locationRow) toModel() models.Location {
	loc := models.Location{
		ID:               r.ID,
		Name:             r.Name,
		QueueEnabled:     r.QueueEnabled,
		MaxCapacity:      r.MaxCapacity,
		LastAverageReset: fromNanos(r.LastAverageReset),
		Version:          r.Version,
	}
	if r.AverageServiceMinutes.Valid {
		avg := r.AverageServiceMinutes.Float64
		loc.AverageServiceMinutes = &avg
	}
	return loc
}

func (r entryRow) toModel() models.QueueEntry {
	e := models.QueueEntry{
		ID:               r.ID,
		LocationID:       r.LocationID,
		CustomerID:       r.CustomerID,
		TicketCode:       r.TicketCode,
		State:            models.EntryState(r.State),
		JoinedAt:         fromNanos(r.JoinedAt),
		CalledAt:         fromNullNanos(r.CalledAt),
		ServiceStartedAt: fromNullNanos(r.ServiceStartedAt),
		CompletedAt:      fromNullNanos(r.CompletedAt),
	}
	if r.ServiceTypeID.Valid {
		svc := r.ServiceTypeID.String
		e.ServiceTypeID = &svc
	}
	return e
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

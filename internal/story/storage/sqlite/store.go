// Package sqlite provides a SQLite-backed save slot store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sqlitemigrate "github.com/louisbranch/talespin/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/talespin/internal/story/storage"
	"github.com/louisbranch/talespin/internal/story/storage/filter"
	"github.com/louisbranch/talespin/internal/story/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists save slots in SQLite.
type Store struct {
	sqlDB  *sql.DB
	decode storage.Decoder
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithDecoder sets how stored bytes are validated. The default accepts
// unsealed saves only.
func WithDecoder(decode storage.Decoder) Option {
	return func(s *Store) {
		if decode != nil {
			s.decode = decode
		}
	}
}

// WithClock overrides the clock used for updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite slot store and applies embedded migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	s := &Store{sqlDB: sqlDB, decode: storage.PlainDecoder, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutSlot stores data in slot. The bytes it replaces become the backup.
func (s *Store) PutSlot(ctx context.Context, slot storage.Slot, data []byte) (storage.Metadata, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Metadata{}, err
	}
	if err := slot.Validate(); err != nil {
		return storage.Metadata{}, err
	}
	snapshot, err := s.decode(data)
	if err != nil {
		return storage.Metadata{}, fmt.Errorf("put slot %s: %w", slot, err)
	}
	meta := storage.NewMetadata(slot, snapshot, s.now())

	_, err = s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO save_slots (
		   slot_id, quick, data, backup, script_id, position,
		   chapter_label, summary_line, updated_at
		 ) VALUES (?, ?, ?, NULL, ?, ?, ?, ?, ?)
		 ON CONFLICT (slot_id, quick) DO UPDATE SET
		   backup = save_slots.data,
		   data = excluded.data,
		   script_id = excluded.script_id,
		   position = excluded.position,
		   chapter_label = excluded.chapter_label,
		   summary_line = excluded.summary_line,
		   updated_at = excluded.updated_at`,
		meta.SlotID,
		meta.Quick,
		data,
		meta.ScriptIDHex,
		meta.Position,
		meta.ChapterLabel,
		meta.SummaryLine,
		toMillis(meta.UpdatedAt),
	)
	if err != nil {
		return storage.Metadata{}, fmt.Errorf("put slot %s: %w", slot, err)
	}
	return meta, nil
}

// GetSlot returns the slot bytes, falling back to the backup when the
// primary no longer decodes.
func (s *Store) GetSlot(ctx context.Context, slot storage.Slot) ([]byte, storage.Metadata, error) {
	if err := s.ready(ctx); err != nil {
		return nil, storage.Metadata{}, err
	}
	if err := slot.Validate(); err != nil {
		return nil, storage.Metadata{}, err
	}

	var (
		data      []byte
		backup    []byte
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT data, backup, updated_at
		   FROM save_slots
		  WHERE slot_id = ? AND quick = ?`,
		slot.ID,
		slot.Quick,
	).Scan(&data, &backup, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.Metadata{}, storage.NotFound(slot)
		}
		return nil, storage.Metadata{}, fmt.Errorf("get slot %s: %w", slot, err)
	}

	snapshot, primaryErr := s.decode(data)
	if primaryErr == nil {
		return data, storage.NewMetadata(slot, snapshot, fromMillis(updatedAt)), nil
	}
	if backup == nil {
		return nil, storage.Metadata{}, storage.RecoveryFailed(slot, primaryErr)
	}
	snapshot, err = s.decode(backup)
	if err != nil {
		return nil, storage.Metadata{}, storage.RecoveryFailed(slot, errors.Join(primaryErr, err))
	}
	return backup, storage.NewMetadata(slot, snapshot, fromMillis(updatedAt)), nil
}

// DeleteSlot removes a slot and its backup.
func (s *Store) DeleteSlot(ctx context.Context, slot storage.Slot) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if err := slot.Validate(); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM save_slots WHERE slot_id = ? AND quick = ?`, slot.ID, slot.Quick)
	if err != nil {
		return fmt.Errorf("delete slot %s: %w", slot, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete slot %s: %w", slot, err)
	}
	if n == 0 {
		return storage.NotFound(slot)
	}
	return nil
}

// ListSlots returns slot metadata, newest first.
func (s *Store) ListSlots(ctx context.Context, filterStr string) ([]storage.Metadata, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	cond, err := filter.Parse(filterStr)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}

	query := `SELECT slot_id, quick, script_id, position, chapter_label, summary_line, updated_at
	            FROM save_slots`
	if !cond.Empty() {
		query += " WHERE " + cond.Clause
	}
	query += " ORDER BY updated_at DESC, quick DESC, slot_id ASC"

	rows, err := s.sqlDB.QueryContext(ctx, query, cond.Params...)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	slots := []storage.Metadata{}
	for rows.Next() {
		var meta storage.Metadata
		var updatedAt int64
		if err := rows.Scan(
			&meta.SlotID,
			&meta.Quick,
			&meta.ScriptIDHex,
			&meta.Position,
			&meta.ChapterLabel,
			&meta.SummaryLine,
			&updatedAt,
		); err != nil {
			return nil, fmt.Errorf("list slots: %w", err)
		}
		meta.UpdatedAt = fromMillis(updatedAt)
		slots = append(slots, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

var _ storage.SlotStore = (*Store)(nil)

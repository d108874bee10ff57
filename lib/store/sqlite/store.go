// Package sqlite implements the terminal store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cds/client/lib/store"
	"cds/client/lib/store/sqlite/migrations"
	"cds/client/lib/wire"
	_ "modernc.org/sqlite"
)

const (
	recordLastTransactionID = "last_transaction_id"
	recordLastResponse      = "last_response"
	recordRequestPrefix     = "last_request."
)

type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// Open opens the database at path and applies migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err = applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Pending(ctx context.Context) ([]store.Pending, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT request, failed FROM pending_requests ORDER BY sequence_id`)
	if err != nil {
		return nil, fmt.Errorf("list pending requests: %w", err)
	}
	defer rows.Close()

	var pending []store.Pending
	for rows.Next() {
		var data []byte
		var failed bool
		if err = rows.Scan(&data, &failed); err != nil {
			return nil, fmt.Errorf("scan pending request: %w", err)
		}
		request, err := wire.UnmarshalRequest(data)
		if err != nil {
			return nil, fmt.Errorf("decode pending request: %w", err)
		}
		pending = append(pending, store.Pending{Request: request, Failed: failed})
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending requests: %w", err)
	}
	return pending, nil
}

func (s *Store) SavePending(ctx context.Context, pending []store.Pending) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save pending: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM pending_requests`); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear pending requests: %w", err)
	}
	for _, p := range pending {
		data, err := wire.MarshalRequest(p.Request)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("encode pending request %d: %w", p.Request.SequenceID, err)
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO pending_requests (sequence_id, command, request, failed) VALUES (?, ?, ?, ?)`,
			int64(p.Request.SequenceID), int32(p.Request.Command()), data, p.Failed,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert pending request %d: %w", p.Request.SequenceID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save pending: %w", err)
	}
	return nil
}

func (s *Store) LastTransactionID(ctx context.Context) (uint32, error) {
	data, ok, err := s.record(ctx, recordLastTransactionID)
	if err != nil || !ok {
		return 0, err
	}
	id, err := strconv.ParseUint(string(data), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("decode last transaction id: %w", err)
	}
	return uint32(id), nil
}

func (s *Store) SaveLastTransactionID(ctx context.Context, id uint32) error {
	return s.saveRecord(ctx, recordLastTransactionID, []byte(strconv.FormatUint(uint64(id), 10)))
}

func (s *Store) LastRequest(ctx context.Context, slot store.Slot) (wire.Request, bool, error) {
	data, ok, err := s.record(ctx, recordRequestPrefix+string(slot))
	if err != nil || !ok {
		return wire.Request{}, false, err
	}
	request, err := wire.UnmarshalRequest(data)
	if err != nil {
		return wire.Request{}, false, fmt.Errorf("decode %s request: %w", slot, err)
	}
	return request, true, nil
}

func (s *Store) SaveLastRequest(ctx context.Context, slot store.Slot, request wire.Request) error {
	data, err := wire.MarshalRequest(request)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", slot, err)
	}
	return s.saveRecord(ctx, recordRequestPrefix+string(slot), data)
}

func (s *Store) ClearLastRequest(ctx context.Context, slot store.Slot) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE name = ?`, recordRequestPrefix+string(slot)); err != nil {
		return fmt.Errorf("clear %s request: %w", slot, err)
	}
	return nil
}

func (s *Store) LastResponse(ctx context.Context) (wire.Response, bool, error) {
	data, ok, err := s.record(ctx, recordLastResponse)
	if err != nil || !ok {
		return wire.Response{}, false, err
	}
	response, err := wire.UnmarshalResponse(data)
	if err != nil {
		return wire.Response{}, false, fmt.Errorf("decode last response: %w", err)
	}
	return response, true, nil
}

func (s *Store) SaveLastResponse(ctx context.Context, response wire.Response) error {
	data, err := wire.MarshalResponse(response)
	if err != nil {
		return fmt.Errorf("encode last response: %w", err)
	}
	return s.saveRecord(ctx, recordLastResponse, data)
}

func (s *Store) LastPrize(ctx context.Context) (store.Prize, bool, error) {
	var prize store.Prize
	var sequenceID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT sequence_id, transaction_id, data FROM prizes WHERE id = 1`,
	).Scan(&sequenceID, &prize.TransactionID, &prize.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Prize{}, false, nil
	}
	if err != nil {
		return store.Prize{}, false, fmt.Errorf("load prize: %w", err)
	}
	prize.SequenceID = uint64(sequenceID)
	return prize, true, nil
}

func (s *Store) SavePrize(ctx context.Context, prize store.Prize) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO prizes (id, sequence_id, transaction_id, data, updated_at) VALUES (1, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	sequence_id = excluded.sequence_id,
	transaction_id = excluded.transaction_id,
	data = excluded.data,
	updated_at = excluded.updated_at
`,
		int64(prize.SequenceID), prize.TransactionID, prize.Data, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save prize: %w", err)
	}
	return nil
}

func (s *Store) record(ctx context.Context, name string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM records WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", name, err)
	}
	return value, true, nil
}

func (s *Store) saveRecord(ctx context.Context, name string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO records (name, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`,
		name, value, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

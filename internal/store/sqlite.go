package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/GoSim-25-26J-441/amplitude-core/internal/dataset"
	"github.com/GoSim-25-26J-441/amplitude-core/pkg/models"
)

// SQLiteStore persists versioned JSON payloads in a SQLite database
// through the pure-Go modernc driver.
type SQLiteStore struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteStore(path string) *SQLiteStore {
	return &SQLiteStore{path: path}
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteStore) SaveDataset(ctx context.Context, name string, ds *dataset.Dataset) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	createdAt := time.Now().UTC()
	payload, err := EncodeDataset(name, ds, createdAt)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO datasets (name, schema_version, codec_version, events, sum_weights, created_at, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			events = excluded.events,
			sum_weights = excluded.sum_weights,
			created_at = excluded.created_at,
			payload = excluded.payload
	`, name, CurrentSchemaVersion, CurrentCodecVersion, ds.Len(), ds.SumWeights(), createdAt.UnixNano(), payload)
	return err
}

func (s *SQLiteStore) GetDataset(ctx context.Context, name string) (*dataset.Dataset, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM datasets WHERE name = ?`, name).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	ds, err := DecodeDataset(payload)
	if err != nil {
		return nil, false, fmt.Errorf("decode dataset %s: %w", name, err)
	}
	return ds, true, nil
}

func (s *SQLiteStore) ListDatasets(ctx context.Context) ([]models.DatasetInfo, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT name, events, sum_weights, created_at FROM datasets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DatasetInfo
	for rows.Next() {
		var (
			info    models.DatasetInfo
			created int64
		)
		if err := rows.Scan(&info.Name, &info.Events, &info.SumWeights, &created); err != nil {
			return nil, err
		}
		info.CreatedAt = time.Unix(0, created).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveFitResult(ctx context.Context, result models.FitResult) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	payload, err := EncodeFitResult(result)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO fit_results (id, session_id, created_at, schema_version, codec_version, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			session_id = excluded.session_id,
			created_at = excluded.created_at,
			schema_version = excluded.schema_version,
			codec_version = excluded.codec_version,
			payload = excluded.payload
	`, result.ID, result.SessionID, result.CreatedAt.UnixNano(), CurrentSchemaVersion, CurrentCodecVersion, payload)
	return err
}

func (s *SQLiteStore) GetFitResult(ctx context.Context, id string) (models.FitResult, bool, error) {
	db, err := s.getDB()
	if err != nil {
		return models.FitResult{}, false, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM fit_results WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.FitResult{}, false, nil
		}
		return models.FitResult{}, false, err
	}

	result, err := DecodeFitResult(payload)
	if err != nil {
		return models.FitResult{}, false, fmt.Errorf("decode fit result %s: %w", id, err)
	}
	return result, true, nil
}

func (s *SQLiteStore) ListFitResults(ctx context.Context, sessionID string) ([]models.FitResult, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, payload FROM fit_results
		WHERE ? = '' OR session_id = ?
		ORDER BY created_at, id
	`, sessionID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FitResult
	for rows.Next() {
		var (
			id      string
			payload []byte
		)
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, err
		}
		result, err := DecodeFitResult(payload)
		if err != nil {
			return nil, fmt.Errorf("decode fit result %s: %w", id, err)
		}
		out = append(out, result)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteStore) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, errNotInitialized
	}
	return s.db, nil
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS datasets (
			name TEXT PRIMARY KEY,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			events INTEGER NOT NULL,
			sum_weights REAL NOT NULL,
			created_at INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS fit_results (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			schema_version INTEGER NOT NULL,
			codec_version INTEGER NOT NULL,
			payload BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS fit_results_session ON fit_results (session_id);
	`)
	return err
}

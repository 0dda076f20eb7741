package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a Store backed by MySQL, for deployments where several
// processes share checkpoint and recording state. The schema is created on
// first open.
//
// The DSN follows go-sql-driver conventions, e.g.
// "user:pass@tcp(localhost:3306)/machina?parseTime=true".
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore connects to MySQL, verifies the connection, and runs the
// schema migration.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate mysql schema: %w", err)
	}
	return s, nil
}

func (s *MySQLStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS checkpoints (
			id VARCHAR(64) PRIMARY KEY,
			payload LONGBLOB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS decision_records (
			session VARCHAR(128) NOT NULL,
			seq INT NOT NULL,
			payload LONGBLOB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (session, seq)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveCheckpoint upserts the payload under id.
func (s *MySQLStore) SaveCheckpoint(ctx context.Context, id string, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (id, payload) VALUES (?, ?)
		 ON DUPLICATE KEY UPDATE payload = VALUES(payload)`,
		id, data)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", id, err)
	}
	return nil
}

// LoadCheckpoint returns the payload saved under id.
func (s *MySQLStore) LoadCheckpoint(ctx context.Context, id string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM checkpoints WHERE id = ?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", id, err)
	}
	return payload, nil
}

// DeleteCheckpoint removes the payload saved under id.
func (s *MySQLStore) DeleteCheckpoint(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete checkpoint %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListCheckpoints returns all stored checkpoint ids, oldest first.
func (s *MySQLStore) ListCheckpoints(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM checkpoints ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AppendRecord adds a decision record to a session.
func (s *MySQLStore) AppendRecord(ctx context.Context, session string, seq int, data []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO decision_records (session, seq, payload) VALUES (?, ?, ?)`,
		session, seq, data)
	if err != nil {
		return fmt.Errorf("append record %s/%d: %w", session, seq, err)
	}
	return nil
}

// Session returns a session's records ordered by sequence number.
func (s *MySQLStore) Session(ctx context.Context, session string) ([]SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seq, payload FROM decision_records WHERE session = ? ORDER BY seq`,
		session)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", session, err)
	}
	defer rows.Close()

	var records []SessionRecord
	for rows.Next() {
		var r SessionRecord
		if err := rows.Scan(&r.Seq, &r.Data); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

// Close closes the connection pool.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}

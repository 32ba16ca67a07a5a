package bus

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/relay/pkg/config"

	// Database drivers
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// SQLRecorder implements Recorder with a SQL backend.
// Supports PostgreSQL, MySQL, and SQLite via database/sql.
type SQLRecorder struct {
	db      *sql.DB
	dialect string // "postgres", "mysql", or "sqlite"
}

// Schema is compatible with all three databases.
const createTableSQL = `
CREATE TABLE IF NOT EXISTS bus_messages (
    id VARCHAR(255) PRIMARY KEY,
    from_agent VARCHAR(255) NOT NULL,
    to_agent VARCHAR(255) NOT NULL,
    channel VARCHAR(255) NOT NULL,
    type VARCHAR(100) NOT NULL,
    content TEXT,
    correlation_id VARCHAR(255) NOT NULL,
    status VARCHAR(50) NOT NULL,
    created_at TIMESTAMP NOT NULL,
    delivered_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_bus_messages_correlation_id ON bus_messages(correlation_id);
CREATE INDEX IF NOT EXISTS idx_bus_messages_status ON bus_messages(status);
`

// NewSQLRecorder creates a SQL-backed recorder over an open connection.
func NewSQLRecorder(db *sql.DB, dialect string) (*SQLRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	switch dialect {
	case "postgres", "mysql", "sqlite":
	default:
		return nil, fmt.Errorf("unsupported dialect: %s (supported: postgres, mysql, sqlite)", dialect)
	}

	r := &SQLRecorder{db: db, dialect: dialect}
	if err := r.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return r, nil
}

// NewSQLRecorderFromConfig opens a connection per the bus configuration
// and wraps it in a SQLRecorder.
func NewSQLRecorderFromConfig(cfg *config.BusConfig) (*SQLRecorder, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bus configuration is required")
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bus config: %w", err)
	}

	db, err := sql.Open(cfg.DriverName(), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time. A single connection
	// serializes all access and prevents "database is locked" errors.
	if cfg.DriverName() == "sqlite3" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		slog.Debug("SQLite: using single connection mode")
	} else {
		if cfg.MaxConns > 0 {
			db.SetMaxOpenConns(cfg.MaxConns)
		}
		if cfg.MaxIdle > 0 {
			db.SetMaxIdleConns(cfg.MaxIdle)
		}
	}
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.DriverName() == "sqlite3" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			slog.Warn("Failed to enable WAL mode", "error", err)
		}
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=10000"); err != nil {
			slog.Warn("Failed to set busy timeout", "error", err)
		}
	}

	return NewSQLRecorder(db, cfg.Driver)
}

func (r *SQLRecorder) initSchema() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record stores a message.
func (r *SQLRecorder) Record(ctx context.Context, msg *Message) error {
	if msg == nil {
		return ErrNilMessage
	}

	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := msg.Status
	if status == "" {
		status = StatusPending
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
INSERT INTO bus_messages (id, from_agent, to_agent, channel, type, content, correlation_id, status, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`
	if r.dialect == "postgres" {
		query = `
INSERT INTO bus_messages (id, from_agent, to_agent, channel, type, content, correlation_id, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`
	}

	_, err := r.db.ExecContext(ctx, query,
		id, msg.FromAgent, msg.ToAgent, msg.Channel, msg.Type,
		msg.Content, msg.CorrelationID, status, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

// MarkDelivered flips every message under the correlation id to delivered.
func (r *SQLRecorder) MarkDelivered(ctx context.Context, correlationID string) error {
	if correlationID == "" {
		return ErrEmptyCorrelationID
	}

	query := `
UPDATE bus_messages
SET status = ?, delivered_at = ?
WHERE correlation_id = ? AND status != ?
`
	if r.dialect == "postgres" {
		query = `
UPDATE bus_messages
SET status = $1, delivered_at = $2
WHERE correlation_id = $3 AND status != $4
`
	}

	_, err := r.db.ExecContext(ctx, query, StatusDelivered, time.Now(), correlationID, StatusDelivered)
	if err != nil {
		return fmt.Errorf("failed to mark delivered: %w", err)
	}
	return nil
}

// ListByCorrelation returns messages under a correlation id, oldest first.
func (r *SQLRecorder) ListByCorrelation(ctx context.Context, correlationID string) ([]*Message, error) {
	if correlationID == "" {
		return nil, ErrEmptyCorrelationID
	}

	query := `
SELECT id, from_agent, to_agent, channel, type, content, correlation_id, status, created_at, delivered_at
FROM bus_messages
WHERE correlation_id = ?
ORDER BY created_at ASC
`
	if r.dialect == "postgres" {
		query = `
SELECT id, from_agent, to_agent, channel, type, content, correlation_id, status, created_at, delivered_at
FROM bus_messages
WHERE correlation_id = $1
ORDER BY created_at ASC
`
	}

	rows, err := r.db.QueryContext(ctx, query, correlationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var result []*Message
	for rows.Next() {
		var msg Message
		var deliveredAt sql.NullTime
		if err := rows.Scan(
			&msg.ID, &msg.FromAgent, &msg.ToAgent, &msg.Channel, &msg.Type,
			&msg.Content, &msg.CorrelationID, &msg.Status, &msg.CreatedAt, &deliveredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if deliveredAt.Valid {
			t := deliveredAt.Time
			msg.DeliveredAt = &t
		}
		result = append(result, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return result, nil
}

// Close closes the underlying database connection.
func (r *SQLRecorder) Close() error {
	return r.db.Close()
}

package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"
)

// Store persists audit messages to the audit_messages table.
type Store struct {
	db *sql.DB
}

// Message holds the envelope fields of a persisted audit event.
type Message struct {
	Timestamp time.Time `json:"timestamp"`
	Hostname  string    `json:"hostname"`
	Appname   string    `json:"appname"`
	Procid    string    `json:"procid"`
}

// NewStore opens a Postgres connection for audit persistence. An empty URL
// returns a nil Store, which disables persistence.
func NewStore(dbURL string) (*Store, error) {
	if dbURL == "" {
		return nil, nil
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// NewStoreWithDB creates a store with an existing database connection
func NewStoreWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save persists an audit event to the database
func (s *Store) Save(ctx context.Context, event Event, msg Message) error {
	if s == nil || s.db == nil {
		return nil
	}

	sdataJSON, err := json.Marshal(event.StructuredData())
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_messages (facility, severity, timestamp, hostname, appname, procid, msgid, sdata, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		event.Facility(),
		int(event.Severity()),
		msg.Timestamp,
		msg.Hostname,
		msg.Appname,
		msg.Procid,
		event.MessageID(),
		sdataJSON,
		event.Message(),
	)

	return err
}

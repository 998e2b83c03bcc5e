package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"
)

// DBRecorder writes audit entries to a PostgreSQL table for long-term
// retention and ad-hoc querying.
type DBRecorder struct {
	db *sql.DB
}

// NewDBRecorder creates a Postgres-backed recorder and ensures the
// audit_logs table exists.
func NewDBRecorder(db *sql.DB) (*DBRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	r := &DBRecorder{db: db}
	if err := r.ensureTable(); err != nil {
		return nil, fmt.Errorf("ensuring audit_logs table: %w", err)
	}
	return r, nil
}

func (r *DBRecorder) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_logs (
		id UUID PRIMARY KEY,
		action VARCHAR(64) NOT NULL,
		user_id VARCHAR(128) NOT NULL,
		subscription_id VARCHAR(128) NOT NULL,
		result VARCHAR(16) NOT NULL,
		error_message TEXT,
		metadata JSONB,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id ON audit_logs(user_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_subscription_id ON audit_logs(subscription_id);
	CREATE INDEX IF NOT EXISTS idx_audit_logs_action ON audit_logs(action);
	`

	_, err := r.db.Exec(query)
	return err
}

func (r *DBRecorder) Record(ctx context.Context, entry *Entry) error {
	var metadataJSON []byte
	if entry.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_logs (
			id, action, user_id, subscription_id,
			result, error_message, metadata, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	var errorMessage sql.NullString
	if entry.ErrorMessage != "" {
		errorMessage = sql.NullString{String: entry.ErrorMessage, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, string(entry.Action), entry.UserID, entry.SubscriptionID,
		string(entry.Result), errorMessage, metadataJSON, entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry %s: %w", entry.ID, err)
	}
	return nil
}

func (r *DBRecorder) Close() error {
	return r.db.Close()
}

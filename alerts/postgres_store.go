package alerts

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// PostgresAlertStore implements AlertStore backed by PostgreSQL. A
// partial unique index on (dedupe_key) WHERE NOT acknowledged backstops
// the dispatcher's dedup check against concurrent writers.
type PostgresAlertStore struct {
	db *sql.DB
}

// NewPostgresAlertStore creates a PostgreSQL-backed AlertStore.
func NewPostgresAlertStore(db *sql.DB) *PostgresAlertStore {
	return &PostgresAlertStore{db: db}
}

const alertColumns = `id, type, title, description, severity, metadata,
	source_kind, source_id, channels, dedupe_key, acknowledged, created_at`

// Add inserts a new alert.
func (s *PostgresAlertStore) Add(alert Alert) error {
	metadataJSON, err := json.Marshal(alert.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	channels := make([]string, len(alert.Channels))
	for i, c := range alert.Channels {
		channels[i] = string(c)
	}

	_, err = s.db.Exec(`
		INSERT INTO alerts (id, type, title, description, severity, metadata,
			source_kind, source_id, channels, dedupe_key, acknowledged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, alert.ID, string(alert.Type), alert.Title, alert.Description,
		string(alert.Severity), metadataJSON, string(alert.Source.Kind),
		alert.Source.ID, pq.Array(channels), alert.DedupeKey,
		alert.Acknowledged, alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// Get retrieves an alert by ID.
func (s *PostgresAlertStore) Get(id string) (Alert, error) {
	row := s.db.QueryRow(`SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id)
	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return Alert{}, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Alert{}, fmt.Errorf("failed to get alert: %w", err)
	}
	return alert, nil
}

// List returns all alerts, newest first.
func (s *PostgresAlertStore) List() ([]Alert, error) {
	rows, err := s.db.Query(`SELECT ` + alertColumns + ` FROM alerts
		ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		out = append(out, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alerts: %w", err)
	}
	return out, nil
}

// FindUnacknowledged returns the unacknowledged alert with the dedupe
// key, if any.
func (s *PostgresAlertStore) FindUnacknowledged(dedupeKey string) (Alert, bool, error) {
	row := s.db.QueryRow(`SELECT `+alertColumns+` FROM alerts
		WHERE dedupe_key = $1 AND acknowledged = false
		ORDER BY created_at ASC LIMIT 1`, dedupeKey)
	alert, err := scanAlert(row)
	if err == sql.ErrNoRows {
		return Alert{}, false, nil
	}
	if err != nil {
		return Alert{}, false, fmt.Errorf("failed to find alert by dedupe key: %w", err)
	}
	return alert, true, nil
}

// MarkAcknowledged sets the acknowledged flag; a second call is a no-op.
func (s *PostgresAlertStore) MarkAcknowledged(id string) error {
	result, err := s.db.Exec(`UPDATE alerts SET acknowledged = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (Alert, error) {
	var (
		alert        Alert
		alertType    string
		severity     string
		metadataJSON []byte
		sourceKind   string
		channels     []string
	)
	err := row.Scan(&alert.ID, &alertType, &alert.Title, &alert.Description,
		&severity, &metadataJSON, &sourceKind, &alert.Source.ID,
		pq.Array(&channels), &alert.DedupeKey, &alert.Acknowledged,
		&alert.CreatedAt)
	if err != nil {
		return Alert{}, err
	}

	alert.Type = Type(alertType)
	alert.Severity = Severity(severity)
	alert.Source.Kind = SourceKind(sourceKind)
	alert.Channels = make([]Channel, len(channels))
	for i, c := range channels {
		alert.Channels[i] = Channel(c)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &alert.Metadata); err != nil {
			return Alert{}, fmt.Errorf("failed to decode metadata: %w", err)
		}
	}
	return alert, nil
}

package rules

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresRuleStore implements RuleStore backed by PostgreSQL. Trigger
// and action payloads are stored as JSONB envelopes.
type PostgresRuleStore struct {
	db *sql.DB
}

// NewPostgresRuleStore creates a PostgreSQL-backed RuleStore.
func NewPostgresRuleStore(db *sql.DB) *PostgresRuleStore {
	return &PostgresRuleStore{db: db}
}

const ruleColumns = `id, name, description, trigger, action, status, enabled,
	execution_count, last_executed, created_at, updated_at`

// Add inserts a new rule.
func (s *PostgresRuleStore) Add(rule Rule) error {
	var exists bool
	err := s.db.QueryRow(`SELECT EXISTS(SELECT 1 FROM rules WHERE id = $1)`, rule.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule %s already exists", rule.ID)
	}

	triggerJSON, actionJSON, err := encodePayloads(rule)
	if err != nil {
		return err
	}

	now := time.Now()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}

	_, err = s.db.Exec(`
		INSERT INTO rules (id, name, description, trigger, action, status, enabled,
			execution_count, last_executed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, rule.ID, rule.Name, rule.Description, triggerJSON, actionJSON,
		string(rule.Status), rule.Enabled, rule.ExecutionCount,
		rule.LastExecuted, rule.CreatedAt, now)
	if err != nil {
		return fmt.Errorf("failed to insert rule: %w", err)
	}
	return nil
}

// Get retrieves a rule by ID.
func (s *PostgresRuleStore) Get(id string) (Rule, error) {
	row := s.db.QueryRow(`SELECT `+ruleColumns+` FROM rules WHERE id = $1`, id)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return Rule{}, fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Rule{}, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// List returns all rules in creation order.
func (s *PostgresRuleStore) List() ([]Rule, error) {
	return s.query(`SELECT ` + ruleColumns + ` FROM rules ORDER BY created_at ASC, id ASC`)
}

// ListActive returns rules eligible to fire, in creation order.
func (s *PostgresRuleStore) ListActive() ([]Rule, error) {
	return s.query(`SELECT ` + ruleColumns + ` FROM rules
		WHERE enabled = true AND status = 'active'
		ORDER BY created_at ASC, id ASC`)
}

func (s *PostgresRuleStore) query(q string, args ...any) ([]Rule, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return out, nil
}

// Update modifies an existing rule, preserving created_at.
func (s *PostgresRuleStore) Update(rule Rule) error {
	triggerJSON, actionJSON, err := encodePayloads(rule)
	if err != nil {
		return err
	}

	result, err := s.db.Exec(`
		UPDATE rules
		SET name = $1, description = $2, trigger = $3, action = $4, status = $5,
			enabled = $6, execution_count = $7, last_executed = $8, updated_at = $9
		WHERE id = $10
	`, rule.Name, rule.Description, triggerJSON, actionJSON, string(rule.Status),
		rule.Enabled, rule.ExecutionCount, rule.LastExecuted, time.Now(), rule.ID)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %s: %w", rule.ID, ErrNotFound)
	}
	return nil
}

// Delete removes a rule.
func (s *PostgresRuleStore) Delete(id string) error {
	result, err := s.db.Exec(`DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule %s: %w", id, ErrNotFound)
	}
	return nil
}

func encodePayloads(rule Rule) (triggerJSON, actionJSON []byte, err error) {
	triggerJSON, err = MarshalTrigger(rule.Trigger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode trigger: %w", err)
	}
	actionJSON, err = json.Marshal(rule.Action)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode action: %w", err)
	}
	return triggerJSON, actionJSON, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (Rule, error) {
	var (
		rule         Rule
		triggerJSON  []byte
		actionJSON   []byte
		status       string
		lastExecuted sql.NullTime
	)
	err := row.Scan(&rule.ID, &rule.Name, &rule.Description, &triggerJSON,
		&actionJSON, &status, &rule.Enabled, &rule.ExecutionCount,
		&lastExecuted, &rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return Rule{}, err
	}

	rule.Status = Status(status)
	if lastExecuted.Valid {
		t := lastExecuted.Time
		rule.LastExecuted = &t
	}
	if rule.Trigger, err = UnmarshalTrigger(triggerJSON); err != nil {
		return Rule{}, err
	}
	if err = json.Unmarshal(actionJSON, &rule.Action); err != nil {
		return Rule{}, fmt.Errorf("failed to decode action: %w", err)
	}
	return rule, nil
}

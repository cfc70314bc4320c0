package rules

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresRuleSetStore implements RuleSetStore backed by PostgreSQL. Rule
// documents are stored as JSONB in the rule_sets table (see migrations/).
type PostgresRuleSetStore struct {
	db *sql.DB
}

// NewPostgresRuleSetStore creates a PostgreSQL-backed rule set store.
func NewPostgresRuleSetStore(db *sql.DB) *PostgresRuleSetStore {
	return &PostgresRuleSetStore{db: db}
}

// Add inserts a new rule set after validating its document.
func (s *PostgresRuleSetStore) Add(rs *RuleSet) error {
	if _, err := LoadRules(rs.Document); err != nil {
		return fmt.Errorf("invalid rule document: %w", err)
	}

	var exists bool
	err := s.db.QueryRow(`
		SELECT EXISTS(SELECT 1 FROM rule_sets WHERE id = $1)
	`, rs.ID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check rule set existence: %w", err)
	}
	if exists {
		return fmt.Errorf("rule set with ID %s already exists", rs.ID)
	}

	err = s.db.QueryRow(`
		INSERT INTO rule_sets (id, form_id, name, document, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		RETURNING created_at, updated_at
	`, rs.ID, rs.FormID, rs.Name, []byte(rs.Document), rs.Active).Scan(&rs.CreatedAt, &rs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert rule set: %w", err)
	}

	return nil
}

// Get retrieves a rule set by ID.
func (s *PostgresRuleSetStore) Get(id string) (*RuleSet, error) {
	rs, err := s.scanOne(s.db.QueryRow(`
		SELECT id, form_id, name, document, active, created_at, updated_at
		FROM rule_sets
		WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule set %s not found", id)
	}
	return rs, err
}

// GetActiveByForm returns the most recently updated active rule set for a
// form.
func (s *PostgresRuleSetStore) GetActiveByForm(formID string) (*RuleSet, error) {
	rs, err := s.scanOne(s.db.QueryRow(`
		SELECT id, form_id, name, document, active, created_at, updated_at
		FROM rule_sets
		WHERE form_id = $1 AND active = true
		ORDER BY updated_at DESC, id ASC
		LIMIT 1
	`, formID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no active rule set for form %s", formID)
	}
	return rs, err
}

// ListActive returns all active rule sets.
func (s *PostgresRuleSetStore) ListActive() ([]*RuleSet, error) {
	rows, err := s.db.Query(`
		SELECT id, form_id, name, document, active, created_at, updated_at
		FROM rule_sets
		WHERE active = true
		ORDER BY form_id ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active rule sets: %w", err)
	}
	defer rows.Close()

	var sets []*RuleSet
	for rows.Next() {
		var rs RuleSet
		var doc []byte
		if err := rows.Scan(&rs.ID, &rs.FormID, &rs.Name, &doc, &rs.Active,
			&rs.CreatedAt, &rs.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule set: %w", err)
		}
		rs.Document = doc
		sets = append(sets, &rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rule sets: %w", err)
	}

	return sets, nil
}

// Update replaces an existing rule set's document and metadata.
func (s *PostgresRuleSetStore) Update(rs *RuleSet) error {
	if _, err := LoadRules(rs.Document); err != nil {
		return fmt.Errorf("invalid rule document: %w", err)
	}

	res, err := s.db.Exec(`
		UPDATE rule_sets
		SET form_id = $2, name = $3, document = $4, active = $5, updated_at = NOW()
		WHERE id = $1
	`, rs.ID, rs.FormID, rs.Name, []byte(rs.Document), rs.Active)
	if err != nil {
		return fmt.Errorf("failed to update rule set: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule set %s not found", rs.ID)
	}

	return nil
}

// Delete removes a rule set.
func (s *PostgresRuleSetStore) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM rule_sets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule set: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("rule set %s not found", id)
	}

	return nil
}

func (s *PostgresRuleSetStore) scanOne(row *sql.Row) (*RuleSet, error) {
	var rs RuleSet
	var doc []byte
	err := row.Scan(&rs.ID, &rs.FormID, &rs.Name, &doc, &rs.Active,
		&rs.CreatedAt, &rs.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule set: %w", err)
	}
	rs.Document = doc
	return &rs, nil
}

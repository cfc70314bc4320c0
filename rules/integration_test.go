//go:build integration
// +build integration

package rules_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mbaylor/formrules/rules"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	_ "github.com/lib/pq"
)

// setupTestDB creates a PostgreSQL container and returns a connection
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "formrules_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	postgresContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := postgresContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := postgresContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	connStr := fmt.Sprintf("host=%s port=%s user=test password=test dbname=formrules_test sslmode=disable", host, port.Port())

	// Wait for connection to be available
	var db *sql.DB
	for i := 0; i < 30; i++ {
		db, err = sql.Open("postgres", connStr)
		if err == nil {
			err = db.Ping()
			if err == nil {
				break
			}
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	// Run migrations
	migrationSQL, err := os.ReadFile(filepath.Join("..", "migrations", "000001_create_rule_sets.up.sql"))
	if err != nil {
		// Try without the ../ prefix
		migrationSQL, err = os.ReadFile(filepath.Join("migrations", "000001_create_rule_sets.up.sql"))
		if err != nil {
			t.Fatalf("Failed to read migration file: %v", err)
		}
	}

	_, err = db.Exec(string(migrationSQL))
	if err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		db.Close()
		postgresContainer.Terminate(ctx)
	}

	return db, cleanup
}

func pgRuleSet(formID string) *rules.RuleSet {
	return &rules.RuleSet{
		ID:     uuid.New().String(),
		FormID: formID,
		Name:   "integration test rule set",
		Document: json.RawMessage(`[
			{"id": "require-name",
			 "conditions": {"field": "student.type", "operator": "==", "value": "enrolled"},
			 "actions": [{"type": "set-required", "target": "student.name", "value": true}]}
		]`),
		Active: true,
	}
}

func TestPostgresRuleSetStore_BasicCRUD(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := rules.NewPostgresRuleSetStore(db)

	rs := pgRuleSet("signup")
	if err := store.Add(rs); err != nil {
		t.Fatalf("Failed to add rule set: %v", err)
	}
	if rs.CreatedAt.IsZero() || rs.UpdatedAt.IsZero() {
		t.Error("Add should populate timestamps from the database")
	}

	retrieved, err := store.Get(rs.ID)
	if err != nil {
		t.Fatalf("Failed to get rule set: %v", err)
	}
	if retrieved.FormID != "signup" {
		t.Errorf("Expected form 'signup', got '%s'", retrieved.FormID)
	}

	// The stored document must still load into an engine
	if _, err := rules.LoadRules(retrieved.Document); err != nil {
		t.Errorf("Stored document no longer loads: %v", err)
	}

	active, err := store.ListActive()
	if err != nil {
		t.Fatalf("Failed to list active rule sets: %v", err)
	}
	if len(active) != 1 {
		t.Errorf("Expected 1 active rule set, got %d", len(active))
	}

	rs.Name = "renamed"
	rs.Active = false
	if err := store.Update(rs); err != nil {
		t.Fatalf("Failed to update rule set: %v", err)
	}

	updated, err := store.Get(rs.ID)
	if err != nil {
		t.Fatalf("Failed to get updated rule set: %v", err)
	}
	if updated.Name != "renamed" {
		t.Errorf("Expected name 'renamed', got '%s'", updated.Name)
	}
	if updated.Active {
		t.Error("Expected rule set to be inactive after update")
	}

	active, err = store.ListActive()
	if err != nil {
		t.Fatalf("Failed to list active rule sets: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("Expected 0 active rule sets, got %d", len(active))
	}

	if err := store.Delete(rs.ID); err != nil {
		t.Fatalf("Failed to delete rule set: %v", err)
	}
	if _, err := store.Get(rs.ID); err == nil {
		t.Error("Expected error when getting deleted rule set, got nil")
	}
}

func TestPostgresRuleSetStore_RejectsInvalidDocument(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := rules.NewPostgresRuleSetStore(db)

	rs := pgRuleSet("signup")
	rs.Document = json.RawMessage(`[{"id": "broken"}]`)
	if err := store.Add(rs); err == nil {
		t.Error("Expected error when adding an invalid document, got nil")
	}
}

func TestPostgresRuleSetStore_DuplicateID(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := rules.NewPostgresRuleSetStore(db)

	rs := pgRuleSet("signup")
	if err := store.Add(rs); err != nil {
		t.Fatalf("Failed to add rule set: %v", err)
	}
	if err := store.Add(rs); err == nil {
		t.Error("Expected error when adding duplicate rule set, got nil")
	}
}

func TestPostgresRuleSetStore_GetActiveByForm(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := rules.NewPostgresRuleSetStore(db)

	older := pgRuleSet("signup")
	if err := store.Add(older); err != nil {
		t.Fatalf("Failed to add rule set: %v", err)
	}
	time.Sleep(10 * time.Millisecond) // Ensure distinct timestamps

	newer := pgRuleSet("signup")
	if err := store.Add(newer); err != nil {
		t.Fatalf("Failed to add rule set: %v", err)
	}

	other := pgRuleSet("checkout")
	if err := store.Add(other); err != nil {
		t.Fatalf("Failed to add rule set: %v", err)
	}

	got, err := store.GetActiveByForm("signup")
	if err != nil {
		t.Fatalf("Failed to get active rule set: %v", err)
	}
	if got.ID != newer.ID {
		t.Errorf("Expected most recently updated rule set %s, got %s", newer.ID, got.ID)
	}

	if _, err := store.GetActiveByForm("nope"); err == nil {
		t.Error("Expected error for a form with no active rule set, got nil")
	}
}

func TestPostgresRuleSetStore_UpdateDeleteNonExistent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := rules.NewPostgresRuleSetStore(db)

	if err := store.Update(pgRuleSet("signup")); err == nil {
		t.Error("Expected error when updating non-existent rule set, got nil")
	}
	if err := store.Delete(uuid.New().String()); err == nil {
		t.Error("Expected error when deleting non-existent rule set, got nil")
	}
}

func TestPostgresRuleSetStore_EngineRoundTrip(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	store := rules.NewPostgresRuleSetStore(db)

	rs := pgRuleSet("signup")
	if err := store.Add(rs); err != nil {
		t.Fatalf("Failed to add rule set: %v", err)
	}

	loaded, err := store.GetActiveByForm("signup")
	if err != nil {
		t.Fatalf("Failed to get active rule set: %v", err)
	}

	ruleList, err := rules.LoadRules(loaded.Document)
	if err != nil {
		t.Fatalf("Failed to load stored document: %v", err)
	}
	engine, err := rules.NewEngine(ruleList)
	if err != nil {
		t.Fatalf("Failed to build engine: %v", err)
	}

	state := rules.NewFormState(nil)
	result := engine.OnFieldChange(state, "student.type", "enrolled")
	if len(result.Fired) != 1 {
		t.Fatalf("Expected 1 fired rule, got %d", len(result.Fired))
	}
	meta := state.Derived["student.name"]
	if meta == nil || !meta.Required {
		t.Error("Expected student.name to be required after field change")
	}
}

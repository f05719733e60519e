package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/indicate-eu/data-dictionary/internal/database"
	"github.com/indicate-eu/data-dictionary/internal/domain"
)

// generateTestPassword creates a secure random password for test databases
func generateTestPassword() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to a default test password if random generation fails
		return "test_fallback_password_123"
	}
	return "test_" + hex.EncodeToString(bytes)
}

func setupTestDB(t *testing.T) (*database.DB, func()) {
	ctx := context.Background()

	testPassword := generateTestPassword()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("dictionary_test"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword(testPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	config := database.Config{
		Host:        host,
		Port:        port.Int(),
		Database:    "dictionary_test",
		Username:    "testuser",
		Password:    testPassword,
		MaxConns:    10,
		MinConns:    2,
		MaxConnLife: time.Hour,
		MaxConnIdle: time.Minute * 30,
		SSLMode:     "disable",
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.NewConnection(ctx, config, logger)
	if err != nil {
		t.Fatalf("Failed to create database connection: %v", err)
	}

	databaseURL := "postgres://testuser:" + testPassword + "@" + host + ":" + port.Port() + "/dictionary_test?sslmode=disable"
	migrationRunner, err := database.NewMigrationRunner(databaseURL, "../../migrations", logger)
	if err != nil {
		t.Fatalf("Failed to create migration runner: %v", err)
	}

	if err := migrationRunner.Up(ctx); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	cleanup := func() {
		migrationRunner.Close()
		db.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	}

	return db, cleanup
}

func testRepoLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func TestGeneralConceptRepository_CreateAndGet(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewGeneralConceptRepository(db.Pool, testRepoLogger())

	concept := &domain.GeneralConcept{
		Name:        "Body weight",
		Category:    "vital-signs",
		Description: "Patient body weight measurement",
	}

	ctx := context.Background()
	if err := repo.Create(ctx, concept); err != nil {
		t.Fatalf("Failed to create general concept: %v", err)
	}
	if concept.ID == 0 {
		t.Fatal("Expected ID to be assigned")
	}

	retrieved, err := repo.GetByID(ctx, concept.ID)
	if err != nil {
		t.Fatalf("Failed to retrieve general concept: %v", err)
	}

	if retrieved.Name != concept.Name {
		t.Errorf("Expected name %s, got %s", concept.Name, retrieved.Name)
	}
	if retrieved.Category != concept.Category {
		t.Errorf("Expected category %s, got %s", concept.Category, retrieved.Category)
	}
}

func TestGeneralConceptRepository_List(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewGeneralConceptRepository(db.Pool, testRepoLogger())
	ctx := context.Background()

	for _, name := range []string{"Body weight", "Body height", "Heart rate"} {
		if err := repo.Create(ctx, &domain.GeneralConcept{Name: name, Category: "vital-signs"}); err != nil {
			t.Fatalf("Failed to create general concept: %v", err)
		}
	}

	all, err := repo.List(ctx, "", 10, 0)
	if err != nil {
		t.Fatalf("Failed to list general concepts: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 concepts, got %d", len(all))
	}

	// Case-insensitive substring search
	matched, err := repo.List(ctx, "body", 10, 0)
	if err != nil {
		t.Fatalf("Failed to search general concepts: %v", err)
	}
	if len(matched) != 2 {
		t.Errorf("Expected 2 matching concepts, got %d", len(matched))
	}

	count, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("Failed to count general concepts: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected count 3, got %d", count)
	}
}

func TestGeneralConceptRepository_Update(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewGeneralConceptRepository(db.Pool, testRepoLogger())
	ctx := context.Background()

	concept := &domain.GeneralConcept{Name: "Body weight"}
	if err := repo.Create(ctx, concept); err != nil {
		t.Fatalf("Failed to create general concept: %v", err)
	}

	concept.Description = "Measured in kilograms"
	if err := repo.Update(ctx, concept); err != nil {
		t.Fatalf("Failed to update general concept: %v", err)
	}

	updated, err := repo.GetByID(ctx, concept.ID)
	if err != nil {
		t.Fatalf("Failed to retrieve updated concept: %v", err)
	}
	if updated.Description != "Measured in kilograms" {
		t.Errorf("Expected updated description, got %s", updated.Description)
	}

	missing := &domain.GeneralConcept{ID: 99999, Name: "Ghost"}
	if err := repo.Update(ctx, missing); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for missing concept, got %v", err)
	}
}

func TestGeneralConceptRepository_Delete(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewGeneralConceptRepository(db.Pool, testRepoLogger())
	ctx := context.Background()

	concept := &domain.GeneralConcept{Name: "Body weight"}
	if err := repo.Create(ctx, concept); err != nil {
		t.Fatalf("Failed to create general concept: %v", err)
	}

	if err := repo.Delete(ctx, concept.ID); err != nil {
		t.Fatalf("Failed to delete general concept: %v", err)
	}

	if _, err := repo.GetByID(ctx, concept.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}

	if err := repo.Delete(ctx, concept.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for second delete, got %v", err)
	}
}

func TestHistoryRepository_AppendAndList(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	concepts := NewGeneralConceptRepository(db.Pool, testRepoLogger())
	history := NewHistoryRepository(db.Pool, testRepoLogger())
	ctx := context.Background()

	concept := &domain.GeneralConcept{Name: "Body weight"}
	if err := concepts.Create(ctx, concept); err != nil {
		t.Fatalf("Failed to create general concept: %v", err)
	}

	entries := []*domain.HistoryEntry{
		{GeneralConceptID: concept.ID, Action: domain.ActionMappingCreated, Detail: "mapped to 3025315", Actor: "curator"},
		{GeneralConceptID: concept.ID, Action: domain.ActionMappingUpdated, Detail: "recommended", Actor: "curator"},
		{Action: domain.ActionEnrichmentRun, Detail: "derived_added=12"},
	}
	for _, e := range entries {
		if err := history.Append(ctx, e); err != nil {
			t.Fatalf("Failed to append history entry: %v", err)
		}
		if e.ID == "" {
			t.Error("Expected ID to be assigned")
		}
	}

	byConcept, err := history.ListByGeneralConcept(ctx, concept.ID, 10, 0)
	if err != nil {
		t.Fatalf("Failed to list history by concept: %v", err)
	}
	if len(byConcept) != 2 {
		t.Errorf("Expected 2 entries for concept, got %d", len(byConcept))
	}

	recent, err := history.ListRecent(ctx, 10, 0)
	if err != nil {
		t.Fatalf("Failed to list recent history: %v", err)
	}
	if len(recent) != 3 {
		t.Errorf("Expected 3 recent entries, got %d", len(recent))
	}
}

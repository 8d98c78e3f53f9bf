package testutil

import (
	"database/sql"
	"os"
	"testing"

	"github.com/xxxsen/ragkb/internal/config"
	"github.com/xxxsen/ragkb/internal/db"
)

// TestVectorDim keeps integration fixtures small; the stub embedder is
// configured to the same dimension.
const TestVectorDim = 8

func OpenTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	conn, err := db.Open(config.DatabaseConfig{
		Host:     host,
		Port:     5432,
		User:     "ragkb",
		Password: "ragkb_pass",
		DBName:   "ragkb_test",
		SSLMode:  "disable",
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.ApplyMigrations(conn, TestVectorDim); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
	}
}

// Truncate clears the domain tables between tests.
func Truncate(t *testing.T, conn *sql.DB) {
	t.Helper()
	for _, table := range []string{"chunks", "documents", "knowledge_bases", "embedding_cache"} {
		if _, err := conn.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("truncate %s: %v", table, err)
		}
	}
}

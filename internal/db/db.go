package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	"github.com/xxxsen/ragkb/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

// ApplyMigrations runs the embedded migration files in name order. The vector
// column width is baked into the DDL, so the configured embedding dimension is
// substituted before execution.
func ApplyMigrations(db *sql.DB, vectorDim int) error {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)
	for _, file := range files {
		content, err := fs.ReadFile(migrationsFS, "migrations/"+file)
		if err != nil {
			return err
		}
		script := strings.ReplaceAll(string(content), "{{vector_dim}}", strconv.Itoa(vectorDim))
		queries := strings.Split(script, ";")
		for _, q := range queries {
			q = strings.TrimSpace(q)
			if q == "" {
				continue
			}
			if _, err := db.Exec(q); err != nil {
				if strings.Contains(err.Error(), "already exists") {
					continue
				}
				return fmt.Errorf("execute query in %s: %w", file, err)
			}
		}
	}
	return nil
}

// ValidateVectorDimension compares the configured embedding dimension against
// the chunks.embedding column. A mismatch means the embedding model changed
// after data was written, so the server must not start.
func ValidateVectorDimension(db *sql.DB, want int) error {
	const query = `
		SELECT atttypmod
		FROM pg_attribute
		WHERE attrelid = 'chunks'::regclass AND attname = 'embedding'
	`
	var dim int
	if err := db.QueryRow(query).Scan(&dim); err != nil {
		return fmt.Errorf("read embedding column dimension: %w", err)
	}
	if dim != want {
		return fmt.Errorf("embedding dimension mismatch: storage=%d config=%d, update ai.vector_dimension or migrate the chunks table", dim, want)
	}
	return nil
}

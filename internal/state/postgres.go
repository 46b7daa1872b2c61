package state

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresConfig holds the connection settings for a Postgres store.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	Schema   string
	Options  map[string]string
}

// DSN builds a key=value connection string in the form pgx expects.
func (c PostgresConfig) DSN() string {
	parts := []string{}
	add := func(key, value string) {
		if value != "" {
			parts = append(parts, fmt.Sprintf("%s=%s", key, value))
		}
	}
	add("host", c.Host)
	if c.Port > 0 {
		parts = append(parts, fmt.Sprintf("port=%d", c.Port))
	}
	add("dbname", c.Database)
	add("user", c.User)
	add("password", c.Password)
	add("sslmode", c.SSLMode)
	if c.Schema != "" {
		add("search_path", c.Schema)
	}

	keys := make([]string, 0, len(c.Options))
	for k := range c.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		add(k, c.Options[k])
	}
	return strings.Join(parts, " ")
}

// OpenPostgres opens a Postgres-backed store via the pgx driver.
func OpenPostgres(cfg PostgresConfig, logger *slog.Logger) (*SQLStore, error) {
	db, err := sql.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres database: %w", err)
	}
	return New(db, DialectPostgres, logger), nil
}

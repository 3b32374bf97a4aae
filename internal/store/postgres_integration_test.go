package store

import (
	"context"
	"os"
	"testing"
)

// Requires a reachable Postgres; set TEST_DATABASE_URL to run.
func TestPostgresConnectivityAndMigrate(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	p, err := NewPostgres(dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := p.MigrateDir("../../db/migrations"); err != nil {
		t.Fatalf("MigrateDir: %v", err)
	}
	if _, _, err := p.ListMissions(context.Background(), "t_demo", "", "", 1); err != nil {
		t.Fatalf("ListMissions: %v", err)
	}
}

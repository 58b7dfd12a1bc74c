// Package main is a diagnostic tool that prints the state the lifecycle
// service keeps in the database: shared pool credentials ordered by how soon
// they will be tried again, live classifier counts, session users and the
// pending jobs backlog. It exits non-zero on any failure so it can gate a
// deployment on a reachable, migrated database.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/IBM/taxinomitis-sub001/internal/config"
	"github.com/IBM/taxinomitis-sub001/internal/db"
)

type poolRow struct {
	ID              string    `db:"id"`
	ServiceType     string    `db:"service_type"`
	CredentialsType string    `db:"credentials_type"`
	LastFailure     time.Time `db:"last_failure"`
}

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 2, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()
	dbx := sqlx.NewDb(database, "postgres")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	now := time.Now()

	fmt.Println("=== CREDENTIALS POOL ===")
	var pool []poolRow
	err = dbx.SelectContext(ctx, &pool,
		`SELECT id, service_type, credentials_type, last_failure FROM credentials_pool ORDER BY last_failure`)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	for _, p := range pool {
		state := "available"
		if p.LastFailure.After(now) {
			state = "cooling down for " + p.LastFailure.Sub(now).Round(time.Minute).String()
		}
		fmt.Printf("  %s  %s/%s  %s\n", p.ID, p.ServiceType, p.CredentialsType, state)
	}
	fmt.Printf("Total: %d\n\n", len(pool))

	counts := []struct {
		label string
		query string
	}{
		{"text classifiers", `SELECT COUNT(*) FROM classifiers`},
		{"expired text classifiers", `SELECT COUNT(*) FROM classifiers WHERE expiry < NOW()`},
		{"numbers classifiers", `SELECT COUNT(*) FROM numbers_classifiers`},
		{"scratch keys", `SELECT COUNT(*) FROM scratch_keys`},
		{"session users", `SELECT COUNT(*) FROM session_users`},
		{"expired session users", `SELECT COUNT(*) FROM session_users WHERE session_expiry < NOW()`},
		{"pending jobs", `SELECT COUNT(*) FROM pending_jobs`},
	}

	fmt.Println("=== COUNTS ===")
	for _, c := range counts {
		var n int
		if err := dbx.GetContext(ctx, &n, c.query); err != nil {
			log.Fatalf("Query for %s failed: %v", c.label, err)
		}
		fmt.Printf("  %-26s %d\n", c.label, n)
	}
}

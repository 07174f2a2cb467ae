// Command migrate applies the retention-engine schema to Postgres. It runs
// every .sql file in the migrations directory in lexical order, one
// transaction per file, so a failed migration never leaves a half-applied
// file behind. All statements are idempotent (CREATE ... IF NOT EXISTS),
// so re-running against an existing schema is safe.
//
// Usage:
//
//	DATABASE_URL=postgres://... migrate [dir] [--list]
//
// The directory defaults to ./migrations. With --list the tool only prints
// the tables currently present in the public schema and exits.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"
)

func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("[migrate] DATABASE_URL is required")
	}

	dir := "migrations"
	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		} else {
			dir = a
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("[migrate] connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("[migrate] ping: %v", err)
	}

	if listOnly {
		if err := listTables(db); err != nil {
			log.Fatalf("[migrate] list tables: %v", err)
		}
		return
	}

	applied, failed, err := applyDir(db, dir)
	if err != nil {
		log.Fatalf("[migrate] %v", err)
	}
	log.Printf("[migrate] done: %d applied, %d failed", applied, failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func listTables(db *sql.DB) error {
	rows, err := db.Query("SELECT tablename FROM pg_tables WHERE schemaname='public' ORDER BY tablename")
	if err != nil {
		return err
	}
	defer rows.Close()

	fmt.Println("retention-engine schema:")
	n := 0
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		fmt.Printf("  %s\n", name)
		n++
	}
	fmt.Printf("%d tables\n", n)
	return rows.Err()
}

// applyDir runs every .sql file in dir in lexical order, each in its own
// transaction. A failing file is rolled back and counted; later files still
// run, since the schema files are independent of each other's success.
func applyDir(db *sql.DB, dir string) (applied, failed int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, 0, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, f := range files {
		path := filepath.Join(dir, f)
		data, err := os.ReadFile(path)
		if err != nil {
			return applied, failed, fmt.Errorf("read %s: %w", path, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return applied, failed, fmt.Errorf("begin %s: %w", f, err)
		}
		if _, err := tx.Exec(string(data)); err != nil {
			tx.Rollback()
			log.Printf("[migrate] %s failed: %v", f, err)
			failed++
			continue
		}
		if err := tx.Commit(); err != nil {
			return applied, failed, fmt.Errorf("commit %s: %w", f, err)
		}
		log.Printf("[migrate] %s applied", f)
		applied++
	}
	return applied, failed, nil
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"fleet-monitor/speedwatch/internal/config"
	"fleet-monitor/speedwatch/internal/store"
)

func main() {
	plain := flag.Bool("plain", false, "skip TimescaleDB extension and hypertable (plain PostgreSQL)")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fmt.Println("Connecting to TimescaleDB...")
	conn, err := pgx.Connect(ctx, store.ConnString(cfg))
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure TimescaleDB is running:\n  docker-compose up -d timescaledb", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	if !*plain {
		step1Extensions(ctx, conn)
	}
	step2Tables(ctx, conn)
	if !*plain {
		step3Hypertable(ctx, conn)
	}
	step4Verify(ctx, conn)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run ./scripts/seed_redis")
}

func step1Extensions(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: Extensions ──────────────────────────")
	execOrFatal(ctx, conn,
		"CREATE EXTENSION IF NOT EXISTS timescaledb CASCADE;",
		"timescaledb extension",
	)
}

func step2Tables(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 2: Tables and indexes ──────────────────")
	for _, stmt := range store.SchemaStatements {
		execOrFatal(ctx, conn, stmt, firstLine(stmt))
	}
}

func step3Hypertable(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 3: Hypertable ──────────────────────────")
	execOrFatal(ctx, conn, store.HypertableStatement, "vessel_readings converted to hypertable")
}

func step4Verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 4: Verification ────────────────────────")

	for _, table := range []string{"vessel_readings", "vessel_alerts"} {
		var exists bool
		err := conn.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil || !exists {
			log.Fatalf("Table %s was not created: %v", table, err)
		}
		fmt.Printf("  ✓ table: %s\n", table)
	}

	var indexCount int
	err := conn.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM pg_indexes
		WHERE tablename IN ('vessel_readings', 'vessel_alerts')
		AND indexname LIKE 'idx_%'
	`).Scan(&indexCount)
	if err != nil {
		log.Fatalf("Index check failed: %v", err)
	}
	fmt.Printf("  ✓ indexes created: %d\n", indexCount)
}

// execOrFatal runs a SQL statement and prints result or exits on error
func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	if _, err := conn.Exec(ctx, sql); err != nil {
		log.Fatalf("FAILED: %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}

func firstLine(sql string) string {
	for i, c := range sql {
		if c == '\n' || c == '(' {
			return sql[:i]
		}
	}
	return sql
}

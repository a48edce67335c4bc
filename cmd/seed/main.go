package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"studyroom/internal/config"
	"studyroom/internal/domain/models"
	"studyroom/internal/domain/repositories"
	"studyroom/internal/learning"
	"studyroom/internal/repository/postgres"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	dropTables := flag.Bool("drop-tables", false, "Drop all tables before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't seed the demo room")
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.Load()

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && *dropTables {
		log.Fatalf("BLOCKED: cannot run --drop-tables in production environment")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	log.Printf("Seeding database (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)

	if *dropTables {
		log.Println("Dropping all tables...")
		if err := dropAllTables(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		log.Println("Tables dropped")
	}

	log.Println("Ensuring database schema is up to date...")
	if err := runSchema(ctx, pool, tables); err != nil {
		log.Fatalf("Failed to run schema: %v", err)
	}
	log.Println("Schema ready")

	if *schemaOnly {
		log.Println("Schema setup complete (schema-only mode)")
		return
	}

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	roomRepo := postgres.NewRoomRepository(repoConfig)

	if err := seedDemoRoom(ctx, roomRepo); err != nil {
		log.Fatalf("Failed to seed demo room: %v", err)
	}

	log.Println("Seeding complete")
}

// seedDemoRoom creates a fixed demo room with a five-step plan. The
// fixed ID makes reruns idempotent: an existing room is left alone.
func seedDemoRoom(ctx context.Context, roomRepo repositories.RoomRepository) error {
	ownerID := getEnvOr("SEED_OWNER_ID", "00000000-0000-0000-0000-000000000001")
	roomID := getEnvOr("SEED_ROOM_ID", "00000000-0000-0000-0000-0000000000aa")

	if existing, err := roomRepo.GetRoom(ctx, roomID, ownerID); err == nil && existing != nil {
		log.Printf("Demo room already exists (ID: %s), skipping", roomID)
		return nil
	}

	drafts := []learning.StepDraft{
		{Label: "Explore the landscape of distributed consensus", Prompt: "Brainstorm openly about why distributed systems need consensus at all. Surface assumptions about failure modes, networks, and trust before judging any of them."},
		{Label: "Analyze the FLP result and its escape hatches", Prompt: "Break down what the impossibility result actually claims, its preconditions, and which of them real systems relax."},
		{Label: "Compare Paxos and Raft", Prompt: "Hold the two protocols side by side on understandability, message complexity, and leader-change behavior."},
		{Label: "Create a toy replicated log design", Prompt: "Sketch a minimal replicated log for three nodes, concrete enough to critique: message formats, commit rule, recovery."},
		{Label: "Reflect on what transferred", Prompt: "Review the journey through this room. Which intuitions about consensus would survive contact with a real codebase, and which were simplifications?"},
	}

	steps, err := learning.NormalizeSteps(drafts)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	room := &models.Room{
		ID:        roomID,
		OwnerID:   ownerID,
		Title:     "Distributed Consensus Study",
		Goal:      "Build a working intuition for distributed consensus, from the impossibility results to a concrete toy design.",
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := roomRepo.CreateRoom(ctx, room, steps); err != nil {
		return err
	}

	log.Printf("Created demo room %q (ID: %s, owner: %s, steps: %d)", room.Title, room.ID, ownerID, len(steps))
	return nil
}

// runSchema creates tables if they don't exist
func runSchema(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + tables.Rooms + ` (
			id UUID PRIMARY KEY,
			owner_id UUID NOT NULL,
			title TEXT NOT NULL,
			goal TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			deleted_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tables.Rooms + `_owner
			ON ` + tables.Rooms + ` (owner_id) WHERE deleted_at IS NULL`,

		`CREATE TABLE IF NOT EXISTS ` + tables.Steps + ` (
			id UUID PRIMARY KEY,
			room_id UUID NOT NULL REFERENCES ` + tables.Rooms + `(id) ON DELETE CASCADE,
			key TEXT NOT NULL,
			label TEXT NOT NULL,
			instruction TEXT NOT NULL,
			position INTEGER NOT NULL,
			UNIQUE (room_id, key),
			UNIQUE (room_id, position)
		)`,

		`CREATE TABLE IF NOT EXISTS ` + tables.Conversations + ` (
			id UUID PRIMARY KEY,
			room_id UUID NOT NULL REFERENCES ` + tables.Rooms + `(id) ON DELETE CASCADE,
			step_id UUID NOT NULL REFERENCES ` + tables.Steps + `(id) ON DELETE CASCADE,
			owner_id UUID NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tables.Conversations + `_room
			ON ` + tables.Conversations + ` (room_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS ` + tables.Turns + ` (
			id UUID PRIMARY KEY,
			conversation_id UUID NOT NULL REFERENCES ` + tables.Conversations + `(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			body TEXT NOT NULL,
			truncated BOOLEAN NOT NULL DEFAULT FALSE,
			provider TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (conversation_id, seq)
		)`,

		`CREATE TABLE IF NOT EXISTS ` + tables.LearningNotes + ` (
			conversation_id UUID PRIMARY KEY REFERENCES ` + tables.Conversations + `(id) ON DELETE CASCADE,
			room_id UUID NOT NULL,
			step_label TEXT NOT NULL,
			body TEXT NOT NULL,
			message_count INTEGER NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tables.LearningNotes + `_room
			ON ` + tables.LearningNotes + ` (room_id)`,

		`CREATE TABLE IF NOT EXISTS ` + tables.Refinements + ` (
			id UUID PRIMARY KEY,
			room_id UUID NOT NULL REFERENCES ` + tables.Rooms + `(id) ON DELETE CASCADE,
			preference TEXT NOT NULL,
			old_steps JSONB NOT NULL,
			new_steps JSONB NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_` + tables.Refinements + `_room
			ON ` + tables.Refinements + ` (room_id, created_at DESC)`,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// dropAllTables drops every table, children first so the FKs allow it
func dropAllTables(ctx context.Context, pool *pgxpool.Pool, tables *postgres.TableNames) error {
	ordered := []string{
		tables.LearningNotes,
		tables.Refinements,
		tables.Turns,
		tables.Conversations,
		tables.Steps,
		tables.Rooms,
	}
	for _, table := range ordered {
		if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE"); err != nil {
			return err
		}
	}
	return nil
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	// Fallbacks are fixed UUIDs so reseeding stays idempotent
	if _, err := uuid.Parse(fallback); err != nil {
		log.Fatalf("invalid fallback UUID %q: %v", fallback, err)
	}
	return fallback
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tmarsh12/livestage/go/internal/dbconfig"
)

// EventSeed mirrors the JSON fixture: one event with its roster.
type EventSeed struct {
	Slug         string   `json:"slug"`
	Name         string   `json:"name"`
	Teams        []string `json:"teams"`
	Participants []string `json:"participants"`
}

func main() {
	path := "go/internal/assets/event.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var seed EventSeed
	if err := json.Unmarshal(data, &seed); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}
	if seed.Slug == "" || seed.Name == "" {
		fmt.Fprintln(os.Stderr, "seed file needs slug and name")
		os.Exit(1)
	}

	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	ctx := context.Background()

	var eventID uuid.UUID
	err = pool.QueryRow(ctx, `
        INSERT INTO events (id, slug, name, created_at, updated_at)
        VALUES ($1, $2, $3, now(), now())
        ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name, updated_at = now()
        RETURNING id
    `, uuid.New(), seed.Slug, seed.Name).Scan(&eventID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error upserting event %s: %v\n", seed.Slug, err)
		os.Exit(1)
	}

	var (
		inserted int
		skipped  int
		errs     int
	)

	for _, team := range seed.Teams {
		cmdTag, err := pool.Exec(ctx, `
            INSERT INTO teams (id, event_id, name, created_at)
            VALUES ($1, $2, $3, now())
            ON CONFLICT (event_id, name) DO NOTHING
        `, uuid.New(), eventID, team)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting team %s: %v\n", team, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	for _, name := range seed.Participants {
		cmdTag, err := pool.Exec(ctx, `
            INSERT INTO participants (id, event_id, display_name, created_at)
            VALUES ($1, $2, $3, now())
            ON CONFLICT (event_id, display_name) DO NOTHING
        `, uuid.New(), eventID, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting participant %s: %v\n", name, err)
			errs++
			continue
		}
		if cmdTag.RowsAffected() == 1 {
			inserted++
		} else {
			skipped++
		}
	}

	fmt.Printf(
		"Event seed complete for %s: %d teams, %d participants, %d inserted, %d skipped, %d errors\n",
		seed.Slug, len(seed.Teams), len(seed.Participants), inserted, skipped, errs,
	)
}

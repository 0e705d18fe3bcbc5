// Command strand manages persisted agent sessions: listing, inspecting,
// exporting to HTML, and archiving into a durable store.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	strand "github.com/calderhq/strand"
	"github.com/calderhq/strand/internal/config"
	"github.com/calderhq/strand/store/postgres"
	"github.com/calderhq/strand/store/sqlite"
)

func main() {
	cfg := config.Load(os.Getenv("STRAND_CONFIG"))

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()
	store := sessionStore(cfg)

	var err error
	switch os.Args[1] {
	case "list":
		err = runList(ctx, store)
	case "show":
		err = runShow(ctx, store, os.Args[2:])
	case "archive":
		err = runArchive(ctx, cfg, store, os.Args[2:])
	case "delete":
		err = runDelete(ctx, store, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: strand <command>

commands:
  list                  list stored sessions, newest first
  show <id> [--html F]  print a session transcript (or write HTML to F)
  archive <id>          copy a session into the configured archive store
  delete <id>           remove a stored session`)
}

func sessionStore(cfg config.Config) *strand.SessionFileStore {
	dir := cfg.Sessions.Dir
	if dir == "" {
		cwd, _ := os.Getwd()
		dir = strand.ProjectSessionDir(cwd)
	}
	return strand.NewSessionFileStore(dir)
}

func runList(ctx context.Context, store *strand.SessionFileStore) error {
	infos, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no sessions")
		return nil
	}
	for _, info := range infos {
		fmt.Printf("%s  %s  %3d msgs  %s\n", info.SessionID, info.LastUpdated.Format("2006-01-02 15:04"), info.MessageCount, info.Summary)
	}
	return nil
}

func runShow(ctx context.Context, store *strand.SessionFileStore, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("show: session id required")
	}
	id := args[0]
	var htmlOut string
	for i := 1; i < len(args); i++ {
		if args[i] == "--html" && i+1 < len(args) {
			htmlOut = args[i+1]
			i++
		}
	}

	rec, err := store.Load(ctx, id)
	if err != nil {
		return err
	}

	if htmlOut != "" {
		html, err := strand.RenderTranscriptHTML(rec)
		if err != nil {
			return err
		}
		if err := os.WriteFile(htmlOut, []byte(html), 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", htmlOut)
		return nil
	}

	for _, turn := range strand.ReconstructHistory(rec) {
		fmt.Printf("--- %s ---\n", turn.Role)
		for _, part := range turn.Parts {
			switch {
			case part.Text != "":
				fmt.Println(part.Text)
			case part.Call != nil:
				fmt.Printf("[call %s %s]\n", part.Call.Name, string(part.Call.Args))
			case part.Response != nil:
				fmt.Printf("[result %s] %s\n", part.Response.Name, part.Response.Content)
			}
		}
	}
	return nil
}

func runArchive(ctx context.Context, cfg config.Config, store *strand.SessionFileStore, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("archive: session id required")
	}
	rec, err := store.Load(ctx, args[0])
	if err != nil {
		return err
	}

	archive, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}
	defer archive.Close()

	if err := archive.Init(ctx); err != nil {
		return err
	}
	if err := archive.ArchiveSession(ctx, rec); err != nil {
		return err
	}
	fmt.Printf("archived %s\n", rec.SessionID)
	return nil
}

func openArchive(ctx context.Context, cfg config.Config) (strand.ArchiveStore, error) {
	switch cfg.Archive.Backend {
	case "", "sqlite":
		return sqlite.New(cfg.Archive.SQLitePath), nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Archive.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return postgres.New(pool), nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
}

func runDelete(ctx context.Context, store *strand.SessionFileStore, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("delete: session id required")
	}
	if err := store.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("deleted %s\n", args[0])
	return nil
}

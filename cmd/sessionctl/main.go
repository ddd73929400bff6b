// Command sessionctl inspects and edits the persisted session record of the
// configured backend. It reads the same environment as the service, and
// every command first resumes the stored session the way a service start
// does, refreshing lastLogin.
//
//	sessionctl show
//	sessionctl login -email alice@example.com
//	sessionctl profile -name "Alice L." -bio "math"
//	sessionctl clear
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/uikit-demo/session-service/internal/config"
	"github.com/uikit-demo/session-service/internal/database"
	"github.com/uikit-demo/session-service/internal/models"
	"github.com/uikit-demo/session-service/internal/sessions"
	"github.com/uikit-demo/session-service/internal/storage"
	"github.com/uikit-demo/session-service/pkg/logger"
)

var errUsage = errors.New("usage: sessionctl show|login|profile|clear [flags]")

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var rdb *redis.Client
	if cfg.Session.Backend == "redis" {
		rdb, err = database.NewRedisClient(ctx, cfg)
		if err != nil {
			logger.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
	}
	st, closeFn, err := storage.Open(ctx, cfg, rdb)
	if err != nil {
		logger.Fatalf("open %s storage: %v", cfg.Session.Backend, err)
	}
	defer closeFn()

	if err := run(ctx, os.Args[1:], newStore(cfg, st), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

// newStore builds a store like the service does, minus the login delay.
func newStore(cfg *config.Config, st storage.Storage) *sessions.Store {
	policy, _ := sessions.ParseMergePolicy(cfg.Session.MergePolicy)
	opts := sessions.Options{
		StorageKey:     cfg.Session.StorageKey,
		UserID:         cfg.Session.UserID,
		MergePolicy:    policy,
		AvatarTemplate: cfg.Session.AvatarTemplate,
	}
	if cfg.Session.RequireEmail {
		opts.Authenticator = sessions.RequireEmail()
	}
	return sessions.NewStore(st, opts)
}

func run(ctx context.Context, args []string, store *sessions.Store, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	store.Restore(ctx)

	switch args[0] {
	case "show":
		return printState(out, store)
	case "login":
		fs := flag.NewFlagSet("login", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		email := fs.String("email", "", "login email")
		password := fs.String("password", "", "password handed to the authenticator")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if err := store.Login(ctx, *email, *password); err != nil {
			return fmt.Errorf("login: %w", err)
		}
		return printState(out, store)
	case "profile":
		fs := flag.NewFlagSet("profile", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		var upd models.ProfileUpdate
		fs.Func("name", "new display name", func(v string) error { upd.Name = &v; return nil })
		fs.Func("bio", "new bio", func(v string) error { upd.Bio = &v; return nil })
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if !store.IsAuthenticated() {
			return errors.New("profile: no stored session")
		}
		store.UpdateProfile(ctx, upd)
		return printState(out, store)
	case "clear":
		store.Logout(ctx)
		_, err := fmt.Fprintln(out, "session cleared")
		return err
	}
	return errUsage
}

func printState(out io.Writer, store *sessions.Store) error {
	view := struct {
		sessions.State
		SessionDuration string                `json:"sessionDuration,omitempty"`
		Storage         sessions.Diagnostics `json:"storage"`
	}{State: store.Snapshot(), Storage: store.Diagnostics()}
	if d, ok := store.SessionDuration(); ok {
		view.SessionDuration = d
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(view)
}

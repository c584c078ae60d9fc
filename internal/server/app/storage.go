package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/gorm"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/internal/core/service"
	"github.com/bluelamp/cligate/internal/server/config"
	"github.com/bluelamp/cligate/internal/storage/auditfile"
	"github.com/bluelamp/cligate/internal/storage/kvstore"
	"github.com/bluelamp/cligate/internal/storage/memory"
	"github.com/bluelamp/cligate/internal/storage/redisstore"
	"github.com/bluelamp/cligate/internal/storage/sqlstore"
	"github.com/bluelamp/cligate/pkg/passhash"
)

// userStore is what both user backends provide.
type userStore interface {
	service.UserStore
	AddUser(ctx context.Context, u *domain.User, password string) error
	UnblockUser(ctx context.Context, userID string) error
}

// stores holds the selected repositories.
type stores struct {
	credentials service.CredentialRepository
	users       userStore
	sessions    service.SessionRepository
	audit       service.AuditRepository
	fallback    *auditfile.Sink
	prompts     *memory.PromptStore
	traps       *memory.TrapPromptStore

	db    *gorm.DB
	kv    *kvstore.Engine
	redis *redisstore.SessionStore
}

func (a *App) openStores(ctx context.Context) (*stores, error) {
	cfg := &a.cfg.Storage
	st := &stores{
		prompts: memory.NewPromptStore(),
		traps:   memory.NewTrapPromptStore(),
	}

	if cfg.UsesSQLite() {
		db, err := sqlstore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		st.db = db
		a.shutdown.OnClose("sqlite", func() error { return sqlstore.Close(db) })
		a.log.Info("sqlite opened", "path", cfg.SQLitePath)
	}

	params := passhash.DefaultParams
	params.MemoryKiB = a.cfg.Security.Argon2.MemoryKiB
	params.Iterations = a.cfg.Security.Argon2.Iterations
	params.Parallelism = a.cfg.Security.Argon2.Parallelism

	switch cfg.Credentials {
	case config.BackendSQLite:
		st.credentials = sqlstore.NewCredentialStore(st.db)
	default:
		st.credentials = memory.NewCredentialStore()
	}

	var err error
	switch cfg.Users {
	case config.BackendSQLite:
		st.users, err = sqlstore.NewUserStore(st.db, params)
	default:
		st.users, err = memory.NewUserStore(params)
	}
	if err != nil {
		return nil, fmt.Errorf("user store: %w", err)
	}

	switch cfg.Sessions {
	case config.BackendRedis:
		rs, err := redisstore.New(ctx, redisstore.Config{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			return nil, err
		}
		st.redis = rs
		st.sessions = rs
		a.shutdown.OnClose("redis", rs.Close)
		a.log.Info("redis session store connected", "addr", cfg.Redis.Addr)
	default:
		st.sessions = memory.NewSessionStore()
	}

	switch cfg.Audit {
	case config.BackendSQLite:
		st.audit = sqlstore.NewAuditStore(st.db)
	case config.BackendBadger:
		kv, err := kvstore.Open(kvstore.DefaultConfig(cfg.BadgerDir), a.log.With("component", "kvstore"))
		if err != nil {
			return nil, err
		}
		st.kv = kv
		st.audit = kvstore.NewAuditStore(kv)
		a.shutdown.OnClose("badger", kv.Close)
		if err := kv.RegisterMetrics(a.metrics.Prometheus()); err != nil {
			a.log.Warn("badger metrics not registered", "error", err)
		}
	default:
		st.audit = memory.NewAuditStore()
	}

	if err := a.openFallback(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// openFallback replays a leftover fallback file into the audit store when
// configured, then opens the sink for new writes.
func (a *App) openFallback(ctx context.Context, st *stores) error {
	acfg := &a.cfg.Audit
	if acfg.FallbackFile == "" {
		return nil
	}

	if acfg.ReplayFallback {
		n, err := replayFallback(ctx, acfg.FallbackFile, st.audit)
		switch {
		case err != nil:
			a.log.Warn("audit fallback replay incomplete", "file", acfg.FallbackFile, "replayed", n, "error", err)
		case n > 0:
			a.log.Info("audit fallback replayed", "file", acfg.FallbackFile, "replayed", n)
		}
	}

	sink, err := auditfile.New(auditfile.Config{
		Filename:   acfg.FallbackFile,
		MaxSizeMB:  acfg.FallbackSizeMB,
		MaxBackups: acfg.FallbackKeep,
		Compress:   true,
	})
	if err != nil {
		return err
	}
	st.fallback = sink
	a.shutdown.OnClose("audit fallback", sink.Close)
	return nil
}

// replayFallback replays the rotated backups of path, oldest first, and
// then path itself. Each file is removed once all of its entries are
// stored; entries already present count as stored.
func replayFallback(ctx context.Context, path string, repo service.AuditRepository) (int, error) {
	files, err := auditfile.Backups(path)
	if err != nil {
		return 0, err
	}
	files = append(files, path)

	var errs []error
	total := 0
	for _, f := range files {
		n, err := replayFile(ctx, f, repo)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(f), err))
		}
	}
	return total, errors.Join(errs...)
}

func replayFile(ctx context.Context, path string, repo service.AuditRepository) (int, error) {
	entries, skipped, err := auditfile.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 && skipped == 0 {
		return 0, nil
	}

	var errs []error
	n := 0
	for _, e := range entries {
		// Duplicates and id-less entries come back as BAD_REQUEST; neither
		// improves on retry.
		err := repo.Append(ctx, e)
		if err != nil && !errors.Is(err, domain.ErrBadRequest) {
			errs = append(errs, fmt.Errorf("entry %s: %w", e.ID, err))
			continue
		}
		n++
	}
	if skipped > 0 {
		errs = append(errs, fmt.Errorf("%d malformed lines skipped", skipped))
	}
	if len(errs) > 0 {
		return n, errors.Join(errs...)
	}
	return n, os.Remove(path)
}

// Package daemon wires the chat sync engine into a long-running process
// serving one profile.
package daemon

import (
	"context"
	"slices"

	"github.com/VedantVallal/chatapplication-63/internal/api"
	"github.com/VedantVallal/chatapplication-63/internal/bus"
	"github.com/VedantVallal/chatapplication-63/internal/capability"
	"github.com/VedantVallal/chatapplication-63/internal/chat"
	"github.com/VedantVallal/chatapplication-63/internal/config"
	"github.com/VedantVallal/chatapplication-63/internal/docstore"
	"github.com/VedantVallal/chatapplication-63/internal/jobs"
	"github.com/VedantVallal/chatapplication-63/internal/lock"
	"github.com/VedantVallal/chatapplication-63/internal/logging"
	"github.com/VedantVallal/chatapplication-63/internal/profile"
	"github.com/VedantVallal/chatapplication-63/internal/retry"
	"github.com/VedantVallal/chatapplication-63/internal/status"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const tokenIssuer = "chatd"

// Params holds the resolved profile passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideProfile,
			provideStore,
			provideFeed,
			provideAccount,
			provideCapabilities,
			provideRunner,
			provideChatService,
			provideAPIServer,
			NewServer,
			NewRealtimeServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideProfile depends on the lock so two daemons never share a profile.
func provideProfile(p Params, _ *lock.Lock, logger *zap.Logger) (*config.Profile, error) {
	prof, err := config.LoadProfile(profile.ProfileConfigPath(p.ProfileName))
	if err != nil {
		return nil, err
	}
	if err := prof.Validate(); err != nil {
		return nil, err
	}
	if prof.Auth.Secret == "" {
		prof.Auth.Secret = uuid.NewString()
		if err := config.SaveProfile(profile.ProfileConfigPath(p.ProfileName), prof); err != nil {
			return nil, err
		}
		logger.Info("generated token secret")
	}
	return prof, nil
}

func provideStore(p Params, prof *config.Profile, b *bus.Bus, logger *zap.Logger) (*docstore.DB, error) {
	dbPath := profile.DBPath(p.ProfileName)
	db, err := docstore.Open(dbPath, b)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}

	be := prof.Backend
	for _, id := range []string{be.Users, be.Chats, be.Messages} {
		allowed := !slices.Contains(be.Denied, id)
		if err := db.EnsureCollection(context.Background(), docstore.Collection{
			DatabaseID: be.DatabaseID,
			ID:         id,
			Name:       id,
			Readable:   allowed,
			Writable:   allowed,
		}); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	cols, err := db.ListCollections(context.Background(), be.DatabaseID)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	for _, c := range cols {
		logger.Debug("collection registered",
			zap.String("collection_id", c.ID),
			zap.Bool("readable", c.Readable),
			zap.Bool("writable", c.Writable))
	}
	logger.Info("store initialized", zap.String("path", dbPath), zap.Int("collections", len(cols)))
	return db, nil
}

func provideFeed(b *bus.Bus) *docstore.Feed {
	return docstore.NewFeed(b)
}

func provideAccount(prof *config.Profile, logger *zap.Logger) (*docstore.Account, error) {
	auth := docstore.NewAuthenticator(prof.Auth.Secret, tokenIssuer, prof.Auth.TTL.Duration)
	var token string
	if prof.Auth.UserID != "" {
		t, err := auth.IssueToken(prof.Auth.UserID, prof.Auth.UserID)
		if err != nil {
			return nil, err
		}
		token = t
		logger.Info("session token issued", zap.String("user_id", prof.Auth.UserID))
	}
	return docstore.NewAccount(auth, token), nil
}

func collections(prof *config.Profile) capability.Collections {
	return capability.Collections{
		DatabaseID: prof.Backend.DatabaseID,
		Users:      prof.Backend.Users,
		Chats:      prof.Backend.Chats,
		Messages:   prof.Backend.Messages,
	}
}

func provideCapabilities(db *docstore.DB, prof *config.Profile, logger *zap.Logger) *capability.Cache {
	return capability.New(db, collections(prof), logger)
}

func provideRunner(prof *config.Profile, logger *zap.Logger) *jobs.Runner {
	return jobs.NewRunner(prof.Limits.JobQueue, logger)
}

func provideChatService(db *docstore.DB, feed *docstore.Feed, account *docstore.Account, caps *capability.Cache, runner *jobs.Runner, prof *config.Profile, logger *zap.Logger) *chat.Service {
	return chat.NewService(
		chat.Backend{Databases: db, Realtime: feed, Account: account},
		caps,
		runner,
		chat.Config{
			Collections: collections(prof),
			Retry: retry.Policy{
				MaxAttempts: prof.Retry.Attempts,
				BaseDelay:   prof.Retry.BaseDelay.Duration,
			},
			MessageLimit: prof.Limits.Messages,
			UserLimit:    prof.Limits.Users,
			ChatLimit:    prof.Limits.Chats,
		},
		logger,
	)
}

func provideAPIServer(p Params, svc *chat.Service, machine *status.Machine, logger *zap.Logger) *api.Server {
	return api.NewServer(svc, machine, p.ProfileName, logger)
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, rt *RealtimeServer, lk *lock.Lock, db *docstore.DB, runner *jobs.Runner, svc *chat.Service, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			runner.Start(context.Background())

			// Probe the backend before accepting requests.
			_ = machine.Transition(status.Probing)
			perms := svc.RefreshPermissions(ctx)
			if err := machine.Settle(perms.AllAccessible()); err != nil {
				logger.Warn("cannot settle state", zap.Error(err))
			}
			if !perms.AllAccessible() {
				logger.Warn("backend partially accessible", zap.Strings("errors", perms.Errors))
			}

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			if err := rt.Start(); err != nil {
				_ = machine.Transition(status.Error)
				return err
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			rt.Stop(ctx)
			srv.Stop(ctx)
			runner.Stop()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

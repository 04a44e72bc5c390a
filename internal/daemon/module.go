// Package daemon composes the chat core into a runnable per-user process.
package daemon

import (
	"context"

	"github.com/inkpad-notes/chatcore/internal/blob"
	"github.com/inkpad-notes/chatcore/internal/blob/fsblob"
	"github.com/inkpad-notes/chatcore/internal/bus"
	"github.com/inkpad-notes/chatcore/internal/config"
	"github.com/inkpad-notes/chatcore/internal/directory"
	"github.com/inkpad-notes/chatcore/internal/gateway"
	"github.com/inkpad-notes/chatcore/internal/gateway/sqlitestore"
	"github.com/inkpad-notes/chatcore/internal/identity"
	"github.com/inkpad-notes/chatcore/internal/linker"
	"github.com/inkpad-notes/chatcore/internal/lock"
	"github.com/inkpad-notes/chatcore/internal/logging"
	"github.com/inkpad-notes/chatcore/internal/pager"
	"github.com/inkpad-notes/chatcore/internal/presence"
	"github.com/inkpad-notes/chatcore/internal/realtime"
	"github.com/inkpad-notes/chatcore/internal/session"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved launch configuration for the fx module.
type Params struct {
	UserID string
}

// Module returns the fx module composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("chatd",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideLock,
			provideStore,
			provideBlobStore,
			provideIdentity,
			provideConversations,
			provideMessages,
			provideAttachments,
			providePresenceTable,
			provideDirectory,
			providePager,
			provideTracker,
			provideLinker,
			provideSynchronizer,
			provideSession,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(config.LogPath(p.UserID), p.UserID)
}

func provideConfig() (*config.Config, error) {
	return config.Load(config.ConfigPath())
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := config.EnsureUserDir(p.UserID); err != nil {
		return nil, err
	}
	l, err := lock.Acquire(config.UserDir(p.UserID))
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired", zap.String("dir", config.UserDir(p.UserID)))
	return l, nil
}

func provideStore(p Params, b *bus.Bus, logger *zap.Logger) (gateway.Store, error) {
	dbPath := config.DBPath(p.UserID)
	db, err := sqlitestore.Open(dbPath, b)
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
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideBlobStore(p Params) (blob.Store, error) {
	return fsblob.New(config.BlobDir(p.UserID))
}

func provideIdentity(p Params) identity.Provider {
	return identity.Static{UserID: p.UserID}
}

func provideConversations(store gateway.Store) *gateway.Conversations {
	return gateway.NewConversations(store)
}

func provideMessages(store gateway.Store) *gateway.Messages {
	return gateway.NewMessages(store)
}

func provideAttachments(store gateway.Store) *gateway.Attachments {
	return gateway.NewAttachments(store)
}

func providePresenceTable(store gateway.Store) *gateway.Presence {
	return gateway.NewPresence(store)
}

func provideDirectory(p Params, convs *gateway.Conversations, logger *zap.Logger) *directory.Directory {
	return directory.New(p.UserID, convs, logger)
}

func providePager(p Params, cfg *config.Config, msgs *gateway.Messages, atts *gateway.Attachments, logger *zap.Logger) *pager.Pager {
	return pager.New(p.UserID, msgs, atts, cfg.PageSize, logger)
}

func provideTracker(cfg *config.Config, pres *gateway.Presence, logger *zap.Logger) *presence.Tracker {
	return presence.New(pres, cfg.HeartbeatInterval.Duration, logger)
}

func provideLinker(cfg *config.Config, msgs *gateway.Messages, atts *gateway.Attachments, convs *gateway.Conversations, blobs blob.Store, logger *zap.Logger) *linker.Linker {
	return linker.New(msgs, atts, convs, blobs, cfg.AttachmentRetryAttempts, cfg.AttachmentRetryDelay.Duration, logger)
}

func provideSynchronizer(p Params, store gateway.Store, b *bus.Bus, dir *directory.Directory, pg *pager.Pager, tracker *presence.Tracker, lk *linker.Linker, logger *zap.Logger) *realtime.Synchronizer {
	return realtime.New(p.UserID, store, b, dir, pg, tracker, lk, logger)
}

func provideSession(p Params, id identity.Provider, dir *directory.Directory, pg *pager.Pager, tracker *presence.Tracker, lk *linker.Linker, sy *realtime.Synchronizer, msgs *gateway.Messages, logger *zap.Logger) *session.Session {
	return session.New(p.UserID, id, dir, pg, tracker, lk, sy, msgs, logger)
}

func registerLifecycle(lc fx.Lifecycle, sess *session.Session, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sess.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			if err := sess.Stop(ctx); err != nil {
				logger.Warn("session teardown", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

//go:build windows
// +build windows

// anemonesyncd is the background service that mounts one sync root as a
// Windows Cloud Files placeholder tree and keeps it converged against the
// remote object store: register/connect, reconcile, fetch-on-demand, poll
// the change log, and mediate local mutations through the gateway.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/zalando/go-keyring"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/juste-un-gars/anemone_sync_windows/internal/changelog"
	"github.com/juste-un-gars/anemone_sync_windows/internal/cloudfiles"
	"github.com/juste-un-gars/anemone_sync_windows/internal/config"
	"github.com/juste-un-gars/anemone_sync_windows/internal/gateway"
	"github.com/juste-un-gars/anemone_sync_windows/internal/reconcile"
	"github.com/juste-un-gars/anemone_sync_windows/internal/remote"
	"github.com/juste-un-gars/anemone_sync_windows/internal/smb"
	"github.com/juste-un-gars/anemone_sync_windows/internal/store"
)

const storeKeyringService = "anemonesync-store-key"

func main() {
	logger := initLogger()
	defer logger.Sync()

	cfgPath := ""
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("daemon exited with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	root := cfg.Daemon.Root
	if root.LocalPath == "" {
		return fmt.Errorf("daemon.root.local_path is required")
	}
	if root.RootID == "" {
		return fmt.Errorf("daemon.root.root_id is required")
	}

	if err := os.MkdirAll(root.LocalPath, 0755); err != nil {
		return fmt.Errorf("ensure local root exists: %w", err)
	}

	db, err := openStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if err := db.SaveRootRegistration(store.RootRegistration{
		RootID:       root.RootID,
		DisplayName:  root.DisplayName,
		LocalPath:    root.LocalPath,
		RemoteHostID: root.Server,
		RootKind:     store.RootKind(root.Kind),
		RegisteredAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("save root registration: %w", err)
	}

	password, err := resolveSMBPassword(root.Username)
	if err != nil {
		return fmt.Errorf("resolve SMB credentials: %w", err)
	}

	smbClient, err := smb.NewSMBClient(&smb.ClientConfig{
		Server:   root.Server,
		Share:    root.Share,
		Username: root.Username,
		Password: password,
		Domain:   root.Domain,
	}, logger)
	if err != nil {
		return fmt.Errorf("create SMB client: %w", err)
	}

	objectStore := remote.NewSMBObjectStore(smbClient, logger)
	if err := objectStore.Connect(ctx); err != nil {
		return fmt.Errorf("connect object store: %w", err)
	}
	defer objectStore.Disconnect(ctx)

	syncRoot, err := cloudfiles.NewSyncRootManager(cloudfiles.SyncRootConfig{
		Path:         root.LocalPath,
		ProviderName: cfg.App.Name,
		ProviderID:   cloudfiles.DefaultProviderID(),
		UseCGOBridge: true,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("create sync root manager: %w", err)
	}

	engine := cloudfiles.NewPlaceholderEngine(syncRoot, logger)

	dataProvider := cloudfiles.NewObjectStoreDataProvider(objectStore, root.RemotePrefix)
	hydration := cloudfiles.NewHydrationHandler(syncRoot, dataProvider, logger)
	hydration.SetChunkBounds(cfg.Daemon.Fetch.MinChunkSizeBytes, cfg.Daemon.Fetch.MaxChunkSizeBytes)
	hydration.SetChunkSize(cfg.Daemon.Fetch.ChunkSizeBytes)
	syncRoot.SetFetchDataCallback(hydration.FetchDataCallback())

	tombstones := cloudfiles.NewStoreTombstones(db)
	lifecycle := cloudfiles.NewRootLifecycle(syncRoot, tombstones, logger)

	if err := lifecycle.CleanupPendingDeletesOnStartup(ctx); err != nil {
		logger.Warn("tombstone cleanup on startup failed", zap.Error(err))
	}
	if err := lifecycle.RegisterWithRetry(ctx); err != nil {
		return fmt.Errorf("register sync root: %w", err)
	}
	if err := lifecycle.Connect(); err != nil {
		return fmt.Errorf("connect sync root: %w", err)
	}

	reconciler := reconcile.New(engine, objectStore, root.RemotePrefix, logger)
	reconciler.SetParallelism(cfg.Daemon.Reconcile.Parallelism)
	if len(cfg.Daemon.Reconcile.ExclusionPatterns) > 0 {
		if err := reconciler.SetExclusionPatterns(cfg.Daemon.Reconcile.ExclusionPatterns); err != nil {
			return fmt.Errorf("configure reconciler exclusions: %w", err)
		}
	}
	if err := reconciler.Run(ctx, "", reconcile.ModeFull); err != nil {
		logger.Warn("initial reconciliation pass reported errors", zap.Error(err))
	}

	gw := gateway.New(engine, objectStore, nil, logger)
	gw.SetPoolSize(cfg.Daemon.Gateway.PoolSize)

	job, err := ensureSyncJob(db, root)
	if err != nil {
		return fmt.Errorf("ensure sync job: %w", err)
	}

	poller := changelog.New(job.ID, objectStore, engine, db, root.RemotePrefix, job.LastChangeLogTS, logger)
	if cfg.Daemon.ChangeLog.DebugInterval {
		poller.SetDebugInterval()
	}
	poller.Start(ctx)

	logger.Info("anemonesyncd running",
		zap.String("root_id", root.RootID),
		zap.String("local_path", root.LocalPath),
	)

	<-ctx.Done()
	logger.Info("shutdown requested, draining")

	poller.Stop()

	if err := lifecycle.Shutdown(5 * time.Second); err != nil {
		logger.Warn("sync root shutdown reported an error", zap.Error(err))
	}

	return nil
}

func ensureSyncJob(db *store.Store, root config.RootConfig) (*store.SyncJob, error) {
	job := &store.SyncJob{
		RootID:            root.RootID,
		Name:              root.DisplayName,
		LocalPath:         root.LocalPath,
		RemotePrefix:      root.RemotePrefix,
		Enabled:           true,
		ExclusionPatterns: []string{},
	}
	if err := db.CreateSyncJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

func openStore(path string) (*store.Store, error) {
	key, err := resolveStoreKey()
	if err != nil {
		return nil, err
	}
	return store.Open(store.Config{Path: path, EncryptionKey: key})
}

// resolveStoreKey loads the database encryption key from the OS keyring,
// generating and persisting a fresh random one on first run.
func resolveStoreKey() (string, error) {
	const reference = "default"
	key, err := keyring.Get(storeKeyringService, reference)
	if err == nil {
		return key, nil
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate store key: %w", err)
	}
	key = hex.EncodeToString(raw)
	if err := keyring.Set(storeKeyringService, reference, key); err != nil {
		return "", fmt.Errorf("persist store key: %w", err)
	}
	return key, nil
}

// resolveSMBPassword loads the SMB bearer credential from the keyring under
// the configured username, the same reference-name indirection the token
// table records for the object store's own auth token.
func resolveSMBPassword(username string) (string, error) {
	password, err := keyring.Get("anemonesync-smb-password", username)
	if err != nil {
		return "", fmt.Errorf("load SMB password for %s from keyring: %w", username, err)
	}
	return password, nil
}

func initLogger() *zap.Logger {
	atomicLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), atomicLevel),
	}

	if logDir := os.Getenv("LOCALAPPDATA"); logDir != "" {
		fileWriter := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, "AnemoneSync", "logs", "anemonesyncd.log"),
			MaxSize:    10,
			MaxBackups: 10,
			MaxAge:     30,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(consoleEncoder, zapcore.AddSync(fileWriter), atomicLevel))
	}

	return zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

package application

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/codepush-server/internal/api"
	"github.com/eugenenazirov/codepush-server/internal/auth"
	"github.com/eugenenazirov/codepush-server/internal/codepush"
	"github.com/eugenenazirov/codepush-server/internal/config"
	"github.com/eugenenazirov/codepush-server/internal/routes"
	"github.com/eugenenazirov/codepush-server/internal/storage"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	router     http.Handler
	logger     *zap.Logger
	server     *http.Server
	storageDir string
}

// New initializes the application with all dependencies from the provided
// configuration. A configured but missing or inaccessible local storage
// directory is returned as an error; the caller must not start serving.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	blobs, storageDir, err := localStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWT.TokenSecret, cfg.JWT.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create token issuer: %w", err)
	}

	store := storage.NewMemoryStore()
	authSvc := auth.NewService(store, tokens, logger.Named("auth"))
	updates := codepush.NewService(store, blobs, logger.Named("codepush"))
	handler := routes.NewHandler(authSvc, updates, logger,
		routes.WithDownloads(cfg.Local.DownloadURL, cfg.DownloadPath()),
		routes.WithMaxUploadBytes(cfg.MaxUploadBytes),
		routes.WithSessionTTL(cfg.JWT.TokenTTL),
	)

	opts := []api.RouterOption{
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst),
	}
	if publicDir, err := resolveProjectPath(cfg.PublicDir); err == nil {
		opts = append(opts, api.WithPublicDir(publicDir))
	} else {
		logger.Debug("static assets disabled", zap.String("public_dir", cfg.PublicDir), zap.Error(err))
	}
	if storageDir != "" {
		opts = append(opts, api.WithDownloads(cfg.DownloadPath(), storageDir))
	}

	errs := api.NewErrorHandler(cfg.Env, logger)
	router := api.NewRouter(errs, logger, handler.Modules(), opts...)

	return &App{
		router:     router,
		logger:     logger,
		server:     NewServer(cfg, router),
		storageDir: storageDir,
	}, nil
}

// localStorage checks the local package directory when the local backend is
// selected. An unset directory disables the download mount; a directory that
// is missing or lacks read and write access is an error.
func localStorage(cfg config.Config, logger *zap.Logger) (storage.BlobStore, string, error) {
	if !cfg.LocalStorage() {
		logger.Debug("package storage is not local", zap.String("storage_type", cfg.Common.StorageType))
		return nil, "", nil
	}

	dir := strings.TrimSpace(cfg.Local.StorageDir)
	if dir == "" {
		logger.Error("please set local.storageDir; local package downloads are disabled")
		return nil, "", nil
	}

	if err := storage.ValidateLocalDir(dir); err != nil {
		logger.Error("local storage directory is unusable", zap.String("dir", dir), zap.Error(err))
		return nil, "", fmt.Errorf("local storage: %w", err)
	}
	return storage.NewLocalBlobs(dir), dir, nil
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// StorageDir returns the validated local package directory, or "" when
// local downloads are not served.
func (a *App) StorageDir() string {
	return a.storageDir
}

// resolveProjectPath locates a file or directory relative to the project root
// by walking up the directory tree. Absolute paths are only checked.
func resolveProjectPath(relative string) (string, error) {
	if relative == "" {
		return "", errors.New("empty path")
	}
	if filepath.IsAbs(relative) {
		if _, err := os.Stat(relative); err != nil {
			return "", err
		}
		return relative, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, relative)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("unable to locate %s", relative)
}

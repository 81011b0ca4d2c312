package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/harmonichat/hcsync/internal/api"
	"github.com/harmonichat/hcsync/internal/auth"
	"github.com/harmonichat/hcsync/internal/cache"
	"github.com/harmonichat/hcsync/internal/config"
	"github.com/harmonichat/hcsync/internal/engine"
	"github.com/harmonichat/hcsync/internal/family"
	"github.com/harmonichat/hcsync/internal/loader"
	"github.com/harmonichat/hcsync/internal/logging"
	"github.com/harmonichat/hcsync/internal/server"
	"github.com/harmonichat/hcsync/internal/stream"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hcsync",
		Short: "HarmoniChat client-side sync daemon",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("backend-base-url", defaults.GetString("backend.base_url"), "HarmoniChat REST base URL")
	cmd.PersistentFlags().String("backend-ws-url", defaults.GetString("backend.ws_url"), "HarmoniChat STOMP WebSocket URL")
	cmd.PersistentFlags().String("session-token", "", "Backend session token (overrides env)")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "Local HTTP listen address")
	cmd.PersistentFlags().String("cache-path", defaults.GetString("cache.path"), "SQLite cache path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "backend.base_url", "backend-base-url")
	bindFlag(cmd, "backend.ws_url", "backend-ws-url")
	bindFlag(cmd, "session.token", "session-token")
	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "cache.path", "cache-path")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runDaemon(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	location := time.Local
	if appConfig.Timezone != "" {
		location, err = time.LoadLocation(appConfig.Timezone)
		if err != nil {
			return err
		}
	}

	backend, err := api.NewClient(api.ClientConfig{
		BaseURL:   appConfig.BackendBaseURL,
		Timeout:   appConfig.BackendTimeout,
		AuthToken: appConfig.SessionToken,
		Location:  location,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	identity, err := resolveIdentity(ctx, appConfig, backend)
	if err != nil {
		return err
	}
	logger.Info("sync identity resolved",
		zap.String("userId", identity.UserID),
		zap.String("familyId", identity.FamilyID))

	db, err := cache.OpenSQLite(appConfig.CachePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	store, err := cache.NewStore(cache.StoreConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	feedLoader, err := loader.NewLoader(loader.LoaderConfig{Backend: backend, Logger: logger})
	if err != nil {
		return err
	}

	directory, err := family.NewDirectory(family.DirectoryConfig{Fetcher: backend})
	if err != nil {
		return err
	}
	if err := directory.Load(ctx, identity.FamilyID); err != nil {
		logger.Warn("family roster load failed, names resolve lazily", zap.Error(err))
	}

	dispatcher := server.NewChangeDispatcher()

	var syncEngine *engine.Engine
	broker, err := stream.NewClient(stream.ClientConfig{
		URL:       appConfig.BrokerURL,
		AuthToken: appConfig.SessionToken,
		Logger:    logger,
		Handler: func(topic string, body []byte) {
			syncEngine.HandleFrame(topic, body)
		},
	})
	if err != nil {
		return err
	}

	syncEngine, err = engine.New(engine.Config{
		Backend:    backend,
		Loader:     feedLoader,
		Subscriber: broker,
		Cache:      store,
		Identity:   identity,
		Location:   location,
		Logger:     logger,
		Names:      directory,
		Notify:     dispatcher.Publish,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Engine:     syncEngine,
		Dispatcher: dispatcher,
		Browser:    backend,
		Roster:     directory,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 3)
	go func() {
		if err := broker.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	go func() {
		if err := syncEngine.Run(signalCtx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("local api listening", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// resolveIdentity prefers the configured session token; without one it logs
// in with the configured credentials and scopes to the returned user.
func resolveIdentity(ctx context.Context, appConfig config.AppConfig, backend *api.Client) (auth.Identity, error) {
	if appConfig.SessionToken != "" {
		parser := auth.NewSessionParser(auth.SessionParserConfig{
			SigningSecret: []byte(appConfig.SessionSigningSecret),
		})
		return parser.Identity(appConfig.SessionToken)
	}

	user, err := backend.Login(ctx, appConfig.LoginEmail, appConfig.LoginPassword)
	if err != nil {
		return auth.Identity{}, err
	}
	if user.FamilyID == "" {
		return auth.Identity{}, errors.New("login response carried no family id")
	}
	return auth.Identity{UserID: user.ID, FamilyID: user.FamilyID}, nil
}

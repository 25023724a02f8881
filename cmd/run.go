package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/tgdrive/filebot/internal/banner"
	"github.com/tgdrive/filebot/internal/cache"
	"github.com/tgdrive/filebot/internal/cleanup"
	"github.com/tgdrive/filebot/internal/config"
	"github.com/tgdrive/filebot/internal/database"
	"github.com/tgdrive/filebot/internal/duration"
	"github.com/tgdrive/filebot/internal/logging"
	"github.com/tgdrive/filebot/internal/tgbot"
	"github.com/tgdrive/filebot/internal/version"
	"github.com/tgdrive/filebot/pkg/controller"
	"github.com/tgdrive/filebot/pkg/services"
	"go.uber.org/zap/zapcore"
)

func NewRun() *cobra.Command {
	var cfg config.ServerCmdConfig
	loader := config.NewConfigLoader()
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the file delivery bot",
		Run: func(cmd *cobra.Command, args []string) {
			runApplication(cmd.Context(), &cfg)
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := loader.Load(cmd, &cfg); err != nil {
				return err
			}
			return loader.Validate()
		},
	}
	if err := loader.RegisterFlags(cmd.Flags(), "", &cfg); err != nil {
		panic(err)
	}
	return cmd
}

func runApplication(ctx context.Context, conf *config.ServerCmdConfig) {
	lvl, err := zapcore.ParseLevel(conf.Log.Level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	logging.SetConfig(&logging.Config{
		Level:    lvl,
		FilePath: conf.Log.File,
	})

	lg := logging.DefaultLogger().Sugar()

	defer lg.Sync()

	db, err := database.NewDatabase(&conf.DB, lg)
	if err != nil {
		lg.Fatalw("failed to create database", "err", err)
	}

	if err := database.MigrateDB(db); err != nil {
		lg.Fatalw("failed to migrate database", "err", err)
	}

	cacher, err := cache.NewCache(ctx, &conf.Cache)
	if err != nil {
		lg.Fatalw("failed to create cache", "err", err)
	}

	bot, err := tgbot.New(conf.TG.Token,
		tgbot.WithAPIURL(conf.TG.APIURL),
		tgbot.WithRateLimit(conf.TG.Rate, conf.TG.RateBurst),
		tgbot.WithMaxRetries(conf.TG.MaxRetries),
		tgbot.WithRequestTimeout(conf.TG.RequestTimeout),
	)
	if err != nil {
		lg.Fatalw("failed to connect to the bot api", "err", err)
	}

	supervisor := cleanup.NewSupervisor(context.WithoutCancel(ctx), bot, conf.Bot.CleanupDelay, logging.DefaultLogger())

	store := services.NewTokenStore(db, cacher, conf.Cache.RecordTTL)
	botService := services.NewBotService(store, bot, cacher, supervisor, services.Options{
		BotID:         bot.BotID(),
		Admins:        conf.Bot.Admins,
		CleanupDelay:  conf.Bot.CleanupDelay,
		ListChunkSize: conf.Bot.ListChunkSize,
	})

	ctrl := controller.New(ctx, botService, logging.DefaultLogger())
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", conf.Server.Port),
		Handler:           controller.NewRouter(ctrl, logging.DefaultLogger(), conf.TG.WebhookSecret),
		ReadTimeout:       conf.Server.ReadTimeout,
		WriteTimeout:      conf.Server.WriteTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	banner.PrintBanner(os.Stdout, banner.StartupInfo{
		Version:      version.Version,
		Addr:         srv.Addr,
		Bot:          bot.Self().Username,
		Webhook:      conf.TG.WebhookURL,
		Database:     database.Dialect(conf.DB.DataSource),
		CleanupAfter: duration.Format(conf.Bot.CleanupDelay),
	})

	go func() {
		lg.Infof("Server started at http://localhost:%d", conf.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			lg.Errorw("failed to start server", "err", err)
		}
	}()

	if conf.TG.WebhookURL != "" {
		hook := strings.TrimSuffix(conf.TG.WebhookURL, "/") + controller.WebhookPath
		if err := bot.SetWebhook(ctx, hook, conf.TG.WebhookSecret); err != nil {
			lg.Fatalw("failed to set webhook", "url", hook, "err", err)
		}
		lg.Infow("webhook registered", "url", hook)
	} else {
		lg.Warn("webhook url is not set, updates must be delivered to " + controller.WebhookPath + " by other means")
	}

	<-ctx.Done()

	lg.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), conf.Server.GracefulShutdown)

	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Errorw("server shutdown failed", "err", err)
	}

	ctrl.Shutdown()
	if n := supervisor.Pending(); n > 0 {
		lg.Infow("pending cleanups will not run", "count", n)
	}
	supervisor.Shutdown()

	if rc, ok := cacher.(interface{ Close() error }); ok {
		if err := rc.Close(); err != nil {
			lg.Debugw("cache close failed", "err", err)
		}
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	lg.Info("Server stopped")
}

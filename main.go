package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/handler"

	"github.com/daywarden/daywarden/daywarden"
	"github.com/daywarden/daywarden/daywarden/commands"
	"github.com/daywarden/daywarden/daywarden/database"
	"github.com/daywarden/daywarden/daywarden/database/repositories"
	"github.com/daywarden/daywarden/daywarden/engine"
	"github.com/daywarden/daywarden/daywarden/handlers"
	"github.com/daywarden/daywarden/daywarden/logger"
	"github.com/daywarden/daywarden/daywarden/services"
	"github.com/daywarden/daywarden/daywarden/tasks"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	shouldSyncCommands := flag.Bool("sync-commands", false, "Whether to sync commands to discord")
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := daywarden.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}

	slog.SetDefault(slog.New(logger.NewHandler(cfg.Log.Level)))

	slog.Info("Starting Daywarden",
		slog.String("version", version),
		slog.String("commit", commit))

	slog.Info("Initializing database connection...")
	dbStartTime := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.New(ctx, cfg.DB)
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("error", err.Error()),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()

	slog.Info("Database connected successfully",
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema",
			slog.String("error", err.Error()))
		os.Exit(-1)
	}
	slog.Info("Database schema initialized successfully")

	b := daywarden.New(*cfg, version, commit)
	b.DB = db
	b.GuildRepository = repositories.NewGuildRepository(db.BunDB())
	b.ScheduleRepository = repositories.NewScheduleRepository(db.BunDB())

	h := handler.New()
	h.Command("/schedule", handlers.WrapWithLogging("schedule", commands.ScheduleHandler(b)))
	h.Command("/warden", handlers.WrapWithLogging("warden", commands.WardenHandler(b)))
	h.Autocomplete("/warden", commands.TimezoneAutocompleteHandler(b))

	if err = b.SetupBot(h,
		bot.NewListenerFunc(b.OnReady),
		handlers.GuildJoinHandler(b),
		handlers.GuildLeaveHandler(b),
		handlers.ChannelDeleteHandler(b),
	); err != nil {
		slog.Error("Failed to setup bot",
			slog.String("type", "sys"),
			slog.Any("error", err),
			slog.String("error_details", fmt.Sprintf("%+v", err)))
		os.Exit(-1)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b.Client.Close(ctx)
	}()

	b.PermissionService = services.NewPermissionService(b.Client)
	b.ActivityService = services.NewActivityService(b.Client)
	b.NotifierService = services.NewNotifierService(b.Client)
	b.Engine = engine.New(
		repositories.NewEngineStore(b.GuildRepository, b.ScheduleRepository),
		b.PermissionService,
		b.ActivityService,
		b.NotifierService,
	)

	if *shouldSyncCommands {
		slog.Info("Syncing commands",
			slog.String("type", "sys"),
			slog.Any("guild_ids", cfg.Bot.DevGuilds))
		if err = handler.SyncCommands(b.Client, commands.Commands, cfg.Bot.DevGuilds); err != nil {
			logger.LogError("Failed to sync commands", err)
		}
	}

	ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err = b.Client.OpenGateway(ctx); err != nil {
		slog.Error("Failed to open gateway",
			slog.String("type", "sys"),
			slog.Any("error", err))
		os.Exit(-1)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	go b.Engine.Run(runCtx)
	go tasks.NewTimeChannelUpdater(b.Client, b.GuildRepository).Run(runCtx)

	logger.LogSystem("Daywarden is running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	logger.LogSystem("Shutting down...")
}

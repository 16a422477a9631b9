// Command discordcore runs the guild-moderation bot: it wires the Case
// Store, Permission Engine, Lock Manager, Retrier, Timeout Harness, Audit
// Monitor and Discord adapter into the Moderation Coordinator, registers
// the moderation slash command, and serves interactions until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/duskward/wardencore/pkg/cache"
	"github.com/duskward/wardencore/pkg/config"
	"github.com/duskward/wardencore/pkg/discord/adapter"
	modcommands "github.com/duskward/wardencore/pkg/discord/commands/moderation"
	"github.com/duskward/wardencore/pkg/discord/session"
	modErrors "github.com/duskward/wardencore/pkg/errors"
	"github.com/duskward/wardencore/pkg/errutil"
	"github.com/duskward/wardencore/pkg/log"
	logutil "github.com/duskward/wardencore/pkg/logging"
	"github.com/duskward/wardencore/pkg/moderation"
	"github.com/duskward/wardencore/pkg/service"
	"github.com/duskward/wardencore/pkg/storage"
	"github.com/duskward/wardencore/pkg/task"
	"github.com/duskward/wardencore/pkg/util"
)

const taskTypeExpirySweep = "moderation.expiry_sweep"

func main() {
	if err := logutil.SetupLogger(); err != nil {
		fmt.Printf("failed to configure logger: %v\n", err)
		os.Exit(1)
	}
	if err := log.SetupLogger(); err != nil {
		fmt.Printf("failed to configure discord session logger: %v\n", err)
		os.Exit(1)
	}
	if err := errutil.InitializeGlobalErrorHandler(log.GlobalLogger); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize error handler:", err)
		os.Exit(1)
	}

	logutil.Info("loading configuration")
	cfg, err := config.Load()
	if err != nil {
		logutil.Fatalf("failed to load configuration: %v", err)
	}

	dbPath, err := cfg.SQLitePath()
	if err != nil {
		logutil.Fatalf("invalid database configuration: %v", err)
	}

	store := storage.NewStore(dbPath)
	if err := store.Init(); err != nil {
		logutil.Fatalf("failed to initialize case store: %v", err)
	}
	defer func() { _ = store.Close() }()

	var remote *cache.RemoteCache
	if cfg.CacheURL != "" {
		remote, err = cache.NewRemoteCache("moderation", cfg.CacheURL, 10)
		if err != nil {
			logutil.GlobalLogger.WithError(err).Warn("failed to connect to remote cache, falling back to in-memory only")
			remote = nil
		}
	}
	backend := cache.NewBackend(remote, 5*time.Minute)
	defer backend.Close()

	perm := moderation.NewPermissionEngine(store, backend)
	locks := moderation.NewLockManager()
	monitor := moderation.NewMonitor(1024)
	retrier := moderation.NewRetrier(moderation.DefaultRetryPolicies(), monitor.RecordBreakerTrip)
	timeouts := moderation.NewTimeoutHarness(moderation.DefaultDeadlineProfiles())
	jailStatus := moderation.NewJailStatusCache(store, backend)

	discordSession, err := session.NewDiscordSession(cfg.BotToken)
	if err != nil {
		logutil.Fatalf("failed to create discord session: %v", err)
	}

	discordAdapter := adapter.New(discordSession)
	coord := moderation.NewCoordinator(store, perm, locks, retrier, timeouts, monitor, discordAdapter, jailStatus)

	jailRoleFor := func(guildID string) string {
		gc, err := store.GetGuildConfig(guildID)
		if err != nil || gc == nil {
			return ""
		}
		return gc.JailRoleID
	}
	handler := modcommands.NewHandler(coord, discordAdapter, store, jailRoleFor)
	discordSession.AddHandler(handler.HandleInteraction)
	discordSession.AddHandler(func(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
		if m.Member == nil || m.Member.User == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := coord.HandleMemberJoin(ctx, m.GuildID, m.Member.User.ID); err != nil {
			logutil.GlobalLogger.WithError(err).Warn("rejoin jail re-application failed")
		}
	})

	sweeper := moderation.NewExpirySweeper(store, coord)
	sweepRouter := task.NewRouter(task.Defaults())
	sweepRouter.RegisterHandler(taskTypeExpirySweep, func(ctx context.Context, _ any) error {
		count, err := sweeper.Sweep(ctx, time.Now())
		if err != nil {
			return err
		}
		if count > 0 {
			logutil.Infof("expiry sweep reversed %d case(s)", count)
		}
		return nil
	})
	var stopSweep func()
	serviceManager := service.NewServiceManager(modErrors.NewErrorHandler())
	sweepWrapper := service.NewServiceWrapper(
		"moderation-expiry-sweep",
		service.TypeModeration,
		service.PriorityNormal,
		[]string{},
		func() error {
			stopSweep = sweepRouter.ScheduleEvery(time.Minute, task.Task{Type: taskTypeExpirySweep})
			return nil
		},
		func() error {
			if stopSweep != nil {
				stopSweep()
			}
			sweepRouter.Close()
			return nil
		},
		func() bool { return true },
	)
	if err := serviceManager.Register(sweepWrapper); err != nil {
		logutil.GlobalLogger.WithError(err).Warn("failed to register expiry sweep service")
	}
	if err := serviceManager.StartAll(); err != nil {
		logutil.GlobalLogger.WithError(err).Warn("failed to start services")
	}
	defer func() {
		if err := serviceManager.StopAll(); err != nil {
			logutil.GlobalLogger.WithError(err).Warn("some services failed to stop cleanly")
		}
	}()

	appID := discordSession.State.User.ID
	for _, cmd := range modcommands.Definitions() {
		if _, err := discordSession.ApplicationCommandCreate(appID, "", cmd); err != nil {
			logutil.GlobalLogger.WithError(err).Warn("failed to register moderation command")
		}
	}

	logutil.Info("moderation core running, press ctrl+c to stop")
	util.WaitForInterrupt()
	logutil.Info("shutting down")

	_ = discordSession.Close()
}

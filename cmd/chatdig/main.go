package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"tg-chatdig/internal/adapters/irc"
	"tg-chatdig/internal/adapters/repo"
	"tg-chatdig/internal/adapters/telegram"
	"tg-chatdig/internal/adapters/worker"
	"tg-chatdig/internal/domain"
	"tg-chatdig/internal/infra/config"
	"tg-chatdig/internal/infra/db"
	applog "tg-chatdig/internal/infra/log"
	"tg-chatdig/internal/infra/metrics"
	"tg-chatdig/internal/infra/tasks"
	"tg-chatdig/internal/usecase/commands"
	"tg-chatdig/internal/usecase/directory"
	"tg-chatdig/internal/usecase/mirror"
	"tg-chatdig/internal/usecase/outbox"
	"tg-chatdig/internal/usecase/pipeline"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := config.LoadRuntime(cfg.RuntimePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.RuntimePath).Msg("настройки не загружены")
	}
	vals := rt.Values()

	conn, err := db.Connect(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("база не открыта")
	}
	defer conn.Close()
	store := repo.NewSQLite(conn)

	metrics.MustRegister(prometheus.DefaultRegisterer)
	metrics.StartServer(ctx, logger, cfg.OpsAddr)

	tg, err := telegram.NewClient(vals.Token, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("клиент платформы не создан")
	}
	logger.Info().Str("bot", tg.Self().Username).Msg("бот авторизован")

	pool := tasks.NewPool(logger, cfg.Tasks.Workers, 64)
	dir := directory.NewService(store, store, logger)

	var ircClient *irc.Client
	var speaker mirror.Speaker
	if vals.IRCServer != "" {
		ircClient = irc.NewClient(irc.Config{
			Server:  vals.IRCServer,
			Port:    vals.IRCPort,
			SSL:     vals.IRCSSL,
			Nick:    vals.IRCNick,
			Channel: vals.IRCChannel,
		}, logger)
		defer ircClient.Close()
		speaker = ircClient
	}
	mir := mirror.NewService(speaker, rt, dir, pool, logger)

	out := outbox.NewService(tg, rt, store, dir, mir, pool, cfg.Poll.LogQueue, logger)

	bridge, err := worker.NewBridge(cfg.Worker.Cmd, out, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("мост к рабочему процессу не создан")
	}

	cmds := commands.NewService(rt, out, store, dir, bridge, logger)

	queue := make(chan domain.Update, cfg.Poll.QueueSize)

	tgOffset, ok, err := store.LoadOffset(domain.OffsetSlotUpdates)
	if err != nil {
		logger.Fatal().Err(err).Msg("курсор платформы не прочитан")
	}
	if !ok {
		tgOffset = 0
	}
	poller := telegram.NewPoller(tg, queue, tgOffset, time.Duration(cfg.Poll.IdleMS)*time.Millisecond, logger)

	var ircSource *irc.Source
	if ircClient != nil {
		ircOffset, ok, err := store.LoadOffset(domain.OffsetSlotIRC)
		if err != nil {
			logger.Fatal().Err(err).Msg("курсор IRC не прочитан")
		}
		if !ok {
			ircOffset = domain.IRCMessageBase
		}
		ircSource, err = irc.NewSource(ircClient, irc.SourceConfig{
			BotID:       vals.IRCBotID,
			BotName:     vals.IRCBotName,
			GroupChatID: rt.GroupChatID(),
			GroupTitle:  vals.IRCChannel,
			BanPattern:  vals.IRCBanRe,
		}, queue, ircOffset, time.Duration(cfg.Poll.IRCIdleMS)*time.Millisecond, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("источник IRC не создан")
		}
	}

	pipe := pipeline.NewService(queue, out.LogQueue(), store, dir, cmds, mir, out, rt, logger)

	go poller.Run(ctx)
	if ircSource != nil {
		go ircSource.Run(ctx)
	}
	go bridge.ReadLoop(ctx)

	logger.Info().Int64("group", rt.GroupChatID()).Msg("запуск цикла обработки")
	pipe.Run(ctx)

	// Останов: дописать хвосты, сохранить курсоры и настройки.
	logger.Info().Msg("останов")
	pipe.DrainOwnLog()
	bridge.Stop()
	pool.Close()
	if err := store.StoreOffset(domain.OffsetSlotUpdates, poller.Offset()); err != nil {
		logger.Error().Err(err).Msg("курсор платформы не сохранён")
	}
	if ircSource != nil {
		if err := store.StoreOffset(domain.OffsetSlotIRC, ircSource.Offset()); err != nil {
			logger.Error().Err(err).Msg("курсор IRC не сохранён")
		}
	}
	if err := store.Checkpoint(); err != nil {
		logger.Error().Err(err).Msg("журнал не зафиксирован")
	}
	if err := rt.Save(); err != nil {
		logger.Error().Err(err).Msg("настройки не сохранены")
	}
}

package main

import (
	"context"
	"flag"

	"tg-chatdig/internal/adapters/repo"
	"tg-chatdig/internal/adapters/telegram"
	"tg-chatdig/internal/domain"
	"tg-chatdig/internal/infra/config"
	"tg-chatdig/internal/infra/db"
	applog "tg-chatdig/internal/infra/log"
	"tg-chatdig/internal/usecase/importer"
)

// logimport наполняет журнал историей: переносит старую базу со
// сдвигом идентификаторов и, по желанию, дозабирает свежие события у
// платформы.
func main() {
	var (
		oldPath  = flag.String("old", "", "путь к старой базе (пропустить перенос, если пуст)")
		dest     = flag.Int64("dest", 0, "идентификатор адресата в старой базе")
		backfill = flag.Bool("backfill", false, "дозабрать события у платформы")
	)
	flag.Parse()

	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	rt, err := config.LoadRuntime(cfg.RuntimePath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.RuntimePath).Msg("настройки не загружены")
	}

	conn, err := db.Connect(cfg.DBPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", cfg.DBPath).Msg("база не открыта")
	}
	defer conn.Close()
	store := repo.NewSQLite(conn)

	imp := importer.NewService(store, store, logger)

	if *oldPath != "" {
		count, err := imp.ImportLegacy(*oldPath, *dest)
		if err != nil {
			logger.Fatal().Err(err).Msg("перенос старой базы не удался")
		}
		logger.Info().Int("messages", count).Msg("перенос завершён")
	}

	if *backfill {
		tg, err := telegram.NewClient(rt.Values().Token, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("клиент платформы не создан")
		}
		offset, ok, err := store.LoadOffset(domain.OffsetSlotUpdates)
		if err != nil {
			logger.Fatal().Err(err).Msg("курсор платформы не прочитан")
		}
		if !ok {
			offset = 0
		}
		offset, count, err := imp.Backfill(context.Background(), tg, rt.GroupChatID(), offset)
		if err != nil {
			logger.Fatal().Err(err).Msg("дозабор не удался")
		}
		if err := store.StoreOffset(domain.OffsetSlotUpdates, offset); err != nil {
			logger.Fatal().Err(err).Msg("курсор платформы не сохранён")
		}
		logger.Info().Int("messages", count).Int64("offset", offset).Msg("дозабор завершён")
	}

	if err := store.Checkpoint(); err != nil {
		logger.Error().Err(err).Msg("журнал не зафиксирован")
	}
}

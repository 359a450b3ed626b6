package importer

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"tg-chatdig/internal/domain"
)

// Service наполняет журнал историей: из старой базы другого формата и
// дозабором пропущенных событий у платформы. Везде insert-if-absent,
// живые записи не перетираются.
type Service struct {
	msgs  domain.MessageRepo
	users domain.UserRepo
	log   zerolog.Logger
}

// NewService создаёт импортёр.
func NewService(msgs domain.MessageRepo, users domain.UserRepo, logger zerolog.Logger) *Service {
	return &Service{msgs: msgs, users: users, log: logger}
}

// ImportLegacy переносит сообщения старой базы, адресованные dest, в
// журнал. Идентификаторы сдвигаются в отдельное отрицательное
// пространство, чтобы не столкнуться с живыми.
func (s *Service) ImportLegacy(path string, dest int64) (int, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return 0, fmt.Errorf("open legacy db: %w", err)
	}
	defer db.Close()

	rows, err := db.Query(
		"SELECT id, src, text, media, date, fwd_src, fwd_date, reply_id FROM messages WHERE dest = ? ORDER BY id", dest)
	if err != nil {
		return 0, fmt.Errorf("read legacy messages: %w", err)
	}
	defer rows.Close()
	count := 0
	for rows.Next() {
		var m domain.StoredMessage
		var text, media sql.NullString
		var src, fwdSrc, fwdDate, replyID sql.NullInt64
		if err := rows.Scan(&m.ID, &src, &text, &media, &m.Date, &fwdSrc, &fwdDate, &replyID); err != nil {
			return count, fmt.Errorf("scan legacy message: %w", err)
		}
		m.ID += domain.ImportIDShift
		m.Src = src.Int64
		m.Text = text.String
		if media.Valid {
			m.Media = []byte(media.String)
		}
		m.FwdSrc = fwdSrc.Int64
		m.FwdDate = fwdDate.Int64
		if replyID.Int64 != 0 {
			m.ReplyID = replyID.Int64 + domain.ImportIDShift
		}
		if err := s.msgs.InsertIgnoreStored(&m); err != nil {
			return count, err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("iterate legacy messages: %w", err)
	}
	if err := s.importLegacyUsers(db); err != nil {
		return count, err
	}
	s.log.Info().Int("messages", count).Str("path", path).Msg("старая база импортирована")
	return count, nil
}

func (s *Service) importLegacyUsers(db *sql.DB) error {
	rows, err := db.Query("SELECT id, username, first_name, last_name FROM users")
	if err != nil {
		return fmt.Errorf("read legacy users: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u domain.User
		var username, firstName, lastName sql.NullString
		if err := rows.Scan(&u.ID, &username, &firstName, &lastName); err != nil {
			return fmt.Errorf("scan legacy user: %w", err)
		}
		u.Username = username.String
		u.FirstName = firstName.String
		u.LastName = lastName.String
		if err := s.users.InsertIgnoreUser(u); err != nil {
			return err
		}
	}
	return rows.Err()
}

// UpdateFetcher — срез клиента платформы, нужный дозабору.
type UpdateFetcher interface {
	GetUpdates(offset int64, limit int) ([]domain.Update, error)
}

// Backfill дочитывает накопившиеся у платформы события и дописывает в
// журнал сообщения наблюдаемой группы. Возвращает новый курсор и число
// записанных сообщений.
func (s *Service) Backfill(ctx context.Context, src UpdateFetcher, groupChatID, offset int64) (int64, int, error) {
	count := 0
	for {
		select {
		case <-ctx.Done():
			return offset, count, ctx.Err()
		default:
		}
		batch, err := src.GetUpdates(offset, 100)
		if err != nil {
			return offset, count, fmt.Errorf("fetch updates: %w", err)
		}
		if len(batch) == 0 {
			return offset, count, nil
		}
		for _, upd := range batch {
			offset = upd.ID + 1
			m := upd.Message
			if m == nil || m.Chat.ID != groupChatID {
				continue
			}
			if m.From != nil {
				if err := s.users.InsertIgnoreUser(*m.From); err != nil {
					return offset, count, err
				}
			}
			if err := s.msgs.InsertIgnore(m); err != nil {
				return offset, count, err
			}
			count++
		}
	}
}

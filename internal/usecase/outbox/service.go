package outbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tg-chatdig/internal/adapters/telegram"
	"tg-chatdig/internal/domain"
	"tg-chatdig/internal/infra/config"
	"tg-chatdig/internal/infra/tasks"
	"tg-chatdig/internal/usecase/directory"
	"tg-chatdig/internal/usecase/mirror"
)

// API — операции платформы, нужные исходящему тракту.
type API interface {
	Send(chatID int64, text string, replyTo int64) (*domain.Message, error)
	ForwardMessage(msgID, fromChatID, toChatID int64) (*domain.Message, error)
	SendChatAction(chatID int64) error
}

// Service — исходящий тракт: отправка текста, пересылка из журнала и
// эхо собственных сообщений группы в журнал и в зеркало.
type Service struct {
	api    API
	rt     *config.Runtime
	msgs   domain.MessageRepo
	dir    *directory.Service
	mirror *mirror.Service
	pool   *tasks.Pool
	logQ   chan *domain.Message
	log    zerolog.Logger
}

// NewService создаёт исходящий тракт.
func NewService(api API, rt *config.Runtime, msgs domain.MessageRepo, dir *directory.Service, mir *mirror.Service, pool *tasks.Pool, logQueue int, logger zerolog.Logger) *Service {
	return &Service{
		api:    api,
		rt:     rt,
		msgs:   msgs,
		dir:    dir,
		mirror: mir,
		pool:   pool,
		logQ:   make(chan *domain.Message, logQueue),
		log:    logger,
	}
}

var _ domain.Sender = (*Service)(nil)

// LogQueue отдаёт очередь собственных сообщений бота, ждущих записи в
// журнал. Вычитывает её цикл-потребитель.
func (s *Service) LogQueue() <-chan *domain.Message { return s.logQ }

// SendText отправляет текст; пустой текст молча отбрасывается,
// длинный — обрезается. Отправка уходит в пул задач.
func (s *Service) SendText(chatID int64, text string, replyTo int64) {
	text = strings.TrimSpace(text)
	if text == "" {
		s.log.Warn().Int64("chat", chatID).Msg("пустой текст не отправлен")
		return
	}
	text = telegram.Truncate(text)
	if replyTo < 0 {
		// Синтетические идентификаторы IRC на платформу не ссылаются.
		replyTo = 0
	}
	s.pool.Submit(context.Background(), func() error {
		m, err := s.api.Send(chatID, text, replyTo)
		if err != nil {
			return fmt.Errorf("send to %d: %w", chatID, err)
		}
		if chatID == s.rt.GroupChatID() {
			s.enqueueLog(m)
			s.mirror.EchoText(text, replyTo)
		}
		return nil
	})
}

// Forward пересылает сообщение группы по ссылке; при неудаче
// восстанавливает его текстом из журнала.
func (s *Service) Forward(msgID, chatID, replyTo int64) {
	group := s.rt.GroupChatID()
	m, err := s.api.ForwardMessage(msgID, group, chatID)
	if err == nil {
		if chatID == group {
			s.enqueueLog(m)
			s.mirror.EchoForward(msgID)
		}
		return
	}
	s.log.Debug().Err(err).Int64("msg", msgID).Msg("пересылка не удалась, восстанавливаю из журнала")
	s.ForwardMultiText([]int64{msgID}, chatID, replyTo)
}

// ForwardMulti пересылает набор сообщений; при любой неудаче весь набор
// восстанавливается единым текстовым блоком.
func (s *Service) ForwardMulti(msgIDs []int64, chatID, replyTo int64) {
	group := s.rt.GroupChatID()
	forwarded := make([]*domain.Message, 0, len(msgIDs))
	for _, id := range msgIDs {
		m, err := s.api.ForwardMessage(id, group, chatID)
		if err != nil {
			s.log.Debug().Err(err).Int64("msg", id).Msg("пересылка набора не удалась, восстанавливаю из журнала")
			s.ForwardMultiText(msgIDs, chatID, replyTo)
			return
		}
		forwarded = append(forwarded, m)
	}
	if chatID == group {
		for i, m := range forwarded {
			s.enqueueLog(m)
			s.mirror.EchoForward(msgIDs[i])
		}
	}
}

// ForwardMultiText восстанавливает набор сообщений текстом из журнала.
func (s *Service) ForwardMultiText(msgIDs []int64, chatID, replyTo int64) {
	lines := make([]string, 0, len(msgIDs))
	for _, id := range msgIDs {
		m, err := s.msgs.Get(id)
		if err != nil {
			s.log.Error().Err(err).Int64("msg", id).Msg("не удалось прочитать журнал")
			continue
		}
		if m == nil {
			continue
		}
		lines = append(lines, s.FormatStored(m))
	}
	if len(lines) == 0 {
		s.SendText(chatID, "Found nothing.", replyTo)
		return
	}
	s.SendText(chatID, strings.Join(lines, "\n"), replyTo)
}

// FormatStored превращает запись журнала в строку
// «[метка времени] имя: текст» в настроенном часовом поясе.
func (s *Service) FormatStored(m *domain.StoredMessage) string {
	return fmt.Sprintf("[%s] %s: %s", s.Stamp(m.Date), s.dir.Name(m.Src), m.Text)
}

// Stamp форматирует время журнала в настроенном часовом поясе.
func (s *Service) Stamp(date int64) string {
	tz := time.FixedZone("local", s.rt.Values().Timezone*3600)
	return time.Unix(date, 0).In(tz).Format("2006-01-02 15:04:05")
}

// Typing показывает в чате индикатор набора текста.
func (s *Service) Typing(chatID int64) {
	s.pool.Submit(context.Background(), func() error {
		if err := s.api.SendChatAction(chatID); err != nil {
			return fmt.Errorf("chat action: %w", err)
		}
		return nil
	})
}

func (s *Service) enqueueLog(m *domain.Message) {
	if m == nil {
		return
	}
	select {
	case s.logQ <- m:
	default:
		s.log.Warn().Int64("msg", m.ID).Msg("очередь журнала полна, сообщение потеряно")
	}
}

package mirror

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"tg-chatdig/internal/domain"
	"tg-chatdig/internal/infra/config"
	"tg-chatdig/internal/infra/tasks"
	"tg-chatdig/internal/usecase/directory"
)

// Speaker — минимальный канал в сторону IRC.
type Speaker interface {
	Say(text string) error
}

// Service зеркалирует трафик наблюдаемой группы в IRC-канал.
// Выключенное зеркало (nil Speaker) превращает все операции в no-op.
type Service struct {
	irc  Speaker
	rt   *config.Runtime
	dir  *directory.Service
	pool *tasks.Pool
	log  zerolog.Logger
}

// NewService создаёт зеркало. irc может быть nil.
func NewService(irc Speaker, rt *config.Runtime, dir *directory.Service, pool *tasks.Pool, logger zerolog.Logger) *Service {
	return &Service{irc: irc, rt: rt, dir: dir, pool: pool, log: logger}
}

// Enabled сообщает, подключено ли зеркало.
func (s *Service) Enabled() bool { return s != nil && s.irc != nil }

// ForwardToIRC транслирует входящее сообщение группы в канал, строка за
// строкой, с префиксом отправителя. Сообщения, пришедшие из самого IRC,
// обратно не возвращаются.
func (s *Service) ForwardToIRC(ctx context.Context, msg *domain.Message) {
	if !s.Enabled() || msg == nil || msg.From == nil {
		return
	}
	if msg.From.ID == s.rt.Values().IRCBotID {
		return
	}
	text := msg.PlainText()
	if msg.ForwardFrom != nil {
		text = fmt.Sprintf("Fwd %s: %s", directory.DisplayName(msg.ForwardFrom), text)
	} else if msg.ReplyTo != nil && msg.ReplyTo.From != nil {
		text = fmt.Sprintf("%s: %s", directory.DisplayName(msg.ReplyTo.From), text)
	}
	name := directory.DisplayName(msg.From)
	lines := splitLines(text)
	s.pool.Submit(ctx, func() error {
		for _, line := range lines {
			if err := s.irc.Say(fmt.Sprintf("[%s] %s", name, line)); err != nil {
				return fmt.Errorf("mirror to irc: %w", err)
			}
		}
		return nil
	})
}

// EchoText повторяет в канал текст, только что отправленный ботом в
// группу. Ответы получают префикс с именем адресата; простыни из трёх и
// более строк в канал не идут.
func (s *Service) EchoText(text string, replyTo int64) {
	if !s.Enabled() {
		return
	}
	if replyTo != 0 {
		if m, ok := s.dir.CachedMessage(replyTo); ok && m.From != nil {
			text = directory.DisplayName(m.From) + ": " + text
		}
	}
	s.sayFolded(text)
}

// EchoForward повторяет в канал сообщение, пересланное ботом в группу,
// восстановив его текст из журнала.
func (s *Service) EchoForward(msgID int64) {
	if !s.Enabled() {
		return
	}
	m, err := s.dir.StoredMessage(msgID)
	if err != nil || m == nil {
		return
	}
	s.sayFolded(fmt.Sprintf("Fwd %s: %s", s.dir.Name(m.Src), m.Text))
}

func (s *Service) sayFolded(text string) {
	text = strings.TrimSpace(text)
	if text == "" || strings.Count(text, "\n") >= 2 {
		return
	}
	text = strings.ReplaceAll(text, "\n", " ")
	if err := s.irc.Say(text); err != nil {
		s.log.Warn().Err(err).Msg("эхо в IRC не доставлено")
	}
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

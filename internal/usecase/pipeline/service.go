package pipeline

import (
	"context"

	"github.com/rs/zerolog"

	"tg-chatdig/internal/domain"
	"tg-chatdig/internal/infra/config"
	"tg-chatdig/internal/infra/metrics"
	"tg-chatdig/internal/usecase/commands"
	"tg-chatdig/internal/usecase/directory"
	"tg-chatdig/internal/usecase/mirror"
)

// Dispatcher — командная часть обработки, см. usecase/commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string, chatID, replyID int64, msg *domain.Message)
	Welcome(ctx context.Context, msg *domain.Message)
}

var _ Dispatcher = (*commands.Service)(nil)

// Service — единственный потребитель очереди событий: классифицирует,
// журналирует и раздаёт сообщения обработчикам строго по одному.
type Service struct {
	queue      <-chan domain.Update
	ownLogQ    <-chan *domain.Message
	msgs       domain.MessageRepo
	dir        *directory.Service
	dispatcher Dispatcher
	mirror     *mirror.Service
	sender     domain.Sender
	rt         *config.Runtime
	log        zerolog.Logger
}

// NewService собирает цикл-потребитель.
func NewService(queue <-chan domain.Update, ownLogQ <-chan *domain.Message, msgs domain.MessageRepo, dir *directory.Service, dispatcher Dispatcher, mir *mirror.Service, sender domain.Sender, rt *config.Runtime, logger zerolog.Logger) *Service {
	return &Service{
		queue:      queue,
		ownLogQ:    ownLogQ,
		msgs:       msgs,
		dir:        dir,
		dispatcher: dispatcher,
		mirror:     mir,
		sender:     sender,
		rt:         rt,
		log:        logger,
	}
}

// Run крутит цикл до отмены контекста.
func (s *Service) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case upd := <-s.queue:
			s.Process(ctx, upd)
			s.DrainOwnLog()
		}
	}
}

// Process обрабатывает одно событие; паника обработчика не роняет цикл.
func (s *Service) Process(ctx context.Context, upd domain.Update) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Int64("update", upd.ID).Msg("обработка события упала")
		}
	}()
	msg := upd.Message
	if msg == nil {
		return
	}
	s.dir.CacheMessage(msg)
	cls := Classify(msg, s.rt.Values().BotID, s.rt.GroupChatID(), s.rt.Values().BotName)
	metrics.UpdatesClassified.WithLabelValues(cls.String()).Inc()
	if msg.Chat.ID == s.rt.GroupChatID() && s.rt.T2I() {
		s.mirror.ForwardToIRC(ctx, msg)
	}
	switch cls {
	case ClassCommand:
		if msg.Chat.ID == s.rt.GroupChatID() {
			s.logMessage(msg)
		}
		s.dispatcher.Dispatch(ctx, msg.Text, msg.Chat.ID, msg.ID, msg)
	case ClassGroupMessage:
		s.logMessage(msg)
	case ClassMembership:
		s.logMessage(msg)
		s.dispatcher.Welcome(ctx, msg)
	case ClassInvalid:
		s.sender.SendText(msg.Chat.ID, "Wrong usage", msg.ID)
	case ClassIgnored:
	}
}

// DrainOwnLog дописывает в журнал собственные сообщения бота,
// скопившиеся в очереди исходящего тракта.
func (s *Service) DrainOwnLog() {
	for {
		select {
		case m := <-s.ownLogQ:
			s.logMessage(m)
		default:
			return
		}
	}
}

func (s *Service) logMessage(m *domain.Message) {
	if m == nil {
		return
	}
	if m.From != nil {
		s.dir.RememberUser(*m.From)
	}
	if m.ForwardFrom != nil {
		s.dir.RememberUser(*m.ForwardFrom)
	}
	if err := s.msgs.Upsert(m); err != nil {
		s.log.Error().Err(err).Int64("msg", m.ID).Msg("сообщение не записано в журнал")
		return
	}
	metrics.MessagesLogged.Inc()
	s.log.Debug().Int64("msg", m.ID).Int64("chat", m.Chat.ID).Msg("сообщение записано")
}

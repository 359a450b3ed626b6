package irc

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	ircproto "gopkg.in/irc.v4"

	"tg-chatdig/internal/domain"
	"tg-chatdig/internal/infra/metrics"
)

// SourceConfig задаёт синтетическую личность IRC-сообщений в общей
// очереди событий.
type SourceConfig struct {
	// BotID и BotName — учётка, от имени которой IRC-сообщения
	// попадают в журнал.
	BotID   int64
	BotName string
	// GroupChatID — чат наблюдаемой группы, которому приписываются
	// синтетические события.
	GroupChatID int64
	GroupTitle  string
	// BanPattern — ники, которые не транслируются.
	BanPattern string
}

// Source переводит строки канала в синтетические события общей очереди.
// Идентификаторы берутся из собственного отрицательного диапазона и
// строго растут, не пересекаясь с пространством платформы.
type Source struct {
	client *Client
	cfg    SourceConfig
	queue  chan<- domain.Update
	log    zerolog.Logger
	idle   time.Duration
	banRe  *regexp.Regexp
	offset atomic.Int64
}

// NewSource создаёт источник с восстановленным курсором.
func NewSource(client *Client, cfg SourceConfig, queue chan<- domain.Update, offset int64, idle time.Duration, logger zerolog.Logger) (*Source, error) {
	s := &Source{client: client, cfg: cfg, queue: queue, log: logger, idle: idle}
	if cfg.BanPattern != "" {
		// Шаблон сверяется с началом ника, не с произвольной позицией.
		re, err := regexp.Compile("^(?:" + cfg.BanPattern + ")")
		if err != nil {
			return nil, fmt.Errorf("compile ban pattern: %w", err)
		}
		s.banRe = re
	}
	s.offset.Store(offset)
	return s, nil
}

// Offset возвращает текущий курсор для сохранения при останове.
func (s *Source) Offset() int64 { return s.offset.Load() }

// translate превращает строку канала в синтетическое событие либо nil.
func (s *Source) translate(m *ircproto.Message) *domain.Update {
	if m == nil || m.Command != "PRIVMSG" || len(m.Params) < 2 {
		return nil
	}
	// Личные сообщения боту не транслируются.
	if m.Params[0] == s.client.Nick() {
		return nil
	}
	nick := m.Prefix.Name
	if nick == s.client.Nick() {
		return nil
	}
	if s.banRe != nil && s.banRe.MatchString(nick) {
		return nil
	}
	id := s.offset.Load()
	s.offset.Add(1)
	msg := &domain.Message{
		ID: id,
		From: &domain.User{
			ID:        s.cfg.BotID,
			Username:  "orzirc_bot",
			FirstName: s.cfg.BotName,
		},
		Date:    time.Now().Unix(),
		Chat:    domain.Chat{ID: s.cfg.GroupChatID, Title: s.cfg.GroupTitle},
		Text:    strings.TrimSpace(m.Trailing()),
		Media:   map[string]any{"_ircuser": nick},
		IRCNick: nick,
	}
	return &domain.Update{ID: id, Message: msg}
}

// Run читает канал до отмены контекста.
func (s *Source) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := s.client.ReadNext()
		if err != nil {
			s.log.Error().Err(err).Msg("чтение IRC не удалось")
		} else if upd := s.translate(m); upd != nil {
			metrics.UpdatesIngested.WithLabelValues("irc").Inc()
			select {
			case s.queue <- *upd:
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case <-time.After(s.idle):
		case <-ctx.Done():
			return
		}
	}
}

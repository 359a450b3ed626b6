package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"tg-chatdig/internal/domain"
	"tg-chatdig/internal/infra/config"
	"tg-chatdig/internal/infra/metrics"
	"tg-chatdig/internal/usecase/directory"
)

// HandlerFunc — единая сигнатура обработчика команды: остаток строки
// аргументов, чат назначения, сообщение для ответа и исходное событие.
type HandlerFunc func(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error

// Command — запись таблицы команд.
type Command struct {
	Name    string
	Usage   string
	Handler HandlerFunc
}

// Service — таблица команд и правила их видимости.
type Service struct {
	log    zerolog.Logger
	rt     *config.Runtime
	sender domain.Sender
	msgs   domain.MessageRepo
	dir    *directory.Service
	runner domain.TaskRunner

	registry []*Command
	index    map[string]*Command
	public   map[string]bool
}

// NewService строит таблицу команд в фиксированном порядке.
func NewService(rt *config.Runtime, sender domain.Sender, msgs domain.MessageRepo, dir *directory.Service, runner domain.TaskRunner, logger zerolog.Logger) *Service {
	s := &Service{
		log:    logger,
		rt:     rt,
		sender: sender,
		msgs:   msgs,
		dir:    dir,
		runner: runner,
		index:  make(map[string]*Command),
	}
	const (
		searchUsage = "/search|/s [@username] [keyword] [number=5|number,offset] Search the group log for recent messages. max(number)=20"
		userUsage   = "/user|/uinfo [@username] [minutes=1440] Show information about <@username>."
		pyUsage     = "/py <expr> Evaluate Python 2 expression <expr>."
	)
	s.register("m", "/m <message_id> [...] Get specified message(s) by ID(s).", s.cmdGetMsg)
	s.register("context", "/context <message_id> [number=2] Show the specified message and its context. max=10", s.cmdContext)
	s.register("s", searchUsage, s.cmdSearch)
	s.register("search", searchUsage, s.cmdSearch)
	s.register("user", userUsage, s.cmdUser)
	s.register("uinfo", userUsage, s.cmdUser)
	s.register("digest", "", s.cmdDigest)
	s.register("stat", "/stat [minutes=1440] Show statistics.", s.cmdStat)
	s.register("calc", pyUsage, s.cmdPy)
	s.register("py", pyUsage, s.cmdPy)
	s.register("bf", "/bf <expr> [|<input>] Evaluate Brainf*ck expression <expr> (with <input>).", s.cmdBf)
	s.register("lisp", "/lisp <expr> Evaluate Lisp(Scheme)-like expression <expr>.", s.cmdLisp)
	s.register("name", "/name [pinyin] Get a Chinese name.", s.cmdName)
	s.register("ime", "/ime [pinyin] Simple Pinyin IME.", s.cmdIme)
	s.register("quote", "/quote Send a today's random message.", s.cmdQuote)
	s.register("wyw", "/wyw [c|m] <something> Translate something to or from classical Chinese.", s.cmdWyw)
	s.register("cut", "/cut [c|m] <something> Segment <something>.", s.cmdCut)
	s.register("say", "/say Say something interesting.", s.cmdSay)
	s.register("reply", "/reply [question] Reply to the conversation.", s.cmdReply)
	s.register("echo", "/echo Parrot back.", s.cmdEcho)
	s.register("t2i", "", s.cmdT2I)
	s.register("hello", "", s.cmdHello)
	s.register("233", "", s.cmd233)
	s.register("start", "", s.cmdStart)
	s.register("help", "/help Show usage.", s.cmdHelp)
	s.register("_cmd", "", s.cmdServerCmd)

	s.public = map[string]bool{}
	for _, name := range []string{
		"py", "bf", "lisp", "name", "ime", "wyw", "cut", "say", "reply",
		"echo", "233", "start", "help",
	} {
		s.public[name] = true
	}
	return s
}

func (s *Service) register(name, usage string, h HandlerFunc) {
	c := &Command{Name: name, Usage: usage, Handler: h}
	s.registry = append(s.registry, c)
	s.index[name] = c
}

// Dispatch разбирает текст и запускает обработчик по правилам
// видимости: в личке и в наблюдаемой группе доступно всё, в чужих
// чатах — только публичные команды, и отказ там молчаливый.
func (s *Service) Dispatch(ctx context.Context, text string, chatID, replyID int64, msg *domain.Message) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return
	}
	head := fields[0]
	if head[0] == '/' || head[0] == '\'' {
		name := strings.ToLower(head[1:])
		if bot := strings.ToLower(s.rt.Values().BotName); bot != "" {
			name = strings.Replace(name, "@"+bot, "", 1)
		}
		cmd, ok := s.index[name]
		if !ok {
			if chatID > 0 || chatID == s.rt.GroupChatID() {
				s.sender.SendText(chatID, "Invalid command. Send /help for help.", replyID)
			}
			return
		}
		if chatID > 0 || chatID == s.rt.GroupChatID() || s.public[name] {
			expr := strings.TrimSpace(strings.Join(fields[1:], " "))
			s.log.Info().Str("command", name).Str("args", expr).Int64("chat", chatID).Msg("команда")
			metrics.CommandsDispatched.WithLabelValues(name).Inc()
			s.invoke(ctx, cmd, expr, chatID, replyID, msg)
		}
		return
	}
	// Свободный разговор: некомандный текст из любого чата, кроме
	// наблюдаемой группы, уходит в /reply.
	if chatID != s.rt.GroupChatID() {
		t := strings.Join(fields, " ")
		s.log.Info().Str("text", limitLength(t, 20)).Msg("разговор")
		s.invoke(ctx, s.index["reply"], t, chatID, replyID, msg)
	}
}

// Welcome приветствует нового участника наблюдаемой группы.
func (s *Service) Welcome(ctx context.Context, msg *domain.Message) {
	if msg == nil || msg.NewMember == nil || msg.Chat.ID != s.rt.GroupChatID() {
		return
	}
	s.dir.RememberUser(*msg.NewMember)
	s.sender.SendText(msg.Chat.ID, fmt.Sprintf("欢迎 %s 加入本群！", directory.DisplayName(msg.NewMember)), msg.ID)
}

func (s *Service) invoke(ctx context.Context, cmd *Command, expr string, chatID, replyID int64, msg *domain.Message) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("command", cmd.Name).Msg("обработчик упал")
		}
	}()
	if err := cmd.Handler(ctx, expr, chatID, replyID, msg); err != nil {
		s.log.Error().Err(err).Str("command", cmd.Name).Msg("обработчик вернул ошибку")
	}
}

func (s *Service) usageReply(cmd string, chatID, replyID int64) error {
	c, ok := s.index[cmd]
	if !ok || c.Usage == "" {
		return nil
	}
	s.sender.SendText(chatID, "Syntax error. Usage: "+c.Usage, replyID)
	return nil
}

package commands

import (
	"context"
	"fmt"
	"strings"

	"tg-chatdig/internal/domain"
)

// submitTask ставит задачу внешнему процессу; неудача после повтора
// превращается в извинение пользователю.
func (s *Service) submitTask(cmd string, args []any, chatID, replyID int64) error {
	if err := s.runner.Submit(cmd, args, chatID, replyID); err != nil {
		s.sender.SendText(chatID, "Failed to submit the task.", replyID)
		return fmt.Errorf("submit %s: %w", cmd, err)
	}
	return nil
}

func (s *Service) cmdPy(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	if expr == "" {
		return s.usageReply("py", chatID, replyID)
	}
	if len([]rune(expr)) > 1000 {
		s.sender.SendText(chatID, "Expression too long.", replyID)
		return nil
	}
	s.sender.Typing(chatID)
	return s.submitTask("py", []any{expr}, chatID, replyID)
}

func (s *Service) cmdBf(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	if expr == "" {
		return s.usageReply("bf", chatID, replyID)
	}
	code, input := expr, ""
	if idx := strings.Index(expr, "|"); idx >= 0 {
		code, input = strings.TrimSpace(expr[:idx]), expr[idx+1:]
	}
	s.sender.Typing(chatID)
	return s.submitTask("bf", []any{code, input}, chatID, replyID)
}

func (s *Service) cmdLisp(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	if expr == "" {
		return s.usageReply("lisp", chatID, replyID)
	}
	s.sender.Typing(chatID)
	return s.submitTask("lisp", []any{expr}, chatID, replyID)
}

func (s *Service) cmdName(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	s.sender.Typing(chatID)
	return s.submitTask("name", []any{expr}, chatID, replyID)
}

func (s *Service) cmdIme(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	text := expr
	if text == "" && msg != nil && msg.ReplyTo != nil {
		text = msg.ReplyTo.PlainText()
	}
	if text == "" {
		return s.usageReply("ime", chatID, replyID)
	}
	text = limitLength(text, 200)
	s.sender.Typing(chatID)
	return s.submitTask("ime", []any{text}, chatID, replyID)
}

// langPrefix снимает односимвольный маркер направления с начала строки.
func langPrefix(expr string) (string, string) {
	if len(expr) >= 2 {
		switch strings.TrimSpace(expr[:2]) {
		case "c":
			return "c", strings.TrimSpace(expr[2:])
		case "m":
			return "m", strings.TrimSpace(expr[2:])
		}
	}
	return "", expr
}

func (s *Service) cmdWyw(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	mark, text := langPrefix(expr)
	var lang any
	switch mark {
	case "c":
		lang = "c2m"
	case "m":
		lang = "m2c"
	}
	if text == "" && msg != nil && msg.ReplyTo != nil {
		text = msg.ReplyTo.PlainText()
	}
	if text == "" {
		return s.usageReply("wyw", chatID, replyID)
	}
	text = limitLength(text, 1000)
	s.sender.Typing(chatID)
	// Протокол рабочего процесса: сначала текст, потом направление.
	return s.submitTask("wyw", []any{text, lang}, chatID, replyID)
}

func (s *Service) cmdCut(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	mark, text := langPrefix(expr)
	var lang any
	if mark != "" {
		lang = mark
	}
	if text == "" && msg != nil && msg.ReplyTo != nil {
		text = msg.ReplyTo.PlainText()
	}
	if text == "" {
		return s.usageReply("cut", chatID, replyID)
	}
	text = limitLength(text, 1000)
	return s.submitTask("cut", []any{text, lang}, chatID, replyID)
}

func (s *Service) cmdSay(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	s.sender.Typing(chatID)
	return s.submitTask("say", []any{}, chatID, replyID)
}

func (s *Service) cmdReply(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	s.sender.Typing(chatID)
	text := expr
	if text == "" && msg != nil && msg.ReplyTo != nil {
		text = msg.ReplyTo.PlainText()
	}
	if text == "" {
		recent, err := s.msgs.RecentTexts(2)
		if err != nil {
			return fmt.Errorf("recent texts: %w", err)
		}
		// Свежие приходят первыми, разговору нужен хронологический порядок.
		for i := len(recent) - 1; i >= 0; i-- {
			if recent[i] != "" {
				if text != "" {
					text += " "
				}
				text += recent[i]
			}
		}
	}
	text = strings.ReplaceAll(text, "\n", " ")
	return s.submitTask("reply", []any{text}, chatID, replyID)
}

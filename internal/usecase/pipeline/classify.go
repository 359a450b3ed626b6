package pipeline

import (
	"strings"

	"tg-chatdig/internal/domain"
)

// Class — категория входящего сообщения.
type Class int

const (
	ClassCommand Class = iota
	ClassGroupMessage
	ClassMembership
	ClassIgnored
	ClassInvalid
)

// String нужен лейблам метрик.
func (c Class) String() string {
	switch c {
	case ClassCommand:
		return "command"
	case ClassGroupMessage:
		return "group_message"
	case ClassMembership:
		return "membership"
	case ClassIgnored:
		return "ignored"
	default:
		return "invalid"
	}
}

// Classify относит сообщение к одной из пяти категорий. Порядок
// проверок важен: признаки команды смотрятся раньше групповых, поэтому
// команда в наблюдаемой группе журналируется и исполняется одновременно.
func Classify(msg *domain.Message, botID, groupChatID int64, botName string) Class {
	if msg == nil {
		return ClassInvalid
	}
	text := strings.TrimSpace(msg.Text)
	if text != "" {
		switch {
		case text[0] == '/' || text[0] == '\'':
			return ClassCommand
		case botName != "" && strings.Contains(text, "@"+botName):
			return ClassCommand
		case msg.Chat.IsPrivate():
			return ClassCommand
		case msg.ReplyTo != nil && msg.ReplyTo.From != nil && msg.ReplyTo.From.ID == botID:
			return ClassCommand
		}
	}
	if msg.Chat.IsGroup() {
		if msg.Chat.ID != groupChatID {
			return ClassIgnored
		}
		if msg.From != nil && msg.From.ID == botID {
			return ClassIgnored
		}
		if msg.NewMember != nil {
			return ClassMembership
		}
		return ClassGroupMessage
	}
	return ClassInvalid
}

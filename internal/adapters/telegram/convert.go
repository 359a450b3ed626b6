package telegram

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"tg-chatdig/internal/domain"
)

func userFromAPI(u *tgbotapi.User) *domain.User {
	if u == nil {
		return nil
	}
	return &domain.User{
		ID:        u.ID,
		Username:  u.UserName,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// FromAPI приводит сообщение платформы к нормализованному виду,
// включая побочную нагрузку распознанных вложений.
func FromAPI(m *tgbotapi.Message) *domain.Message {
	if m == nil {
		return nil
	}
	out := &domain.Message{
		ID:          int64(m.MessageID),
		From:        userFromAPI(m.From),
		Date:        int64(m.Date),
		Text:        strings.ReplaceAll(m.Text, " ", " "),
		Caption:     m.Caption,
		ForwardFrom: userFromAPI(m.ForwardFrom),
		ForwardDate: int64(m.ForwardDate),
		ReplyTo:     FromAPI(m.ReplyToMessage),
	}
	if m.Chat != nil {
		out.Chat = domain.Chat{ID: m.Chat.ID, Title: m.Chat.Title, FirstName: m.Chat.FirstName}
	}

	media := map[string]any{}
	if m.Audio != nil {
		media["audio"] = m.Audio
	}
	if m.Document != nil {
		media["document"] = m.Document
	}
	if len(m.Photo) > 0 {
		media["photo"] = m.Photo
	}
	if m.Sticker != nil {
		media["sticker"] = m.Sticker
	}
	if m.Video != nil {
		media["video"] = m.Video
	}
	if m.Contact != nil {
		media["contact"] = m.Contact
	}
	if m.Location != nil {
		media["location"] = m.Location
	}
	if len(m.NewChatMembers) > 0 {
		media["new_chat_participant"] = m.NewChatMembers[0]
		out.NewMember = userFromAPI(&m.NewChatMembers[0])
	}
	if m.LeftChatMember != nil {
		media["left_chat_participant"] = m.LeftChatMember
	}
	if m.NewChatTitle != "" {
		media["new_chat_title"] = m.NewChatTitle
	}
	if len(m.NewChatPhoto) > 0 {
		media["new_chat_photo"] = m.NewChatPhoto
	}
	if m.DeleteChatPhoto {
		media["delete_chat_photo"] = true
	}
	if m.GroupChatCreated {
		media["group_chat_created"] = true
	}
	if len(media) > 0 {
		out.Media = media
	}
	return out
}

package pipeline

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"tg-chatdig/internal/domain"
	"tg-chatdig/internal/infra/config"
	"tg-chatdig/internal/usecase/directory"
)

type dispatched struct {
	text    string
	chatID  int64
	replyID int64
}

type stubDispatcher struct {
	commands []dispatched
	welcomes int
}

func (d *stubDispatcher) Dispatch(ctx context.Context, text string, chatID, replyID int64, msg *domain.Message) {
	d.commands = append(d.commands, dispatched{text: text, chatID: chatID, replyID: replyID})
}

func (d *stubDispatcher) Welcome(ctx context.Context, msg *domain.Message) { d.welcomes++ }

type stubSender struct {
	domain.Sender
	sent []string
}

func (s *stubSender) SendText(chatID int64, text string, replyTo int64) {
	s.sent = append(s.sent, text)
}

type stubMsgRepo struct {
	domain.MessageRepo
	upserts []*domain.Message
}

func (s *stubMsgRepo) Upsert(m *domain.Message) error {
	s.upserts = append(s.upserts, m)
	return nil
}

type stubUserRepo struct {
	upserts []domain.User
}

func (s *stubUserRepo) UpsertUser(u domain.User) error {
	s.upserts = append(s.upserts, u)
	return nil
}
func (s *stubUserRepo) InsertIgnoreUser(domain.User) error       { return nil }
func (s *stubUserRepo) GetUser(int64) (domain.User, bool, error) { return domain.User{}, false, nil }
func (s *stubUserRepo) IDByUsername(string) (int64, bool, error) { return 0, false, nil }

type fixture struct {
	svc        *Service
	dispatcher *stubDispatcher
	sender     *stubSender
	msgs       *stubMsgRepo
	users      *stubUserRepo
	ownLogQ    chan *domain.Message
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dispatcher := &stubDispatcher{}
	sender := &stubSender{}
	msgs := &stubMsgRepo{}
	users := &stubUserRepo{}
	ownLogQ := make(chan *domain.Message, 8)
	rt := config.NewRuntime(config.RuntimeValues{BotName: botName, BotID: botID, GroupID: 1001})
	dir := directory.NewService(users, msgs, zerolog.Nop())
	svc := NewService(nil, ownLogQ, msgs, dir, dispatcher, nil, sender, rt, zerolog.Nop())
	return &fixture{svc: svc, dispatcher: dispatcher, sender: sender, msgs: msgs, users: users, ownLogQ: ownLogQ}
}

func TestProcessGroupMessageLogged(t *testing.T) {
	f := newFixture(t)
	f.svc.Process(context.Background(), domain.Update{ID: 1, Message: &domain.Message{
		ID:   100,
		Chat: domain.Chat{ID: groupChat, Title: "group"},
		From: &domain.User{ID: 10, FirstName: "Ada"},
		Text: "просто сообщение",
	}})
	if len(f.msgs.upserts) != 1 || f.msgs.upserts[0].ID != 100 {
		t.Fatalf("журнал: %v", f.msgs.upserts)
	}
	if len(f.users.upserts) != 1 || f.users.upserts[0].ID != 10 {
		t.Fatalf("справочник: %v", f.users.upserts)
	}
	if len(f.dispatcher.commands) != 0 {
		t.Fatal("обычное сообщение не должно диспетчеризоваться")
	}
}

func TestProcessGroupCommandLoggedAndDispatched(t *testing.T) {
	f := newFixture(t)
	f.svc.Process(context.Background(), domain.Update{ID: 2, Message: &domain.Message{
		ID:   101,
		Chat: domain.Chat{ID: groupChat, Title: "group"},
		From: &domain.User{ID: 10},
		Text: "/stat",
	}})
	if len(f.msgs.upserts) != 1 {
		t.Fatal("команда в группе должна журналироваться")
	}
	if len(f.dispatcher.commands) != 1 || f.dispatcher.commands[0].text != "/stat" {
		t.Fatalf("диспетчер: %v", f.dispatcher.commands)
	}
}

func TestProcessPrivateCommandNotLogged(t *testing.T) {
	f := newFixture(t)
	f.svc.Process(context.Background(), domain.Update{ID: 3, Message: &domain.Message{
		ID:   102,
		Chat: domain.Chat{ID: 5, FirstName: "Ada"},
		From: &domain.User{ID: 10},
		Text: "/help",
	}})
	if len(f.msgs.upserts) != 0 {
		t.Fatal("личные команды в журнал не пишутся")
	}
	if len(f.dispatcher.commands) != 1 {
		t.Fatalf("диспетчер: %v", f.dispatcher.commands)
	}
}

func TestProcessMembership(t *testing.T) {
	f := newFixture(t)
	f.svc.Process(context.Background(), domain.Update{ID: 4, Message: &domain.Message{
		ID:        103,
		Chat:      domain.Chat{ID: groupChat, Title: "group"},
		From:      &domain.User{ID: 10},
		NewMember: &domain.User{ID: 99},
	}})
	if f.dispatcher.welcomes != 1 {
		t.Fatal("новый участник не поприветствован")
	}
	if len(f.msgs.upserts) != 1 {
		t.Fatal("событие членства должно журналироваться")
	}
}

func TestProcessInvalid(t *testing.T) {
	f := newFixture(t)
	f.svc.Process(context.Background(), domain.Update{ID: 5, Message: &domain.Message{
		ID:    104,
		Chat:  domain.Chat{ID: 5, FirstName: "Ada"},
		From:  &domain.User{ID: 10},
		Media: map[string]any{"sticker": true},
	}})
	if len(f.sender.sent) != 1 || f.sender.sent[0] != "Wrong usage" {
		t.Fatalf("ответ на непонятный ввод: %v", f.sender.sent)
	}
}

func TestProcessPanicRecovered(t *testing.T) {
	f := newFixture(t)
	f.svc.Process(context.Background(), domain.Update{ID: 6, Message: nil})
	// nil-сообщение не роняет цикл.
}

func TestDrainOwnLog(t *testing.T) {
	f := newFixture(t)
	f.ownLogQ <- &domain.Message{ID: 200, Chat: domain.Chat{ID: groupChat}}
	f.ownLogQ <- &domain.Message{ID: 201, Chat: domain.Chat{ID: groupChat}}
	f.svc.DrainOwnLog()
	if len(f.msgs.upserts) != 2 {
		t.Fatalf("очередь собственных сообщений не вычитана: %d", len(f.msgs.upserts))
	}
}

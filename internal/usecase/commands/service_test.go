package commands

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"tg-chatdig/internal/domain"
	"tg-chatdig/internal/infra/config"
	"tg-chatdig/internal/usecase/directory"
)

type sentText struct {
	chat  int64
	text  string
	reply int64
}

type stubSender struct {
	sent      []sentText
	forwarded [][]int64
	textOnly  [][]int64
}

func (s *stubSender) SendText(chatID int64, text string, replyTo int64) {
	s.sent = append(s.sent, sentText{chat: chatID, text: text, reply: replyTo})
}
func (s *stubSender) Forward(msgID, chatID, replyTo int64) {
	s.forwarded = append(s.forwarded, []int64{msgID})
}
func (s *stubSender) ForwardMulti(msgIDs []int64, chatID, replyTo int64) {
	s.forwarded = append(s.forwarded, msgIDs)
}
func (s *stubSender) ForwardMultiText(msgIDs []int64, chatID, replyTo int64) {
	s.textOnly = append(s.textOnly, msgIDs)
}
func (s *stubSender) Typing(chatID int64) {}

func (s *stubSender) last(t *testing.T) sentText {
	t.Helper()
	if len(s.sent) == 0 {
		t.Fatal("ничего не отправлено")
	}
	return s.sent[len(s.sent)-1]
}

type submitted struct {
	cmd             string
	args            []any
	chatID, replyID int64
}

type stubRunner struct {
	tasks     []submitted
	restarted int
}

func (r *stubRunner) Submit(cmd string, args []any, chatID, replyID int64) error {
	r.tasks = append(r.tasks, submitted{cmd: cmd, args: args, chatID: chatID, replyID: replyID})
	return nil
}
func (r *stubRunner) Restart() error {
	r.restarted++
	return nil
}

type stubMsgRepo struct {
	domain.MessageRepo
	hits    []domain.SearchHit
	lastQ   domain.SearchQuery
	counts  []domain.SenderCount
	recent  []string
	commits int
}

func (s *stubMsgRepo) Search(q domain.SearchQuery) ([]domain.SearchHit, error) {
	s.lastQ = q
	return s.hits, nil
}
func (s *stubMsgRepo) SenderCounts(since int64) ([]domain.SenderCount, error) {
	return s.counts, nil
}
func (s *stubMsgRepo) RecentTexts(limit int) ([]string, error) { return s.recent, nil }
func (s *stubMsgRepo) Checkpoint() error {
	s.commits++
	return nil
}

type stubUserRepo struct {
	users  map[int64]domain.User
	byName map[string]int64
}

func (s *stubUserRepo) UpsertUser(domain.User) error       { return nil }
func (s *stubUserRepo) InsertIgnoreUser(domain.User) error { return nil }
func (s *stubUserRepo) GetUser(id int64) (domain.User, bool, error) {
	u, ok := s.users[id]
	return u, ok, nil
}
func (s *stubUserRepo) IDByUsername(name string) (int64, bool, error) {
	id, ok := s.byName[strings.ToLower(name)]
	return id, ok, nil
}

type fixture struct {
	svc    *Service
	sender *stubSender
	runner *stubRunner
	msgs   *stubMsgRepo
}

const testGroupChat = int64(-1001)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sender := &stubSender{}
	runner := &stubRunner{}
	msgs := &stubMsgRepo{}
	users := &stubUserRepo{
		users: map[int64]domain.User{
			10: {ID: 10, Username: "ada", FirstName: "Ada"},
			11: {ID: 11, FirstName: "Ben"},
		},
		byName: map[string]int64{"ada": 10},
	}
	rt := config.NewRuntime(config.RuntimeValues{BotName: "digbot", GroupID: 1001})
	dir := directory.NewService(users, msgs, zerolog.Nop())
	return &fixture{
		svc:    NewService(rt, sender, msgs, dir, runner, zerolog.Nop()),
		sender: sender,
		runner: runner,
		msgs:   msgs,
	}
}

func (f *fixture) dispatch(text string, chatID, replyID int64) {
	f.svc.Dispatch(context.Background(), text, chatID, replyID, &domain.Message{
		ID:   replyID,
		Chat: domain.Chat{ID: chatID},
		From: &domain.User{ID: 10, FirstName: "Ada"},
	})
}

func TestDispatchEcho(t *testing.T) {
	f := newFixture(t)
	f.dispatch("/echo ping", 5, 1)
	if got := f.sender.last(t); got.text != "pong" {
		t.Fatalf("эхо: %q", got.text)
	}
	f.dispatch("/echo привет", 5, 2)
	if got := f.sender.last(t); got.text != "привет" {
		t.Fatalf("эхо: %q", got.text)
	}
	f.dispatch("/echo", 5, 3)
	if got := f.sender.last(t); got.text != "ping" {
		t.Fatalf("эхо: %q", got.text)
	}
}

func TestDispatchStripsBotMention(t *testing.T) {
	f := newFixture(t)
	f.dispatch("/ECHO@digbot ping", testGroupChat, 1)
	if got := f.sender.last(t); got.text != "pong" {
		t.Fatalf("упоминание бота не снято: %q", got.text)
	}
}

func TestDispatchQuoteMarker(t *testing.T) {
	f := newFixture(t)
	f.dispatch("'echo ping", 5, 1)
	if got := f.sender.last(t); got.text != "pong" {
		t.Fatalf("маркер-кавычка не сработал: %q", got.text)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	f := newFixture(t)
	f.dispatch("/nosuch", 5, 1)
	if got := f.sender.last(t); got.text != "Invalid command. Send /help for help." {
		t.Fatalf("подсказка: %q", got.text)
	}

	f.sender.sent = nil
	f.dispatch("/nosuch", -2002, 1)
	if len(f.sender.sent) != 0 {
		t.Fatal("в чужой группе незнакомая команда должна игнорироваться молча")
	}
}

func TestDispatchVisibility(t *testing.T) {
	f := newFixture(t)
	// /stat непубличная: в чужой группе отказ молчаливый.
	f.dispatch("/stat", -2002, 1)
	if len(f.sender.sent) != 0 {
		t.Fatalf("непубличная команда выполнилась в чужой группе: %v", f.sender.sent)
	}
	// Публичная работает везде.
	f.dispatch("/echo ping", -2002, 1)
	if got := f.sender.last(t); got.text != "pong" {
		t.Fatalf("публичная команда: %q", got.text)
	}
}

func TestDispatchFreeTextGoesToReply(t *testing.T) {
	f := newFixture(t)
	f.dispatch("как дела", 5, 1)
	if len(f.runner.tasks) != 1 || f.runner.tasks[0].cmd != "reply" {
		t.Fatalf("разговор не ушёл в reply: %v", f.runner.tasks)
	}
	if f.runner.tasks[0].args[0] != "как дела" {
		t.Fatalf("текст разговора: %v", f.runner.tasks[0].args)
	}

	// Обращение к боту в чужой группе — тоже разговор.
	f.runner.tasks = nil
	f.dispatch("привет @digbot", -2002, 1)
	if len(f.runner.tasks) != 1 || f.runner.tasks[0].cmd != "reply" {
		t.Fatalf("разговор из чужой группы: %v", f.runner.tasks)
	}

	f.runner.tasks = nil
	f.dispatch("просто текст", testGroupChat, 1)
	if len(f.runner.tasks) != 0 {
		t.Fatal("текст в наблюдаемой группе не должен уходить в reply")
	}
}

func TestSearchClampAndFormat(t *testing.T) {
	f := newFixture(t)
	f.msgs.hits = []domain.SearchHit{
		{ID: 3, Src: 10, Text: "третье про го", Date: 1700000000},
		{ID: 2, Src: 11, Text: "второе про го", Date: 1699990000},
	}
	f.dispatch("/s го 50,7", 5, 1)
	if f.msgs.lastQ.Limit != 20 || f.msgs.lastQ.Offset != 7 {
		t.Fatalf("границы не применены: %+v", f.msgs.lastQ)
	}
	got := f.sender.last(t)
	lines := strings.Split(got.text, "\n")
	if len(lines) != 2 {
		t.Fatalf("строк в выдаче: %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "[3|") || !strings.Contains(lines[0], "Ada: ") {
		t.Fatalf("формат строки: %q", lines[0])
	}
}

func TestSearchBySender(t *testing.T) {
	f := newFixture(t)
	f.dispatch("/s @ada го", 5, 1)
	if f.msgs.lastQ.SenderID != 10 || f.msgs.lastQ.Keyword != "го" {
		t.Fatalf("фильтр по отправителю: %+v", f.msgs.lastQ)
	}

	// Неизвестное @имя ищется как обычный текст.
	f.dispatch("/s @nobody го", 5, 2)
	if f.msgs.lastQ.SenderID != 0 || f.msgs.lastQ.Keyword != "@nobody го" {
		t.Fatalf("фолбэк на текст: %+v", f.msgs.lastQ)
	}
}

func TestSearchNothingFound(t *testing.T) {
	f := newFixture(t)
	f.dispatch("/s ничего", 5, 1)
	if got := f.sender.last(t); got.text != "Found nothing." {
		t.Fatalf("пустая выдача: %q", got.text)
	}
}

func TestContextWindow(t *testing.T) {
	f := newFixture(t)
	f.dispatch("/context 100 3", 5, 1)
	if len(f.sender.textOnly) != 1 {
		t.Fatal("контекст не восстановлен текстом")
	}
	ids := f.sender.textOnly[0]
	if len(ids) != 7 || ids[0] != 97 || ids[6] != 103 {
		t.Fatalf("окно контекста: %v", ids)
	}

	// Ширина окна ограничена сверху.
	f.dispatch("/context 100 99", 5, 2)
	if ids := f.sender.textOnly[1]; len(ids) != 21 {
		t.Fatalf("окно не ограничено: %d", len(ids))
	}
}

func TestGetMsgSyntaxError(t *testing.T) {
	f := newFixture(t)
	f.dispatch("/m abc", 5, 1)
	if got := f.sender.last(t); !strings.HasPrefix(got.text, "Syntax error. Usage: ") {
		t.Fatalf("ошибка синтаксиса: %q", got.text)
	}

	f.dispatch("/m 5 7", 5, 2)
	if len(f.sender.forwarded) != 1 || f.sender.forwarded[0][1] != 7 {
		t.Fatalf("пересылка набора: %v", f.sender.forwarded)
	}
}

func TestStatTopFive(t *testing.T) {
	f := newFixture(t)
	f.msgs.counts = []domain.SenderCount{
		{Src: 10, Count: 60}, {Src: 11, Count: 20}, {Src: 12, Count: 10},
		{Src: 13, Count: 5}, {Src: 14, Count: 3}, {Src: 15, Count: 2},
	}
	f.dispatch("/stat 60", testGroupChat, 1)
	got := f.sender.last(t)
	if !strings.Contains(got.text, "在最近 1 小时内有 100 条消息，一分钟 1.67 条。") {
		t.Fatalf("итог: %q", got.text)
	}
	if !strings.Contains(got.text, "Ada: 60 条，60.00%") {
		t.Fatalf("первая строка топа: %q", got.text)
	}
	if !strings.Contains(got.text, "其他用户 2 条，人均 16.67 条") {
		t.Fatalf("хвост: %q", got.text)
	}
}

func TestStatRemainderAlwaysPresent(t *testing.T) {
	f := newFixture(t)
	f.msgs.counts = []domain.SenderCount{{Src: 10, Count: 4}}
	f.dispatch("/stat 60", testGroupChat, 1)
	got := f.sender.last(t)
	// Хвостовая строка печатается и когда топ покрывает всех.
	if !strings.Contains(got.text, "其他用户 0 条，人均 4.00 条") {
		t.Fatalf("хвост: %q", got.text)
	}
}

func TestUinfoRank(t *testing.T) {
	f := newFixture(t)
	f.msgs.counts = []domain.SenderCount{
		{Src: 11, Count: 30}, {Src: 10, Count: 10},
	}
	f.dispatch("/uinfo @ada", 5, 1)
	got := f.sender.last(t)
	if !strings.Contains(got.text, "@ada, Ada, ID: 10") {
		t.Fatalf("шапка: %q", got.text)
	}
	if !strings.Contains(got.text, "占 25.00%") || !strings.Contains(got.text, "位列第 2") {
		t.Fatalf("ранг: %q", got.text)
	}
}

func TestUinfoUnknownUser(t *testing.T) {
	f := newFixture(t)
	f.dispatch("/uinfo @ghost", 5, 1)
	if got := f.sender.last(t); got.text != "User not found." {
		t.Fatalf("неизвестный пользователь: %q", got.text)
	}
}

func TestPyTooLong(t *testing.T) {
	f := newFixture(t)
	f.dispatch("/py "+strings.Repeat("1+", 600)+"1", 5, 1)
	if got := f.sender.last(t); got.text != "Expression too long." {
		t.Fatalf("длинное выражение: %q", got.text)
	}
	if len(f.runner.tasks) != 0 {
		t.Fatal("длинное выражение не должно уходить в задачу")
	}
}

func TestBfSplitsInput(t *testing.T) {
	f := newFixture(t)
	f.dispatch("/bf +[.] | abc", 5, 1)
	task := f.runner.tasks[0]
	if task.cmd != "bf" || task.args[0] != "+[.]" || task.args[1] != " abc" {
		t.Fatalf("разбор bf: %+v", task)
	}
}

func TestWywLangMarker(t *testing.T) {
	f := newFixture(t)
	// На проводе текст идёт первым аргументом, направление — вторым.
	f.dispatch("/wyw c 你好", 5, 1)
	task := f.runner.tasks[0]
	if task.cmd != "wyw" || task.args[0] != "你好" || task.args[1] != "c2m" {
		t.Fatalf("аргументы перевода: %+v", task)
	}

	f.dispatch("/wyw 你好", 5, 2)
	if task := f.runner.tasks[1]; task.args[0] != "你好" || task.args[1] != nil {
		t.Fatalf("направление должно определяться сервером: %+v", task)
	}
}

func TestCutArgOrder(t *testing.T) {
	f := newFixture(t)
	f.dispatch("/cut c 你好", 5, 1)
	task := f.runner.tasks[0]
	if task.cmd != "cut" || task.args[0] != "你好" || task.args[1] != "c" {
		t.Fatalf("аргументы сегментации: %+v", task)
	}
}

func TestServerCmd(t *testing.T) {
	f := newFixture(t)
	f.dispatch("/_cmd killserver", 5, 1)
	if f.runner.restarted != 1 {
		t.Fatal("внешний процесс не перезапущен")
	}
	if got := f.sender.last(t); got.text != "Server killed." {
		t.Fatalf("ответ: %q", got.text)
	}

	f.dispatch("/_cmd commit", 5, 2)
	if f.msgs.commits != 1 {
		t.Fatal("журнал не зафиксирован")
	}

	f.dispatch("/_cmd killserver", testGroupChat, 3)
	if f.runner.restarted != 1 {
		t.Fatal("служебная команда доступна только в личке")
	}
}

func TestHelp(t *testing.T) {
	f := newFixture(t)
	f.dispatch("/help", testGroupChat, 1)
	if got := f.sender.last(t); got.text != "Full help disabled in this group." {
		t.Fatalf("справка в группе: %q", got.text)
	}

	f.dispatch("/help", 5, 2)
	full := f.sender.last(t).text
	if strings.Count(full, "/py <expr>") != 1 {
		t.Fatalf("подсказки должны дедуплицироваться: %q", full)
	}
	if !strings.Contains(full, "/stat") {
		t.Fatalf("в личке справка полная: %q", full)
	}

	f.dispatch("/help", -2002, 3)
	public := f.sender.last(t).text
	if strings.Contains(public, "/stat") {
		t.Fatalf("в чужой группе только публичные: %q", public)
	}
}

func TestWelcome(t *testing.T) {
	f := newFixture(t)
	f.svc.Welcome(context.Background(), &domain.Message{
		ID:        9,
		Chat:      domain.Chat{ID: testGroupChat, Title: "group"},
		NewMember: &domain.User{ID: 99, FirstName: "Новичок"},
	})
	if got := f.sender.last(t); got.text != "欢迎 Новичок 加入本群！" || got.reply != 9 {
		t.Fatalf("приветствие: %+v", got)
	}
}

func Test233Grid(t *testing.T) {
	f := newFixture(t)
	f.dispatch("/233 9", 5, 1)
	got := f.sender.last(t).text
	moons := strings.Count(got, "🌝") + strings.Count(got, "🌚")
	if moons != 9 {
		t.Fatalf("лун: %d", moons)
	}
	if lines := strings.Split(got, "\n"); len(lines) != 3 {
		t.Fatalf("строк в сетке: %d", len(lines))
	}

	// Большая сетка получает сводку счёта.
	f.dispatch("/233 16", 5, 2)
	if got := f.sender.last(t).text; !strings.Contains(got, "(🌝") {
		t.Fatalf("сводка счёта: %q", got)
	}
}

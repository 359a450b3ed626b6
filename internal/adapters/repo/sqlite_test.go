package repo

import (
	"path/filepath"
	"testing"

	"tg-chatdig/internal/domain"
	"tg-chatdig/internal/infra/db"
)

func newTestRepo(t *testing.T) *SQLite {
	t.Helper()
	d, err := db.Connect(filepath.Join(t.TempDir(), "chatlog.db"))
	if err != nil {
		t.Fatalf("не удалось открыть базу: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return NewSQLite(d)
}

func msg(id int64, src int64, text string, date int64) *domain.Message {
	return &domain.Message{
		ID:   id,
		From: &domain.User{ID: src, FirstName: "U"},
		Text: text,
		Date: date,
	}
}

func TestUpsertOverwritesAndInsertIgnoreKeeps(t *testing.T) {
	r := newTestRepo(t)
	if err := r.Upsert(msg(1, 10, "первый", 100)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := r.Upsert(msg(1, 10, "второй", 101)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	got, err := r.Get(1)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got == nil || got.Text != "второй" {
		t.Fatalf("upsert должен отражать последнюю версию, получили %+v", got)
	}

	if err := r.InsertIgnore(msg(1, 10, "третий", 102)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	got, _ = r.Get(1)
	if got.Text != "второй" {
		t.Fatalf("insert-if-absent не должен перезаписывать, получили %q", got.Text)
	}
}

func TestGetMissingReturnsNil(t *testing.T) {
	r := newTestRepo(t)
	got, err := r.Get(404)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if got != nil {
		t.Fatalf("ожидали nil, получили %+v", got)
	}
}

func TestSearchOrderLimitAndEscaping(t *testing.T) {
	r := newTestRepo(t)
	texts := []string{"foo one", "bar", "foo two", "foo three", "100% foo", "foo four"}
	for i, text := range texts {
		if err := r.Upsert(msg(int64(i+1), 10, text, int64(100+i))); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}

	hits, err := r.Search(domain.SearchQuery{Keyword: "foo", Limit: 3})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("ожидали 3 результата, получили %d", len(hits))
	}
	if hits[0].ID != 6 || hits[1].ID != 5 || hits[2].ID != 4 {
		t.Fatalf("ожидали свежие записи первыми, получили %+v", hits)
	}

	// Подстановочный знак ищется буквально.
	hits, err = r.Search(domain.SearchQuery{Keyword: "100%", Limit: 5})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != 5 {
		t.Fatalf("ожидали единственное сообщение с literal-процентом, получили %+v", hits)
	}
}

func TestSearchBySender(t *testing.T) {
	r := newTestRepo(t)
	r.Upsert(msg(1, 10, "foo a", 100))
	r.Upsert(msg(2, 20, "foo b", 101))
	hits, err := r.Search(domain.SearchQuery{SenderID: 20, Keyword: "foo", Limit: 5})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != 2 {
		t.Fatalf("ожидали только сообщение отправителя 20, получили %+v", hits)
	}
}

func TestSenderCounts(t *testing.T) {
	r := newTestRepo(t)
	r.Upsert(msg(1, 10, "a", 100))
	r.Upsert(msg(2, 10, "b", 101))
	r.Upsert(msg(3, 20, "c", 102))
	r.Upsert(msg(4, 20, "старое", 1))
	counts, err := r.SenderCounts(50)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("ожидали 2 отправителей, получили %+v", counts)
	}
	if counts[0].Src != 10 || counts[0].Count != 2 {
		t.Fatalf("ожидали отправителя 10 первым, получили %+v", counts)
	}
}

func TestRandomIDFallback(t *testing.T) {
	r := newTestRepo(t)
	if _, err := r.RandomID(); err != domain.ErrNoMessages {
		t.Fatalf("ожидали ErrNoMessages, получили %v", err)
	}
	r.Upsert(msg(7, 10, "a", 100))
	if _, err := r.RandomIDWithin(200, 300); err != domain.ErrNoMessages {
		t.Fatalf("ожидали ErrNoMessages вне окна, получили %v", err)
	}
	id, err := r.RandomID()
	if err != nil || id != 7 {
		t.Fatalf("ожидали id 7, получили %d (%v)", id, err)
	}
	id, err = r.RandomIDWithin(100, 101)
	if err != nil || id != 7 {
		t.Fatalf("ожидали id 7 в окне, получили %d (%v)", id, err)
	}
}

func TestUsersAndOffsets(t *testing.T) {
	r := newTestRepo(t)
	if err := r.UpsertUser(domain.User{ID: 1, Username: "Alice", FirstName: "Алиса"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := r.UpsertUser(domain.User{ID: 1, Username: "alice2", FirstName: "Алиса"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	u, ok, err := r.GetUser(1)
	if err != nil || !ok {
		t.Fatalf("пользователь потерялся: %v", err)
	}
	if u.Username != "alice2" {
		t.Fatalf("последняя версия должна выигрывать, получили %q", u.Username)
	}

	if err := r.InsertIgnoreUser(domain.User{ID: 1, Username: "old"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	u, _, _ = r.GetUser(1)
	if u.Username != "alice2" {
		t.Fatalf("insert-if-absent не должен перезаписывать, получили %q", u.Username)
	}

	id, ok, err := r.IDByUsername("ALICE2")
	if err != nil || !ok || id != 1 {
		t.Fatalf("поиск без учёта регистра сломан: %d %v %v", id, ok, err)
	}
	if _, ok, _ := r.IDByUsername("nobody"); ok {
		t.Fatal("ожидали отсутствие пользователя")
	}

	if _, ok, _ := r.LoadOffset(domain.OffsetSlotUpdates); ok {
		t.Fatal("ожидали пустой слот")
	}
	if err := r.StoreOffset(domain.OffsetSlotUpdates, 555); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	val, ok, err := r.LoadOffset(domain.OffsetSlotUpdates)
	if err != nil || !ok || val != 555 {
		t.Fatalf("курсор не пережил запись: %d %v %v", val, ok, err)
	}
}

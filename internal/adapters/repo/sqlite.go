package repo

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"tg-chatdig/internal/domain"
)

// SQLite реализует репозитории журнала поверх database/sql.
type SQLite struct {
	db *sql.DB
}

// NewSQLite создаёт адаптер БД.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

const messageColumns = "id, src, text, media, date, fwd_src, fwd_date, reply_id"

func messageRow(m *domain.Message) ([]any, error) {
	var src int64
	if m.From != nil {
		src = m.From.ID
	}
	var media any
	if len(m.Media) > 0 {
		raw, err := json.Marshal(m.Media)
		if err != nil {
			return nil, fmt.Errorf("marshal media: %w", err)
		}
		media = string(raw)
	}
	var fwdSrc, fwdDate, replyID any
	if m.ForwardFrom != nil {
		fwdSrc = m.ForwardFrom.ID
	}
	if m.ForwardDate != 0 {
		fwdDate = m.ForwardDate
	}
	if m.ReplyTo != nil {
		replyID = m.ReplyTo.ID
	}
	return []any{m.ID, src, m.PlainText(), media, m.Date, fwdSrc, fwdDate, replyID}, nil
}

// Upsert записывает сообщение, перезаписывая запись с тем же id.
func (s *SQLite) Upsert(m *domain.Message) error {
	row, err := messageRow(m)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec("REPLACE INTO messages ("+messageColumns+") VALUES (?,?,?,?, ?,?,?,?)", row...); err != nil {
		return fmt.Errorf("upsert message %d: %w", m.ID, err)
	}
	return nil
}

// InsertIgnore записывает сообщение, не трогая существующую запись.
func (s *SQLite) InsertIgnore(m *domain.Message) error {
	row, err := messageRow(m)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec("INSERT OR IGNORE INTO messages ("+messageColumns+") VALUES (?,?,?,?, ?,?,?,?)", row...); err != nil {
		return fmt.Errorf("insert message %d: %w", m.ID, err)
	}
	return nil
}

// InsertIgnoreStored записывает готовую запись журнала как есть.
func (s *SQLite) InsertIgnoreStored(m *domain.StoredMessage) error {
	var media, fwdSrc, fwdDate, replyID any
	if len(m.Media) > 0 {
		media = string(m.Media)
	}
	if m.FwdSrc != 0 {
		fwdSrc = m.FwdSrc
	}
	if m.FwdDate != 0 {
		fwdDate = m.FwdDate
	}
	if m.ReplyID != 0 {
		replyID = m.ReplyID
	}
	if _, err := s.db.Exec("INSERT OR IGNORE INTO messages ("+messageColumns+") VALUES (?,?,?,?, ?,?,?,?)",
		m.ID, m.Src, m.Text, media, m.Date, fwdSrc, fwdDate, replyID); err != nil {
		return fmt.Errorf("insert stored message %d: %w", m.ID, err)
	}
	return nil
}

// Get возвращает запись журнала либо nil.
func (s *SQLite) Get(id int64) (*domain.StoredMessage, error) {
	row := s.db.QueryRow("SELECT "+messageColumns+" FROM messages WHERE id = ?", id)
	var m domain.StoredMessage
	var text, media sql.NullString
	var src, fwdSrc, fwdDate, replyID sql.NullInt64
	err := row.Scan(&m.ID, &src, &text, &media, &m.Date, &fwdSrc, &fwdDate, &replyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get message %d: %w", id, err)
	}
	m.Src = src.Int64
	m.Text = text.String
	if media.Valid {
		m.Media = []byte(media.String)
	}
	m.FwdSrc = fwdSrc.Int64
	m.FwdDate = fwdDate.Int64
	m.ReplyID = replyID.Int64
	return &m, nil
}

// escapeLike экранирует подстановочные знаки LIKE в пользовательском
// вводе: ключевое слово ищется буквально.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// Search ищет по подстроке без учёта регистра, свежие записи первыми.
func (s *SQLite) Search(q domain.SearchQuery) ([]domain.SearchHit, error) {
	pattern := "%" + escapeLike(q.Keyword) + "%"
	var rows *sql.Rows
	var err error
	if q.SenderID == 0 {
		rows, err = s.db.Query(
			`SELECT id, src, text, date FROM messages WHERE text LIKE ? ESCAPE '\' ORDER BY date DESC LIMIT ? OFFSET ?`,
			pattern, q.Limit, q.Offset)
	} else {
		rows, err = s.db.Query(
			`SELECT id, src, text, date FROM messages WHERE src = ? AND text LIKE ? ESCAPE '\' ORDER BY date DESC LIMIT ? OFFSET ?`,
			q.SenderID, pattern, q.Limit, q.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("search messages: %w", err)
	}
	defer rows.Close()
	var hits []domain.SearchHit
	for rows.Next() {
		var h domain.SearchHit
		var text sql.NullString
		var src sql.NullInt64
		if err := rows.Scan(&h.ID, &src, &text, &h.Date); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		h.Src = src.Int64
		h.Text = text.String
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SenderCounts считает сообщения по отправителям с date > since.
func (s *SQLite) SenderCounts(since int64) ([]domain.SenderCount, error) {
	rows, err := s.db.Query(
		"SELECT src, COUNT(*) AS cnt FROM messages WHERE date > ? GROUP BY src ORDER BY cnt DESC", since)
	if err != nil {
		return nil, fmt.Errorf("count senders: %w", err)
	}
	defer rows.Close()
	var counts []domain.SenderCount
	for rows.Next() {
		var c domain.SenderCount
		var src sql.NullInt64
		if err := rows.Scan(&src, &c.Count); err != nil {
			return nil, fmt.Errorf("scan sender count: %w", err)
		}
		c.Src = src.Int64
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

func (s *SQLite) randomID(query string, args ...any) (int64, error) {
	var id int64
	err := s.db.QueryRow(query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrNoMessages
	}
	if err != nil {
		return 0, fmt.Errorf("pick random message: %w", err)
	}
	return id, nil
}

// RandomIDWithin выбирает случайное сообщение с from <= date < to.
func (s *SQLite) RandomIDWithin(from, to int64) (int64, error) {
	return s.randomID("SELECT id FROM messages WHERE date >= ? AND date < ? ORDER BY RANDOM() LIMIT 1", from, to)
}

// RandomID выбирает случайное сообщение из всего журнала.
func (s *SQLite) RandomID() (int64, error) {
	return s.randomID("SELECT id FROM messages ORDER BY RANDOM() LIMIT 1")
}

// RecentTexts возвращает тексты последних сообщений, свежие первыми.
func (s *SQLite) RecentTexts(limit int) ([]string, error) {
	rows, err := s.db.Query("SELECT text FROM messages ORDER BY date DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("recent texts: %w", err)
	}
	defer rows.Close()
	var texts []string
	for rows.Next() {
		var t sql.NullString
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("scan recent text: %w", err)
		}
		texts = append(texts, t.String)
	}
	return texts, rows.Err()
}

// Checkpoint сбрасывает журнал на диск.
func (s *SQLite) Checkpoint() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// Upsert записывает пользователя, последняя версия выигрывает.
func (s *SQLite) UpsertUser(u domain.User) error {
	var username, lastName any
	if u.Username != "" {
		username = u.Username
	}
	if u.LastName != "" {
		lastName = u.LastName
	}
	if _, err := s.db.Exec("REPLACE INTO users (id, username, first_name, last_name) VALUES (?, ?, ?, ?)",
		u.ID, username, u.FirstName, lastName); err != nil {
		return fmt.Errorf("upsert user %d: %w", u.ID, err)
	}
	return nil
}

// InsertIgnoreUser записывает пользователя, не трогая существующего.
func (s *SQLite) InsertIgnoreUser(u domain.User) error {
	var username, lastName any
	if u.Username != "" {
		username = u.Username
	}
	if u.LastName != "" {
		lastName = u.LastName
	}
	if _, err := s.db.Exec("INSERT OR IGNORE INTO users (id, username, first_name, last_name) VALUES (?, ?, ?, ?)",
		u.ID, username, u.FirstName, lastName); err != nil {
		return fmt.Errorf("insert user %d: %w", u.ID, err)
	}
	return nil
}

// GetUser возвращает пользователя по идентификатору.
func (s *SQLite) GetUser(id int64) (domain.User, bool, error) {
	row := s.db.QueryRow("SELECT id, username, first_name, last_name FROM users WHERE id = ?", id)
	var u domain.User
	var username, firstName, lastName sql.NullString
	err := row.Scan(&u.ID, &username, &firstName, &lastName)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, false, nil
	}
	if err != nil {
		return domain.User{}, false, fmt.Errorf("get user %d: %w", id, err)
	}
	u.Username = username.String
	u.FirstName = firstName.String
	u.LastName = lastName.String
	return u, true, nil
}

// IDByUsername ищет пользователя по имени без учёта регистра.
func (s *SQLite) IDByUsername(name string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRow("SELECT id FROM users WHERE username = ? COLLATE NOCASE", name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("lookup username %q: %w", name, err)
	}
	return id, true, nil
}

// LoadOffset читает курсор источника.
func (s *SQLite) LoadOffset(slot int) (int64, bool, error) {
	var val int64
	err := s.db.QueryRow("SELECT val FROM config WHERE id = ?", slot).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("load offset %d: %w", slot, err)
	}
	return val, true, nil
}

// StoreOffset записывает курсор источника.
func (s *SQLite) StoreOffset(slot int, val int64) error {
	if _, err := s.db.Exec("REPLACE INTO config (id, val) VALUES (?, ?)", slot, val); err != nil {
		return fmt.Errorf("store offset %d: %w", slot, err)
	}
	return nil
}

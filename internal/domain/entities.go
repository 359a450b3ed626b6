package domain

// MediaKinds перечисляет распознаваемые виды вложений сообщения.
// Ключи совпадают с полями объекта message платформы; "_ircuser"
// зарезервирован за синтетическими сообщениями из IRC.
var MediaKinds = []string{
	"audio", "document", "photo", "sticker", "video", "contact", "location",
	"new_chat_participant", "left_chat_participant", "new_chat_title",
	"new_chat_photo", "delete_chat_photo", "group_chat_created", "_ircuser",
}

// User описывает участника чата.
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// Chat описывает чат-источник сообщения.
type Chat struct {
	ID        int64
	Title     string
	FirstName string
}

// IsGroup сообщает, является ли чат групповым.
func (c Chat) IsGroup() bool { return c.Title != "" }

// IsPrivate сообщает, является ли чат личной перепиской.
func (c Chat) IsPrivate() bool { return c.FirstName != "" }

// Message — нормализованное входящее сообщение любого источника.
type Message struct {
	ID          int64
	Chat        Chat
	From        *User
	Date        int64
	Text        string
	Caption     string
	Media       map[string]any
	ForwardFrom *User
	ForwardDate int64
	ReplyTo     *Message
	NewMember   *User
	IRCNick     string
}

// PlainText возвращает текст либо подпись к вложению.
func (m *Message) PlainText() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// Update — одно нормализованное событие из любого источника.
type Update struct {
	ID      int64
	Message *Message
}

// StoredMessage — запись журнала сообщений.
type StoredMessage struct {
	ID      int64
	Src     int64
	Text    string
	Media   []byte
	Date    int64
	FwdSrc  int64
	FwdDate int64
	ReplyID int64
}

// SearchQuery описывает поиск по журналу.
type SearchQuery struct {
	SenderID int64 // 0 — любой отправитель
	Keyword  string
	Limit    int
	Offset   int
}

// SearchHit — одна строка результата поиска, по убыванию даты.
type SearchHit struct {
	ID   int64
	Src  int64
	Text string
	Date int64
}

// SenderCount — количество сообщений отправителя за окно времени.
type SenderCount struct {
	Src   int64
	Count int64
}

// Слоты курсоров в таблице config.
const (
	OffsetSlotUpdates = 0
	OffsetSlotIRC     = 1
)

// IRCMessageBase — начало диапазона синтетических идентификаторов IRC.
const IRCMessageBase = -1000000

// ImportIDShift — сдвиг идентификаторов при импорте исторической базы.
const ImportIDShift = -250000

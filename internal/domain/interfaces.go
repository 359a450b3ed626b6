package domain

import "errors"

// ErrNoMessages возвращается выборками из пустого журнала.
var ErrNoMessages = errors.New("no messages stored")

// MessageRepo управляет журналом сообщений.
type MessageRepo interface {
	// Upsert записывает сообщение, перезаписывая запись с тем же id.
	Upsert(m *Message) error
	// InsertIgnore записывает сообщение, не трогая существующую запись.
	InsertIgnore(m *Message) error
	// InsertIgnoreStored записывает готовую запись журнала как есть.
	InsertIgnoreStored(m *StoredMessage) error
	Get(id int64) (*StoredMessage, error)
	Search(q SearchQuery) ([]SearchHit, error)
	// SenderCounts возвращает счётчики отправителей с date > since,
	// по убыванию количества.
	SenderCounts(since int64) ([]SenderCount, error)
	// RandomIDWithin выбирает случайное сообщение с from <= date < to.
	RandomIDWithin(from, to int64) (int64, error)
	RandomID() (int64, error)
	RecentTexts(limit int) ([]string, error)
	// Checkpoint сбрасывает журнал на диск.
	Checkpoint() error
}

// UserRepo управляет справочником пользователей.
type UserRepo interface {
	UpsertUser(u User) error
	InsertIgnoreUser(u User) error
	GetUser(id int64) (User, bool, error)
	// IDByUsername ищет пользователя по имени без учёта регистра.
	IDByUsername(name string) (int64, bool, error)
}

// OffsetRepo хранит курсоры источников между запусками.
type OffsetRepo interface {
	LoadOffset(slot int) (int64, bool, error)
	StoreOffset(slot int, val int64) error
}

// Sender доставляет исходящие сообщения в чат платформы.
type Sender interface {
	// SendText отправляет текст; пустой текст молча отбрасывается.
	SendText(chatID int64, text string, replyTo int64)
	// Forward пересылает сообщение группы по ссылке, при неудаче
	// восстанавливает его текстом из журнала.
	Forward(msgID, chatID, replyTo int64)
	// ForwardMulti пересылает набор сообщений; при любой неудаче весь
	// набор восстанавливается единым текстовым блоком.
	ForwardMulti(msgIDs []int64, chatID, replyTo int64)
	// ForwardMultiText восстанавливает набор сообщений текстом из
	// журнала, не пытаясь пересылать по ссылке.
	ForwardMultiText(msgIDs []int64, chatID, replyTo int64)
	Typing(chatID int64)
}

// TaskRunner ставит задачу внешнему рабочему процессу; ответ придёт
// асинхронно в указанный чат.
type TaskRunner interface {
	Submit(cmd string, args []any, chatID, replyID int64) error
	Restart() error
}

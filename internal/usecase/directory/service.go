package directory

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"tg-chatdig/internal/domain"
)

const (
	userCacheSize  = 20
	msgCacheSize   = 10
	nameCacheSize  = 10
	displayNameCap = 100
)

// Service — справочник пользователей и недавних сообщений с малыми
// ограниченными кэшами перед хранилищем.
type Service struct {
	users domain.UserRepo
	msgs  domain.MessageRepo
	log   zerolog.Logger

	userCache   *lru.Cache[int64, domain.User]
	msgCache    *lru.Cache[int64, *domain.Message]
	storedCache *lru.Cache[int64, *domain.StoredMessage]
	nameCache   *lru.Cache[string, int64]
}

// NewService создаёт справочник.
func NewService(users domain.UserRepo, msgs domain.MessageRepo, logger zerolog.Logger) *Service {
	userCache, _ := lru.New[int64, domain.User](userCacheSize)
	msgCache, _ := lru.New[int64, *domain.Message](msgCacheSize)
	storedCache, _ := lru.New[int64, *domain.StoredMessage](msgCacheSize)
	nameCache, _ := lru.New[string, int64](nameCacheSize)
	return &Service{
		users:       users,
		msgs:        msgs,
		log:         logger,
		userCache:   userCache,
		msgCache:    msgCache,
		storedCache: storedCache,
		nameCache:   nameCache,
	}
}

// RememberUser записывает наблюдённого пользователя: последняя версия
// выигрывает и в хранилище, и в кэше.
func (s *Service) RememberUser(u domain.User) {
	if err := s.users.UpsertUser(u); err != nil {
		s.log.Error().Err(err).Int64("user", u.ID).Msg("не удалось сохранить пользователя")
	}
	s.userCache.Add(u.ID, u)
}

// User возвращает пользователя по идентификатору; промах кэшируется.
func (s *Service) User(id int64) domain.User {
	if u, ok := s.userCache.Get(id); ok {
		return u
	}
	u, found, err := s.users.GetUser(id)
	if err != nil {
		s.log.Error().Err(err).Int64("user", id).Msg("не удалось прочитать пользователя")
		return domain.User{ID: id}
	}
	if !found {
		u = domain.User{ID: id}
	}
	s.userCache.Add(id, u)
	return u
}

// Name возвращает имя пользователя из справочника.
func (s *Service) Name(id int64) string {
	u := s.User(id)
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}

// DisplayName строит отображаемое имя из самого сообщения, с обрезкой.
func DisplayName(u *domain.User) string {
	if u == nil {
		return ""
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	runes := []rune(name)
	if len(runes) > displayNameCap {
		name = string(runes[:displayNameCap]) + "…"
	}
	return name
}

// UIDByName ищет идентификатор по имени пользователя, без учёта
// регистра, с мемоизацией.
func (s *Service) UIDByName(username string) (int64, bool) {
	key := strings.ToLower(username)
	if id, ok := s.nameCache.Get(key); ok {
		return id, id != 0
	}
	id, found, err := s.users.IDByUsername(username)
	if err != nil {
		s.log.Error().Err(err).Str("username", username).Msg("не удалось найти пользователя")
		return 0, false
	}
	if !found {
		id = 0
	}
	s.nameCache.Add(key, id)
	return id, found
}

// CacheMessage запоминает свежее входящее сообщение для разрешения
// контекста ответов без похода в хранилище.
func (s *Service) CacheMessage(m *domain.Message) {
	if m != nil {
		s.msgCache.Add(m.ID, m)
	}
}

// CachedMessage возвращает недавнее сообщение из кэша.
func (s *Service) CachedMessage(id int64) (*domain.Message, bool) {
	return s.msgCache.Get(id)
}

// StoredMessage возвращает запись журнала с мемоизацией.
func (s *Service) StoredMessage(id int64) (*domain.StoredMessage, error) {
	if m, ok := s.storedCache.Get(id); ok {
		return m, nil
	}
	m, err := s.msgs.Get(id)
	if err != nil {
		return nil, err
	}
	if m != nil {
		s.storedCache.Add(id, m)
	}
	return m, nil
}

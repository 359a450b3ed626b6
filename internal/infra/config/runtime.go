package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// RuntimeValues — изменяемые настройки процесса, живущие в JSON-файле.
type RuntimeValues struct {
	Token   string `json:"token"`
	BotName string `json:"botname"`
	BotID   int64  `json:"botid"`
	// GroupID — положительный идентификатор наблюдаемой группы;
	// идентификатор чата равен -GroupID.
	GroupID  int64 `json:"groupid"`
	Timezone int   `json:"timezone"`
	T2I      bool  `json:"t2i"`

	IRCServer  string `json:"ircserver,omitempty"`
	IRCPort    int    `json:"ircport,omitempty"`
	IRCSSL     bool   `json:"ircssl,omitempty"`
	IRCNick    string `json:"ircnick,omitempty"`
	IRCChannel string `json:"ircchannel,omitempty"`
	IRCBanRe   string `json:"ircbanre,omitempty"`
	IRCBotID   int64  `json:"ircbotid,omitempty"`
	IRCBotName string `json:"ircbotname,omitempty"`
}

// Runtime хранит RuntimeValues за мьютексом; мутация только через
// сеттеры, запись на диск — атомарной заменой файла.
type Runtime struct {
	mu   sync.RWMutex
	path string
	v    RuntimeValues
}

// NewRuntime оборачивает готовые значения без файла настроек.
func NewRuntime(v RuntimeValues) *Runtime { return &Runtime{v: v} }

// LoadRuntime читает настройки из JSON-файла.
func LoadRuntime(path string) (*Runtime, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read runtime config: %w", err)
	}
	var v RuntimeValues
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("parse runtime config: %w", err)
	}
	return &Runtime{path: path, v: v}, nil
}

// Values возвращает снимок настроек.
func (r *Runtime) Values() RuntimeValues {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.v
}

// GroupChatID возвращает идентификатор чата наблюдаемой группы.
func (r *Runtime) GroupChatID() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return -r.v.GroupID
}

// T2I сообщает, включена ли пересылка платформа→IRC.
func (r *Runtime) T2I() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.v.T2I
}

// SetT2I переключает пересылку платформа→IRC и возвращает новое значение.
func (r *Runtime) SetT2I(on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.v.T2I = on
	return r.v.T2I
}

// Save переписывает JSON-файл атомарно (временный файл + rename).
func (r *Runtime) Save() error {
	r.mu.RLock()
	raw, err := json.MarshalIndent(r.v, "", "    ")
	path := r.path
	r.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal runtime config: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".config-*.json")
	if err != nil {
		return fmt.Errorf("create temp config: %w", err)
	}
	if _, err := tmp.Write(append(raw, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp config: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

package irc

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	ircproto "gopkg.in/irc.v4"

	"tg-chatdig/internal/infra/metrics"
)

// Config описывает подключение к IRC-серверу.
type Config struct {
	Server  string
	Port    int
	SSL     bool
	Nick    string
	Channel string
}

const readTimeout = 300 * time.Millisecond

// Client держит единственное соединение с IRC. Потеря соединения
// обнаруживается лениво: перед каждым чтением и отправкой соединение
// восстанавливается заново (рукопожатие + повторный вход в канал).
type Client struct {
	cfg Config
	log zerolog.Logger

	mu   sync.Mutex
	sock net.Conn
	conn *ircproto.Conn
}

// NewClient создаёт клиента; соединение откроется при первом обращении.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	return &Client{cfg: cfg, log: logger}
}

// ensure восстанавливает соединение при его отсутствии. Вызывается под mu.
func (c *Client) ensure() error {
	if c.conn != nil {
		return nil
	}
	addr := net.JoinHostPort(c.cfg.Server, strconv.Itoa(c.cfg.Port))
	var sock net.Conn
	var err error
	if c.cfg.SSL {
		sock, err = tls.Dial("tcp", addr, &tls.Config{ServerName: c.cfg.Server})
	} else {
		sock, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("dial irc %s: %w", addr, err)
	}
	conn := ircproto.NewConn(sock)
	handshake := []*ircproto.Message{
		{Command: "NICK", Params: []string{c.cfg.Nick}},
		{Command: "USER", Params: []string{c.cfg.Nick, "0", "*", c.cfg.Nick}},
		{Command: "JOIN", Params: []string{c.cfg.Channel}},
	}
	for _, m := range handshake {
		if err := conn.WriteMessage(m); err != nil {
			sock.Close()
			return fmt.Errorf("irc handshake: %w", err)
		}
	}
	c.sock = sock
	c.conn = conn
	metrics.IRCReconnects.Inc()
	c.log.Info().Str("server", addr).Str("channel", c.cfg.Channel).Msg("IRC (пере)подключён")
	return nil
}

func (c *Client) drop() {
	if c.sock != nil {
		c.sock.Close()
	}
	c.sock = nil
	c.conn = nil
}

// ReadNext читает одну строку протокола, не блокируя вызвавший цикл:
// по тайм-ауту возвращается (nil, nil). PING обслуживается на месте.
func (c *Client) ReadNext() (*ircproto.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensure(); err != nil {
		return nil, err
	}
	if err := c.sock.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		c.drop()
		return nil, fmt.Errorf("set read deadline: %w", err)
	}
	m, err := c.conn.ReadMessage()
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return nil, nil
		}
		c.drop()
		return nil, fmt.Errorf("read irc: %w", err)
	}
	if m.Command == "PING" {
		pong := &ircproto.Message{Command: "PONG", Params: m.Params}
		if err := c.conn.WriteMessage(pong); err != nil {
			c.drop()
			return nil, fmt.Errorf("pong: %w", err)
		}
		return nil, nil
	}
	return m, nil
}

// Say пишет строку в канал.
func (c *Client) Say(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ensure(); err != nil {
		return err
	}
	msg := &ircproto.Message{Command: "PRIVMSG", Params: []string{c.cfg.Channel, text}}
	if err := c.conn.WriteMessage(msg); err != nil {
		c.drop()
		return fmt.Errorf("say: %w", err)
	}
	return nil
}

// Nick возвращает ник бота в IRC.
func (c *Client) Nick() string { return c.cfg.Nick }

// Channel возвращает канал бота.
func (c *Client) Channel() string { return c.cfg.Channel }

// Close закрывает соединение.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drop()
}

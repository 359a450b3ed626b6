package commands

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"time"

	"tg-chatdig/internal/domain"
)

func (s *Service) cmdGetMsg(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	fields := strings.Fields(expr)
	if len(fields) == 0 {
		return s.usageReply("m", chatID, replyID)
	}
	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return s.usageReply("m", chatID, replyID)
		}
		ids = append(ids, id)
	}
	s.sender.ForwardMulti(ids, chatID, replyID)
	return nil
}

func (s *Service) cmdContext(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	fields := strings.Fields(expr)
	if len(fields) == 0 {
		return s.usageReply("context", chatID, replyID)
	}
	mid, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return s.usageReply("context", chatID, replyID)
	}
	if mid < 1 {
		mid = 1
	}
	window := int64(2)
	if len(fields) > 1 {
		window = parseClamp(fields[1], 2, 1, 10)
	}
	s.sender.Typing(chatID)
	ids := make([]int64, 0, 2*window+1)
	for id := mid - window; id <= mid+window; id++ {
		ids = append(ids, id)
	}
	s.sender.ForwardMultiText(ids, chatID, replyID)
	return nil
}

var countSuffixRe = regexp.MustCompile(`^([0-9]+)(,[0-9]+)?$`)

func (s *Service) cmdSearch(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	fields := strings.Fields(expr)
	limit, offset := int64(5), int64(0)
	if len(fields) > 1 {
		if m := countSuffixRe.FindStringSubmatch(fields[len(fields)-1]); m != nil {
			limit = clamp(mustInt(m[1]), 1, 20)
			if m[2] != "" {
				offset = mustInt(m[2][1:])
			}
			fields = fields[:len(fields)-1]
		}
	}
	var uid int64
	keyword := strings.Join(fields, " ")
	if len(fields) > 0 && strings.HasPrefix(fields[0], "@") {
		if id, ok := s.dir.UIDByName(fields[0][1:]); ok {
			// Фильтр по отправителю; иначе @имя ищется как текст.
			uid = id
			keyword = strings.Join(fields[1:], " ")
		}
	}
	s.sender.Typing(chatID)
	hits, err := s.msgs.Search(domain.SearchQuery{
		SenderID: uid,
		Keyword:  keyword,
		Limit:    int(limit),
		Offset:   int(offset),
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	lines := make([]string, 0, len(hits))
	for _, h := range hits {
		text := limitLength(ellipsisResult(h.Text, keyword, 50), 100)
		if uid != 0 {
			lines = append(lines, fmt.Sprintf("[%d|%s] %s", h.ID, s.stamp(h.Date), text))
		} else {
			lines = append(lines, fmt.Sprintf("[%d|%s] %s: %s", h.ID, s.stamp(h.Date), s.dir.Name(h.Src), text))
		}
	}
	if len(lines) == 0 {
		s.sender.SendText(chatID, "Found nothing.", replyID)
		return nil
	}
	s.sender.SendText(chatID, strings.Join(lines, "\n"), replyID)
	return nil
}

func (s *Service) cmdUser(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	uid := int64(0)
	if msg != nil && msg.From != nil {
		uid = msg.From.ID
	}
	minutes := int64(1440)
	fields := strings.Fields(expr)
	if len(fields) > 0 {
		if strings.HasPrefix(fields[0], "@") {
			id, ok := s.dir.UIDByName(fields[0][1:])
			if !ok {
				s.sender.SendText(chatID, "User not found.", replyID)
				return nil
			}
			uid = id
			if len(fields) > 1 {
				minutes = parseClamp(fields[1], 1440, 1, maxMinutes)
			}
		} else {
			minutes = parseClamp(fields[0], 1440, 1, maxMinutes)
		}
	}
	s.sender.Typing(chatID)
	user := s.dir.User(uid)
	header := ""
	if user.Username != "" {
		header = "@" + user.Username + ", "
	}
	header += fmt.Sprintf("%s, ID: %d", s.dir.Name(uid), uid)

	counts, err := s.msgs.SenderCounts(time.Now().Unix() - minutes*60)
	if err != nil {
		return fmt.Errorf("sender counts: %w", err)
	}
	var total, count, rank int64
	for i, c := range counts {
		total += c.Count
		if c.Src == uid {
			count = c.Count
			rank = int64(i) + 1
		}
	}
	ts := timestring(minutes)
	if count > 0 {
		header += fmt.Sprintf("\n在最近%s内发了 %d 条消息，占 %.2f%%，位列第 %d。",
			ts, count, float64(count)/float64(total)*100, rank)
	} else {
		header += fmt.Sprintf("\n在最近%s内没发消息。", ts)
	}
	s.sender.SendText(chatID, header, replyID)
	return nil
}

func (s *Service) cmdStat(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	minutes := parseClamp(expr, 1440, 1, maxMinutes)
	s.sender.Typing(chatID)
	counts, err := s.msgs.SenderCounts(time.Now().Unix() - minutes*60)
	if err != nil {
		return fmt.Errorf("sender counts: %w", err)
	}
	ts := timestring(minutes)
	if len(counts) == 0 {
		s.sender.SendText(chatID, fmt.Sprintf("在最近%s内无消息。", ts), replyID)
		return nil
	}
	var total int64
	for _, c := range counts {
		total += c.Count
	}
	lines := []string{fmt.Sprintf("在最近%s内有 %d 条消息，一分钟 %.2f 条。",
		ts, total, float64(total)/float64(minutes))}
	top := counts
	if len(top) > 5 {
		top = top[:5]
	}
	var topSum int64
	for _, c := range top {
		topSum += c.Count
		lines = append(lines, fmt.Sprintf("%s: %d 条，%.2f%%",
			s.dir.Name(c.Src), c.Count, float64(c.Count)/float64(total)*100))
	}
	lines = append(lines, fmt.Sprintf("其他用户 %d 条，人均 %.2f 条",
		total-topSum, float64(total)/float64(len(counts))))
	s.sender.SendText(chatID, strings.Join(lines, "\n"), replyID)
	return nil
}

func (s *Service) cmdQuote(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	s.sender.Typing(chatID)
	sec := daystart(time.Now().Unix(), s.rt.Values().Timezone)
	mid, err := s.msgs.RandomIDWithin(sec, sec+86400)
	if errors.Is(err, domain.ErrNoMessages) {
		mid, err = s.msgs.RandomID()
	}
	if errors.Is(err, domain.ErrNoMessages) {
		s.sender.SendText(chatID, "Found nothing.", replyID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("pick quote: %w", err)
	}
	s.sender.Forward(mid, chatID, replyID)
	return nil
}

func (s *Service) cmdDigest(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	s.sender.SendText(chatID, "Not implemented.", replyID)
	return nil
}

func (s *Service) cmdEcho(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	switch {
	case strings.Contains(strings.ToLower(expr), "ping"):
		s.sender.SendText(chatID, "pong", replyID)
	case expr != "":
		s.sender.SendText(chatID, expr, replyID)
	default:
		s.sender.SendText(chatID, "ping", replyID)
	}
	return nil
}

func (s *Service) cmdT2I(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	if chatID != s.rt.GroupChatID() {
		return nil
	}
	if s.rt.SetT2I(!s.rt.T2I()) {
		s.sender.SendText(chatID, "Telegram to IRC forwarding enabled.", replyID)
	} else {
		s.sender.SendText(chatID, "Telegram to IRC forwarding disabled.", replyID)
	}
	return nil
}

func (s *Service) cmdHello(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	now := time.Now().Unix()
	hour := (now - daystart(now, s.rt.Values().Timezone)) / 3600
	var greeting string
	switch {
	case hour >= 6 && hour < 11:
		greeting = "早上好"
	case hour >= 11 && hour < 13:
		greeting = "吃饭了没？"
	case hour >= 13 && hour < 18:
		greeting = "该干嘛干嘛！"
	case hour >= 18 && hour < 23:
		greeting = "晚上好！"
	default:
		greeting = "还不快点睡觉！"
	}
	s.sender.SendText(chatID, greeting, replyID)
	return nil
}

func (s *Service) cmd233(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	num := parseClamp(expr, 1, 1, 100)
	w := int64(math.Ceil(math.Sqrt(float64(num))))
	var b strings.Builder
	var light, dark int64
	for i := int64(0); i < num; i++ {
		if i > 0 && i%w == 0 {
			b.WriteByte('\n')
		}
		if rand.Intn(2) == 0 {
			b.WriteString("🌝")
			light++
		} else {
			b.WriteString("🌚")
			dark++
		}
	}
	if num > 9 {
		fmt.Fprintf(&b, "\n(🌝%d/🌚%d)", light, dark)
	}
	s.sender.SendText(chatID, b.String(), replyID)
	return nil
}

func (s *Service) cmdStart(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	if chatID != s.rt.GroupChatID() {
		s.sender.SendText(chatID, "This is ChatDig. It can dig through the long and boring chat log of the group.\nSend me /help for help.", replyID)
	}
	return nil
}

func (s *Service) cmdHelp(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	switch {
	case chatID == s.rt.GroupChatID():
		s.sender.SendText(chatID, "Full help disabled in this group.", replyID)
	case chatID > 0:
		s.sender.SendText(chatID, strings.Join(uniqUsages(s.registry, nil), "\n"), replyID)
	default:
		s.sender.SendText(chatID, strings.Join(uniqUsages(s.registry, s.public), "\n"), replyID)
	}
	return nil
}

func (s *Service) cmdServerCmd(ctx context.Context, expr string, chatID, replyID int64, msg *domain.Message) error {
	if chatID < 0 {
		return nil
	}
	switch strings.TrimSpace(expr) {
	case "killserver":
		if err := s.runner.Restart(); err != nil {
			return fmt.Errorf("restart worker: %w", err)
		}
		s.sender.SendText(chatID, "Server killed.", replyID)
	case "commit":
		if err := s.msgs.Checkpoint(); err != nil {
			return fmt.Errorf("checkpoint: %w", err)
		}
		s.sender.SendText(chatID, "DB committed.", replyID)
	default:
		s.sender.SendText(chatID, "ping", replyID)
	}
	return nil
}

func mustInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

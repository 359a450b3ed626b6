package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// maxMinutes ограничивает окно статистики примерно 80 000 днями.
const maxMinutes = 3359733

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// parseClamp разбирает число; мусор на входе даёт значение по умолчанию.
func parseClamp(s string, def, lo, hi int64) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return def
	}
	return clamp(v, lo, hi)
}

// daystart возвращает начало текущих локальных суток в секундах UTC.
func daystart(now int64, tzHours int) int64 {
	shifted := now + int64(tzHours)*3600
	day := shifted / 86400
	if shifted < 0 && shifted%86400 != 0 {
		day--
	}
	return day*86400 - int64(tzHours)*3600
}

func (s *Service) stamp(date int64) string {
	tz := time.FixedZone("local", s.rt.Values().Timezone*3600)
	return time.Unix(date, 0).In(tz).Format("2006-01-02 15:04:05")
}

// ellipsisResult вырезает из текста окно вокруг первого совпадения,
// по radius рун с каждой стороны, помечая срезы многоточиями.
func ellipsisResult(text, keyword string, radius int) string {
	if keyword == "" {
		return text
	}
	idx := strings.Index(strings.ToLower(text), strings.ToLower(keyword))
	if idx < 0 {
		return text
	}
	rs := []rune(text)
	start := utf8.RuneCountInString(text[:idx])
	end := start + utf8.RuneCountInString(keyword)
	lo, hi := start-radius, end+radius
	if lo < 0 {
		lo = 0
	}
	if hi > len(rs) {
		hi = len(rs)
	}
	out := strings.TrimSpace(string(rs[lo:hi]))
	if lo > 0 {
		out = "…" + out
	}
	if hi < len(rs) {
		out += "…"
	}
	return out
}

func limitLength(s string, n int) string {
	rs := []rune(s)
	if len(rs) > n {
		return string(rs[:n]) + "…"
	}
	return s
}

// timestring переводит минуты в «N 天 N 小时 N 分钟», опуская нули.
func timestring(minutes int64) string {
	h, m := minutes/60, minutes%60
	d, h := h/24, h%24
	var b strings.Builder
	if d > 0 {
		fmt.Fprintf(&b, " %d 天", d)
	}
	if h > 0 {
		fmt.Fprintf(&b, " %d 小时", h)
	}
	if m > 0 {
		fmt.Fprintf(&b, " %d 分钟", m)
	}
	if b.Len() == 0 {
		return " 0 分钟"
	}
	return b.String()
}

// uniqUsages убирает дубликаты подсказок, сохраняя порядок таблицы.
func uniqUsages(cmds []*Command, filter map[string]bool) []string {
	seen := make(map[string]bool, len(cmds))
	var out []string
	for _, c := range cmds {
		if c.Usage == "" || seen[c.Usage] {
			continue
		}
		if filter != nil && !filter[c.Name] {
			continue
		}
		seen[c.Usage] = true
		out = append(out, c.Usage)
	}
	return out
}

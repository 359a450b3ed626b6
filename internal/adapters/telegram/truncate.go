package telegram

// Исходящий текст обрезается задолго до жёсткого лимита платформы:
// журнальные выжимки и ответы длиннее бессмысленны.
const sendLimit = 2000

// Truncate обрезает текст до лимита отправки, помечая обрез многоточием.
func Truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= sendLimit {
		return text
	}
	return string(runes[:sendLimit-1]) + "…"
}

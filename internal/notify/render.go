package notify

import (
	"fmt"
	"html"
	"strings"

	"lunaralarm/internal/anniversary"
	"lunaralarm/internal/lunar"
	"lunaralarm/internal/model"
)

const birthdayPrefix = "🎂🎉 "

// Render builds the Telegram-HTML notification for a matched candidate.
func Render(c anniversary.Candidate) model.Notification {
	summary := lunar.Normalize(c.Event.Summary)

	var b strings.Builder
	if isBirthday(summary) {
		b.WriteString(birthdayPrefix)
	}
	b.WriteString("🔔 <b>[음력 기념일 알림]</b>\n")
	fmt.Fprintf(&b, "%s (%02d월 %02d일)은\n", dDay(c.Offset), int(c.Target.Month()), c.Target.Day())
	fmt.Fprintf(&b, "<b>%s</b> 입니다! 🎉\n", html.EscapeString(summary))
	fmt.Fprintf(&b, "(음력 %s)", lunar.FormatKorean(c.Lunar))

	return model.Notification{
		EventID:    c.EventID,
		Summary:    summary,
		TargetDate: c.Target,
		Offset:     c.Offset,
		Label:      c.Label,
		Lunar:      c.Lunar,
		Body:       b.String(),
	}
}

func dDay(offset int) string {
	switch offset {
	case 0:
		return "오늘"
	case 1:
		return "내일"
	default:
		return fmt.Sprintf("%d일 뒤", offset)
	}
}

func isBirthday(summary string) bool {
	return strings.Contains(summary, "생일") || strings.Contains(summary, "생신")
}

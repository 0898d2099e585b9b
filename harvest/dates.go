package harvest

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	relativeRe = regexp.MustCompile(`(?i)(\d+)\s*(день|дня|дней|day|days|недел\p{L}*|week|weeks|месяц\p{L}*|month|months|год\p{L}*|year|years)\s*(назад|ago)`)
	absoluteRe = regexp.MustCompile(`(?i)(\d{1,2})\s+(\p{L}+)\.?\s*(\d{4})?`)
)

var monthNames = map[string]time.Month{
	// Russian genitive forms, as rendered in review dates.
	"января": time.January, "февраля": time.February, "марта": time.March,
	"апреля": time.April, "мая": time.May, "июня": time.June,
	"июля": time.July, "августа": time.August, "сентября": time.September,
	"октября": time.October, "ноября": time.November, "декабря": time.December,
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006",
	"02/01/2006",
}

// ParseReviewDate resolves a review or response date string. It accepts ISO
// and common absolute formats, localized "D <month> YYYY" dates (Russian and
// English month names, year optional), and relative expressions ("N days
// ago", "today", "yesterday"), resolved against now. Returns nil when
// nothing parses.
func ParseReviewDate(raw string, now time.Time) *time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	lower := strings.ToLower(s)

	switch {
	case strings.Contains(lower, "сегодня") || strings.Contains(lower, "today"):
		t := dayStart(now)
		return &t
	case strings.Contains(lower, "вчера") || strings.Contains(lower, "yesterday"):
		t := dayStart(now).AddDate(0, 0, -1)
		return &t
	}

	if m := relativeRe.FindStringSubmatch(lower); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			t := dayStart(now)
			switch {
			case strings.HasPrefix(m[2], "недел") || strings.HasPrefix(m[2], "week"):
				t = t.AddDate(0, 0, -7*n)
			case strings.HasPrefix(m[2], "месяц") || strings.HasPrefix(m[2], "month"):
				t = t.AddDate(0, -n, 0)
			case strings.HasPrefix(m[2], "год") || strings.HasPrefix(m[2], "year"):
				t = t.AddDate(-n, 0, 0)
			default:
				t = t.AddDate(0, 0, -n)
			}
			return &t
		}
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}

	if m := absoluteRe.FindStringSubmatch(lower); m != nil {
		day, err := strconv.Atoi(m[1])
		if err == nil && day >= 1 && day <= 31 {
			if month, ok := monthNames[m[2]]; ok {
				year := now.Year()
				if m[3] != "" {
					if y, err := strconv.Atoi(m[3]); err == nil {
						year = y
					}
				}
				t := time.Date(year, month, day, 0, 0, 0, 0, now.Location())
				// A yearless date in the future belongs to last year.
				if m[3] == "" && t.After(now) {
					t = t.AddDate(-1, 0, 0)
				}
				return &t
			}
		}
	}

	return nil
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

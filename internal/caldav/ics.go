package caldav

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	icsTimeLayout = "20060102T150405Z"
	productID     = "-//SG Jobs//Backend//EN"
	maxLineOctets = 75
)

// Event is the content of one VEVENT.
type Event struct {
	UID         string
	Start       time.Time
	End         time.Time
	Summary     string
	Description string
	Location    string
	URL         string
}

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\r\n", `\n`,
	"\n", `\n`,
	",", `\,`,
	";", `\;`,
)

// EscapeText escapes a TEXT property value.
func EscapeText(value string) string {
	return textEscaper.Replace(value)
}

// BuildICS renders a VCALENDAR holding ev. DTSTAMP is set to the start so
// that identical job state always renders identical documents.
func BuildICS(ev Event) string {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:" + productID,
		"CALSCALE:GREGORIAN",
		"BEGIN:VEVENT",
		"UID:" + ev.UID,
		"DTSTAMP:" + formatTime(ev.Start),
		"DTSTART:" + formatTime(ev.Start),
		"DTEND:" + formatTime(ev.End),
		"SUMMARY:" + EscapeText(ev.Summary),
		"DESCRIPTION:" + EscapeText(ev.Description),
		"LOCATION:" + EscapeText(ev.Location),
	}
	if ev.URL != "" {
		lines = append(lines, "URL:"+ev.URL)
	}
	lines = append(lines, "END:VEVENT", "END:VCALENDAR")

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(foldLine(line))
		b.WriteString("\r\n")
	}
	return b.String()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(icsTimeLayout)
}

// foldLine splits a content line into chunks of at most 75 octets, never
// inside a UTF-8 sequence. Continuation lines start with a single space.
func foldLine(line string) string {
	if len(line) <= maxLineOctets {
		return line
	}

	var b strings.Builder
	limit := maxLineOctets
	for len(line) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		limit = maxLineOctets - 1
	}
	b.WriteString(line)
	return b.String()
}

package service

import (
	"fmt"
	"time"
	"unicode/utf8"
)

const (
	timeLayout      = "15:04"
	dateLayout      = "02/01/2006"
	shortDateLayout = "02/01"

	previewMaxChars = 50
	previewEllipsis = "..."
)

// TimeFormatter formatea horas, fechas y tiempos relativos en una zona fija.
type TimeFormatter struct {
	loc *time.Location
	now func() time.Time
}

func NewTimeFormatter(loc *time.Location) TimeFormatter {
	return NewTimeFormatterWithClock(loc, time.Now)
}

func NewTimeFormatterWithClock(loc *time.Location, now func() time.Time) TimeFormatter {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return TimeFormatter{loc: loc, now: now}
}

// Time devuelve HH:mm.
func (f TimeFormatter) Time(t time.Time) string {
	return t.In(f.loc).Format(timeLayout)
}

// Date devuelve dd/MM/yyyy.
func (f TimeFormatter) Date(t time.Time) string {
	return t.In(f.loc).Format(dateLayout)
}

// Ago devuelve la etiqueta relativa respecto del reloj del formatter.
func (f TimeFormatter) Ago(t time.Time) string {
	return f.ago(f.now(), t)
}

// Se evalúa del bucket más fino al más grueso.
func (f TimeFormatter) ago(now, t time.Time) string {
	elapsed := now.Sub(t)
	switch {
	case elapsed < time.Minute:
		return "just now"
	case elapsed < time.Hour:
		return fmt.Sprintf("%d minutes", int(elapsed/time.Minute))
	case elapsed < 24*time.Hour:
		return fmt.Sprintf("%d hours", int(elapsed/time.Hour))
	case elapsed < 7*24*time.Hour:
		return fmt.Sprintf("%d days", int(elapsed/(24*time.Hour)))
	default:
		return t.In(f.loc).Format(shortDateLayout)
	}
}

// Preview recorta a 50 caracteres y agrega "..." si hizo falta.
func Preview(content string) string {
	if utf8.RuneCountInString(content) <= previewMaxChars {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewMaxChars]) + previewEllipsis
}

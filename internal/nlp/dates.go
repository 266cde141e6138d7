// Package nlp converts free-form natural-language date and time phrases
// into normalized calendar dates and clock times.
//
// This file implements the date grammar. All date arithmetic is anchored in
// a single fixed timezone shared by parsing, formatting, and weekday
// derivation, so a date never shifts by a day between steps.
package nlp

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Constants for date parsing configuration
const (
	// DefaultTimezone anchors all civil-date interpretation.
	DefaultTimezone = "America/Mexico_City"
	// ISODateLayout is the storage form for civil dates.
	ISODateLayout = "2006-01-02"
	// DisplayDateLayout is the human-facing rendering used in replies.
	DisplayDateLayout = "2 January 2006"
	// DateUnavailable is returned by FormatDate for invalid input so callers
	// can always render a reply.
	DateUnavailable = "date unavailable"
)

// explicitDateLayouts are tried before the natural-language grammar so
// unambiguous literal dates never depend on it.
var explicitDateLayouts = []string{
	ISODateLayout,
	"2006/01/02",
	"January 2, 2006",
	"January 2 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
}

// Opts holds configuration options for the temporal parser.
type Opts struct {
	Timezone string
}

// Option defines a configuration option for the temporal parser.
type Option func(*Opts)

// WithTimezone sets the IANA timezone name anchoring civil-date interpretation.
func WithTimezone(tz string) Option {
	return func(o *Opts) { o.Timezone = tz }
}

// Parser interprets natural-language dates in a fixed timezone.
type Parser struct {
	loc *time.Location
	w   *when.Parser
}

// NewParser creates a Parser, applying any provided options for customization.
func NewParser(opts ...Option) (*Parser, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Timezone == "" {
		cfg.Timezone = DefaultTimezone
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		slog.Error("Parser failed to load timezone", "error", err, "timezone", cfg.Timezone)
		return nil, fmt.Errorf("failed to load timezone %s: %w", cfg.Timezone, err)
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	slog.Debug("Temporal parser created", "timezone", cfg.Timezone)
	return &Parser{loc: loc, w: w}, nil
}

// Location returns the fixed timezone the parser is anchored in.
func (p *Parser) Location() *time.Location {
	return p.loc
}

// Today returns the current civil date in the parser's timezone.
func (p *Parser) Today() time.Time {
	return p.civil(time.Now().In(p.loc))
}

// ParseDate interprets free-form text as a calendar date relative to now.
// Spelled-out numbers are normalized first, then explicit layouts are tried,
// then the natural-language grammar ("next monday", "tomorrow", "april 10").
// The boolean is false when the text is ambiguous or unparseable.
func (p *Parser) ParseDate(text string, now time.Time) (time.Time, bool) {
	normalized := strings.TrimSpace(NormalizeDateWords(text))
	if normalized == "" {
		return time.Time{}, false
	}

	for _, layout := range explicitDateLayouts {
		if t, err := time.ParseInLocation(layout, normalized, p.loc); err == nil {
			slog.Debug("ParseDate matched explicit layout", "text", text, "layout", layout)
			return p.civil(t), true
		}
	}

	result, err := p.w.Parse(normalized, now.In(p.loc))
	if err != nil || result == nil {
		slog.Debug("ParseDate failed", "text", text, "error", err)
		return time.Time{}, false
	}

	slog.Debug("ParseDate matched natural-language grammar", "text", text, "resolved", result.Time.Format(ISODateLayout))
	return p.civil(result.Time.In(p.loc)), true
}

// FormatDate renders an ISO civil date for display. Invalid input yields the
// DateUnavailable sentinel instead of an error so replies can always render.
func (p *Parser) FormatDate(isoDate string) string {
	t, err := time.ParseInLocation(ISODateLayout, isoDate, p.loc)
	if err != nil {
		slog.Error("FormatDate received invalid date", "date", isoDate, "error", err)
		return DateUnavailable
	}
	return t.Format(DisplayDateLayout)
}

// WeekdayOf derives the lowercase weekday name of an ISO civil date. It is a
// pure function and uses the same timezone as ParseDate, so the weekday can
// never diverge from the parsed date.
func (p *Parser) WeekdayOf(isoDate string) (string, error) {
	t, err := time.ParseInLocation(ISODateLayout, isoDate, p.loc)
	if err != nil {
		return "", fmt.Errorf("invalid civil date %q: %w", isoDate, err)
	}
	return strings.ToLower(t.Weekday().String()), nil
}

// ISODate renders a civil date in storage form.
func ISODate(t time.Time) string {
	return t.Format(ISODateLayout)
}

// civil truncates a timestamp to its civil date in the parser's timezone.
func (p *Parser) civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, p.loc)
}

package quartz

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// MaxCronExpressionLength is the maximum accepted length of an expression.
const MaxCronExpressionLength = 1024

type cronField int

const (
	fieldSecond cronField = iota
	fieldMinute
	fieldHour
	fieldDayOfMonth
	fieldMonth
	fieldDayOfWeek
	fieldYear
)

// fieldBounds describes the range of acceptable values for a field, the
// largest allowed increment and the names accepted in place of numbers.
type fieldBounds struct {
	name     string
	min, max int
	maxInc   int
	names    map[string]int
}

var cronBounds = [...]fieldBounds{
	fieldSecond:     {"seconds", 0, 59, 59, nil},
	fieldMinute:     {"minutes", 0, 59, 59, nil},
	fieldHour:       {"hours", 0, 23, 23, nil},
	fieldDayOfMonth: {"day-of-month", 1, 31, 31, nil},
	fieldMonth: {"month", 1, 12, 12, map[string]int{
		"JAN": 1,
		"FEB": 2,
		"MAR": 3,
		"APR": 4,
		"MAY": 5,
		"JUN": 6,
		"JUL": 7,
		"AUG": 8,
		"SEP": 9,
		"OCT": 10,
		"NOV": 11,
		"DEC": 12,
	}},
	fieldDayOfWeek: {"day-of-week", 1, 7, 7, map[string]int{
		"SUN": 1,
		"MON": 2,
		"TUE": 3,
		"WED": 4,
		"THU": 5,
		"FRI": 6,
		"SAT": 7,
	}},
	fieldYear: {"year", MinCronYear, MaxCronYear, MaxCronYear - MinCronYear, nil},
}

// wrapModulus is the value added to the end of a range that wraps around,
// e.g. hours 22-2 or FRI-MON.
func (f cronField) wrapModulus() int {
	b := cronBounds[f]
	if b.min == 0 {
		return b.max + 1
	}
	return b.max
}

// ParseCronExpression parses expr in the local time zone unless the
// expression carries a TZ= or CRON_TZ= prefix.
func ParseCronExpression(expr string) (*CronExpression, error) {
	return ParseCronExpressionInLocation(expr, time.Local)
}

// MustParseCronExpression is like ParseCronExpression but panics on error.
func MustParseCronExpression(expr string) *CronExpression {
	e, err := ParseCronExpression(expr)
	if err != nil {
		panic(err)
	}
	return e
}

// ValidateCronExpression returns the parse error for expr, if any.
func ValidateCronExpression(expr string) error {
	_, err := ParseCronExpressionInLocation(expr, time.UTC)
	return err
}

// IsValidCronExpression reports whether expr parses.
func IsValidCronExpression(expr string) bool {
	return ValidateCronExpression(expr) == nil
}

// ParseCronExpressionInLocation parses expr and evaluates it in loc. A
// TZ= or CRON_TZ= prefix in the expression takes precedence over loc.
// Errors are *CronFormatError values.
func ParseCronExpressionInLocation(expr string, loc *time.Location) (*CronExpression, error) {
	if loc == nil {
		loc = time.Local
	}
	p := &cronParser{expr: expr}
	if strings.TrimSpace(expr) == "" {
		return nil, p.errorf(-1, 0, "empty expression")
	}
	if len(expr) > MaxCronExpressionLength {
		return nil, p.errorf(-1, MaxCronExpressionLength, "expression too long: %d > %d", len(expr), MaxCronExpressionLength)
	}

	body, offset, tz, err := p.splitTimeZone(expr)
	if err != nil {
		return nil, err
	}
	if tz != nil {
		loc = tz
	}

	fields := splitFields(body, offset)
	if len(fields) < 6 {
		return nil, p.errorf(-1, len(expr), "unexpected end of expression: expected 6 or 7 fields, found %d", len(fields))
	}
	if len(fields) > 7 {
		return nil, p.errorf(-1, fields[7].pos, "expected 6 or 7 fields, found %d", len(fields))
	}

	p.e = &CronExpression{text: expr, loc: loc}
	for i, tok := range fields {
		if err := p.parseField(cronField(i), tok); err != nil {
			return nil, err
		}
	}
	if len(fields) == 6 {
		for y := MinCronYear; y <= MaxCronYear; y++ {
			p.e.years.set(y)
		}
	}

	if p.e.domUnspecified == p.e.dowUnspecified {
		return nil, p.errorf(fieldDayOfWeek, fields[fieldDayOfWeek].pos,
			"exactly one of day-of-month and day-of-week must be '?'")
	}
	return p.e, nil
}

type cronParser struct {
	expr string
	e    *CronExpression
}

type cronToken struct {
	text string
	pos  int
}

func (p *cronParser) errorf(f cronField, pos int, format string, args ...any) error {
	err := &CronFormatError{Expression: p.expr, Position: pos, Msg: fmt.Sprintf(format, args...)}
	if f >= 0 {
		err.Field = cronBounds[f].name
	}
	return err
}

// splitTimeZone strips an optional TZ= or CRON_TZ= prefix and returns the
// remaining body with its byte offset in the expression.
func (p *cronParser) splitTimeZone(expr string) (string, int, *time.Location, error) {
	lead := len(expr) - len(strings.TrimLeftFunc(expr, unicode.IsSpace))
	s := expr[lead:]
	if !strings.HasPrefix(s, "TZ=") && !strings.HasPrefix(s, "CRON_TZ=") {
		return expr, 0, nil, nil
	}
	eq := strings.IndexByte(s, '=')
	end := strings.IndexFunc(s, unicode.IsSpace)
	if end == -1 {
		return "", 0, nil, p.errorf(-1, len(expr), "missing fields after time zone")
	}
	name := s[eq+1 : end]
	if err := validateTimeZoneName(name); err != nil {
		return "", 0, nil, p.errorf(-1, lead+eq+1, "invalid time zone %q: %v", name, err)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return "", 0, nil, p.errorf(-1, lead+eq+1, "unknown time zone %q", name)
	}
	return s[end:], lead + end, loc, nil
}

// splitFields splits s on whitespace, keeping each field's byte offset.
func splitFields(s string, offset int) []cronToken {
	var out []cronToken
	start := -1
	for i, r := range s {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = append(out, cronToken{text: strings.ToUpper(s[start:i]), pos: offset + start})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, cronToken{text: strings.ToUpper(s[start:]), pos: offset + start})
	}
	return out
}

func (p *cronParser) parseField(f cronField, tok cronToken) error {
	items := strings.Split(tok.text, ",")
	pos := tok.pos
	for _, item := range items {
		if item == "" {
			return p.errorf(f, pos, "empty list element")
		}
		if err := p.parseItem(f, item, pos, len(items) > 1); err != nil {
			return err
		}
		pos += len(item) + 1
	}
	return nil
}

// parseItem parses one list element:
//
//	"*" [ "/" inc ] | "?" | value [ "-" value ] [ "/" inc ] | value ( "L" | "W" | "#" n )
//
// plus the day-of-month forms "L", "L-n", "LW" and "L-nW".
func (p *cronParser) parseItem(f cronField, s string, pos int, inList bool) error {
	switch {
	case s == "?":
		if f != fieldDayOfMonth && f != fieldDayOfWeek {
			return p.errorf(f, pos, "'?' can only be specified for day-of-month or day-of-week")
		}
		if inList {
			return p.errorf(f, pos, "'?' cannot be combined with other values")
		}
		if f == fieldDayOfMonth {
			p.e.domUnspecified = true
		} else {
			p.e.dowUnspecified = true
		}
		return nil
	case f == fieldDayOfMonth && s[0] == 'L':
		return p.parseLastDayOfMonth(s, pos, inList)
	case f == fieldDayOfWeek && s == "L":
		if inList {
			return p.errorf(f, pos, "'L' cannot be combined with other days of the week")
		}
		return p.addRange(f, 7, 7, 1, pos)
	}

	b := cronBounds[f]
	if s[0] == '*' || s[0] == '/' {
		rest := s
		if s[0] == '*' {
			rest = s[1:]
		}
		if rest == "" {
			return p.addRange(f, b.min, b.max, 1, pos)
		}
		if rest[0] != '/' {
			return p.errorf(f, pos+len(s)-len(rest), "unexpected character %q after '*'", rest[0])
		}
		inc, err := p.readIncrement(f, rest[1:], pos+len(s)-len(rest)+1)
		if err != nil {
			return err
		}
		return p.addRange(f, b.min, b.max, inc, pos)
	}

	start, n, err := p.readValue(f, s, pos)
	if err != nil {
		return err
	}
	end := start
	rest := s[n:]
	ranged := false
	if strings.HasPrefix(rest, "-") {
		at := pos + len(s) - len(rest) + 1
		v, m, err := p.readValue(f, rest[1:], at)
		if err != nil {
			return err
		}
		end = v
		rest = rest[1+m:]
		ranged = true
	}
	at := pos + len(s) - len(rest)

	switch {
	case rest == "":
		return p.addRange(f, start, end, 1, pos)
	case rest[0] == '/':
		inc, err := p.readIncrement(f, rest[1:], at+1)
		if err != nil {
			return err
		}
		if !ranged {
			end = b.max
		}
		return p.addRange(f, start, end, inc, pos)
	case ranged:
		return p.errorf(f, at, "unexpected character %q after range", rest[0])
	case f == fieldDayOfWeek && rest == "L":
		if inList {
			return p.errorf(f, at, "'L' cannot be combined with other days of the week")
		}
		p.e.lastdayOfWeek = true
		return p.addRange(f, start, start, 1, pos)
	case f == fieldDayOfWeek && rest[0] == '#':
		if inList {
			return p.errorf(f, at, "'#' cannot be combined with other days of the week")
		}
		nth, err := strconv.Atoi(rest[1:])
		if err != nil || nth < 1 || nth > 5 {
			return p.errorf(f, at+1, "a numeric value between 1 and 5 must follow the '#' option")
		}
		p.e.nthdayOfWeek = nth
		return p.addRange(f, start, start, 1, pos)
	case f == fieldDayOfMonth && rest == "W":
		if inList {
			return p.errorf(f, at, "'W' cannot be combined with other days of the month")
		}
		p.e.nearestWeekday = true
		return p.addRange(f, start, start, 1, pos)
	default:
		return p.errorf(f, at, "unexpected character %q", rest[0])
	}
}

func (p *cronParser) parseLastDayOfMonth(s string, pos int, inList bool) error {
	if inList {
		return p.errorf(fieldDayOfMonth, pos, "'L' cannot be combined with other days of the month")
	}
	p.e.lastdayOfMonth = true
	rest := s[1:]
	if strings.HasPrefix(rest, "-") {
		digits := leadingDigits(rest[1:])
		if digits == 0 {
			return p.errorf(fieldDayOfMonth, pos+2, "a numeric offset must follow 'L-'")
		}
		off, err := strconv.Atoi(rest[1 : 1+digits])
		if err != nil || off > 30 {
			return p.errorf(fieldDayOfMonth, pos+2, "offset from last day must be <= 30")
		}
		p.e.lastdayOffset = off
		rest = rest[1+digits:]
	}
	switch rest {
	case "":
	case "W":
		p.e.nearestWeekday = true
	default:
		return p.errorf(fieldDayOfMonth, pos+len(s)-len(rest), "unexpected character %q after 'L'", rest[0])
	}
	return nil
}

// readValue reads a number or a three-letter name from the start of s and
// returns it with the number of bytes consumed.
func (p *cronParser) readValue(f cronField, s string, pos int) (int, int, error) {
	b := cronBounds[f]
	if n := leadingDigits(s); n > 0 {
		v, err := strconv.Atoi(s[:n])
		if err != nil || v < b.min || v > b.max {
			return 0, 0, p.errorf(f, pos, "value %s out of range (%d-%d)", s[:n], b.min, b.max)
		}
		return v, n, nil
	}
	if b.names != nil && len(s) >= 3 {
		if v, ok := b.names[s[:3]]; ok {
			return v, 3, nil
		}
	}
	if s == "" {
		return 0, 0, p.errorf(f, pos, "missing value")
	}
	return 0, 0, p.errorf(f, pos, "invalid value %q", s)
}

func (p *cronParser) readIncrement(f cronField, s string, pos int) (int, error) {
	n := leadingDigits(s)
	if n == 0 || n != len(s) {
		return 0, p.errorf(f, pos, "'/' must be followed by an integer")
	}
	inc, err := strconv.Atoi(s)
	if err != nil || inc == 0 {
		return 0, p.errorf(f, pos, "increment must be a positive integer")
	}
	if limit := cronBounds[f].maxInc; inc > limit {
		return 0, p.errorf(f, pos, "increment > %d: %d", limit, inc)
	}
	return inc, nil
}

// addRange sets every inc-th value from start to end. A range whose end is
// below its start wraps around the field's maximum.
func (p *cronParser) addRange(f cronField, start, end, inc, pos int) error {
	b := cronBounds[f]
	if end < start {
		if f == fieldYear {
			return p.errorf(f, pos, "start year must be less than stop year")
		}
		end += f.wrapModulus()
	}
	for i := start; i <= end; i += inc {
		v := i
		if v > b.max {
			v -= f.wrapModulus()
		}
		switch f {
		case fieldSecond:
			p.e.seconds |= 1 << uint(v)
		case fieldMinute:
			p.e.minutes |= 1 << uint(v)
		case fieldHour:
			p.e.hours |= 1 << uint(v)
		case fieldDayOfMonth:
			p.e.daysOfMonth |= 1 << uint(v)
		case fieldMonth:
			p.e.months |= 1 << uint(v)
		case fieldDayOfWeek:
			p.e.daysOfWeek |= 1 << uint(v)
		case fieldYear:
			p.e.years.set(v)
		}
	}
	return nil
}

func leadingDigits(s string) int {
	n := 0
	for n < len(s) && s[n] >= '0' && s[n] <= '9' {
		n++
	}
	return n
}

// validateTimeZoneName rejects names that cannot be IANA zone identifiers
// before they reach time.LoadLocation.
func validateTimeZoneName(tz string) error {
	const maxLen = 64
	if tz == "" {
		return fmt.Errorf("empty time zone")
	}
	if len(tz) > maxLen {
		return fmt.Errorf("time zone name too long (max %d chars)", maxLen)
	}
	for i, r := range tz {
		valid := r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' ||
			r == '/' || r == '_' || r == '-' || r == '+' || r == ':'
		if !valid {
			return fmt.Errorf("invalid character %q at position %d", r, i)
		}
	}
	return nil
}

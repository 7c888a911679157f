package quartz

import (
	"strings"
	"testing"
	"time"
)

// getTime parses an RFC3339 value, or a zero time for "".
func getTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNextFireTimeAfter(t *testing.T) {
	runs := []struct {
		after, spec string
		expected    string
	}{
		// Simple cases
		{"2024-01-01T11:59:59Z", "0 0 12 * * ?", "2024-01-01T12:00:00Z"},
		{"2024-01-01T12:00:00Z", "0 0 12 * * ?", "2024-01-02T12:00:00Z"},
		{"2024-01-01T00:00:07Z", "*/15 * * * * ?", "2024-01-01T00:00:15Z"},
		{"2024-01-01T00:00:59Z", "*/15 * * * * ?", "2024-01-01T00:01:00Z"},
		{"2024-01-01T00:00:00.5Z", "* * * * * ?", "2024-01-01T00:00:01Z"},

		// Weekdays: 2024-01-05 is a Friday
		{"2024-01-05T10:15:00Z", "0 15 10 ? * MON-FRI", "2024-01-08T10:15:00Z"},
		{"2024-01-03T13:30:00Z", "0 30 10-13 ? * WED,FRI", "2024-01-05T10:30:00Z"},
		{"2024-01-01T00:00:00Z", "0 0 0 ? * L", "2024-01-06T00:00:00Z"},

		// Wrap-around ranges
		{"2024-01-01T02:00:00Z", "0 0 22-2 * * ?", "2024-01-01T22:00:00Z"},
		{"2024-01-01T23:00:00Z", "0 0 22-2 * * ?", "2024-01-02T00:00:00Z"},
		{"2024-01-05T12:00:00Z", "0 0 12 ? * FRI-MON", "2024-01-06T12:00:00Z"},

		// Last day of month, with offset
		{"2024-02-01T00:00:00Z", "0 0 0 L * ?", "2024-02-29T00:00:00Z"},
		{"2023-02-01T00:00:00Z", "0 0 0 L * ?", "2023-02-28T00:00:00Z"},
		{"2024-02-01T00:00:00Z", "0 0 0 L-3 * ?", "2024-02-26T00:00:00Z"},

		// Nearest weekday, never leaving the month
		{"2024-06-01T00:00:00Z", "0 0 0 15W * ?", "2024-06-14T00:00:00Z"},
		{"2024-05-31T12:00:00Z", "0 0 0 1W * ?", "2024-06-03T00:00:00Z"},
		{"2024-03-01T00:00:00Z", "0 0 0 LW * ?", "2024-03-29T00:00:00Z"},

		// Last and nth weekday of the month
		{"2024-01-01T00:00:00Z", "0 0 0 ? * 6L", "2024-01-26T00:00:00Z"},
		{"2024-01-01T00:00:00Z", "0 0 0 ? * 6#3", "2024-01-19T00:00:00Z"},
		{"2024-01-01T00:00:00Z", "0 0 0 ? * 2#5", "2024-01-29T00:00:00Z"},
		{"2024-01-29T00:00:00Z", "0 0 0 ? * 2#5", "2024-04-29T00:00:00Z"},

		// Months without the day
		{"2024-04-01T00:00:00Z", "0 0 0 31 * ?", "2024-05-31T00:00:00Z"},
		{"2024-03-01T00:00:00Z", "0 0 12 29 2 ?", "2028-02-29T12:00:00Z"},

		// Year field
		{"2024-01-01T00:00:00Z", "0 0 0 1 1 ? 2030", "2030-01-01T00:00:00Z"},
		{"2030-01-01T00:00:00Z", "0 0 0 1 1 ? 2030", ""},
		{"2024-06-01T00:00:00Z", "0 0 0 1 1 ? 2024-2026/2", "2026-01-01T00:00:00Z"},

		// Unsatisfiable
		{"2024-01-01T00:00:00Z", "0 0 0 30 2 ?", ""},
	}

	for _, c := range runs {
		t.Run(c.spec+"_after_"+c.after, func(t *testing.T) {
			expr, err := ParseCronExpressionInLocation(c.spec, time.UTC)
			if err != nil {
				t.Fatal(err)
			}
			actual := expr.NextFireTimeAfter(getTime(c.after))
			expected := getTime(c.expected)
			if !actual.Equal(expected) {
				t.Errorf("%s after %s: (expected) %v != %v (actual)", c.spec, c.after, expected, actual)
			}
		})
	}
}

// Every result satisfies the expression, is strictly after its input and
// no satisfying second is skipped.
func TestNextFireTimeAfterIsMinimal(t *testing.T) {
	specs := []string{
		"*/7 */13 * * * ?",
		"0 0/20 9-17 ? * MON-FRI",
		"30 0 0 L-2 * ?",
		"0 0 12 ? * 4#2",
	}
	start := getTime("2024-01-30T08:00:00Z")
	for _, spec := range specs {
		expr := MustParseCronExpression("TZ=UTC " + spec)
		after := start
		for range 20 {
			next := expr.NextFireTimeAfter(after)
			if next.IsZero() {
				t.Fatalf("%s: no fire time after %v", spec, after)
			}
			if !next.After(after) {
				t.Fatalf("%s: %v is not after %v", spec, next, after)
			}
			if !expr.IsSatisfiedBy(next) {
				t.Fatalf("%s: %v does not satisfy the expression", spec, next)
			}
			// Only check short gaps second by second.
			if gap := next.Sub(after); gap < 2*time.Hour {
				for s := after.Add(time.Second); s.Before(next); s = s.Add(time.Second) {
					if expr.IsSatisfiedBy(s) {
						t.Fatalf("%s: skipped %v on the way from %v to %v", spec, s, after, next)
					}
				}
			}
			after = next
		}
	}
}

func TestNextFireTimeAfterDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("time zone data not available")
	}

	tests := []struct {
		name      string
		spec      string
		after     time.Time
		expected  string
		expectedN int
	}{
		// 2024-03-10 02:00 EST jumps to 03:00 EDT
		{"spring forward shifts into the gap", "0 30 2 * * ?", time.Date(2024, 3, 10, 0, 0, 0, 0, ny), "2024-03-10T03:30:00-04:00", 0},
		{"spring forward next day is normal", "0 30 2 * * ?", time.Date(2024, 3, 10, 3, 30, 0, 0, ny), "2024-03-11T02:30:00-04:00", 0},
		// 2024-11-03 02:00 EDT falls back to 01:00 EST
		{"fall back fires on the first occurrence", "0 30 1 * * ?", time.Date(2024, 11, 3, 0, 0, 0, 0, ny), "2024-11-03T01:30:00-04:00", 0},
		{"fall back does not fire twice", "0 30 1 * * ?", time.Date(2024, 11, 3, 1, 30, 0, 0, ny), "2024-11-04T01:30:00-05:00", 0},
		{"midnight across the change", "0 0 0 * * ?", time.Date(2024, 11, 2, 12, 0, 0, 0, ny), "2024-11-03T00:00:00-04:00", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expr, err := ParseCronExpressionInLocation(tt.spec, ny)
			if err != nil {
				t.Fatal(err)
			}
			actual := expr.NextFireTimeAfter(tt.after)
			if expected := getTime(tt.expected); !actual.Equal(expected) {
				t.Errorf("(expected) %v != %v (actual)", expected, actual)
			}
			if actual.Location() != ny {
				t.Errorf("result location = %v, want %v", actual.Location(), ny)
			}
		})
	}
}

func TestIsSatisfiedBy(t *testing.T) {
	tests := []struct {
		time, spec string
		expected   bool
	}{
		{"2012-07-09T15:00:00Z", "0 0/15 * * * ?", true},
		{"2012-07-09T15:45:00Z", "0 0/15 * * * ?", true},
		{"2012-07-09T15:40:00Z", "0 0/15 * * * ?", false},
		{"2012-07-09T15:05:00Z", "0 5/15 * * * ?", true},
		{"2012-07-09T15:50:00Z", "0 5/15 * * * ?", true},
		{"2012-07-15T15:00:00Z", "0 0/15 * * JUL ?", true},
		{"2012-07-15T15:00:00Z", "0 0/15 * * JUN ?", false},
		{"2012-07-15T08:30:00Z", "0 30 08 ? JUL SUN", true},
		{"2012-07-16T08:30:00Z", "0 30 08 ? JUL SUN", false},
		{"2012-07-15T08:30:00Z", "0 30 08 15 JUL ?", true},
		{"2012-07-15T08:30:01Z", "0 30 08 15 JUL ?", false},
		{"2012-07-15T08:30:00.999Z", "0 30 08 15 JUL ?", true},
	}
	for _, tt := range tests {
		t.Run(tt.spec+"_at_"+tt.time, func(t *testing.T) {
			expr, err := ParseCronExpressionInLocation(tt.spec, time.UTC)
			if err != nil {
				t.Fatal(err)
			}
			if actual := expr.IsSatisfiedBy(getTime(tt.time)); actual != tt.expected {
				t.Errorf("IsSatisfiedBy(%s) = %v, want %v", tt.time, actual, tt.expected)
			}
		})
	}
}

func TestNextInvalidTimeAfter(t *testing.T) {
	expr, err := ParseCronExpressionInLocation("* * 9-10 * * ?", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	actual := expr.NextInvalidTimeAfter(getTime("2024-01-01T09:15:00Z"))
	if expected := getTime("2024-01-01T11:00:00Z"); !actual.Equal(expected) {
		t.Errorf("(expected) %v != %v (actual)", expected, actual)
	}
	actual = expr.NextInvalidTimeAfter(getTime("2024-01-01T08:00:00Z"))
	if expected := getTime("2024-01-01T08:00:01Z"); !actual.Equal(expected) {
		t.Errorf("(expected) %v != %v (actual)", expected, actual)
	}
}

func TestCronExpressionTimeZonePrefix(t *testing.T) {
	for _, prefix := range []string{"TZ=Asia/Tokyo", "CRON_TZ=Asia/Tokyo"} {
		expr, err := ParseCronExpressionInLocation(prefix+" 0 30 4 * * ?", time.UTC)
		if err != nil {
			t.Skip("time zone data not available")
		}
		if got := expr.Location().String(); got != "Asia/Tokyo" {
			t.Fatalf("%s: location = %s", prefix, got)
		}
		// 04:30 in Tokyo is 19:30 UTC the day before
		actual := expr.NextFireTimeAfter(getTime("2024-01-01T00:00:00Z"))
		if expected := getTime("2024-01-01T19:30:00Z"); !actual.Equal(expected) {
			t.Errorf("%s: (expected) %v != %v (actual)", prefix, expected, actual)
		}
	}
}

func TestCronExpressionWithLocation(t *testing.T) {
	expr := MustParseCronExpression("TZ=UTC 0 0 12 * * ?")
	loc := time.FixedZone("UTC+2", 2*60*60)
	moved := expr.WithLocation(loc)
	if expr.Location() != time.UTC {
		t.Fatal("WithLocation modified the receiver")
	}
	actual := moved.NextFireTimeAfter(getTime("2024-01-01T00:00:00Z"))
	if expected := getTime("2024-01-01T10:00:00Z"); !actual.Equal(expected) {
		t.Errorf("(expected) %v != %v (actual)", expected, actual)
	}
}

func TestCronExpressionSummary(t *testing.T) {
	expr := MustParseCronExpression("TZ=UTC 0 0/30 8-9 ? * 6#2")
	summary := expr.Summary()
	for _, want := range []string{
		"seconds: 0\n",
		"minutes: 0,30\n",
		"hours: 8,9\n",
		"daysOfMonth: ?\n",
		"months: *\n",
		"daysOfWeek: 6\n",
		"NthDayOfWeek: 2\n",
		"years: *\n",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary lacks %q:\n%s", want, summary)
		}
	}
	if expr.String() != "TZ=UTC 0 0/30 8-9 ? * 6#2" {
		t.Errorf("String() = %q", expr.String())
	}
}

func BenchmarkNextFireTimeAfterSparse(b *testing.B) {
	expr := MustParseCronExpression("TZ=UTC 0 0 0 29 2 ?")
	after := getTime("2024-03-01T00:00:00Z")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = expr.NextFireTimeAfter(after)
	}
}

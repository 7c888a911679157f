package quartz

import (
	"time"
)

// CronCalendar excludes every second matched by a cron expression. The
// expression's location applies.
type CronCalendar struct {
	baseCalendar
	expr *CronExpression
}

// NewCronCalendar parses expr and returns a calendar excluding its matches.
func NewCronCalendar(base Calendar, expr string, loc *time.Location) (*CronCalendar, error) {
	e, err := ParseCronExpressionInLocation(expr, loc)
	if err != nil {
		return nil, err
	}
	c := &CronCalendar{baseCalendar: newBaseCalendar(base), expr: e}
	c.loc = e.Location()
	return c, nil
}

// Expression returns the excluding expression.
func (c *CronCalendar) Expression() *CronExpression { return c.expr }

func (c *CronCalendar) IsTimeIncluded(t time.Time) bool {
	return c.baseIncludes(t) && !c.expr.IsSatisfiedBy(t)
}

func (c *CronCalendar) NextIncludedTime(t time.Time) time.Time {
	return c.nextIncluded(t, func(t time.Time) time.Time {
		if c.expr.IsSatisfiedBy(t) {
			return c.expr.NextInvalidTimeAfter(t)
		}
		return t
	})
}

func (c *CronCalendar) Clone() Calendar {
	return &CronCalendar{baseCalendar: c.baseCalendar.clone(), expr: c.expr}
}

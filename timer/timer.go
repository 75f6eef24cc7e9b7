package timer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/asyncexec"
)

// Type selects how a Definition's expression is interpreted.
type Type string

const (
	TypeDate     Type = "date"
	TypeDuration Type = "duration"
	TypeCycle    Type = "cycle"
)

// Definition describes when a timer fires.
type Definition struct {
	Type       Type   `json:"type"`
	Expression string `json:"expression"`

	// EndDate stops a cycle from scheduling iterations after it.
	EndDate *time.Time `json:"end_date,omitempty"`
}

// Date returns a definition firing once at an RFC 3339 timestamp.
func Date(expr string) Definition { return Definition{Type: TypeDate, Expression: expr} }

// Duration returns a definition firing once after a delay.
func Duration(expr string) Definition { return Definition{Type: TypeDuration, Expression: expr} }

// Cycle returns a repeating definition.
func Cycle(expr string) Definition { return Definition{Type: TypeCycle, Expression: expr} }

// Validate parses the expression without computing a due date.
func (d Definition) Validate() error {
	_, err := d.DueDate(time.Now())
	return err
}

// DueDate returns the first firing time relative to now.
func (d Definition) DueDate(now time.Time) (time.Time, error) {
	switch d.Type {
	case TypeDate:
		t, err := time.Parse(time.RFC3339, d.Expression)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: date %q: %w", asyncexec.ErrInvalidTimer, d.Expression, err)
		}
		return t.UTC(), nil

	case TypeDuration:
		p, err := parsePeriod(d.Expression)
		if err != nil {
			return time.Time{}, err
		}
		return p.addTo(now).UTC(), nil

	case TypeCycle:
		c, err := parseCycle(d.Expression)
		if err != nil {
			return time.Time{}, err
		}
		return c.first(now).UTC(), nil

	default:
		return time.Time{}, fmt.Errorf("%w: unknown timer type %q", asyncexec.ErrInvalidTimer, d.Type)
	}
}

// Repeating reports whether the definition produces more than one firing.
func (d Definition) Repeating() bool {
	if d.Type != TypeCycle {
		return false
	}
	c, err := parseCycle(d.Expression)
	return err == nil && c.repetitions != 1
}

// Iterations returns the total number of firings of a cycle, or zero
// when the cycle is unbounded or the definition does not repeat.
func (d Definition) Iterations() int {
	if d.Type != TypeCycle {
		return 0
	}
	c, err := parseCycle(d.Expression)
	if err != nil || c.repetitions < 0 {
		return 0
	}
	return c.repetitions
}

// Next returns the firing after the given time for a cycle expression.
// The boolean is false when endDate is set and the next firing lies past
// it.
func Next(expr string, after time.Time, endDate *time.Time) (time.Time, bool, error) {
	c, err := parseCycle(expr)
	if err != nil {
		return time.Time{}, false, err
	}
	next := c.next(after).UTC()
	if endDate != nil && next.After(*endDate) {
		return time.Time{}, false, nil
	}
	return next, true, nil
}

// cronParser matches the 5-field cron dialect plus descriptors such as
// "@hourly" and "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// cycle is a parsed repeat expression. Exactly one of schedule or period
// is set. repetitions is -1 for unbounded.
type cycle struct {
	repetitions int
	start       *time.Time
	period      period
	schedule    cronlib.Schedule
}

func parseCycle(expr string) (cycle, error) {
	if !strings.HasPrefix(expr, "R") {
		sched, err := cronParser.Parse(expr)
		if err != nil {
			return cycle{}, fmt.Errorf("%w: cycle %q: %w", asyncexec.ErrInvalidTimer, expr, err)
		}
		return cycle{repetitions: -1, schedule: sched}, nil
	}

	parts := strings.Split(expr, "/")
	if len(parts) < 2 || len(parts) > 3 {
		return cycle{}, fmt.Errorf("%w: cycle %q", asyncexec.ErrInvalidTimer, expr)
	}

	c := cycle{repetitions: -1}
	if n := parts[0][1:]; n != "" {
		reps, err := strconv.Atoi(n)
		if err != nil || reps <= 0 {
			return cycle{}, fmt.Errorf("%w: cycle repetitions %q", asyncexec.ErrInvalidTimer, parts[0])
		}
		c.repetitions = reps
	}

	durPart := parts[1]
	if len(parts) == 3 {
		start, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return cycle{}, fmt.Errorf("%w: cycle start %q: %w", asyncexec.ErrInvalidTimer, parts[1], err)
		}
		c.start = &start
		durPart = parts[2]
	}

	p, err := parsePeriod(durPart)
	if err != nil {
		return cycle{}, err
	}
	c.period = p
	return c, nil
}

// first is the initial firing: the start date if it is still ahead,
// otherwise one period from now.
func (c cycle) first(now time.Time) time.Time {
	if c.start != nil && c.start.After(now) {
		return *c.start
	}
	return c.next(now)
}

func (c cycle) next(after time.Time) time.Time {
	if c.schedule != nil {
		return c.schedule.Next(after)
	}
	return c.period.addTo(after)
}

package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a normalized schedule string.
//
// Accepted forms:
//   - Go duration: "10s", "2m30s"
//   - HH:MM interval: "00:05" (five minutes)
//   - cron expression or descriptor: "*/1 * * * *", "0 */2 * * * *", "@hourly", "@every 30s"
//
// "cron:" forces cron parsing, "every:" or "interval:" forces an interval.
type ParsedSpec struct {
	Kind  SpecKind
	Cron  string
	Every time.Duration
}

func (p ParsedSpec) String() string {
	if p.Kind == SpecInterval {
		return "@every " + p.Every.String()
	}
	return p.Cron
}

var reHHMM = regexp.MustCompile(`^(\d{1,3}):(\d{2})$`)

// cronParser accepts 5 or 6 field expressions (optional seconds) and descriptors.
var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("schedule required")
	}
	low := strings.ToLower(s)
	for _, p := range []string{"every:", "interval:"} {
		if strings.HasPrefix(low, p) {
			d, err := parseInterval(strings.TrimSpace(s[len(p):]))
			if err != nil {
				return ParsedSpec{}, err
			}
			return ParsedSpec{Kind: SpecInterval, Every: d}, nil
		}
	}
	if strings.HasPrefix(low, "cron:") {
		s = strings.TrimSpace(s[len("cron:"):])
		if s == "" {
			return ParsedSpec{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return ParsedSpec{Kind: SpecCron, Cron: s}, nil
	}
	if strings.HasPrefix(s, "@") || strings.ContainsAny(s, " \t") {
		return ParsedSpec{Kind: SpecCron, Cron: s}, nil
	}
	d, err := parseInterval(s)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid schedule %q (use a duration like '10s', HH:MM like '00:05', or cron like '*/1 * * * *')", raw)
	}
	return ParsedSpec{Kind: SpecInterval, Every: d}, nil
}

func parseInterval(v string) (time.Duration, error) {
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return 0, fmt.Errorf("invalid minutes in %q", v)
		}
		d := time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
		if d <= 0 {
			return 0, fmt.Errorf("interval must be > 0")
		}
		return d, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", v, err)
	}
	if d < time.Second {
		return 0, fmt.Errorf("interval %s is below the 1s minimum", d)
	}
	return d, nil
}

// Compile turns a schedule string into a cron.Schedule.
// Intervals are whole seconds (cron.Every rounds down).
func Compile(raw string) (cron.Schedule, ParsedSpec, error) {
	ps, err := ParseSchedule(raw)
	if err != nil {
		return nil, ParsedSpec{}, err
	}
	if ps.Kind == SpecInterval {
		return cron.Every(ps.Every), ps, nil
	}
	sched, err := cronParser.Parse(ps.Cron)
	if err != nil {
		return nil, ParsedSpec{}, fmt.Errorf("invalid cron %q: %w", ps.Cron, err)
	}
	return sched, ps, nil
}

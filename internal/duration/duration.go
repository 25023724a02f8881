// Package duration extends time.ParseDuration with day and week suffixes
// so config values like "7d" or "2w" work next to "15m" and "1h30m".
package duration

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const (
	Day  = 24 * time.Hour
	Week = 7 * Day
)

var suffixes = []struct {
	suffix string
	unit   time.Duration
}{
	{"w", Week},
	{"d", Day},
}

// ParseDuration accepts everything time.ParseDuration does plus a plain
// number of seconds and the d/w suffixes, e.g. "2d" or "1.5w".
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	for _, sf := range suffixes {
		if num, ok := strings.CutSuffix(s, sf.suffix); ok {
			v, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, err
			}
			return time.Duration(v * float64(sf.unit)), nil
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(v * float64(time.Second)), nil
}

// Format is the inverse of ParseDuration for whole days.
func Format(d time.Duration) string {
	if d >= Day && d%Day == 0 {
		return strconv.FormatInt(int64(d/Day), 10) + "d"
	}
	return d.String()
}

type value time.Duration

func (d *value) String() string { return Format(time.Duration(*d)) }

func (d *value) Set(s string) error {
	v, err := ParseDuration(s)
	if err != nil {
		return err
	}
	*d = value(v)
	return nil
}

func (d *value) Type() string { return "duration" }

// DurationVar registers a duration flag that understands the d/w suffixes.
func DurationVar(f *pflag.FlagSet, p *time.Duration, name string, def time.Duration, usage string) {
	*p = def
	f.Var((*value)(p), name, usage)
}

package forecast

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Event is one recurring calendar date that concentrates crowds and
// raises admission risk.
type Event struct {
	Name   string
	Month  time.Month
	Day    int
	Weight float64
}

// Calendar holds the configured festival dates. The zero value is an
// empty calendar with no active events.
type Calendar struct {
	events []Event
}

// ParseCalendar reads a comma-separated list of MM-DD[:weight[:name]]
// entries, e.g. "10-20:1.5:Diwali,12-25". Weight defaults to 1.
func ParseCalendar(raw string) (*Calendar, error) {
	c := &Calendar{}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		ev, err := parseEvent(entry)
		if err != nil {
			return nil, err
		}
		c.events = append(c.events, ev)
	}
	return c, nil
}

func parseEvent(entry string) (Event, error) {
	parts := strings.SplitN(entry, ":", 3)

	var month, day int
	if _, err := fmt.Sscanf(parts[0], "%d-%d", &month, &day); err != nil {
		return Event{}, fmt.Errorf("invalid festival date %q: want MM-DD", entry)
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return Event{}, fmt.Errorf("invalid festival date %q: month or day out of range", entry)
	}

	ev := Event{
		Name:   fmt.Sprintf("Festival %02d-%02d", month, day),
		Month:  time.Month(month),
		Day:    day,
		Weight: 1,
	}
	if len(parts) > 1 {
		w, err := strconv.ParseFloat(parts[1], 64)
		if err != nil || w <= 0 {
			return Event{}, fmt.Errorf("invalid festival weight in %q", entry)
		}
		ev.Weight = w
	}
	if len(parts) > 2 && strings.TrimSpace(parts[2]) != "" {
		ev.Name = strings.TrimSpace(parts[2])
	}
	return ev, nil
}

// Active returns the event falling on t's calendar date, if any. When
// several events share the date the heaviest wins.
func (c *Calendar) Active(t time.Time) (Event, bool) {
	var best Event
	found := false
	for _, ev := range c.events {
		if ev.Month == t.Month() && ev.Day == t.Day() {
			if !found || ev.Weight > best.Weight {
				best = ev
				found = true
			}
		}
	}
	return best, found
}

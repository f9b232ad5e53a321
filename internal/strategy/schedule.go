package strategy

import (
	"fmt"
	"strings"

	"battery-sizer/internal/model"
)

// ScheduleParams restricts self-consumption to daily windows:
// - PV surplus is stored only during [ChargeStart, ChargeEnd)
// - deficits are covered only during [DischargeStart, DischargeEnd)
//
// An empty pair means all day. Times are "HH:MM" in the replay's clock.
type ScheduleParams struct {
	ChargeStart    string
	ChargeEnd      string
	DischargeStart string
	DischargeEnd   string
}

type ScheduleStrategy struct {
	Params ScheduleParams

	csMins, ceMins int
	dsMins, deMins int
	chargeAllDay   bool
	dischargeAll   bool
}

func NewScheduleStrategy(p ScheduleParams) (*ScheduleStrategy, error) {
	s := &ScheduleStrategy{Params: p}
	var err error
	if s.chargeAllDay, s.csMins, s.ceMins, err = parseWindow(p.ChargeStart, p.ChargeEnd); err != nil {
		return nil, fmt.Errorf("charge window: %w", err)
	}
	if s.dischargeAll, s.dsMins, s.deMins, err = parseWindow(p.DischargeStart, p.DischargeEnd); err != nil {
		return nil, fmt.Errorf("discharge window: %w", err)
	}
	return s, nil
}

func (s *ScheduleStrategy) Name() string { return "schedule" }

func (s *ScheduleStrategy) Decide(ctx Context) model.Dispatch {
	mins := ctx.Time.Hour()*60 + ctx.Time.Minute()
	surplus := ctx.Surplus()

	if surplus > 0 && (s.chargeAllDay || inWindow(mins, s.csMins, s.ceMins)) {
		return model.Dispatch{PowerKW: -surplus}
	}
	if surplus < 0 && (s.dischargeAll || inWindow(mins, s.dsMins, s.deMins)) {
		return model.Dispatch{PowerKW: -surplus}
	}
	return model.Dispatch{}
}

func parseWindow(start, end string) (allDay bool, s, e int, err error) {
	if strings.TrimSpace(start) == "" && strings.TrimSpace(end) == "" {
		return true, 0, 0, nil
	}
	if s, err = parseHHMM(start); err != nil {
		return false, 0, 0, err
	}
	if e, err = parseHHMM(end); err != nil {
		return false, 0, 0, err
	}
	return false, s, e, nil
}

func parseHHMM(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	var h, m int
	if _, err := fmt.Sscanf(parts[0], "%d", &h); err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &m); err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	return h*60 + m, nil
}

// inWindow checks whether tMins is in [start, end) on a 24h clock.
// If start == end, the window is empty (always false).
// If start > end, it wraps across midnight.
func inWindow(tMins, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return tMins >= start && tMins < end
	}
	return tMins >= start || tMins < end
}

package workflow

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spec-kit/change-service/internal/domain"
)

// BusinessHours describes the tenant's working week used by the businessHours trigger.
type BusinessHours struct {
	Start    time.Duration
	End      time.Duration
	Weekdays []time.Weekday
	Location *time.Location
}

// DefaultBusinessHours is 09:00-17:00 Monday to Friday, UTC.
func DefaultBusinessHours() BusinessHours {
	return BusinessHours{
		Start:    9 * time.Hour,
		End:      17 * time.Hour,
		Weekdays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		Location: time.UTC,
	}
}

// ParseBusinessHours builds BusinessHours from "HH:MM" bounds, weekday names
// ("mon", "Tuesday") and an IANA timezone.
func ParseBusinessHours(start, end string, weekdays []string, timezone string) (BusinessHours, error) {
	hours := DefaultBusinessHours()
	var err error
	if start != "" {
		if hours.Start, err = parseClock(start); err != nil {
			return BusinessHours{}, err
		}
	}
	if end != "" {
		if hours.End, err = parseClock(end); err != nil {
			return BusinessHours{}, err
		}
	}
	if hours.End <= hours.Start {
		return BusinessHours{}, fmt.Errorf("business hours end %s must be after start %s", end, start)
	}
	if len(weekdays) > 0 {
		hours.Weekdays = hours.Weekdays[:0:0]
		for _, name := range weekdays {
			day, err := parseWeekday(name)
			if err != nil {
				return BusinessHours{}, err
			}
			hours.Weekdays = append(hours.Weekdays, day)
		}
	}
	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return BusinessHours{}, fmt.Errorf("business hours timezone: %w", err)
		}
		hours.Location = loc
	}
	return hours, nil
}

// Contains reports whether t falls within business hours.
func (b BusinessHours) Contains(t time.Time) bool {
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	workday := false
	for _, day := range b.Weekdays {
		if day == local.Weekday() {
			workday = true
			break
		}
	}
	if !workday {
		return false
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	offset := local.Sub(midnight)
	return offset >= b.Start && offset < b.End
}

// Candidate carries the request attributes a workflow is matched against.
type Candidate struct {
	RiskLevel   domain.RiskLevel
	ImpactLevel domain.ImpactLevel
	CategoryID  string
	IsEmergency bool
	// PinnedWorkflowID is the category's explicit workflow, which wins over trigger matching when active.
	PinnedWorkflowID *string
}

// Selector picks the approval workflow for a new change request.
//
// Selection is first-match-wins, not best-match: active workflows are walked
// in (priority, name, id) order and the first one whose present trigger
// conditions all hold is returned. Workflows with overlapping triggers are
// therefore order-sensitive.
type Selector struct {
	hours BusinessHours
}

// NewSelector constructs a selector evaluating business hours with hours.
func NewSelector(hours BusinessHours) *Selector {
	return &Selector{hours: hours}
}

// Select returns the matching workflow or nil.
func (s *Selector) Select(workflows []domain.ApprovalWorkflow, candidate Candidate, now time.Time) *domain.ApprovalWorkflow {
	ordered := Ordered(workflows)
	if candidate.PinnedWorkflowID != nil {
		for i := range ordered {
			if ordered[i].ID == *candidate.PinnedWorkflowID {
				return &ordered[i]
			}
		}
	}
	for i := range ordered {
		if s.Matches(ordered[i].TriggerConditions, candidate, now) {
			return &ordered[i]
		}
	}
	return nil
}

// Matches reports whether every present trigger condition holds for candidate.
func (s *Selector) Matches(trigger domain.TriggerConditions, candidate Candidate, now time.Time) bool {
	if len(trigger.RiskLevels) > 0 && !contains(trigger.RiskLevels, candidate.RiskLevel) {
		return false
	}
	if len(trigger.ImpactLevels) > 0 && !contains(trigger.ImpactLevels, candidate.ImpactLevel) {
		return false
	}
	if len(trigger.ChangeTypes) > 0 && !contains(trigger.ChangeTypes, candidate.CategoryID) {
		return false
	}
	if trigger.BusinessHours != nil && *trigger.BusinessHours != s.hours.Contains(now) {
		return false
	}
	if trigger.EmergencyOverride != nil && *trigger.EmergencyOverride != candidate.IsEmergency {
		return false
	}
	return true
}

// Ordered returns the active workflows sorted by ascending priority, then name and id.
func Ordered(workflows []domain.ApprovalWorkflow) []domain.ApprovalWorkflow {
	active := make([]domain.ApprovalWorkflow, 0, len(workflows))
	for _, wf := range workflows {
		if wf.IsActive {
			active = append(active, wf)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority < active[j].Priority
		}
		if active[i].Name != active[j].Name {
			return active[i].Name < active[j].Name
		}
		return active[i].ID < active[j].ID
	})
	return active
}

func contains[T comparable](set []T, value T) bool {
	for _, candidate := range set {
		if candidate == value {
			return true
		}
	}
	return false
}

func parseClock(value string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", value, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	for day := time.Sunday; day <= time.Saturday; day++ {
		full := strings.ToLower(day.String())
		if key == full || key == full[:3] {
			return day, nil
		}
	}
	return 0, fmt.Errorf("invalid weekday %q", name)
}

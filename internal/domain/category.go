package domain

import "time"

// TimeSlot is a preferred window within a day, "HH:MM" in the tenant's business timezone.
type TimeSlot struct {
	Start string `json:"start" bson:"start" yaml:"start"`
	End   string `json:"end" bson:"end" yaml:"end"`
}

// BlackoutPeriod forbids scheduling between two instants.
type BlackoutPeriod struct {
	Name   string    `json:"name,omitempty" bson:"name,omitempty" yaml:"name"`
	Starts time.Time `json:"starts" bson:"starts" yaml:"starts"`
	Ends   time.Time `json:"ends" bson:"ends" yaml:"ends"`
}

// MaintenanceWindow is the scheduling template a category suggests.
type MaintenanceWindow struct {
	DurationMinutes int              `json:"durationMinutes" bson:"durationMinutes" yaml:"durationMinutes"`
	PreferredSlots  []TimeSlot       `json:"preferredSlots,omitempty" bson:"preferredSlots,omitempty" yaml:"preferredSlots"`
	BlackoutPeriods []BlackoutPeriod `json:"blackoutPeriods,omitempty" bson:"blackoutPeriods,omitempty" yaml:"blackoutPeriods"`
}

// InBlackout reports whether t falls inside any blackout period.
func (w MaintenanceWindow) InBlackout(t time.Time) bool {
	for _, period := range w.BlackoutPeriods {
		if !t.Before(period.Starts) && t.Before(period.Ends) {
			return true
		}
	}
	return false
}

// NotificationPolicy says who hears about which lifecycle events, and how.
type NotificationPolicy struct {
	Stakeholders []string `json:"stakeholders,omitempty" bson:"stakeholders,omitempty" yaml:"stakeholders"`
	Channels     []string `json:"channels,omitempty" bson:"channels,omitempty" yaml:"channels"`
	Events       []string `json:"events,omitempty" bson:"events,omitempty" yaml:"events"`
}

// Wants reports whether the policy subscribes to event. An empty event list subscribes to nothing.
func (p NotificationPolicy) Wants(event string) bool {
	for _, candidate := range p.Events {
		if candidate == event {
			return true
		}
	}
	return false
}

// ChangeCategory carries the defaults applied when a change request is created.
type ChangeCategory struct {
	ID                       string
	OrgID                    string
	Name                     string
	Description              string
	Color                    string
	Icon                     string
	DefaultRiskLevel         RiskLevel
	DefaultImpactLevel       ImpactLevel
	RequiresApproval         bool
	RequiresTesting          bool
	RequiresRollbackPlan     bool
	RequiresDocumentation    bool
	DefaultMaintenanceWindow MaintenanceWindow
	ApprovalWorkflowID       *string
	Notifications            NotificationPolicy
	SortOrder                int
	IsActive                 bool
	CreatedAt                time.Time
	UpdatedAt                time.Time
}

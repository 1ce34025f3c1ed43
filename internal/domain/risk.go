package domain

import "time"

// RiskLevel buckets a numeric risk score.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// RiskLevels lists every level from lowest to highest.
var RiskLevels = []RiskLevel{RiskLevelLow, RiskLevelMedium, RiskLevelHigh, RiskLevelCritical}

// Rank orders levels; unknown levels rank below low.
func (l RiskLevel) Rank() int {
	for i, candidate := range RiskLevels {
		if candidate == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is one of the known levels.
func (l RiskLevel) Valid() bool {
	return l.Rank() >= 0
}

// ImpactLevel describes the blast radius of a change. It shares the risk vocabulary.
type ImpactLevel string

const (
	ImpactLevelLow      ImpactLevel = "low"
	ImpactLevelMedium   ImpactLevel = "medium"
	ImpactLevelHigh     ImpactLevel = "high"
	ImpactLevelCritical ImpactLevel = "critical"
)

// Valid reports whether l is one of the known impact levels.
func (l ImpactLevel) Valid() bool {
	return RiskLevel(l).Valid()
}

// CalculationMethod selects how sub-scores are combined.
type CalculationMethod string

const (
	CalculationWeightedAverage CalculationMethod = "weighted_average"
	CalculationHighestImpact   CalculationMethod = "highest_impact"
	CalculationCustom          CalculationMethod = "custom"
)

// RiskLevelConfig holds the controls a matrix attaches to one level.
type RiskLevelConfig struct {
	Level                 RiskLevel `json:"level" bson:"level" yaml:"level"`
	Label                 string    `json:"label" bson:"label" yaml:"label"`
	Color                 string    `json:"color,omitempty" bson:"color,omitempty" yaml:"color"`
	AutoApprovalAllowed   bool      `json:"autoApprovalAllowed" bson:"autoApprovalAllowed" yaml:"autoApprovalAllowed"`
	RequiredApprovers     int       `json:"requiredApprovers" bson:"requiredApprovers" yaml:"requiredApprovers"`
	MaxDowntimeMinutes    *int      `json:"maxDowntimeMinutes,omitempty" bson:"maxDowntimeMinutes,omitempty" yaml:"maxDowntimeMinutes"`
	RollbackRequired      bool      `json:"rollbackRequired" bson:"rollbackRequired" yaml:"rollbackRequired"`
	TestingRequired       bool      `json:"testingRequired" bson:"testingRequired" yaml:"testingRequired"`
	DocumentationRequired bool      `json:"documentationRequired" bson:"documentationRequired" yaml:"documentationRequired"`
	CommunicationRequired bool      `json:"communicationRequired" bson:"communicationRequired" yaml:"communicationRequired"`
}

// ImpactThresholds are the raw-score lower bounds of each level for one impact category.
type ImpactThresholds struct {
	Low      float64 `json:"low" bson:"low" yaml:"low"`
	Medium   float64 `json:"medium" bson:"medium" yaml:"medium"`
	High     float64 `json:"high" bson:"high" yaml:"high"`
	Critical float64 `json:"critical" bson:"critical" yaml:"critical"`
}

// For returns the threshold configured for level.
func (t ImpactThresholds) For(level RiskLevel) float64 {
	switch level {
	case RiskLevelMedium:
		return t.Medium
	case RiskLevelHigh:
		return t.High
	case RiskLevelCritical:
		return t.Critical
	default:
		return t.Low
	}
}

// ImpactCategory is one weighted dimension of the score (business, technical, user, compliance).
type ImpactCategory struct {
	Key        string           `json:"key" bson:"key" yaml:"key"`
	Name       string           `json:"name" bson:"name" yaml:"name"`
	Weight     float64          `json:"weight" bson:"weight" yaml:"weight"`
	Thresholds ImpactThresholds `json:"thresholds" bson:"thresholds" yaml:"thresholds"`
}

// RiskMatrix is a tenant's scoring model.
type RiskMatrix struct {
	ID                string
	OrgID             string
	Name              string
	Description       string
	Levels            []RiskLevelConfig
	ImpactCategories  []ImpactCategory
	CalculationMethod CalculationMethod
	CustomFormula     string
	IsDefault         bool
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// LevelConfig returns the controls configured for level, if any.
func (m *RiskMatrix) LevelConfig(level RiskLevel) (RiskLevelConfig, bool) {
	if m == nil {
		return RiskLevelConfig{}, false
	}
	for _, cfg := range m.Levels {
		if cfg.Level == level {
			return cfg, true
		}
	}
	return RiskLevelConfig{}, false
}

// RequiredControls is the projection of a level's configuration copied onto a change request.
type RequiredControls struct {
	RequiredApprovers     int  `json:"requiredApprovers" bson:"requiredApprovers"`
	AutoApprovalAllowed   bool `json:"autoApprovalAllowed" bson:"autoApprovalAllowed"`
	MaxDowntimeMinutes    *int `json:"maxDowntimeMinutes,omitempty" bson:"maxDowntimeMinutes,omitempty"`
	RollbackRequired      bool `json:"rollbackRequired" bson:"rollbackRequired"`
	TestingRequired       bool `json:"testingRequired" bson:"testingRequired"`
	DocumentationRequired bool `json:"documentationRequired" bson:"documentationRequired"`
	CommunicationRequired bool `json:"communicationRequired" bson:"communicationRequired"`
}

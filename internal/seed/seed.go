// Package seed loads tenant reference data (risk matrices, change categories,
// approval workflows and role assignments) from a YAML file.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/notify"
	"github.com/spec-kit/change-service/internal/service"
)

// File is the root of a seed document.
type File struct {
	Version int      `yaml:"version"`
	Tenants []Tenant `yaml:"tenants"`
	// Roles applies to every tenant.
	Roles map[string][]string `yaml:"roles"`
}

// Tenant holds the reference data of one organisation.
type Tenant struct {
	OrgID      string              `yaml:"orgId"`
	Matrices   []Matrix            `yaml:"riskMatrices"`
	Workflows  []Workflow          `yaml:"workflows"`
	Categories []Category          `yaml:"categories"`
	Roles      map[string][]string `yaml:"roles"`
}

type Matrix struct {
	Name              string                   `yaml:"name"`
	Description       string                   `yaml:"description"`
	Levels            []domain.RiskLevelConfig `yaml:"levels"`
	ImpactCategories  []domain.ImpactCategory  `yaml:"impactCategories"`
	CalculationMethod domain.CalculationMethod `yaml:"calculationMethod"`
	CustomFormula     string                   `yaml:"customFormula"`
	IsDefault         bool                     `yaml:"default"`
	Inactive          bool                     `yaml:"inactive"`
}

type Workflow struct {
	Name              string                   `yaml:"name"`
	Description       string                   `yaml:"description"`
	Priority          int                      `yaml:"priority"`
	TriggerConditions domain.TriggerConditions `yaml:"triggers"`
	Steps             []domain.ApprovalStep    `yaml:"steps"`
	EscalationRules   domain.EscalationRules   `yaml:"escalation"`
	IsDefault         bool                     `yaml:"default"`
	Inactive          bool                     `yaml:"inactive"`
}

// Category refers to its pinned workflow by name.
type Category struct {
	Name                  string                    `yaml:"name"`
	Description           string                    `yaml:"description"`
	Color                 string                    `yaml:"color"`
	Icon                  string                    `yaml:"icon"`
	DefaultRiskLevel      domain.RiskLevel          `yaml:"defaultRiskLevel"`
	DefaultImpactLevel    domain.ImpactLevel        `yaml:"defaultImpactLevel"`
	RequiresApproval      bool                      `yaml:"requiresApproval"`
	RequiresTesting       bool                      `yaml:"requiresTesting"`
	RequiresRollbackPlan  bool                      `yaml:"requiresRollbackPlan"`
	RequiresDocumentation bool                      `yaml:"requiresDocumentation"`
	MaintenanceWindow     domain.MaintenanceWindow  `yaml:"maintenanceWindow"`
	Workflow              string                    `yaml:"workflow"`
	Notifications         domain.NotificationPolicy `yaml:"notifications"`
	SortOrder             int                       `yaml:"sortOrder"`
	Inactive              bool                      `yaml:"inactive"`
}

// Result counts what Apply did.
type Result struct {
	Created int
	Updated int
}

// LoadFile reads and parses a seed file.
func LoadFile(path string) (*File, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	file, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("seed: %s: %w", path, err)
	}
	return file, nil
}

// Parse decodes a seed document. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("seed document is empty")
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var file File
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if file.Version != 1 {
		return nil, fmt.Errorf("unsupported seed version: %d", file.Version)
	}
	seen := map[string]bool{}
	for i, tenant := range file.Tenants {
		org := strings.TrimSpace(tenant.OrgID)
		if org == "" {
			return nil, fmt.Errorf("tenants[%d]: orgId required", i)
		}
		if seen[org] {
			return nil, fmt.Errorf("tenants[%d]: duplicate orgId %q", i, org)
		}
		seen[org] = true
		file.Tenants[i].OrgID = org
	}
	return &file, nil
}

// Resolver builds a static role resolver from the role assignments in file.
func (f *File) Resolver() *notify.StaticResolver {
	resolver := notify.NewStaticResolver(nil)
	for role, ids := range f.Roles {
		resolver.Assign(notify.AnyOrg, role, ids...)
	}
	for _, tenant := range f.Tenants {
		for role, ids := range tenant.Roles {
			resolver.Assign(tenant.OrgID, role, ids...)
		}
	}
	return resolver
}

// Apply upserts the reference data through the settings service, matching
// existing records by name. Workflows go first so categories can pin them.
func Apply(ctx context.Context, settings *service.SettingsService, file *File, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var result Result
	for _, tenant := range file.Tenants {
		if err := applyTenant(ctx, settings, tenant, &result); err != nil {
			return result, fmt.Errorf("seed tenant %s: %w", tenant.OrgID, err)
		}
		logger.Info("seeded tenant reference data",
			zap.String("org_id", tenant.OrgID),
			zap.Int("risk_matrices", len(tenant.Matrices)),
			zap.Int("workflows", len(tenant.Workflows)),
			zap.Int("categories", len(tenant.Categories)))
	}
	return result, nil
}

func applyTenant(ctx context.Context, settings *service.SettingsService, tenant Tenant, result *Result) error {
	org := tenant.OrgID

	workflows, err := settings.ListWorkflows(ctx, org)
	if err != nil {
		return err
	}
	workflowIDs := map[string]string{}
	for _, wf := range workflows {
		workflowIDs[wf.Name] = wf.ID
	}
	for _, in := range tenant.Workflows {
		wf := &domain.ApprovalWorkflow{
			Name:              in.Name,
			Description:       in.Description,
			TriggerConditions: in.TriggerConditions,
			Steps:             in.Steps,
			EscalationRules:   in.EscalationRules,
			Priority:          in.Priority,
			IsActive:          !in.Inactive,
			IsDefault:         in.IsDefault,
		}
		if id, ok := workflowIDs[in.Name]; ok {
			if _, err := settings.UpdateWorkflow(ctx, org, id, wf); err != nil {
				return fmt.Errorf("workflow %q: %w", in.Name, err)
			}
			result.Updated++
			continue
		}
		created, err := settings.CreateWorkflow(ctx, org, wf)
		if err != nil {
			return fmt.Errorf("workflow %q: %w", in.Name, err)
		}
		workflowIDs[created.Name] = created.ID
		result.Created++
	}

	matrices, err := settings.ListMatrices(ctx, org)
	if err != nil {
		return err
	}
	matrixIDs := map[string]string{}
	for _, m := range matrices {
		matrixIDs[m.Name] = m.ID
	}
	for _, in := range tenant.Matrices {
		matrix := &domain.RiskMatrix{
			Name:              in.Name,
			Description:       in.Description,
			Levels:            in.Levels,
			ImpactCategories:  in.ImpactCategories,
			CalculationMethod: in.CalculationMethod,
			CustomFormula:     in.CustomFormula,
			IsDefault:         in.IsDefault,
			IsActive:          !in.Inactive,
		}
		if id, ok := matrixIDs[in.Name]; ok {
			if _, err := settings.UpdateMatrix(ctx, org, id, matrix); err != nil {
				return fmt.Errorf("risk matrix %q: %w", in.Name, err)
			}
			result.Updated++
			continue
		}
		if _, err := settings.CreateMatrix(ctx, org, matrix); err != nil {
			return fmt.Errorf("risk matrix %q: %w", in.Name, err)
		}
		result.Created++
	}

	categories, err := settings.ListCategories(ctx, org)
	if err != nil {
		return err
	}
	categoryIDs := map[string]string{}
	for _, c := range categories {
		categoryIDs[c.Name] = c.ID
	}
	for _, in := range tenant.Categories {
		category := &domain.ChangeCategory{
			Name:                     in.Name,
			Description:              in.Description,
			Color:                    in.Color,
			Icon:                     in.Icon,
			DefaultRiskLevel:         in.DefaultRiskLevel,
			DefaultImpactLevel:       in.DefaultImpactLevel,
			RequiresApproval:         in.RequiresApproval,
			RequiresTesting:          in.RequiresTesting,
			RequiresRollbackPlan:     in.RequiresRollbackPlan,
			RequiresDocumentation:    in.RequiresDocumentation,
			DefaultMaintenanceWindow: in.MaintenanceWindow,
			Notifications:            in.Notifications,
			SortOrder:                in.SortOrder,
			IsActive:                 !in.Inactive,
		}
		if in.Workflow != "" {
			id, ok := workflowIDs[in.Workflow]
			if !ok {
				return fmt.Errorf("category %q: unknown workflow %q", in.Name, in.Workflow)
			}
			category.ApprovalWorkflowID = &id
		}
		if id, ok := categoryIDs[in.Name]; ok {
			if _, err := settings.UpdateCategory(ctx, org, id, category); err != nil {
				return fmt.Errorf("category %q: %w", in.Name, err)
			}
			result.Updated++
			continue
		}
		if _, err := settings.CreateCategory(ctx, org, category); err != nil {
			return fmt.Errorf("category %q: %w", in.Name, err)
		}
		result.Created++
	}
	return nil
}

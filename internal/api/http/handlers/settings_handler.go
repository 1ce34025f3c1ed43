package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/change-service/internal/api/dto"
	"github.com/spec-kit/change-service/internal/service"
)

// SettingsHandler exposes tenant reference data.
type SettingsHandler struct {
	service *service.SettingsService
}

// NewSettingsHandler constructs handler.
func NewSettingsHandler(settingsService *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{service: settingsService}
}

// CreationOptions GET /settings/creation-options.
func (h *SettingsHandler) CreationOptions(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()
	categories, err := h.service.GetCategoriesForChangeCreation(ctx, p.OrgID)
	if err != nil {
		return err
	}
	workflows, err := h.service.GetWorkflowsForChangeCreation(ctx, p.OrgID)
	if err != nil {
		return err
	}
	matrix, err := h.service.GetRiskMatrixForChangeCreation(ctx, p.OrgID)
	if err != nil {
		return err
	}

	resp := dto.CreationOptionsResponse{
		Categories: make([]dto.CategoryResponse, 0, len(categories)),
		Workflows:  make([]dto.WorkflowResponse, 0, len(workflows)),
	}
	for i := range categories {
		resp.Categories = append(resp.Categories, dto.NewCategoryResponse(&categories[i]))
	}
	for i := range workflows {
		resp.Workflows = append(resp.Workflows, dto.NewWorkflowResponse(&workflows[i]))
	}
	if matrix != nil {
		m := dto.NewRiskMatrixResponse(matrix)
		resp.RiskMatrix = &m
	}
	return c.JSON(fiber.Map{"data": resp})
}

// ListMatrices GET /settings/risk-matrices.
func (h *SettingsHandler) ListMatrices(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	matrices, err := h.service.ListMatrices(c.UserContext(), p.OrgID)
	if err != nil {
		return err
	}
	items := make([]dto.RiskMatrixResponse, 0, len(matrices))
	for i := range matrices {
		items = append(items, dto.NewRiskMatrixResponse(&matrices[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetMatrix GET /settings/risk-matrices/:id.
func (h *SettingsHandler) GetMatrix(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	matrix, err := h.service.GetMatrix(c.UserContext(), p.OrgID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRiskMatrixResponse(matrix)})
}

// CreateMatrix POST /settings/risk-matrices.
func (h *SettingsHandler) CreateMatrix(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.RiskMatrixRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	matrix, err := h.service.CreateMatrix(c.UserContext(), p.OrgID, req.Matrix())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewRiskMatrixResponse(matrix)})
}

// UpdateMatrix PUT /settings/risk-matrices/:id.
func (h *SettingsHandler) UpdateMatrix(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.RiskMatrixRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	matrix, err := h.service.UpdateMatrix(c.UserContext(), p.OrgID, c.Params("id"), req.Matrix())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewRiskMatrixResponse(matrix)})
}

// DeleteMatrix DELETE /settings/risk-matrices/:id.
func (h *SettingsHandler) DeleteMatrix(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteMatrix(c.UserContext(), p.OrgID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ListCategories GET /settings/categories.
func (h *SettingsHandler) ListCategories(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	categories, err := h.service.ListCategories(c.UserContext(), p.OrgID)
	if err != nil {
		return err
	}
	items := make([]dto.CategoryResponse, 0, len(categories))
	for i := range categories {
		items = append(items, dto.NewCategoryResponse(&categories[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetCategory GET /settings/categories/:id.
func (h *SettingsHandler) GetCategory(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	category, err := h.service.GetCategory(c.UserContext(), p.OrgID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCategoryResponse(category)})
}

// CreateCategory POST /settings/categories.
func (h *SettingsHandler) CreateCategory(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.CategoryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	category, err := h.service.CreateCategory(c.UserContext(), p.OrgID, req.Category())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewCategoryResponse(category)})
}

// UpdateCategory PUT /settings/categories/:id.
func (h *SettingsHandler) UpdateCategory(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.CategoryRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	category, err := h.service.UpdateCategory(c.UserContext(), p.OrgID, c.Params("id"), req.Category())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCategoryResponse(category)})
}

// DeleteCategory DELETE /settings/categories/:id.
func (h *SettingsHandler) DeleteCategory(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteCategory(c.UserContext(), p.OrgID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// ListWorkflows GET /settings/workflows.
func (h *SettingsHandler) ListWorkflows(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	workflows, err := h.service.ListWorkflows(c.UserContext(), p.OrgID)
	if err != nil {
		return err
	}
	items := make([]dto.WorkflowResponse, 0, len(workflows))
	for i := range workflows {
		items = append(items, dto.NewWorkflowResponse(&workflows[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetWorkflow GET /settings/workflows/:id.
func (h *SettingsHandler) GetWorkflow(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	wf, err := h.service.GetWorkflow(c.UserContext(), p.OrgID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewWorkflowResponse(wf)})
}

// CreateWorkflow POST /settings/workflows.
func (h *SettingsHandler) CreateWorkflow(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.WorkflowRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	wf, err := h.service.CreateWorkflow(c.UserContext(), p.OrgID, req.Workflow())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewWorkflowResponse(wf)})
}

// UpdateWorkflow PUT /settings/workflows/:id.
func (h *SettingsHandler) UpdateWorkflow(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.WorkflowRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	wf, err := h.service.UpdateWorkflow(c.UserContext(), p.OrgID, c.Params("id"), req.Workflow())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewWorkflowResponse(wf)})
}

// DeleteWorkflow DELETE /settings/workflows/:id.
func (h *SettingsHandler) DeleteWorkflow(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	if err := h.service.DeleteWorkflow(c.UserContext(), p.OrgID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

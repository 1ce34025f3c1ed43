package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/change-service/internal/api/dto"
	"github.com/spec-kit/change-service/internal/domain"
	"github.com/spec-kit/change-service/internal/repository"
	"github.com/spec-kit/change-service/internal/service"
	apperrors "github.com/spec-kit/change-service/pkg/util/errorutil"
)

// ChangesHandler exposes the change request lifecycle and approval endpoints.
type ChangesHandler struct {
	service *service.ChangeService
}

// NewChangesHandler constructs handler.
func NewChangesHandler(changeService *service.ChangeService) *ChangesHandler {
	return &ChangesHandler{service: changeService}
}

// Create POST /changes.
func (h *ChangesHandler) Create(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.CreateChangeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	cr, err := h.service.Create(c.UserContext(), p.OrgID, p.SubjectID, req.Input())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewChangeResponse(cr)})
}

// List GET /changes.
func (h *ChangesHandler) List(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	filter, err := parseChangeFilter(c)
	if err != nil {
		return err
	}
	items, err := h.service.List(c.UserContext(), p.OrgID, filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewChangeResponses(items)})
}

// PendingApproval GET /changes/pending-approval.
func (h *ChangesHandler) PendingApproval(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		return err
	}
	items, err := h.service.ListPendingApproval(c.UserContext(), p.OrgID, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewChangeResponses(items)})
}

// Get GET /changes/:id.
func (h *ChangesHandler) Get(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	cr, err := h.service.Get(c.UserContext(), p.OrgID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewChangeResponse(cr)})
}

// Submit POST /changes/:id/submit.
func (h *ChangesHandler) Submit(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	cr, err := h.service.Submit(c.UserContext(), p.OrgID, p.SubjectID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewChangeResponse(cr)})
}

// Approve POST /changes/:id/approve. Concurrent decisions are retried against
// the fresh ledger.
func (h *ChangesHandler) Approve(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.DecisionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	ctx := c.UserContext()
	var cr *domain.ChangeRequest
	err = service.RetryOnConflict(ctx, service.DefaultConflictRetries, func() error {
		var decideErr error
		cr, decideErr = h.service.Approve(ctx, p.OrgID, c.Params("id"), p.SubjectID, req.Reason)
		return decideErr
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewChangeResponse(cr)})
}

// Reject POST /changes/:id/reject.
func (h *ChangesHandler) Reject(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.DecisionRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Reason == nil {
		return apperrors.NewValidationError("invalid payload", map[string]any{"reason": "required"})
	}
	ctx := c.UserContext()
	var cr *domain.ChangeRequest
	err = service.RetryOnConflict(ctx, service.DefaultConflictRetries, func() error {
		var decideErr error
		cr, decideErr = h.service.Reject(ctx, p.OrgID, c.Params("id"), p.SubjectID, *req.Reason)
		return decideErr
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewChangeResponse(cr)})
}

// Start POST /changes/:id/start.
func (h *ChangesHandler) Start(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	cr, err := h.service.StartImplementation(c.UserContext(), p.OrgID, p.SubjectID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewChangeResponse(cr)})
}

// Complete POST /changes/:id/complete.
func (h *ChangesHandler) Complete(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	cr, err := h.service.Complete(c.UserContext(), p.OrgID, p.SubjectID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewChangeResponse(cr)})
}

// Ledger GET /changes/:id/approvals.
func (h *ChangesHandler) Ledger(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	records, err := h.service.GetApprovalLedger(c.UserContext(), p.OrgID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewLedgerResponse(records)})
}

// Progress GET /changes/:id/progress.
func (h *ChangesHandler) Progress(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	progress, err := h.service.GetApprovalProgress(c.UserContext(), p.OrgID, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewApprovalProgressResponse(progress)})
}

// Preview POST /changes/risk-preview.
func (h *ChangesHandler) Preview(c *fiber.Ctx) error {
	p, err := principal(c)
	if err != nil {
		return err
	}
	var req dto.RiskPreviewRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	preview, err := h.service.ComputeRiskPreview(c.UserContext(), p.OrgID, req.CategoryID, req.ImpactScores)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": preview})
}

func parseChangeFilter(c *fiber.Ctx) (repository.ChangeFilter, error) {
	filter := repository.ChangeFilter{
		RequesterID: queryString(c, "requesterId"),
		CategoryID:  queryString(c, "categoryId"),
	}
	for _, status := range queryList(c, "status") {
		filter.Statuses = append(filter.Statuses, domain.ChangeStatus(status))
	}
	for _, level := range queryList(c, "riskLevel") {
		rl := domain.RiskLevel(level)
		if !rl.Valid() {
			return filter, apperrors.NewValidationError("invalid query parameter", map[string]any{"riskLevel": "unknown risk level " + level})
		}
		filter.RiskLevels = append(filter.RiskLevels, rl)
	}
	var err error
	if filter.Limit, err = queryInt(c, "limit"); err != nil {
		return filter, err
	}
	if filter.Offset, err = queryInt(c, "offset"); err != nil {
		return filter, err
	}
	return filter, nil
}

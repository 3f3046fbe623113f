package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/interview-engine/internal/middleware"
	"alfredoptarigan/interview-engine/internal/services"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ReportHandler struct {
	engine  services.SessionEngine
	access  services.AccessPolicy
	reports services.ReportService
	log     *zap.Logger
}

func NewReportHandler(engine services.SessionEngine, access services.AccessPolicy, reports services.ReportService, log *zap.Logger) *ReportHandler {
	return &ReportHandler{
		engine:  engine,
		access:  access,
		reports: reports,
		log:     log.Named("report_handler"),
	}
}

// HandleGetReport handles GET /interviews/:id/report
func (h *ReportHandler) HandleGetReport(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return respondError(c, fiber.StatusBadRequest, "invalid session ID format")
	}

	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return respondError(c, fiber.StatusUnauthorized, "missing identity")
	}

	interview, questions, err := h.engine.Get(c.UserContext(), id)
	if err != nil {
		return handleEngineError(c, h.log, err)
	}
	if err := h.access.Authorize(identity, interview, services.ActionView); err != nil {
		return handleEngineError(c, h.log, err)
	}

	buf, err := h.reports.Build(interview, questions)
	if err != nil {
		return handleEngineError(c, h.log, err)
	}

	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="interview-%s.xlsx"`, id))
	return c.Send(buf.Bytes())
}

package handler

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/edu-homework-api/internal/dto"
	"github.com/noah-isme/edu-homework-api/internal/service"
	"github.com/noah-isme/edu-homework-api/internal/utils"
)

// GroupHandler wires group formation HTTP routes.
type GroupHandler struct {
	service service.GroupService
	logger  zerolog.Logger
}

// NewGroupHandler constructs the handler.
func NewGroupHandler(service service.GroupService, logger zerolog.Logger) *GroupHandler {
	return &GroupHandler{
		service: service,
		logger:  logger.With().Str("component", "group_handler").Logger(),
	}
}

// Register attaches group endpoints to the router group.
func (h *GroupHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Post("", h.create)
	router.Post("/auto-assign", h.autoAssign)
	router.Post("/:id/join", h.join)
	router.Post("/:id/leave", h.leave)
	router.Post("/:id/lock", h.lock)
	router.Post("/:id/members", h.assignMember)
	router.Post("/:id/submit", h.submit)
}

func (h *GroupHandler) list(c *fiber.Ctx) error {
	assignmentID, err := parseQueryUint(c, "assignment_id")
	if err != nil || assignmentID == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "assignment_id query parameter is required")
	}

	groups, err := h.service.ListByAssignment(c.Context(), assignmentID)
	if err != nil {
		return h.internalError(c, err)
	}

	return utils.SendSuccess(c, "groups retrieved", groups)
}

func (h *GroupHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	group, err := h.service.Get(c.Context(), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "group retrieved", group)
}

func (h *GroupHandler) create(c *fiber.Ctx) error {
	var payload dto.GroupCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	group, err := h.service.CreateGroup(c.Context(), userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "group created", group)
}

func (h *GroupHandler) join(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	group, err := h.service.Join(c.Context(), userIDFromContext(c), id)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "joined group", group)
}

func (h *GroupHandler) leave(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Leave(c.Context(), userIDFromContext(c), id); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "left group", fiber.Map{"id": id})
}

func (h *GroupHandler) lock(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Lock(c.Context(), userIDFromContext(c), id); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "group locked", fiber.Map{"id": id})
}

func (h *GroupHandler) assignMember(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload struct {
		StudentID uint `json:"student_id"`
	}
	if err := c.BodyParser(&payload); err != nil || payload.StudentID == 0 {
		return utils.SendFieldError(c, "student_id", "a student id is required")
	}

	group, err := h.service.TeacherAssign(c.Context(), userIDFromContext(c), id, payload.StudentID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "student assigned", group)
}

func (h *GroupHandler) autoAssign(c *fiber.Ctx) error {
	var payload dto.AutoAssignRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	result, err := h.service.AutoAssign(c.Context(), userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "auto-assign completed", result)
}

func (h *GroupHandler) submit(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "multipart form is required")
	}

	files := form.File["files"]
	if len(files) == 0 {
		return utils.SendFieldError(c, "files", "at least one file is required")
	}

	division := strings.TrimSpace(c.FormValue("labor_division"))
	if division == "" {
		return utils.SendFieldError(c, "labor_division", "a labor division breakdown is required")
	}

	var payload dto.GroupSubmitRequest
	if err := json.Unmarshal([]byte(division), &payload.LaborDivision); err != nil {
		return utils.SendFieldError(c, "labor_division", "labor division must be a JSON array")
	}

	submission, err := h.service.SubmitAsGroup(c.Context(), userIDFromContext(c), id, files, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "group submission stored", submission)
}

func (h *GroupHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrGroupNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "group not found")
	case errors.Is(err, service.ErrAssignmentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "assignment not found")
	case errors.Is(err, service.ErrPermissionDenied):
		return utils.SendError(c, fiber.StatusForbidden, "not the owner of this class")
	case errors.Is(err, service.ErrNotEnrolled):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNotGroupLeader):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrGroupFull),
		errors.Is(err, service.ErrAlreadyInGroup),
		errors.Is(err, service.ErrGroupNotForming),
		errors.Is(err, service.ErrSwitchDisabled),
		errors.Is(err, service.ErrGroupDeadlinePassed),
		errors.Is(err, service.ErrNotOpenYet),
		errors.Is(err, service.ErrDeadlinePassed):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrNotGroupAssignment),
		errors.Is(err, service.ErrLaborDivisionMissing),
		isValidationError(err):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		return h.internalError(c, err)
	}
}

func (h *GroupHandler) internalError(c *fiber.Ctx, err error) error {
	h.logger.Error().Err(err).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}

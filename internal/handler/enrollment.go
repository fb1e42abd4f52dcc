package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/training-booking/internal/model"
	"github.com/iliyamo/training-booking/internal/queue"
	"github.com/iliyamo/training-booking/internal/repository"
	"github.com/iliyamo/training-booking/internal/service"
)

// ParticipantHandler serves the participant facing endpoints: booking,
// cancelling, viewing rosters and the caller's own status.  All methods
// assume JWTAuth already ran.
type ParticipantHandler struct {
	Roster   *service.Roster
	Gate     *service.Gate
	Ledger   *service.Ledger
	Settings *service.Settings
	Inbox    *repository.AuditRepo
	Events   queue.Publisher
}

func placement(e *model.Enrollment) string {
	if e.IsWaitlisted {
		return "waitlist"
	}
	return "primary"
}

// Book handles POST /v1/enrollments with body {"training_id": N}.  It
// returns 201 with the enrollment and its placement.
func (h *ParticipantHandler) Book(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body struct {
		TrainingID uint64 `json:"training_id"`
	}
	if err := c.Bind(&body); err != nil || body.TrainingID == 0 {
		return badRequest(c, "training_id is required")
	}

	ctx := c.Request().Context()
	e, err := h.Roster.Book(ctx, userID, body.TrainingID)
	if err != nil {
		return writeError(c, err)
	}
	queue.Emit(ctx, h.Events, queue.NewEvent(queue.EventEnrollmentBooked, userID, userID, "enrollment", e.ID,
		map[string]any{"training_id": e.TrainingID, "waitlisted": e.IsWaitlisted}))
	return c.JSON(http.StatusCreated, echo.Map{"enrollment": e, "placement": placement(e)})
}

// Cancel handles POST /v1/enrollments/:id/cancel.  The response includes
// the waitlisted enrollment promoted into the freed slot, if any.
func (h *ParticipantHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid enrollment id")
	}

	ctx := c.Request().Context()
	res, err := h.Roster.Cancel(ctx, userID, id)
	if err != nil {
		return writeError(c, err)
	}
	queue.Emit(ctx, h.Events, queue.NewEvent(queue.EventEnrollmentCancelled, userID, userID, "enrollment", res.Enrollment.ID,
		map[string]any{"training_id": res.Enrollment.TrainingID}))
	if p := res.Promoted; p != nil {
		queue.Emit(ctx, h.Events, queue.NewEvent(queue.EventEnrollmentPromoted, userID, p.UserID, "enrollment", p.ID,
			map[string]any{"training_id": p.TrainingID}))
	}
	return c.JSON(http.StatusOK, echo.Map{"enrollment": res.Enrollment, "promoted": res.Promoted})
}

// ShowRoster handles GET /v1/trainings/:id/roster.
func (h *ParticipantHandler) ShowRoster(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid training id")
	}
	primary, waitlist, err := h.Roster.Roster(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"training_id": id, "primary": primary, "waitlist": waitlist})
}

// MyEnrollments handles GET /v1/me/enrollments.
func (h *ParticipantHandler) MyEnrollments(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	items, err := h.Roster.ListForUser(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Status handles GET /v1/me/status: whether the caller may book, and the
// text to show when they may not.
func (h *ParticipantHandler) Status(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	ctx := c.Request().Context()
	bans, err := h.Gate.ActiveBans(ctx, userID)
	if err != nil {
		return writeError(c, err)
	}
	hasDebt, err := h.Ledger.HasOpenDebt(ctx, userID)
	if err != nil {
		return writeError(c, err)
	}
	resp := echo.Map{
		"user_id":       userID,
		"blocked":       len(bans) > 0,
		"has_open_debt": hasDebt,
		"can_book":      len(bans) == 0 && !hasDebt,
		"bans":          bans,
	}
	if len(bans) > 0 {
		resp["ban_text"] = h.Settings.Policy(ctx).BanText
		resp["ban_reason"] = bans[0].Reason
	}
	return c.JSON(http.StatusOK, resp)
}

// Notifications handles GET /v1/me/notifications.
func (h *ParticipantHandler) Notifications(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	items, err := h.Inbox.ListNotifications(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/training-booking/internal/model"
	"github.com/iliyamo/training-booking/internal/queue"
	"github.com/iliyamo/training-booking/internal/repository"
	"github.com/iliyamo/training-booking/internal/service"
)

// AdminHandler serves billing and moderation endpoints under /v1/admin.
// Routes are guarded by RequireRole(ADMIN).
type AdminHandler struct {
	Roster   *service.Roster
	Ledger   *service.Ledger
	Gate     *service.Gate
	Sweep    *service.Sweep
	Settings *service.Settings
	Events   queue.Publisher
}

// actor returns the admin's id for audit events, or 0.
func actor(c echo.Context) uint64 {
	id, _ := getUserID(c)
	return id
}

// ListDebts handles GET /v1/admin/debts?user_id&training_id&status&limit&offset.
func (h *AdminHandler) ListDebts(c echo.Context) error {
	userID, ok := parseOptionalUint(c, "user_id")
	if !ok {
		return badRequest(c, "invalid user_id")
	}
	trainingID, ok := parseOptionalUint(c, "training_id")
	if !ok {
		return badRequest(c, "invalid training_id")
	}
	status := model.DebtStatus(strings.ToUpper(c.QueryParam("status")))
	if status != "" && status != model.DebtOpen && status != model.DebtClosed {
		return badRequest(c, "status must be OPEN or CLOSED")
	}
	page, ok := parsePage(c)
	if !ok {
		return badRequest(c, "invalid paging")
	}
	items, total, err := h.Ledger.List(c.Request().Context(),
		repository.DebtFilter{UserID: userID, TrainingID: trainingID, Status: status}, page)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "total": total})
}

// CloseDebt handles POST /v1/admin/debts/:id/close.
func (h *AdminHandler) CloseDebt(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid debt id")
	}
	ctx := c.Request().Context()
	res, err := h.Ledger.Close(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	queue.Emit(ctx, h.Events, queue.NewEvent(queue.EventDebtClosed, actor(c), res.Debt.UserID, "debt", res.Debt.ID,
		map[string]any{"training_id": res.Debt.TrainingID, "amount_cents": res.Debt.AmountCents}))
	for _, b := range res.Lifted {
		queue.Emit(ctx, h.Events, queue.NewEvent(queue.EventBanLifted, actor(c), b.UserID, "ban", b.ID,
			map[string]any{"type": b.Type}))
	}
	return c.JSON(http.StatusOK, echo.Map{"debt": res.Debt, "lifted_bans": res.Lifted})
}

// ListBans handles GET /v1/admin/bans?user_id&active&limit&offset.
func (h *AdminHandler) ListBans(c echo.Context) error {
	userID, ok := parseOptionalUint(c, "user_id")
	if !ok {
		return badRequest(c, "invalid user_id")
	}
	var f repository.BanFilter
	f.UserID = userID
	if raw := c.QueryParam("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return badRequest(c, "active must be true or false")
		}
		f.Active = &active
	}
	if raw := strings.ToUpper(c.QueryParam("type")); raw != "" {
		if raw != string(model.BanManual) && raw != string(model.BanAutoDebt) {
			return badRequest(c, "type must be MANUAL or AUTO_DEBT")
		}
		f.Type = model.BanType(raw)
	}
	page, ok := parsePage(c)
	if !ok {
		return badRequest(c, "invalid paging")
	}
	items, total, err := h.Gate.ListBans(c.Request().Context(), f, page)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items, "total": total})
}

// BanUser handles POST /v1/admin/users/:id/ban with body
// {"reason": "...", "until": "RFC3339"}; until is optional.
func (h *AdminHandler) BanUser(c echo.Context) error {
	userID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	var body struct {
		Reason string     `json:"reason"`
		Until  *time.Time `json:"until"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	body.Reason = strings.TrimSpace(body.Reason)
	if body.Reason == "" {
		return badRequest(c, "reason is required")
	}
	if body.Until != nil {
		u := body.Until.UTC()
		if !u.After(time.Now()) {
			return badRequest(c, "until must be in the future")
		}
		body.Until = &u
	}
	ctx := c.Request().Context()
	ban, err := h.Gate.ApplyManualSuspension(ctx, userID, body.Reason, body.Until)
	if err != nil {
		return writeError(c, err)
	}
	queue.Emit(ctx, h.Events, queue.NewEvent(queue.EventBanApplied, actor(c), userID, "ban", ban.ID,
		map[string]any{"type": ban.Type, "reason": ban.Reason}))
	return c.JSON(http.StatusCreated, ban)
}

// UnbanUser handles POST /v1/admin/users/:id/unban.  Only MANUAL bans are
// lifted; AUTO_DEBT bans go away when the debts are closed.
func (h *AdminHandler) UnbanUser(c echo.Context) error {
	userID, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid user id")
	}
	ctx := c.Request().Context()
	lifted, err := h.Gate.LiftManualSuspension(ctx, userID)
	if err != nil {
		return writeError(c, err)
	}
	for _, b := range lifted {
		queue.Emit(ctx, h.Events, queue.NewEvent(queue.EventBanLifted, actor(c), userID, "ban", b.ID,
			map[string]any{"type": b.Type}))
	}
	return c.JSON(http.StatusOK, echo.Map{"lifted": lifted})
}

// MarkPaid handles POST /v1/admin/enrollments/:id/paid.
func (h *AdminHandler) MarkPaid(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid enrollment id")
	}
	ctx := c.Request().Context()
	e, err := h.Roster.MarkPaid(ctx, id)
	if err != nil {
		return writeError(c, err)
	}
	queue.Emit(ctx, h.Events, queue.NewEvent(queue.EventEnrollmentPaid, actor(c), e.UserID, "enrollment", e.ID,
		map[string]any{"training_id": e.TrainingID}))
	return c.JSON(http.StatusOK, e)
}

// RunSweep handles POST /v1/admin/autoban/run with an optional body
// {"horizon_hours": N}.  Without it the configured horizon is used.
func (h *AdminHandler) RunSweep(c echo.Context) error {
	var body struct {
		HorizonHours *int `json:"horizon_hours"`
	}
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	ctx := c.Request().Context()
	var (
		processed int
		err       error
	)
	if body.HorizonHours != nil {
		if *body.HorizonHours <= 0 {
			return badRequest(c, "horizon_hours must be positive")
		}
		processed, err = h.Sweep.Run(ctx, time.Duration(*body.HorizonHours)*time.Hour)
	} else {
		processed, err = h.Sweep.RunWithPolicy(ctx)
	}
	if err != nil {
		return writeError(c, err)
	}
	queue.Emit(ctx, h.Events, queue.NewEvent(queue.EventAutobanCompleted, actor(c), 0, "autoban", 0,
		map[string]any{"processed": processed}))
	return c.JSON(http.StatusOK, echo.Map{"processed": processed})
}

// ListSettings handles GET /v1/admin/settings.
func (h *AdminHandler) ListSettings(c echo.Context) error {
	items, err := h.Settings.List(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// UpdateSetting handles PUT /v1/admin/settings/:key with body
// {"value": "...", "description": "..."}.
func (h *AdminHandler) UpdateSetting(c echo.Context) error {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		return badRequest(c, "key is required")
	}
	var body struct {
		Value       *string `json:"value"`
		Description string  `json:"description"`
	}
	if err := c.Bind(&body); err != nil || body.Value == nil {
		return badRequest(c, "value is required")
	}
	st, err := h.Settings.Update(c.Request().Context(), key, *body.Value, body.Description)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

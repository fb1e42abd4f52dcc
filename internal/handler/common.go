package handler // handler defines http handlers

import (
	"errors"   // sentinel values used in getUserID
	"log"      // internal failures are logged, not echoed to clients
	"net/http" // status codes
	"strconv"  // path and query parsing

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/training-booking/internal/middleware"
	"github.com/iliyamo/training-booking/internal/repository"
	"github.com/iliyamo/training-booking/internal/service"
)

// getUserID extracts the participant id stored by JWTAuth and converts it
// to uint64.
func getUserID(c echo.Context) (uint64, error) {
	v := c.Get(middleware.ContextUserID)
	switch t := v.(type) {
	case uint64:
		return t, nil
	case int64:
		return uint64(t), nil
	case float64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil && n > 0 {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// parseID reads a positive integer path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// parseOptionalUint reads an optional positive integer query parameter.
// An absent parameter yields 0.
func parseOptionalUint(c echo.Context, name string) (uint64, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return 0, false
	}
	return v, true
}

// parsePage reads limit and offset.  Out of range values are clamped by
// the repository.
func parsePage(c echo.Context) (repository.Page, bool) {
	var p repository.Page
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, false
		}
		p.Limit = n
	}
	if raw := c.QueryParam("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, false
		}
		p.Offset = n
	}
	return p, true
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "BAD_REQUEST", "message": msg})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "UNAUTHENTICATED", "message": "unauthorized"})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(k service.Kind) int {
	switch k {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		return http.StatusConflict
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindInvalidState:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders a service error.  Precondition failures keep their
// code and message; anything else is logged and reported as internal.
func writeError(c echo.Context, err error) error {
	var se *service.Error
	if errors.As(err, &se) {
		return c.JSON(statusFor(se.Kind), echo.Map{"error": se.Code, "message": se.Message})
	}
	log.Printf("http: %s %s: %v", c.Request().Method, c.Path(), err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "INTERNAL", "message": "internal error"})
}

package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/training-booking/internal/handler"
	"github.com/iliyamo/training-booking/internal/middleware"
)

// Deps bundles everything the routes need.
type Deps struct {
	DB          *sql.DB
	JWTSecret   string
	Participant *handler.ParticipantHandler
	Admin       *handler.AdminHandler
	// BookingLimiter throttles the booking and cancel endpoints.  nil
	// means no limit.
	BookingLimiter echo.MiddlewareFunc
}

// RegisterRoutes registers the health checks, the participant API under /v1 and
// the admin API under /v1/admin.
func RegisterRoutes(e *echo.Echo, d Deps) {
	// Health checks are unauthenticated.
	e.GET("/healthz", handler.Health)
	if d.DB != nil {
		e.GET("/readyz", handler.Ready(d.DB))
	}

	limit := d.BookingLimiter
	if limit == nil {
		limit = func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	// Every /v1 route requires a valid access token with a known role.
	v1 := e.Group("/v1", middleware.JWTAuth(d.JWTSecret), middleware.RequireRole(middleware.RoleParticipant, middleware.RoleAdmin))

	p := d.Participant
	v1.POST("/enrollments", p.Book, limit)
	v1.POST("/enrollments/:id/cancel", p.Cancel, limit)
	v1.GET("/trainings/:id/roster", p.ShowRoster)
	v1.GET("/me/enrollments", p.MyEnrollments)
	v1.GET("/me/status", p.Status)
	v1.GET("/me/notifications", p.Notifications)

	// Admin routes additionally require the ADMIN role.
	a := d.Admin
	admin := v1.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.GET("/debts", a.ListDebts)
	admin.POST("/debts/:id/close", a.CloseDebt)
	admin.GET("/bans", a.ListBans)
	admin.POST("/users/:id/ban", a.BanUser)
	admin.POST("/users/:id/unban", a.UnbanUser)
	admin.POST("/enrollments/:id/paid", a.MarkPaid)
	admin.POST("/autoban/run", a.RunSweep)
	admin.GET("/settings", a.ListSettings)
	admin.PUT("/settings/:key", a.UpdateSetting)
}

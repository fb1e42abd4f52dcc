package middleware

// identity.go holds helpers shared across middleware for reading the
// authenticated participant from the Echo context.

import (
	"fmt"

	"github.com/labstack/echo/v4"
)

// participantKey returns the authenticated participant id as a string for
// use in rate limit keys, or "anon" when the request is not authenticated.
func participantKey(c echo.Context) string {
	switch v := c.Get(ContextUserID).(type) {
	case string:
		if v != "" {
			return v
		}
	case uint64, int64, int, float64:
		return fmt.Sprint(v)
	}
	return "anon"
}

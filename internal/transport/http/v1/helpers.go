package v1

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/xiaot623/chatd/internal/domain"
)

// UserIDHeader carries the authenticated user id set by the gateway.
const UserIDHeader = "X-User-ID"

const userIDKey = "user_id"

// RequireUser rejects requests without a user id.
func RequireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID := c.Request().Header.Get(UserIDHeader)
		if userID == "" {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing " + UserIDHeader + " header"})
		}
		c.Set(userIDKey, userID)
		return next(c)
	}
}

func userID(c echo.Context) string {
	if id, ok := c.Get(userIDKey).(string); ok {
		return id
	}
	return c.Request().Header.Get(UserIDHeader)
}

// statusFor maps an error onto an HTTP status code.
func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindUnknownProvider, domain.KindMissingCredential, domain.KindInvalidRequest:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindRateLimited, domain.KindUpstreamRateLimit:
		return http.StatusTooManyRequests
	case domain.KindUpstreamAuth, domain.KindUpstreamNetwork, domain.KindUpstreamContentFiltered:
		return http.StatusBadGateway
	case domain.KindClientDisconnected:
		return 499
	}
	return http.StatusInternalServerError
}

// respondError writes err as a JSON error body. Internal errors are logged and
// their details hidden.
func respondError(c echo.Context, err error) error {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("ERROR: %s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(status, map[string]string{"error": "internal server error"})
	}
	body := map[string]string{"error": err.Error()}
	var de *domain.Error
	if errors.As(err, &de) {
		body["code"] = string(de.Kind)
	}
	return c.JSON(status, body)
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}

func queryInt(c echo.Context, name string, def int) int {
	if v := c.QueryParam(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func parseInt64(v string) (int64, error) {
	return strconv.ParseInt(v, 10, 64)
}

package http

import (
	"log/slog"
	"slices"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	headerRequestID = "X-Request-ID"
	headerUserID    = "X-User-ID"
	headerUserRole  = "X-User-Role"
	headerIdemKey   = "Idempotency-Key"

	localRequestID = "request_id"
	localUserID    = "user_id"
	localRole      = "user_role"
)

// Roles set by the upstream gateway.
const (
	RoleBuyer       = "buyer"
	RoleProvider    = "provider"
	RoleAffiliate   = "affiliate"
	RoleConciliator = "conciliator"
	RoleAdmin       = "admin"
)

// RequestID reuses the caller's X-Request-ID or generates one, and logs
// every request with it.
func RequestID(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(localRequestID, id)
		c.Set(headerRequestID, id)

		start := time.Now()
		err := c.Next()
		logger.Info("http request",
			"request_id", id,
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start),
		)
		return err
	}
}

// Identity reads the caller injected by the gateway. Requests without a
// valid user id are rejected.
func Identity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Get(headerUserID))
		if err != nil {
			return respondFail(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid "+headerUserID)
		}
		c.Locals(localUserID, id)
		c.Locals(localRole, c.Get(headerUserRole))
		return c.Next()
	}
}

// RequireRole admits only callers whose role is one of roles.
func RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !slices.Contains(roles, role(c)) {
			return respondFail(c, fiber.StatusForbidden, "FORBIDDEN", "role not allowed")
		}
		return c.Next()
	}
}

func requestID(c *fiber.Ctx) string {
	if id, ok := c.Locals(localRequestID).(string); ok {
		return id
	}
	return c.Get(headerRequestID)
}

func userID(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals(localUserID).(uuid.UUID)
	return id
}

func role(c *fiber.Ctx) string {
	r, _ := c.Locals(localRole).(string)
	return r
}

func isStaff(c *fiber.Ctx) bool {
	r := role(c)
	return r == RoleAdmin || r == RoleConciliator
}

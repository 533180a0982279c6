package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anjiri1684/estate_portal/ratelimit"
	"github.com/gofiber/fiber/v2"
)

// RateLimit counts requests per client address in the given category. A nil
// guard disables limiting.
func RateLimit(g *ratelimit.Guard, category ratelimit.Category) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if g == nil {
			return c.Next()
		}
		res, err := g.Allow(c.UserContext(), ClientIP(c), category)
		c.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(res.Reset, 10))

		if errors.Is(err, ratelimit.ErrUnavailable) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Service temporarily unavailable"})
		}
		if !res.Success {
			wait := res.Reset - time.Now().Unix()
			if wait < 0 {
				wait = 0
			}
			c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(wait, 10))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": fmt.Sprintf("Rate limit exceeded. Try again in %d seconds.", wait),
			})
		}
		return c.Next()
	}
}

// ClientIP prefers the first X-Forwarded-For hop over the socket address.
func ClientIP(c *fiber.Ctx) string {
	if fwd := c.Get(fiber.HeaderXForwardedFor); fwd != "" {
		if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
			return first
		}
	}
	return c.IP()
}

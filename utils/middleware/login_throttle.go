package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prefeitura-digital/beneficios-api/utils/cache"
	"github.com/prefeitura-digital/beneficios-api/utils/response"
)

// LoginThrottle slows credential-guessing against the login endpoint
// with progressive per-IP lockouts backed by Redis. Uniform login errors
// stop enumeration; this stops volume.
type LoginThrottle struct {
	redisCache *cache.RedisCache
}

// NewLoginThrottle creates a new login throttle
func NewLoginThrottle(redisCache *cache.RedisCache) *LoginThrottle {
	return &LoginThrottle{redisCache: redisCache}
}

// CheckLocked middleware rejects requests from locked-out IPs
func (t *LoginThrottle) CheckLocked() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := c.IP()
		lockKey := fmt.Sprintf("login:lock:%s", ip)

		locked, err := t.redisCache.Exists(c.UserContext(), lockKey)
		if err != nil {
			// Redis being down must not lock out legitimate users.
			return c.Next()
		}

		if locked {
			ttl, _ := t.redisCache.TTL(c.UserContext(), lockKey)
			retryAfter := int(ttl.Seconds())
			if retryAfter < 0 {
				retryAfter = 60
			}
			c.Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			return response.TooManyRequests(c, fmt.Sprintf("Too many failed attempts. Try again in %d seconds", retryAfter))
		}

		return c.Next()
	}
}

// RecordFailure counts a failed login and applies progressive lockouts
func (t *LoginThrottle) RecordFailure(c *fiber.Ctx, ip string) {
	ctx := c.UserContext()
	attemptKey := fmt.Sprintf("login:attempts:%s", ip)
	lockKey := fmt.Sprintf("login:lock:%s", ip)

	attempts, err := t.redisCache.Increment(ctx, attemptKey)
	if err != nil {
		return
	}
	if attempts == 1 {
		t.redisCache.Expire(ctx, attemptKey, 15*time.Minute)
	}

	var lockDuration time.Duration
	switch {
	case attempts >= 25:
		lockDuration = 24 * time.Hour
	case attempts >= 10:
		lockDuration = time.Hour
	case attempts >= 5:
		lockDuration = 2 * time.Minute
	default:
		return
	}

	t.redisCache.Set(ctx, lockKey, "locked", lockDuration)
}

// RecordSuccess clears the failure counter after a successful login
func (t *LoginThrottle) RecordSuccess(c *fiber.Ctx, ip string) {
	attemptKey := fmt.Sprintf("login:attempts:%s", ip)
	t.redisCache.Delete(c.UserContext(), attemptKey)
}

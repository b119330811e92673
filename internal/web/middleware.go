package web

import (
	"sync"
	"time"

	"ai-nutritionist/internal/auth"
	"ai-nutritionist/internal/session"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

const sessionCookie = "nutritionist_session"

// RateLimiter creates a per-IP rate limiting middleware.
func RateLimiter(requests int, duration time.Duration) fiber.Handler {
	type client struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}

	var (
		clients = make(map[string]*client)
		mu      sync.Mutex
	)

	go func() {
		for {
			time.Sleep(5 * time.Minute)
			mu.Lock()
			for ip, c := range clients {
				if time.Since(c.lastSeen) > 10*time.Minute {
					delete(clients, ip)
				}
			}
			mu.Unlock()
		}
	}()

	return func(c *fiber.Ctx) error {
		ip := c.IP()

		mu.Lock()
		cl, exists := clients[ip]
		if !exists {
			cl = &client{limiter: rate.NewLimiter(rate.Every(duration/time.Duration(requests)), requests)}
			clients[ip] = cl
		}
		cl.lastSeen = time.Now()
		mu.Unlock()

		if !cl.limiter.Allow() {
			return c.Status(fiber.StatusTooManyRequests).SendString("Rate limit exceeded. Please try again later.")
		}
		return c.Next()
	}
}

// RequireSession resolves the session cookie to a live, authenticated
// session and stores it in the request locals. Anything else is routed to
// the login screen.
func (h *Handler) RequireSession(c *fiber.Ctx) error {
	s, ok := h.resolveSession(c)
	if !ok || !s.Authenticated {
		return c.Redirect("/login")
	}
	c.Locals("session", s)
	return c.Next()
}

// resolveSession parses the cookie token and looks the session up. It does
// not care whether the session is authenticated.
func (h *Handler) resolveSession(c *fiber.Ctx) (*session.Session, bool) {
	raw := c.Cookies(sessionCookie)
	if raw == "" {
		return nil, false
	}
	sid, err := auth.ParseSessionToken([]byte(h.cfg.Session.Secret), raw)
	if err != nil {
		return nil, false
	}
	return h.sessions.Get(sid)
}

func sessionFromCtx(c *fiber.Ctx) *session.Session {
	s, _ := c.Locals("session").(*session.Session)
	return s
}

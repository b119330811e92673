package web

import (
	"errors"
	"strings"
	"time"

	"ai-nutritionist/internal/auth"
	"ai-nutritionist/internal/config"
	"ai-nutritionist/internal/metrics"
	"ai-nutritionist/internal/plan"
	"ai-nutritionist/internal/session"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// UsageReporter is the slice of the metrics store the health endpoint uses.
type UsageReporter interface {
	RecentUsage(days int) ([]metrics.DailyUsage, error)
}

// Handler carries the web layer's dependencies. Each screen's actions call
// back into the session controller; the handlers themselves only route.
type Handler struct {
	cfg      *config.Config
	sessions *session.Manager
	ctrl     *session.Controller
	usage    UsageReporter
	logger   *zap.Logger
}

// NewHandler creates the web handler set. The usage reporter may be nil.
func NewHandler(cfg *config.Config, sessions *session.Manager, ctrl *session.Controller, usage UsageReporter, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		cfg:      cfg,
		sessions: sessions,
		ctrl:     ctrl,
		usage:    usage,
		logger:   logger,
	}
}

func (h *Handler) sessionTTL() time.Duration {
	hours := h.cfg.Session.TTLHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// ShowLogin renders the login page.
func (h *Handler) ShowLogin(c *fiber.Ctx) error {
	if s, ok := h.resolveSession(c); ok && s.Authenticated {
		return c.Redirect("/planner")
	}
	return c.Render("login", fiber.Map{"Error": "", "Username": ""})
}

// HandleLogin processes the login form.
func (h *Handler) HandleLogin(c *fiber.Ctx) error {
	username := strings.TrimSpace(c.FormValue("username"))
	password := c.FormValue("password")

	s := h.sessions.Create()
	if err := h.ctrl.Login(s, username, password); err != nil {
		h.sessions.Drop(s.ID)
		if errors.Is(err, session.ErrInvalidCredentials) {
			return c.Status(fiber.StatusUnauthorized).Render("login", fiber.Map{
				"Error":    "Invalid username or password",
				"Username": username,
			})
		}
		return err
	}

	token, err := auth.NewSessionToken([]byte(h.cfg.Session.Secret), s.ID, username, h.sessionTTL())
	if err != nil {
		h.sessions.Drop(s.ID)
		h.logger.Error("failed to mint session token", zap.Error(err))
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to create session")
	}

	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Expires:  time.Now().Add(h.sessionTTL()),
		HTTPOnly: true,
	})
	h.logger.Info("user logged in", zap.String("username", username))
	return c.Redirect("/planner")
}

// HandleLogout resets and drops the session.
func (h *Handler) HandleLogout(c *fiber.Ctx) error {
	if s, ok := h.resolveSession(c); ok {
		h.ctrl.Logout(s)
		h.sessions.Drop(s.ID)
	}
	c.Cookie(&fiber.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour),
		HTTPOnly: true,
	})
	return c.Redirect("/login")
}

// Home routes the root path to the screen matching the session state.
func (h *Handler) Home(c *fiber.Ctx) error {
	s := sessionFromCtx(c)
	switch s.View {
	case session.ViewHistory:
		return c.Redirect("/history")
	default:
		return c.Redirect("/planner")
	}
}

// ShowPlanner renders the meal planner screen, including the current plan if
// one is held.
func (h *Handler) ShowPlanner(c *fiber.Ctx) error {
	s := sessionFromCtx(c)
	h.ctrl.GoTo(s, session.ViewMealPlanner)
	return h.renderPlanner(c, s, fiber.Map{
		"SavedID": c.Query("saved"),
		"Notice":  c.Query("notice"),
	})
}

func (h *Handler) renderPlanner(c *fiber.Ctx, s *session.Session, extra fiber.Map) error {
	data := fiber.Map{
		"Username":       s.Username,
		"GlutenFree":     false,
		"DairyFree":      false,
		"AdditionalInfo": "",
		"SavedID":        "",
		"Notice":         "",
	}
	if s.Current != nil {
		data["Plan"] = RenderMarkdown(s.Current.MealPlan)
		data["PlanFailed"] = s.Current.Failed
		data["GlutenFree"] = s.Current.Preferences.GlutenFree
		data["DairyFree"] = s.Current.Preferences.DairyFree
		data["AdditionalInfo"] = s.Current.Preferences.AdditionalInfo
	}
	for k, v := range extra {
		data[k] = v
	}
	return c.Render("planner", data)
}

// HandleGenerate submits the preference form to the completion service. The
// call blocks; the browser shows its own busy state for the duration.
func (h *Handler) HandleGenerate(c *fiber.Ctx) error {
	s := sessionFromCtx(c)

	prefs := plan.Preferences{
		GlutenFree:     c.FormValue("gluten_free") == "on",
		DairyFree:      c.FormValue("dairy_free") == "on",
		AdditionalInfo: strings.TrimSpace(c.FormValue("additional_info")),
	}

	if err := h.ctrl.SubmitPreferences(c.UserContext(), s, prefs); err != nil {
		if errors.Is(err, session.ErrWrongView) {
			return c.Redirect("/planner")
		}
		return err
	}
	return c.Redirect("/planner")
}

// HandleSave persists the current plan into the user's history.
func (h *Handler) HandleSave(c *fiber.Ctx) error {
	s := sessionFromCtx(c)

	id, err := h.ctrl.SaveCurrentPlan(s)
	if err != nil {
		if errors.Is(err, session.ErrNoCurrentPlan) {
			return h.renderPlanner(c, s, fiber.Map{"Notice": "There is no meal plan to save yet."})
		}
		// Persistence failure: the record is kept in memory, the id is real.
		h.logger.Warn("history flush failed", zap.String("plan_id", id), zap.Error(err))
		return h.renderPlanner(c, s, fiber.Map{
			"SavedID": id,
			"Notice":  "The plan was kept in this session but could not be written to disk.",
		})
	}
	return c.Redirect("/planner?saved=" + id)
}

// ShowHistory renders the list of the user's saved plans.
func (h *Handler) ShowHistory(c *fiber.Ctx) error {
	s := sessionFromCtx(c)
	h.ctrl.GoTo(s, session.ViewHistory)
	return h.renderHistory(c, s, "")
}

func (h *Handler) renderHistory(c *fiber.Ctx, s *session.Session, notice string) error {
	return c.Render("history", fiber.Map{
		"Username": s.Username,
		"Entries":  s.UserHistory(),
		"Notice":   notice,
	})
}

// ShowPlan selects a saved plan for read-only display. An unknown id is
// reported on the history screen; the session's view does not move.
func (h *Handler) ShowPlan(c *fiber.Ctx) error {
	s := sessionFromCtx(c)

	if err := h.ctrl.SelectPlan(s, c.Params("id")); err != nil {
		if errors.Is(err, session.ErrPlanNotFound) {
			c.Status(fiber.StatusNotFound)
			return h.renderHistory(c, s, "That meal plan could not be found.")
		}
		return err
	}

	return c.Render("view_plan", fiber.Map{
		"Username":     s.Username,
		"Plan":         RenderMarkdown(s.Current.MealPlan),
		"Timestamp":    s.Current.Timestamp,
		"Restrictions": s.Current.Preferences.RestrictionsLabel(),
		"Notes":        s.Current.Preferences.AdditionalInfo,
	})
}

// Health reports liveness plus recent generation usage when a metrics store
// is attached.
func (h *Handler) Health(c *fiber.Ctx) error {
	body := fiber.Map{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	}
	if h.usage != nil {
		usage, err := h.usage.RecentUsage(7)
		if err != nil {
			h.logger.Warn("failed to read usage metrics", zap.Error(err))
		} else {
			body["usage"] = usage
		}
	}
	return c.JSON(body)
}

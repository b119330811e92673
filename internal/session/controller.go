package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ai-nutritionist/internal/auth"
	"ai-nutritionist/internal/history"
	"ai-nutritionist/internal/llm"
	"ai-nutritionist/internal/metrics"
	"ai-nutritionist/internal/plan"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrInvalidCredentials means the username/password pair did not match.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrNotAuthenticated means the operation requires a logged-in session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrWrongView means preferences were submitted outside the meal planner.
	ErrWrongView = errors.New("meal planner is not the active view")
	// ErrNoCurrentPlan means there is nothing to save.
	ErrNoCurrentPlan = errors.New("no meal plan to save")
	// ErrPlanNotFound means the requested plan id is not in the user's history.
	ErrPlanNotFound = errors.New("meal plan not found")
)

// Controller drives the session state machine. All collaborators are
// injected; the clock and id source are replaceable for tests.
type Controller struct {
	creds   auth.Verifier
	store   *history.Store
	gen     llm.Generator
	metrics metrics.Recorder
	logger  *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewController wires the controller's collaborators. The metrics recorder
// may be nil.
func NewController(creds auth.Verifier, store *history.Store, gen llm.Generator, rec metrics.Recorder, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		creds:   creds,
		store:   store,
		gen:     gen,
		metrics: rec,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Login verifies the credentials and, on success, authenticates the session,
// routes it to the meal planner and replaces the in-memory history with a
// fresh snapshot from disk. On failure the session is left untouched. A
// history that fails to load is reported and replaced by an empty one.
func (c *Controller) Login(s *Session, username, password string) error {
	if !c.creds.Verify(username, password) {
		return ErrInvalidCredentials
	}

	s.Authenticated = true
	s.Username = username
	s.View = ViewMealPlanner

	h, err := c.store.Load()
	if err != nil {
		c.logger.Warn("failed to load history, starting empty",
			zap.String("username", username), zap.Error(err))
	}
	s.History = h
	return nil
}

// Logout resets the session to its defaults. The in-memory history and any
// unsaved current plan are discarded.
func (c *Controller) Logout(s *Session) {
	s.Authenticated = false
	s.Username = ""
	s.View = ViewLogin
	s.History = history.History{}
	s.Current = nil
}

// AttachUser authenticates a session through an out-of-band channel (the
// Telegram allow list) and loads the user's history, skipping the credential
// check that the web login performs.
func (c *Controller) AttachUser(s *Session, username string) {
	s.Authenticated = true
	s.Username = username
	s.View = ViewMealPlanner

	h, err := c.store.Load()
	if err != nil {
		c.logger.Warn("failed to load history, starting empty",
			zap.String("username", username), zap.Error(err))
	}
	s.History = h
}

// SubmitPreferences builds the prompt, calls the completion client and holds
// the outcome as the unsaved current plan. Only valid while authenticated on
// the meal planner view. Generation failures become the current plan's text,
// never an error from this method.
func (c *Controller) SubmitPreferences(ctx context.Context, s *Session, prefs plan.Preferences) error {
	if !s.Authenticated {
		return ErrNotAuthenticated
	}
	if s.View != ViewMealPlanner {
		return ErrWrongView
	}

	prompt := plan.BuildPrompt(prefs.GlutenFree, prefs.DairyFree, prefs.AdditionalInfo)
	start := c.now()
	res := c.gen.Generate(ctx, prompt)
	latency := c.now().Sub(start)

	if c.metrics != nil {
		err := c.metrics.Record(metrics.GenerationMetric{
			Username:         s.Username,
			Model:            res.Usage.Model,
			PromptTokens:     res.Usage.PromptTokens,
			CompletionTokens: res.Usage.CompletionTokens,
			LatencyMS:        latency.Milliseconds(),
			Succeeded:        !res.Failed(),
		})
		if err != nil {
			c.logger.Warn("failed to record generation metric", zap.Error(err))
		}
	}

	if res.Failed() {
		c.logger.Warn("meal plan generation failed",
			zap.String("username", s.Username), zap.Error(res.Err))
	}

	s.Current = &CurrentPlan{
		Preferences: prefs,
		MealPlan:    res.PlanText(),
		Failed:      res.Failed(),
	}
	return nil
}

// SaveCurrentPlan assigns a fresh id and timestamp to the current plan,
// merges it into the in-memory history and flushes the whole history to disk.
// A failed flush still returns the new id: the record stays in memory and the
// error is the caller's notice. The current plan is not cleared, so saving
// again produces a second, distinct record.
func (c *Controller) SaveCurrentPlan(s *Session) (string, error) {
	if !s.Authenticated {
		return "", ErrNotAuthenticated
	}
	if s.Current == nil {
		return "", ErrNoCurrentPlan
	}

	id := c.newID()
	record := plan.Record{
		Timestamp:   c.now().Format(plan.TimestampFormat),
		Preferences: s.Current.Preferences,
		MealPlan:    s.Current.MealPlan,
	}

	if s.History == nil {
		s.History = history.History{}
	}
	if s.History[s.Username] == nil {
		s.History[s.Username] = make(map[string]plan.Record)
	}
	s.History[s.Username][id] = record

	if err := c.store.Save(s.History); err != nil {
		c.logger.Error("failed to persist history",
			zap.String("username", s.Username), zap.Error(err))
		return id, fmt.Errorf("meal plan kept in memory only: %w", err)
	}
	return id, nil
}

// SelectPlan looks the id up in the user's history and puts the record on
// display. An unknown id is reported as ErrPlanNotFound and leaves the view
// unchanged.
func (c *Controller) SelectPlan(s *Session, planID string) error {
	if !s.Authenticated {
		return ErrNotAuthenticated
	}

	record, ok := s.History[s.Username][planID]
	if !ok {
		return ErrPlanNotFound
	}

	s.Current = &CurrentPlan{
		ID:          planID,
		Timestamp:   record.Timestamp,
		Preferences: record.Preferences,
		MealPlan:    record.MealPlan,
	}
	s.View = ViewViewPlan
	return nil
}

// GoTo switches between the meal planner and history screens. Unauthenticated
// sessions are always routed to login, whatever they asked for.
func (c *Controller) GoTo(s *Session, v View) {
	if !s.Authenticated {
		s.View = ViewLogin
		return
	}
	switch v {
	case ViewMealPlanner, ViewHistory:
		s.View = v
	}
}

package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"ai-nutritionist/internal/auth"
	"ai-nutritionist/internal/history"
	"ai-nutritionist/internal/llm"
	"ai-nutritionist/internal/metrics"
	"ai-nutritionist/internal/plan"
)

type stubGenerator struct {
	text  string
	err   error
	calls int
}

func (g *stubGenerator) Generate(ctx context.Context, prompt string) llm.Result {
	g.calls++
	if g.err != nil {
		return llm.Result{Err: g.err}
	}
	return llm.Result{
		Text:  g.text,
		Usage: llm.TokenUsage{Model: "stub-model", PromptTokens: 10, CompletionTokens: 20},
	}
}

type stubRecorder struct {
	recorded []metrics.GenerationMetric
	err      error
}

func (r *stubRecorder) Record(m metrics.GenerationMetric) error {
	r.recorded = append(r.recorded, m)
	return r.err
}

var testCreds = auth.StaticCredentials{"Zach": "ZML", "Mal": "MMM"}

func newTestController(t *testing.T, gen llm.Generator, rec metrics.Recorder) (*Controller, *history.Store) {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "controller_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store := history.NewStore(filepath.Join(tempDir, "history.json"))
	return NewController(testCreds, store, gen, rec, nil), store
}

func TestLogin(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		ctrl, _ := newTestController(t, &stubGenerator{}, nil)
		s := New("s1")

		if err := ctrl.Login(s, "Zach", "ZML"); err != nil {
			t.Fatalf("Expected login to succeed, got %v", err)
		}
		if !s.Authenticated {
			t.Error("Expected session to be authenticated")
		}
		if s.Username != "Zach" {
			t.Errorf("Expected username 'Zach', got '%s'", s.Username)
		}
		if s.View != ViewMealPlanner {
			t.Errorf("Expected view meal_planner, got '%s'", s.View)
		}
	})

	t.Run("InvalidCredentials", func(t *testing.T) {
		ctrl, _ := newTestController(t, &stubGenerator{}, nil)
		s := New("s1")

		err := ctrl.Login(s, "Zach", "wrong")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("Expected ErrInvalidCredentials, got %v", err)
		}
		if s.Authenticated {
			t.Error("Expected session to stay unauthenticated")
		}
		if s.View != ViewLogin {
			t.Errorf("Expected view to stay login, got '%s'", s.View)
		}
	})

	t.Run("MalformedHistoryStartsEmpty", func(t *testing.T) {
		tempDir, err := os.MkdirTemp("", "controller_test")
		if err != nil {
			t.Fatalf("Failed to create temp dir: %v", err)
		}
		defer os.RemoveAll(tempDir)

		path := filepath.Join(tempDir, "history.json")
		if err := os.WriteFile(path, []byte("{broken"), 0644); err != nil {
			t.Fatalf("Failed to write malformed history: %v", err)
		}
		ctrl := NewController(testCreds, history.NewStore(path), &stubGenerator{}, nil, nil)

		s := New("s1")
		if err := ctrl.Login(s, "Zach", "ZML"); err != nil {
			t.Fatalf("Expected login to succeed despite malformed history, got %v", err)
		}
		if !s.Authenticated {
			t.Error("Expected session to be authenticated")
		}
		if len(s.History) != 0 {
			t.Errorf("Expected empty in-memory history, got %d users", len(s.History))
		}
	})
}

func TestLogout(t *testing.T) {
	ctrl, _ := newTestController(t, &stubGenerator{text: "PLAN"}, nil)
	s := New("s1")
	if err := ctrl.Login(s, "Zach", "ZML"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := ctrl.SubmitPreferences(context.Background(), s, plan.Preferences{}); err != nil {
		t.Fatalf("SubmitPreferences failed: %v", err)
	}

	ctrl.Logout(s)

	if s.Authenticated {
		t.Error("Expected session to be unauthenticated after logout")
	}
	if s.Username != "" {
		t.Errorf("Expected empty username, got '%s'", s.Username)
	}
	if s.View != ViewLogin {
		t.Errorf("Expected view login, got '%s'", s.View)
	}
	if s.Current != nil {
		t.Error("Expected the unsaved current plan to be discarded")
	}
	if len(s.History) != 0 {
		t.Error("Expected the in-memory history to be discarded")
	}
}

func TestSubmitPreferences(t *testing.T) {
	ctx := context.Background()

	t.Run("Unauthenticated", func(t *testing.T) {
		gen := &stubGenerator{text: "PLAN"}
		ctrl, _ := newTestController(t, gen, nil)
		s := New("s1")

		err := ctrl.SubmitPreferences(ctx, s, plan.Preferences{})
		if !errors.Is(err, ErrNotAuthenticated) {
			t.Fatalf("Expected ErrNotAuthenticated, got %v", err)
		}
		if gen.calls != 0 {
			t.Errorf("Expected no completion calls, got %d", gen.calls)
		}
	})

	t.Run("WrongView", func(t *testing.T) {
		ctrl, _ := newTestController(t, &stubGenerator{text: "PLAN"}, nil)
		s := New("s1")
		if err := ctrl.Login(s, "Zach", "ZML"); err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		ctrl.GoTo(s, ViewHistory)

		err := ctrl.SubmitPreferences(ctx, s, plan.Preferences{})
		if !errors.Is(err, ErrWrongView) {
			t.Fatalf("Expected ErrWrongView, got %v", err)
		}
	})

	t.Run("HoldsUnsavedPlan", func(t *testing.T) {
		gen := &stubGenerator{text: "MEAL_PLAN_TEXT"}
		rec := &stubRecorder{}
		ctrl, _ := newTestController(t, gen, rec)
		s := New("s1")
		if err := ctrl.Login(s, "Zach", "ZML"); err != nil {
			t.Fatalf("Login failed: %v", err)
		}

		prefs := plan.Preferences{GlutenFree: true, AdditionalInfo: "high-protein"}
		if err := ctrl.SubmitPreferences(ctx, s, prefs); err != nil {
			t.Fatalf("SubmitPreferences failed: %v", err)
		}

		if s.Current == nil {
			t.Fatal("Expected a current plan")
		}
		if s.Current.MealPlan != "MEAL_PLAN_TEXT" {
			t.Errorf("Expected plan text 'MEAL_PLAN_TEXT', got '%s'", s.Current.MealPlan)
		}
		if s.Current.ID != "" {
			t.Errorf("Expected unsaved plan to have no id, got '%s'", s.Current.ID)
		}
		if s.Current.Failed {
			t.Error("Expected success variant")
		}
		if gen.calls != 1 {
			t.Errorf("Expected exactly 1 completion call, got %d", gen.calls)
		}
		if len(rec.recorded) != 1 {
			t.Fatalf("Expected 1 recorded metric, got %d", len(rec.recorded))
		}
		if rec.recorded[0].Username != "Zach" || !rec.recorded[0].Succeeded {
			t.Errorf("Unexpected metric: %+v", rec.recorded[0])
		}
	})

	t.Run("FailureBecomesPlanText", func(t *testing.T) {
		gen := &stubGenerator{err: errors.New("quota exceeded")}
		rec := &stubRecorder{}
		ctrl, _ := newTestController(t, gen, rec)
		s := New("s1")
		if err := ctrl.Login(s, "Zach", "ZML"); err != nil {
			t.Fatalf("Login failed: %v", err)
		}

		if err := ctrl.SubmitPreferences(ctx, s, plan.Preferences{}); err != nil {
			t.Fatalf("Expected generation failure not to error the submit, got %v", err)
		}
		if s.Current == nil || !s.Current.Failed {
			t.Fatal("Expected the failure variant as current plan")
		}
		if s.Current.MealPlan != "Error generating meal plan: quota exceeded" {
			t.Errorf("Expected the parity error text, got '%s'", s.Current.MealPlan)
		}
		if len(rec.recorded) != 1 || rec.recorded[0].Succeeded {
			t.Errorf("Expected one failed metric, got %+v", rec.recorded)
		}
	})

	t.Run("MissingAPIKeyFixedMessage", func(t *testing.T) {
		ctrl, _ := newTestController(t, llm.Disabled(), nil)
		s := New("s1")
		if err := ctrl.Login(s, "Zach", "ZML"); err != nil {
			t.Fatalf("Login failed: %v", err)
		}

		if err := ctrl.SubmitPreferences(ctx, s, plan.Preferences{}); err != nil {
			t.Fatalf("SubmitPreferences failed: %v", err)
		}
		if s.Current.MealPlan != "Error: Unable to configure Gemini API" {
			t.Errorf("Expected the fixed configuration message, got '%s'", s.Current.MealPlan)
		}
	})
}

func TestSaveCurrentPlan(t *testing.T) {
	ctx := context.Background()

	t.Run("NoCurrentPlan", func(t *testing.T) {
		ctrl, _ := newTestController(t, &stubGenerator{}, nil)
		s := New("s1")
		if err := ctrl.Login(s, "Zach", "ZML"); err != nil {
			t.Fatalf("Login failed: %v", err)
		}

		_, err := ctrl.SaveCurrentPlan(s)
		if !errors.Is(err, ErrNoCurrentPlan) {
			t.Fatalf("Expected ErrNoCurrentPlan, got %v", err)
		}
	})

	t.Run("TwiceYieldsDistinctIDs", func(t *testing.T) {
		ctrl, store := newTestController(t, &stubGenerator{text: "PLAN"}, nil)
		s := New("s1")
		if err := ctrl.Login(s, "Zach", "ZML"); err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if err := ctrl.SubmitPreferences(ctx, s, plan.Preferences{DairyFree: true}); err != nil {
			t.Fatalf("SubmitPreferences failed: %v", err)
		}

		id1, err := ctrl.SaveCurrentPlan(s)
		if err != nil {
			t.Fatalf("First save failed: %v", err)
		}
		id2, err := ctrl.SaveCurrentPlan(s)
		if err != nil {
			t.Fatalf("Second save failed: %v", err)
		}
		if id1 == id2 {
			t.Fatalf("Expected distinct ids, both were '%s'", id1)
		}

		for _, id := range []string{id1, id2} {
			if err := ctrl.SelectPlan(s, id); err != nil {
				t.Errorf("Expected saved plan '%s' to be selectable, got %v", id, err)
			}
		}

		persisted, err := store.Load()
		if err != nil {
			t.Fatalf("Failed to reload history: %v", err)
		}
		if len(persisted["Zach"]) != 2 {
			t.Errorf("Expected 2 persisted records, got %d", len(persisted["Zach"]))
		}
	})

	t.Run("PersistenceFailureKeepsRecordInMemory", func(t *testing.T) {
		tempDir, err := os.MkdirTemp("", "controller_test")
		if err != nil {
			t.Fatalf("Failed to create temp dir: %v", err)
		}
		defer os.RemoveAll(tempDir)

		// Point the store below an existing file so writes must fail.
		blocker := filepath.Join(tempDir, "blocker")
		if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to create blocker file: %v", err)
		}
		store := history.NewStore(filepath.Join(blocker, "history.json"))
		ctrl := NewController(testCreds, store, &stubGenerator{text: "PLAN"}, nil, nil)

		s := New("s1")
		if err := ctrl.Login(s, "Zach", "ZML"); err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if err := ctrl.SubmitPreferences(ctx, s, plan.Preferences{}); err != nil {
			t.Fatalf("SubmitPreferences failed: %v", err)
		}

		id, err := ctrl.SaveCurrentPlan(s)
		if err == nil {
			t.Fatal("Expected a persistence error, got nil")
		}
		if id == "" {
			t.Fatal("Expected the id of the in-memory record alongside the error")
		}
		if _, ok := s.History["Zach"][id]; !ok {
			t.Error("Expected the record to remain in the in-memory history")
		}
	})
}

func TestSelectPlan(t *testing.T) {
	ctx := context.Background()

	t.Run("UnknownIDReportedAndViewUnchanged", func(t *testing.T) {
		ctrl, _ := newTestController(t, &stubGenerator{text: "PLAN"}, nil)
		s := New("s1")
		if err := ctrl.Login(s, "Zach", "ZML"); err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		ctrl.GoTo(s, ViewHistory)

		err := ctrl.SelectPlan(s, "no-such-id")
		if !errors.Is(err, ErrPlanNotFound) {
			t.Fatalf("Expected ErrPlanNotFound, got %v", err)
		}
		if s.View != ViewHistory {
			t.Errorf("Expected view to stay history, got '%s'", s.View)
		}
	})

	t.Run("SelectsSavedRecord", func(t *testing.T) {
		ctrl, _ := newTestController(t, &stubGenerator{text: "PLAN"}, nil)
		s := New("s1")
		if err := ctrl.Login(s, "Zach", "ZML"); err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if err := ctrl.SubmitPreferences(ctx, s, plan.Preferences{GlutenFree: true}); err != nil {
			t.Fatalf("SubmitPreferences failed: %v", err)
		}
		id, err := ctrl.SaveCurrentPlan(s)
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		if err := ctrl.SelectPlan(s, id); err != nil {
			t.Fatalf("SelectPlan failed: %v", err)
		}
		if s.View != ViewViewPlan {
			t.Errorf("Expected view view_plan, got '%s'", s.View)
		}
		if s.Current.ID != id {
			t.Errorf("Expected current plan id '%s', got '%s'", id, s.Current.ID)
		}
		if s.Current.Timestamp == "" {
			t.Error("Expected the saved record to carry its timestamp")
		}
	})
}

func TestGoTo(t *testing.T) {
	ctrl, _ := newTestController(t, &stubGenerator{}, nil)

	t.Run("UnauthenticatedAlwaysLogin", func(t *testing.T) {
		s := New("s1")
		ctrl.GoTo(s, ViewHistory)
		if s.View != ViewLogin {
			t.Errorf("Expected view login, got '%s'", s.View)
		}
	})

	t.Run("AuthenticatedSwitch", func(t *testing.T) {
		s := New("s1")
		if err := ctrl.Login(s, "Mal", "MMM"); err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		ctrl.GoTo(s, ViewHistory)
		if s.View != ViewHistory {
			t.Errorf("Expected view history, got '%s'", s.View)
		}
		ctrl.GoTo(s, ViewMealPlanner)
		if s.View != ViewMealPlanner {
			t.Errorf("Expected view meal_planner, got '%s'", s.View)
		}
		// view_plan is only reachable through SelectPlan.
		ctrl.GoTo(s, ViewViewPlan)
		if s.View != ViewMealPlanner {
			t.Errorf("Expected view to stay meal_planner, got '%s'", s.View)
		}
	})
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	gen := &stubGenerator{text: "MEAL_PLAN_TEXT"}
	ctrl, _ := newTestController(t, gen, nil)

	s := New("s1")
	if err := ctrl.Login(s, "Zach", "ZML"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	prefs := plan.Preferences{GlutenFree: true, DairyFree: false, AdditionalInfo: "high-protein"}
	if err := ctrl.SubmitPreferences(ctx, s, prefs); err != nil {
		t.Fatalf("SubmitPreferences failed: %v", err)
	}
	if s.Current.MealPlan != "MEAL_PLAN_TEXT" {
		t.Fatalf("Expected current plan 'MEAL_PLAN_TEXT', got '%s'", s.Current.MealPlan)
	}

	id, err := ctrl.SaveCurrentPlan(s)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if id == "" {
		t.Fatal("Expected a non-empty plan id")
	}

	if err := ctrl.SelectPlan(s, id); err != nil {
		t.Fatalf("SelectPlan failed: %v", err)
	}
	if s.Current.MealPlan != "MEAL_PLAN_TEXT" {
		t.Errorf("Expected selected plan 'MEAL_PLAN_TEXT', got '%s'", s.Current.MealPlan)
	}
	if s.Current.Preferences != prefs {
		t.Errorf("Expected preferences to round-trip, got %+v", s.Current.Preferences)
	}
}

func TestUserHistoryOrder(t *testing.T) {
	s := New("s1")
	s.Authenticated = true
	s.Username = "Zach"
	s.History = history.History{
		"Zach": {
			"id-b": plan.Record{Timestamp: "2026-08-22 09:00:00"},
			"id-a": plan.Record{Timestamp: "2026-08-23 09:00:00"},
			"id-c": plan.Record{Timestamp: "2026-08-22 09:00:00"},
		},
	}

	entries := s.UserHistory()
	if len(entries) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(entries))
	}
	if entries[0].ID != "id-a" {
		t.Errorf("Expected newest entry first, got '%s'", entries[0].ID)
	}
	if entries[1].ID != "id-b" || entries[2].ID != "id-c" {
		t.Errorf("Expected timestamp ties broken by id, got %s then %s", entries[1].ID, entries[2].ID)
	}
}

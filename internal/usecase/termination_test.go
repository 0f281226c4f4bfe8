package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/usecase"
)

func TestTerminationService_TryFinalize_NotAllChildrenTerminalYet(t *testing.T) {
	sessions := newFakeSessionRepo()
	sessions.counts = domain.SessionCounts{Completed: 1, Failed: 0, Total: 3}
	lock := &fakeLock{acquireOK: true}
	svc := usecase.NewTerminationService(sessions, newFakeResultRepo(), lock, &fakeAggregator{}, time.Second, time.Minute, 200)

	if err := svc.TryFinalize(context.Background(), "session-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sessions.completeCalled {
		t.Fatal("expected no aggregation write before every child is terminal")
	}
	if lock.releaseCalls != 1 {
		t.Fatalf("expected the lock to be released exactly once, got %d", lock.releaseCalls)
	}
}

func TestTerminationService_TryFinalize_AllFailedSkipsAggregation(t *testing.T) {
	sessions := newFakeSessionRepo()
	sessions.counts = domain.SessionCounts{Completed: 0, Failed: 3, Total: 3}
	sessions.failOK = true
	lock := &fakeLock{acquireOK: true}
	agg := &fakeAggregator{}
	svc := usecase.NewTerminationService(sessions, newFakeResultRepo(), lock, agg, time.Second, time.Minute, 200)

	if err := svc.TryFinalize(context.Background(), "session-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sessions.completeCalled {
		t.Fatal("expected FailConditional, not CompleteConditional, when every child failed")
	}
}

func TestTerminationService_TryFinalize_CompletesWithAggregation(t *testing.T) {
	sessions := newFakeSessionRepo()
	sessions.counts = domain.SessionCounts{Completed: 2, Failed: 1, Total: 3}
	sessions.completeOK = true
	results := newFakeResultRepo()
	results.concerns = []string{"price too high", "great packaging"}
	results.scores = []int{8, 3}
	lock := &fakeLock{acquireOK: true}
	agg := &fakeAggregator{themes: []domain.ThemeCount{{Theme: "price", Mentions: 1}}}
	svc := usecase.NewTerminationService(sessions, results, lock, agg, time.Second, time.Minute, 200)

	if err := svc.TryFinalize(context.Background(), "session-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !sessions.completeCalled {
		t.Fatal("expected CompleteConditional to be called")
	}
	if sessions.insights.AverageScore != 5.5 {
		t.Fatalf("expected average score 5.5, got %v", sessions.insights.AverageScore)
	}
	if sessions.insights.PurchaseIntentPercent != 50 {
		t.Fatalf("expected 50%% high purchase intent, got %v", sessions.insights.PurchaseIntentPercent)
	}
	if len(sessions.insights.KeyThemes) != 1 {
		t.Fatalf("expected aggregator's themes to be carried through, got %+v", sessions.insights.KeyThemes)
	}
}

func TestTerminationService_TryFinalize_LockTimeoutIsRetriable(t *testing.T) {
	lock := &fakeLock{acquireOK: false}
	svc := usecase.NewTerminationService(newFakeSessionRepo(), newFakeResultRepo(), lock, &fakeAggregator{}, time.Second, time.Minute, 200)

	err := svc.TryFinalize(context.Background(), "session-1")
	if err == nil {
		t.Fatal("expected an error on lock acquisition timeout")
	}
	if !domain.IsRetriable(err) {
		t.Fatalf("expected a retriable error, got %v", err)
	}
}

func TestTerminationService_TryFinalize_AggregatorErrorPropagates(t *testing.T) {
	sessions := newFakeSessionRepo()
	sessions.counts = domain.SessionCounts{Completed: 1, Failed: 0, Total: 1}
	lock := &fakeLock{acquireOK: true}
	agg := &fakeAggregator{err: domain.NewRetriableError(domain.CodeAIServiceTransient, "upstream down")}
	svc := usecase.NewTerminationService(sessions, newFakeResultRepo(), lock, agg, time.Second, time.Minute, 200)

	err := svc.TryFinalize(context.Background(), "session-1")
	if err == nil {
		t.Fatal("expected aggregator error to propagate")
	}
	if sessions.completeCalled {
		t.Fatal("expected no finalize write when aggregation failed")
	}
}

package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/usecase"
)

func validPersonaRequest() usecase.PersonaRequest {
	return usecase.PersonaRequest{
		Gender:      domain.GenderFemale,
		Country:     "US",
		City:        "Austin",
		MinAge:      25,
		MaxAge:      40,
		IncomeLevel: domain.IncomeMedium,
		Interests:   []string{"fitness"},
		Count:       3,
		Model:       "test-model",
	}
}

func TestDispatchService_StartPersonaGeneration_Success(t *testing.T) {
	personas := newFakePersonaRepo()
	queue := &fakeQueue{}
	svc := usecase.NewDispatchService(personas, newFakeSessionRepo(), newFakeProductRepo(), queue, nil, time.Minute)

	id, err := svc.StartPersonaGeneration(context.Background(), "user-1", validPersonaRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id == "" {
		t.Fatal("expected a non-empty persona id")
	}
	if len(personas.createdIDs) != 3 {
		t.Fatalf("expected 3 created personas, got %d", len(personas.createdIDs))
	}
	if queue.personaCalls != 1 {
		t.Fatalf("expected exactly one batch enqueue, got %d", queue.personaCalls)
	}
}

func TestDispatchService_StartPersonaGeneration_InvalidCount(t *testing.T) {
	svc := usecase.NewDispatchService(newFakePersonaRepo(), newFakeSessionRepo(), newFakeProductRepo(), &fakeQueue{}, nil, time.Minute)

	req := validPersonaRequest()
	req.Count = 0
	_, err := svc.StartPersonaGeneration(context.Background(), "user-1", req)
	if err == nil {
		t.Fatal("expected validation error for count=0")
	}
	var ae *domain.AppError
	if as, ok := err.(*domain.AppError); ok {
		ae = as
	}
	if ae == nil || ae.Code != domain.CodeValidation {
		t.Fatalf("expected CodeValidation, got %v", err)
	}
}

func TestDispatchService_StartPersonaGeneration_IdempotentHit(t *testing.T) {
	idem := newFakeIdemCache()
	idem.reserved["idem:persona:user-1:abc"] = "existing-persona"
	queue := &fakeQueue{}
	svc := usecase.NewDispatchService(newFakePersonaRepo(), newFakeSessionRepo(), newFakeProductRepo(), queue, idem, time.Minute)

	req := validPersonaRequest()
	req.IdemKey = "abc"
	id, err := svc.StartPersonaGeneration(context.Background(), "user-1", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "existing-persona" {
		t.Fatalf("expected idempotent replay to return existing id, got %s", id)
	}
	if queue.personaCalls != 0 {
		t.Fatalf("expected no enqueue on idempotent hit, got %d calls", queue.personaCalls)
	}
}

func TestDispatchService_StartFeedbackSession_Success(t *testing.T) {
	products := newFakeProductRepo()
	products.owned["p1"] = domain.Product{ID: "p1"}
	personas := newFakePersonaRepo()
	personas.activeByID["pe1"] = domain.Persona{ID: "pe1", Status: domain.PersonaActive}
	queue := &fakeQueue{}

	svc := usecase.NewDispatchService(personas, newFakeSessionRepo(), products, queue, nil, time.Minute)

	sessionID, err := svc.StartFeedbackSession(context.Background(), "user-1", usecase.FeedbackSessionRequest{
		ProductIDs: []string{"p1"},
		PersonaIDs: []string{"pe1"},
		Language:   "en",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sessionID == "" {
		t.Fatal("expected non-empty session id")
	}
	if queue.feedbackCalls != 1 {
		t.Fatalf("expected one feedback task for a 1x1 matrix, got %d", queue.feedbackCalls)
	}
}

func TestDispatchService_StartFeedbackSession_PersonaNotReady(t *testing.T) {
	products := newFakeProductRepo()
	products.owned["p1"] = domain.Product{ID: "p1"}
	svc := usecase.NewDispatchService(newFakePersonaRepo(), newFakeSessionRepo(), products, &fakeQueue{}, nil, time.Minute)

	_, err := svc.StartFeedbackSession(context.Background(), "user-1", usecase.FeedbackSessionRequest{
		ProductIDs: []string{"p1"},
		PersonaIDs: []string{"missing-persona"},
		Language:   "en",
	})
	if err == nil {
		t.Fatal("expected error when persona is not ACTIVE/owned")
	}
	ae, ok := err.(*domain.AppError)
	if !ok || ae.Code != domain.CodePersonasNotReady {
		t.Fatalf("expected CodePersonasNotReady, got %v", err)
	}
}

func TestDispatchService_StartFeedbackSession_TooManyProducts(t *testing.T) {
	svc := usecase.NewDispatchService(newFakePersonaRepo(), newFakeSessionRepo(), newFakeProductRepo(), &fakeQueue{}, nil, time.Minute)

	_, err := svc.StartFeedbackSession(context.Background(), "user-1", usecase.FeedbackSessionRequest{
		ProductIDs: []string{"p1", "p2", "p3", "p4", "p5", "p6"},
		PersonaIDs: []string{"pe1"},
		Language:   "en",
	})
	if err == nil {
		t.Fatal("expected validation error for too many products")
	}
	ae, ok := err.(*domain.AppError)
	if !ok || ae.Code != domain.CodeTooManyProducts {
		t.Fatalf("expected CodeTooManyProducts, got %v", err)
	}
}

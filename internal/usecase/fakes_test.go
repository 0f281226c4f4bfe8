package usecase_test

import (
	"time"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
)

// Hand-rolled in-memory fakes for the usecase layer's port interfaces,
// grounded in the reference repo's mockery-generated repository mocks
// but written by hand since no generator is run in this workspace.

type fakePersonaRepo struct {
	createBatchErr  error
	createdIDs      []string
	nextID          int
	activeByID      map[string]domain.Persona
	listActiveErr   error
	personas        map[string]domain.Persona
}

func newFakePersonaRepo() *fakePersonaRepo {
	return &fakePersonaRepo{activeByID: map[string]domain.Persona{}, personas: map[string]domain.Persona{}}
}

func (f *fakePersonaRepo) CreateBatch(_ domain.Context, ownerUserID string, count int, ch domain.Characteristics) ([]string, error) {
	if f.createBatchErr != nil {
		return nil, f.createBatchErr
	}
	ids := make([]string, count)
	for i := range ids {
		f.nextID++
		id := idOf(f.nextID)
		ids[i] = id
		f.personas[id] = domain.Persona{ID: id, OwnerUserID: ownerUserID, Status: domain.PersonaGenerating, Characteristics: ch}
	}
	f.createdIDs = ids
	return ids, nil
}

func (f *fakePersonaRepo) GetOwned(_ domain.Context, _, id string) (domain.Persona, error) {
	p, ok := f.personas[id]
	if !ok {
		return domain.Persona{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakePersonaRepo) Get(_ domain.Context, id string) (domain.Persona, error) {
	p, ok := f.personas[id]
	if !ok {
		return domain.Persona{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakePersonaRepo) ListActiveOwnedByIDs(_ domain.Context, _ string, ids []string) ([]domain.Persona, error) {
	if f.listActiveErr != nil {
		return nil, f.listActiveErr
	}
	var out []domain.Persona
	for _, id := range ids {
		if p, ok := f.activeByID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakePersonaRepo) TryBeginGeneration(_ domain.Context, _ string, _ int) (bool, error) {
	return true, nil
}

func (f *fakePersonaRepo) CompleteGeneration(_ domain.Context, id, name, description, attitudes, model string) error {
	p := f.personas[id]
	p.Status = domain.PersonaActive
	p.Name = name
	p.DetailedDescription = description
	p.ProductAttitudes = attitudes
	p.Model = model
	f.personas[id] = p
	return nil
}

func (f *fakePersonaRepo) FailGeneration(_ domain.Context, id, _ string) error {
	p := f.personas[id]
	p.Status = domain.PersonaFailed
	f.personas[id] = p
	return nil
}

func idOf(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	return "persona-" + string(alphabet[n%len(alphabet)]) + string(rune('0'+n))
}

type fakeProductRepo struct {
	owned        map[string]domain.Product
	listOwnedErr error
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{owned: map[string]domain.Product{}}
}

func (f *fakeProductRepo) Create(_ domain.Context, p domain.Product) (string, error) {
	f.owned[p.ID] = p
	return p.ID, nil
}

func (f *fakeProductRepo) GetOwned(_ domain.Context, _, id string) (domain.Product, error) {
	p, ok := f.owned[id]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, nil
}

func (f *fakeProductRepo) ListOwnedByIDs(_ domain.Context, _ string, ids []string) ([]domain.Product, error) {
	if f.listOwnedErr != nil {
		return nil, f.listOwnedErr
	}
	var out []domain.Product
	for _, id := range ids {
		if p, ok := f.owned[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeSessionRepo struct {
	createErr        error
	nextResultID     int
	counts           domain.SessionCounts
	countsErr        error
	completeCalled   bool
	completeOK       bool
	failOK           bool
	insights         domain.AggregatedInsights
	resultsPage      []domain.FeedbackResultDetail
	resultsPageTotal int
	resultsPageErr   error
}

func newFakeSessionRepo() *fakeSessionRepo { return &fakeSessionRepo{} }

func (f *fakeSessionRepo) CreateWithResults(_ domain.Context, _, _ string, productIDs, personaIDs []string) (string, []string, error) {
	if f.createErr != nil {
		return "", nil, f.createErr
	}
	resultIDs := make([]string, len(productIDs)*len(personaIDs))
	for i := range resultIDs {
		f.nextResultID++
		resultIDs[i] = idOf(f.nextResultID)
	}
	return "session-1", resultIDs, nil
}

func (f *fakeSessionRepo) GetOwned(_ domain.Context, _, id string) (domain.FeedbackSession, error) {
	return domain.FeedbackSession{ID: id, Status: domain.SessionCompleted}, nil
}

func (f *fakeSessionRepo) GetOwnedWithResultsPage(_ domain.Context, _, id string, _, _ int) (domain.FeedbackSession, []domain.FeedbackResultDetail, int, error) {
	if f.resultsPageErr != nil {
		return domain.FeedbackSession{}, nil, 0, f.resultsPageErr
	}
	return domain.FeedbackSession{ID: id, Status: domain.SessionCompleted}, f.resultsPage, f.resultsPageTotal, nil
}

func (f *fakeSessionRepo) MarkInProgress(_ domain.Context, _ string) error { return nil }

func (f *fakeSessionRepo) Counts(_ domain.Context, _ string) (domain.SessionCounts, error) {
	return f.counts, f.countsErr
}

func (f *fakeSessionRepo) CompleteConditional(_ domain.Context, _ string, insights domain.AggregatedInsights) (bool, error) {
	f.completeCalled = true
	f.insights = insights
	return f.completeOK, nil
}

func (f *fakeSessionRepo) FailConditional(_ domain.Context, _ string) (bool, error) {
	return f.failOK, nil
}

type fakeResultRepo struct {
	listResults    []domain.FeedbackResultDetail
	listTotal      int
	listErr        error
	concerns       []string
	scores         []int
	concernsErr    error
}

func newFakeResultRepo() *fakeResultRepo { return &fakeResultRepo{} }

func (f *fakeResultRepo) Get(_ domain.Context, id string) (domain.FeedbackResult, error) {
	return domain.FeedbackResult{ID: id}, nil
}

func (f *fakeResultRepo) MarkInProgress(_ domain.Context, _ string) (bool, error) { return true, nil }

func (f *fakeResultRepo) Complete(_ domain.Context, _ string, _ string, _ int, _ []string) error {
	return nil
}

func (f *fakeResultRepo) Fail(_ domain.Context, _ string, _ string) error { return nil }

func (f *fakeResultRepo) ListPage(_ domain.Context, _ string, _, _ int) ([]domain.FeedbackResultDetail, int, error) {
	return f.listResults, f.listTotal, f.listErr
}

func (f *fakeResultRepo) ConcernsForAggregation(_ domain.Context, _ string) ([]string, []int, error) {
	return f.concerns, f.scores, f.concernsErr
}

type fakeQueue struct {
	personaCalls  int
	feedbackCalls int
	personaErr    error
	feedbackErr   error
}

func (f *fakeQueue) EnqueuePersona(_ domain.Context, _ domain.PersonaTaskPayload) error {
	f.personaCalls++
	return f.personaErr
}

func (f *fakeQueue) EnqueueFeedback(_ domain.Context, _ domain.FeedbackTaskPayload) error {
	f.feedbackCalls++
	return f.feedbackErr
}

type fakeIdemCache struct {
	reserved map[string]string
}

func newFakeIdemCache() *fakeIdemCache { return &fakeIdemCache{reserved: map[string]string{}} }

func (f *fakeIdemCache) Reserve(_ domain.Context, key, value string, _ time.Duration) (string, bool, error) {
	if existing, ok := f.reserved[key]; ok {
		return existing, true, nil
	}
	f.reserved[key] = value
	return "", false, nil
}

type fakeLock struct {
	acquireOK    bool
	acquireErr   error
	releaseCalls int
}

func (f *fakeLock) TryAcquire(_ domain.Context, _ string, _, _ time.Duration) (string, bool, error) {
	if f.acquireErr != nil {
		return "", false, f.acquireErr
	}
	return "token", f.acquireOK, nil
}

func (f *fakeLock) Release(_ domain.Context, _, _ string) error {
	f.releaseCalls++
	return nil
}

type fakeAggregator struct {
	themes []domain.ThemeCount
	err    error
}

func (f *fakeAggregator) AggregateThemes(_ domain.Context, _ []string) ([]domain.ThemeCount, error) {
	return f.themes, f.err
}

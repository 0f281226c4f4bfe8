package usecase

import (
	"log/slog"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
	obsctx "github.com/TIGERVENENO/persona-feedback-engine/internal/observability"
	"go.opentelemetry.io/otel"
)

// PageInfo is the pagination footer returned by GetFeedbackSession
// when a page is requested (§4.7).
type PageInfo struct {
	PageNumber int `json:"pageNumber"`
	PageSize   int `json:"pageSize"`
	TotalCount int `json:"totalCount"`
}

// SessionView is the Query Service's response DTO for §6's
// `GET /feedback-sessions/{id}` endpoint.
type SessionView struct {
	Session domain.FeedbackSession
	Results []domain.FeedbackResultDetail
	Page    *PageInfo
}

// QueryService implements the read-side Query Service of §4.7.
// Grounded on the reference repo's result-lookup usecase: ownership
// check, then a single transactionally-consistent join read.
type QueryService struct {
	Sessions domain.FeedbackSessionRepository
}

// NewQueryService constructs a QueryService with its dependencies.
func NewQueryService(sessions domain.FeedbackSessionRepository) QueryService {
	return QueryService{Sessions: sessions}
}

// GetFeedbackSession returns the session and its results page,
// ownership-checked against userID (I3). pageNumber/pageSize <= 0
// means "no pagination requested" and the full result set is returned.
// The session row and the results page are read within a single
// repository-level transaction (§4.7) so a concurrent terminal write
// can't be observed as applying to one but not the other.
func (s QueryService) GetFeedbackSession(ctx domain.Context, userID, sessionID string, pageNumber, pageSize int) (SessionView, error) {
	tr := otel.Tracer("usecase.query")
	ctx, span := tr.Start(ctx, "QueryService.GetFeedbackSession")
	defer span.End()
	lg := obsctx.LoggerFromContext(ctx)

	session, results, total, err := s.Sessions.GetOwnedWithResultsPage(ctx, userID, sessionID, pageNumber, pageSize)
	if err != nil {
		lg.Warn("query session not owned or not found", slog.String("session_id", sessionID), slog.Any("error", err))
		return SessionView{}, err
	}

	view := SessionView{Session: session, Results: results}
	if pageSize > 0 {
		view.Page = &PageInfo{PageNumber: pageNumber, PageSize: pageSize, TotalCount: total}
	}
	return view, nil
}

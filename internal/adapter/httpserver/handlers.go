// Package httpserver contains HTTP handlers and middleware for the
// persona/feedback-synthesis HTTP surface of §6.
package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/TIGERVENENO/persona-feedback-engine/internal/adapter/security"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/config"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/domain"
	"github.com/TIGERVENENO/persona-feedback-engine/internal/usecase"
)

var errUnauthorized = domain.NewAppError(domain.CodeMissingToken, "missing or invalid bearer token")

// Server aggregates handler dependencies, grounded on the reference
// repo's Server struct shape (config + usecases + readiness checks).
type Server struct {
	Cfg      config.Config
	Users    domain.UserRepository
	Products domain.ProductRepository
	Dispatch usecase.DispatchService
	Query    usecase.QueryService
	Tokens   *security.TokenManager
	DBCheck  func(ctx domain.Context) error
	RedisCheck func(ctx domain.Context) error
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type authResponse struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// HandleRegister implements POST /auth/register.
func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	hash, err := security.HashPassword(req.Password, s.Cfg.BcryptCost)
	if err != nil {
		writeError(w, r, domain.NewAppError(domain.CodeInternal, "password hashing failed").Wrap(err))
		return
	}
	id, err := s.Users.Create(r.Context(), domain.User{Email: req.Email, PasswordHash: hash})
	if err != nil {
		writeError(w, r, err)
		return
	}
	token, err := s.Tokens.Generate(id, s.Cfg.JWTTTL)
	if err != nil {
		writeError(w, r, domain.NewAppError(domain.CodeInternal, "token issuance failed").Wrap(err))
		return
	}
	writeJSON(w, http.StatusCreated, authResponse{UserID: id, Token: token})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// HandleLogin implements POST /auth/login.
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	u, err := s.Users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, r, domain.NewAppError(domain.CodeInvalidCredentials, "invalid email or password"))
		return
	}
	if !security.VerifyPassword(req.Password, u.PasswordHash) {
		writeError(w, r, domain.NewAppError(domain.CodeInvalidCredentials, "invalid email or password"))
		return
	}
	if !u.Active {
		writeError(w, r, domain.NewAppError(domain.CodeUserInactive, "account is inactive"))
		return
	}
	token, err := s.Tokens.Generate(u.ID, s.Cfg.JWTTTL)
	if err != nil {
		writeError(w, r, domain.NewAppError(domain.CodeInternal, "token issuance failed").Wrap(err))
		return
	}
	writeJSON(w, http.StatusOK, authResponse{UserID: u.ID, Token: token})
}

type createProductRequest struct {
	Name        string   `json:"name" validate:"required,max=200"`
	Description string   `json:"description" validate:"max=2000"`
	Price       *float64 `json:"price" validate:"omitempty,gte=0"`
	Currency    string   `json:"currency" validate:"omitempty,len=3"`
	Category    string   `json:"category" validate:"max=100"`
	Features    []string `json:"features" validate:"max=50,dive,max=200"`
}

type productResponse struct {
	ProductID string `json:"productId"`
}

// HandleCreateProduct implements POST /products. Not named in the
// distilled spec's operation list (products there are referenced by
// id only), but some write path must exist for StartFeedbackSession's
// owned-product precondition to ever be satisfiable, so this supplies
// the minimal one.
func (s *Server) HandleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	userID := UserIDFromContext(r.Context())
	id, err := s.Products.Create(r.Context(), domain.Product{
		OwnerUserID: userID,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Currency:    req.Currency,
		Category:    req.Category,
		Features:    req.Features,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, productResponse{ProductID: id})
}

type createPersonaRequest struct {
	Gender           string   `json:"gender" validate:"required,oneof=MALE FEMALE OTHER"`
	Country          string   `json:"country" validate:"required,len=2"`
	City             string   `json:"city" validate:"required,max=100"`
	MinAge           int      `json:"minAge" validate:"required,gte=13,lte=100"`
	MaxAge           int      `json:"maxAge" validate:"required,gte=13,lte=100"`
	ActivitySphere   string   `json:"activitySphere" validate:"required,max=100"`
	Profession       string   `json:"profession" validate:"required,max=100"`
	IncomeLevel      string   `json:"incomeLevel" validate:"required,oneof=LOW MEDIUM HIGH"`
	Interests        []string `json:"interests" validate:"required,min=1,max=20,dive,max=50"`
	AdditionalParams string   `json:"additionalParams" validate:"max=500"`
	Count            int      `json:"count" validate:"required,gte=1,lte=10"`
	Model            string   `json:"model" validate:"required,max=100"`
	IdemKey          string   `json:"idempotencyKey" validate:"max=200"`
}

type personaDispatchResponse struct {
	PersonaID string `json:"personaId"`
	Status    string `json:"status"`
}

// HandleStartPersonaGeneration implements POST /personas.
func (s *Server) HandleStartPersonaGeneration(w http.ResponseWriter, r *http.Request) {
	var req createPersonaRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	userID := UserIDFromContext(r.Context())
	id, err := s.Dispatch.StartPersonaGeneration(r.Context(), userID, usecase.PersonaRequest{
		Gender:           domain.Gender(req.Gender),
		Country:          req.Country,
		City:             req.City,
		MinAge:           req.MinAge,
		MaxAge:           req.MaxAge,
		ActivitySphere:   req.ActivitySphere,
		Profession:       req.Profession,
		IncomeLevel:      domain.IncomeLevel(req.IncomeLevel),
		Interests:        req.Interests,
		AdditionalParams: req.AdditionalParams,
		Count:            req.Count,
		Model:            req.Model,
		IdemKey:          req.IdemKey,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, personaDispatchResponse{PersonaID: id, Status: string(domain.PersonaGenerating)})
}

type createFeedbackSessionRequest struct {
	ProductIDs []string `json:"productIds" validate:"required,min=1,max=5,dive,required"`
	PersonaIDs []string `json:"personaIds" validate:"required,min=1,max=5,dive,required"`
	Language   string   `json:"language" validate:"required,len=2"`
	IdemKey    string   `json:"idempotencyKey" validate:"max=200"`
}

type sessionDispatchResponse struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
}

// HandleStartFeedbackSession implements POST /feedback-sessions.
func (s *Server) HandleStartFeedbackSession(w http.ResponseWriter, r *http.Request) {
	var req createFeedbackSessionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	userID := UserIDFromContext(r.Context())
	id, err := s.Dispatch.StartFeedbackSession(r.Context(), userID, usecase.FeedbackSessionRequest{
		ProductIDs: req.ProductIDs,
		PersonaIDs: req.PersonaIDs,
		Language:   req.Language,
		IdemKey:    req.IdemKey,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, sessionDispatchResponse{SessionID: id, Status: string(domain.SessionPending)})
}

// HandleGetFeedbackSession implements GET
// /feedback-sessions/{id}?page&size.
func (s *Server) HandleGetFeedbackSession(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "id")

	pageNumber, pageSize := 0, 0
	if p := r.URL.Query().Get("page"); p != "" {
		pageNumber, _ = strconv.Atoi(p)
	}
	if sz := r.URL.Query().Get("size"); sz != "" {
		pageSize, _ = strconv.Atoi(sz)
	}

	view, err := s.Query.GetFeedbackSession(r.Context(), userID, sessionID, pageNumber, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Routes registers every handler onto r under its §6 path.
func (s *Server) Routes(r chi.Router) {
	r.Post("/auth/register", s.HandleRegister)
	r.Post("/auth/login", s.HandleLogin)
	r.Get("/healthz", s.HandleHealthz)
	r.Get("/readyz", s.HandleReadyz)

	r.Group(func(pr chi.Router) {
		pr.Use(RequireAuth(s.Tokens))
		pr.Post("/products", s.HandleCreateProduct)
		pr.Post("/personas", s.HandleStartPersonaGeneration)
		pr.Post("/feedback-sessions", s.HandleStartFeedbackSession)
		pr.Get("/feedback-sessions/{id}", s.HandleGetFeedbackSession)
	})
}

type healthResponse struct {
	Status string `json:"status"`
}

// HandleHealthz is a liveness probe: it never touches dependencies.
func (s *Server) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// HandleReadyz is a readiness probe: it fails closed if Postgres or
// Redis is unreachable, matching the reference repo's dependency-aware
// readyz contract.
func (s *Server) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if s.DBCheck != nil {
		if err := s.DBCheck(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "db unavailable"})
			return
		}
	}
	if s.RedisCheck != nil {
		if err := s.RedisCheck(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "redis unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ready"})
}

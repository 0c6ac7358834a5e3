package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hearthweave/geocass/internal/common"
	"github.com/hearthweave/geocass/internal/middleware"
	"github.com/hearthweave/geocass/internal/models"
)

// maxKeyExpiryDays caps expires_in_days at ten years.
const maxKeyExpiryDays = 3650

// Request/response structs use snake_case JSON.

type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateKeyRequest struct {
	Label         string `json:"label"`
	ExpiresInDays int    `json:"expires_in_days"`
}

type AccountResponse struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name"`
	Email       string     `json:"email"`
	Bio         string     `json:"bio,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

type LoginResponse struct {
	Success bool            `json:"success"`
	User    AccountResponse `json:"user"`
	APIKey  string          `json:"api_key"`
}

type KeyResponse struct {
	ID         string     `json:"id"`
	KeyPrefix  string     `json:"key_prefix"`
	Label      string     `json:"label,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

type KeyCreatedResponse struct {
	KeyResponse
	Key string `json:"key"`
}

type Handler struct {
	svc Service
	log *slog.Logger
}

func NewHandler(svc Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// POST /api/v1/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return
	}
	acc, err := h.svc.Register(r.Context(), RegisterInput(req))
	if err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, AccountToResponse(acc))
}

// POST /api/v1/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := common.DecodeJSON(w, r, &req); err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		common.RespondWithError(w, http.StatusBadRequest, common.CodeInvalidInput, "missing email or password")
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, LoginResponse{
		Success: true,
		User:    AccountToResponse(res.Account),
		APIKey:  res.Key.Plaintext,
	})
}

// POST /api/v1/keys
func (h *Handler) CreateKey(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		common.RespondWithErr(w, r, h.log, common.ErrUnauthenticated)
		return
	}
	var req CreateKeyRequest
	if r.ContentLength != 0 {
		if err := common.DecodeJSON(w, r, &req); err != nil {
			common.RespondWithErr(w, r, h.log, err)
			return
		}
	}
	if req.ExpiresInDays < 0 || req.ExpiresInDays > maxKeyExpiryDays {
		common.RespondWithError(w, http.StatusBadRequest, common.CodeInvalidInput,
			fmt.Sprintf("expires_in_days must be between 0 and %d", maxKeyExpiryDays))
		return
	}
	ttl := time.Duration(req.ExpiresInDays) * 24 * time.Hour
	issued, err := h.svc.IssueKey(r.Context(), p.Account.ID, req.Label, ttl)
	if err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, KeyCreatedResponse{
		KeyResponse: keyToResponse(issued.Key),
		Key:         issued.Plaintext,
	})
}

// GET /api/v1/keys
func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		common.RespondWithErr(w, r, h.log, common.ErrUnauthenticated)
		return
	}
	keys, err := h.svc.ListKeys(r.Context(), p.Account.ID)
	if err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return
	}
	out := make([]KeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, keyToResponse(k))
	}
	common.RespondWithJSON(w, http.StatusOK, out)
}

// DELETE /api/v1/keys/{id}
func (h *Handler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	p := middleware.PrincipalFromCtx(r.Context())
	if p == nil {
		common.RespondWithErr(w, r, h.log, common.ErrUnauthenticated)
		return
	}
	keyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.RespondWithErr(w, r, h.log, fmt.Errorf("%w: api key not found", common.ErrNotFound))
		return
	}
	if err := h.svc.RevokeKey(r.Context(), p.Account.ID, keyID, p.Key.ID); err != nil {
		common.RespondWithErr(w, r, h.log, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": keyID})
}

func AccountToResponse(a *models.Account) AccountResponse {
	return AccountResponse{
		ID:          a.ID.String(),
		Username:    a.Username,
		DisplayName: a.DisplayName,
		Email:       a.Email,
		Bio:         a.Bio,
		CreatedAt:   a.CreatedAt,
		LastLoginAt: a.LastLoginAt,
	}
}

func keyToResponse(k *models.APIKey) KeyResponse {
	return KeyResponse{
		ID:         k.ID.String(),
		KeyPrefix:  k.KeyPrefix,
		Label:      k.Label,
		CreatedAt:  k.CreatedAt,
		LastUsedAt: k.LastUsedAt,
		ExpiresAt:  k.ExpiresAt,
	}
}

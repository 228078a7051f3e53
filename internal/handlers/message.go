package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"

	"github.com/diewo77/go-messages/internal/httpx"
	"github.com/diewo77/go-messages/internal/middleware"
	"github.com/diewo77/go-messages/internal/models"
	"github.com/diewo77/go-messages/internal/validation"
)

type MessageHandler struct {
	DB *gorm.DB
}

func NewMessageHandler(db *gorm.DB) *MessageHandler { return &MessageHandler{DB: db} }

type messageInput struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (in *messageInput) validate() validation.Violations {
	v := validation.Violations{}
	validation.Required("title", in.Title, v)
	validation.MaxLen("title", in.Title, 255, v)
	validation.Required("body", in.Body, v)
	return v
}

// List handles GET /messages. Admins see everything with the owner's id and
// name attached; everyone else sees only their own records.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthenticated", nil)
		return
	}
	q := h.DB.WithContext(r.Context())
	if ident.Role == models.RoleAdmin {
		q = q.Preload("User", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "name")
		})
	} else {
		q = q.Where("user_id = ?", ident.UserID)
	}
	var msgs []models.Message
	if err := q.Order("id").Find(&msgs).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "db error", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, msgs)
}

// Create handles POST /messages. The owner is always the caller.
func (h *MessageHandler) Create(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthenticated", nil)
		return
	}
	var in messageInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if v := in.validate(); !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation failed", v)
		return
	}
	msg := models.Message{Title: in.Title, Body: in.Body, UserID: ident.UserID}
	if err := h.DB.WithContext(r.Context()).Create(&msg).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "db error", nil)
		return
	}
	httpx.JSON(w, http.StatusCreated, msg)
}

// Show handles GET /messages/{id}.
func (h *MessageHandler) Show(w http.ResponseWriter, r *http.Request) {
	msg := h.load(w, r)
	if msg == nil {
		return
	}
	httpx.JSON(w, http.StatusOK, msg)
}

// Update handles PUT /messages/{id}.
func (h *MessageHandler) Update(w http.ResponseWriter, r *http.Request) {
	msg := h.load(w, r)
	if msg == nil {
		return
	}
	var in messageInput
	if err := httpx.Decode(r, &in); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if v := in.validate(); !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation failed", v)
		return
	}
	if err := h.DB.WithContext(r.Context()).Model(msg).
		Updates(map[string]any{"title": in.Title, "body": in.Body}).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "db error", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, msg)
}

// Delete handles DELETE /messages/{id}.
func (h *MessageHandler) Delete(w http.ResponseWriter, r *http.Request) {
	msg := h.load(w, r)
	if msg == nil {
		return
	}
	if err := h.DB.WithContext(r.Context()).Delete(msg).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "db error", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "message deleted successfully"})
}

// load fetches the addressed message within the caller's scope. A record the
// caller does not own reads as 404, indistinguishable from absent. On failure
// the response has been written and nil is returned.
func (h *MessageHandler) load(w http.ResponseWriter, r *http.Request) *models.Message {
	ident, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		httpx.JSONError(w, http.StatusUnauthorized, "unauthenticated", nil)
		return nil
	}
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.JSONError(w, http.StatusNotFound, "message not found", nil)
		return nil
	}
	q := h.DB.WithContext(r.Context())
	if ident.Role != models.RoleAdmin {
		q = q.Where("user_id = ?", ident.UserID)
	}
	var msg models.Message
	if err := q.First(&msg, uint(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			httpx.JSONError(w, http.StatusNotFound, "message not found", nil)
		} else {
			httpx.JSONError(w, http.StatusInternalServerError, "db error", nil)
		}
		return nil
	}
	return &msg
}

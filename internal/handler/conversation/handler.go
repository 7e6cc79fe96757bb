package conversation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voidworks/venting-vault/backend/internal/model/companion"
	conversationService "github.com/voidworks/venting-vault/backend/internal/service/conversation"
	"github.com/voidworks/venting-vault/backend/pkg/utils"
)

// Handler exposes the vault conversation over HTTP.
type Handler struct {
	convSvc *conversationService.Service
	comp    companion.Companion
}

// New creates the conversation handler.
func New(convSvc *conversationService.Service, comp companion.Companion) *Handler {
	return &Handler{convSvc: convSvc, comp: comp}
}

// RegisterRoutes registers the vault routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/vault/messages", h.handleListMessages)
	r.Post("/vault/messages", h.handleSubmitText)
	r.Post("/vault/prompts", h.handleInsertPrompt)
	r.Get("/vault/lifeline", h.handleLifeline)
}

func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"messages": h.convSvc.Messages(),
	})
}

func (h *Handler) handleSubmitText(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	messages, err := h.convSvc.SubmitText(r.Context(), payload.Text)
	if err != nil {
		if errors.Is(err, conversationService.ErrEmptyMessage) {
			utils.RespondError(w, http.StatusBadRequest, "text is required")
			return
		}
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"messages": messages,
	})
}

func (h *Handler) handleInsertPrompt(w http.ResponseWriter, r *http.Request) {
	msg, err := h.convSvc.InsertPrompt(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusCreated, msg)
}

func (h *Handler) handleLifeline(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"lifeline": h.comp.Lifeline,
	})
}

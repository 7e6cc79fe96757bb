package companion

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	companionModel "github.com/voidworks/venting-vault/backend/internal/model/companion"
	"github.com/voidworks/venting-vault/backend/pkg/utils"
)

// Handler serves the companion profile the client renders against.
type Handler struct {
	comp companionModel.Companion
}

// New creates the companion handler.
func New(comp companionModel.Companion) *Handler {
	return &Handler{comp: comp}
}

// RegisterRoutes registers the profile route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/companion", h.handleGetCompanion)
}

func (h *Handler) handleGetCompanion(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.comp)
}

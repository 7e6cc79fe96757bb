package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	companionHandler "github.com/voidworks/venting-vault/backend/internal/handler/companion"
	conversationHandler "github.com/voidworks/venting-vault/backend/internal/handler/conversation"
	voiceHandler "github.com/voidworks/venting-vault/backend/internal/handler/voice"
	middlewarePkg "github.com/voidworks/venting-vault/backend/internal/middleware"
	companionModel "github.com/voidworks/venting-vault/backend/internal/model/companion"
	conversationService "github.com/voidworks/venting-vault/backend/internal/service/conversation"
	"github.com/voidworks/venting-vault/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(comp companionModel.Companion, convSvc *conversationService.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	conversationH := conversationHandler.New(convSvc, comp)
	companionH := companionHandler.New(comp)
	voiceH := voiceHandler.New(convSvc)

	r.Route("/api", func(api chi.Router) {
		conversationH.RegisterRoutes(api)
		companionH.RegisterRoutes(api)
		voiceH.RegisterRoutes(api)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

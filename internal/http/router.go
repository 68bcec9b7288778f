package http

import (
	"net/http"
)

type RouterConfig struct {
	Events        *EventHandler
	Notifications *NotificationHandler
	// Authenticate wraps every route except /healthz.
	Authenticate func(http.Handler) http.Handler
	Middleware   []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	api := http.NewServeMux()

	if cfg.Events != nil {
		api.HandleFunc("GET /events", cfg.Events.List)
		api.HandleFunc("POST /events", cfg.Events.Create)
		api.HandleFunc("GET /events/{id}", cfg.Events.Get)
		api.HandleFunc("PUT /events/{id}/slots", cfg.Events.ProposeSlots)
		api.HandleFunc("POST /events/{id}/slots/approve", cfg.Events.ApproveSlots)
		api.HandleFunc("POST /events/{id}/slots/reject", cfg.Events.RejectSlots)
		api.HandleFunc("POST /events/{id}/slots/{slotID}/approve", cfg.Events.ApproveSlot)
		api.HandleFunc("POST /events/{id}/slots/{slotID}/reject", cfg.Events.RejectSlot)
		api.HandleFunc("GET /events/{id}/slots/{slotID}/status", cfg.Events.SlotStatus)
		api.HandleFunc("POST /events/{id}/actions", cfg.Events.OperatorAction)
	}
	if cfg.Notifications != nil {
		api.HandleFunc("GET /notifications", cfg.Notifications.Stream)
	}

	var protected http.Handler = api
	if cfg.Authenticate != nil {
		protected = cfg.Authenticate(api)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		newResponder(nil).writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("/", protected)

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}

	return handler
}

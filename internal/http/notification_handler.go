package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/example/lims-calendar/internal/notify"
)

type notificationSource interface {
	Subscribe(buffer int) (<-chan notify.Notification, func())
}

// NotificationHandler streams committed event changes as server-sent events.
// Members only receive notifications about their own events.
type NotificationHandler struct {
	source    notificationSource
	buffer    int
	responder responder
	logger    *slog.Logger
}

// NewNotificationHandler serves notifications from source as a
// server-sent event stream. buffer sizes each subscriber's queue.
func NewNotificationHandler(source notificationSource, buffer int, logger *slog.Logger) *NotificationHandler {
	logger = defaultLogger(logger)
	return &NotificationHandler{source: source, buffer: buffer, responder: newResponder(logger), logger: logger}
}

// Stream holds the connection open and writes one server-sent event per
// notification until the client goes away or the source closes. Members only
// receive notifications for events they own.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.source == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.responder.writeError(r.Context(), w, http.StatusInternalServerError, fmt.Errorf("streaming unsupported"))
		return
	}

	principal, _ := PrincipalFromContext(r.Context())
	logger := handlerLogger(r.Context(), h.logger, "NotificationHandler", "Stream", "principal_id", principal.UserID)

	updates, cancel := h.source.Subscribe(h.buffer)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()
	logger.InfoContext(r.Context(), "notification stream opened")

	for {
		select {
		case <-r.Context().Done():
			logger.InfoContext(r.Context(), "notification stream closed by client")
			return
		case n, open := <-updates:
			if !open {
				logger.InfoContext(r.Context(), "notification stream closed by server")
				return
			}
			if !principal.IsOperator() && n.OwnerID != principal.UserID {
				continue
			}
			payload, err := json.Marshal(n)
			if err != nil {
				logger.ErrorContext(r.Context(), "failed to encode notification", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Kind, payload)
			flusher.Flush()
		}
	}
}

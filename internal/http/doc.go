// Package http exposes the calendar event API over JSON.
//
// The router exposes the following endpoints. Every route except /healthz
// requires an `Authorization: Bearer <userID>.<secret>` header.
//   - GET /healthz: liveness probe.
//   - GET /events, POST /events: list visible events, create an event with its
//     initial slot. Body: `createEventRequest` in event_handler.go.
//   - GET /events/{id}: one event. Responses carry `ETag: "<version>"`.
//   - PUT /events/{id}/slots: replace the pending proposal. Body: {"slots": [...]}.
//   - POST /events/{id}/slots/approve, POST /events/{id}/slots/reject: batch
//     decisions. Body: {"slotIds": [...], "reason": "..."}.
//   - POST /events/{id}/slots/{slotID}/approve, POST /events/{id}/slots/{slotID}/reject:
//     single slot decisions. Body (optional): {"reason": "..."}.
//   - GET /events/{id}/slots/{slotID}/status: new, approved or pending.
//   - POST /events/{id}/actions: operator transitions VALIDATE, CANCEL, MOVE,
//     REOPEN and START. Body: {"action", "reason", "slots"}.
//   - GET /notifications: server-sent event stream of committed changes.
//
// Mutating requests honour `If-Match: "<version>"`; a stale version answers
// 409. Slot times use the wall-clock layout 2006-01-02T15:04:05.
package http

// Package http provides the dashboard API handlers and middleware.
//
// The router exposes the following endpoints:
//   - POST /sessions: issues a session token. Body: {"password"}. Response:
//     {"token","expiresAt"} with the token also surfaced via the
//     `X-Session-Token` header and a `session_token` cookie.
//   - DELETE /sessions/current: revokes the token extracted from the
//     Authorization header or session cookie. Returns 204 and clears the
//     cookie. Both session endpoints are only registered when a dashboard
//     password is configured, and they sit outside the session guard so
//     login stays reachable.
//   - GET /status: orchestrator snapshot (last run, connectivity, counters).
//   - POST /sync: runs one cycle synchronously; 409 while one is in flight.
//   - GET /preview, GET /preview/upcoming: display items from the last cycle
//     and a freshly computed upcoming listing.
//   - PUT /apply-mode: flips the controller write switch. Body:
//     {"applyToUnifi"}; responds with the persisted state.
//   - GET /approvals, POST /approvals/{id}/approve, POST /approvals/{id}/deny:
//     the pending-approval queue.
//   - GET /cancellations, POST /cancellations, DELETE /cancellations/{id}:
//     per-instance exclusions.
//   - GET|PUT /mapping, /office-hours, /overrides, /safe-hours,
//     /approved-names: operator documents exchanged in their on-disk JSON
//     schemas, validated before write.
//   - GET /memory: remembered event names with last and next occurrences.
//   - GET /unifi/doors: door discovery against the live controller.
//
// Request/response DTOs live alongside their respective handlers so tests and
// documentation share the same ground truth.
package http

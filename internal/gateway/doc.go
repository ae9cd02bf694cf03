// Package gateway wires the keepy-gateway server components together.
//
// The Gateway owns the session registry, the webhook dispatcher, and the
// HTTP server fronting both. Requests are authenticated with a static bearer
// secret except for the two status endpoints.
//
// # HTTP API
//
//   - GET  /                       - service status and session count
//   - GET  /health                 - session summaries, memory stats, uptime
//   - POST /session/start          - register a session, pairing runs in background
//   - GET  /session/{id}/status    - lifecycle state; absent sessions are 200 exists:false
//   - POST /session/{id}/logout    - unpair and remove a session
//   - POST /message/send           - send a text message
//   - POST /message/send-file      - send a base64-encoded document
//   - GET  /sessions               - list active sessions
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled, then shuts down
//
// With tailscale.enabled the HTTP API is served on a tsnet node instead of
// a local TCP listener, optionally exposed publicly through Funnel.
package gateway

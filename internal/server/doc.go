// Package server serves registered sites and the sync WebSocket endpoint.
//
// Routes (prefixes are configurable):
//
//	GET /api/webgalsync          WebSocket upgrade into the connection hub
//	GET /game/{id}               301 to /game/{id}/
//	GET /game/{id}/{path...}     static content from the site's root
//	GET /status, /health         liveness
//
// A Supervisor owns the listener. Start always retires the previous listener
// before binding a new one and, when the requested port is taken, falls back
// to a port picked by the OS. AppState is created once per process and
// handed to every router, so sites and connected clients survive a restart.
package server

// Package server provides the Admin API, the external-interface layer that
// manages the proxy registry, mock library, and request history without
// itself touching application traffic.
//
// # Architecture
//
// The server package ties together:
//   - pkg/registry for proxy lifecycle (create/start/stop/update/delete)
//   - pkg/mockstore for the mock library (add/remove/toggle/import/export)
//   - pkg/recorder, reached through the registry, for per-proxy request
//     history (list/clear/send_via)
//   - pkg/telemetry/health and pkg/telemetry/metrics for /health, /ready,
//     and /metrics
//
// # Basic Usage
//
//	reg := registry.New(cfg.Proxies, mocks, bus, store, ca)
//	srv := server.NewServer(cfg.Server, cfg.Licensing, reg, mocks, store, bus, checker, m)
//	if err := srv.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Routes
//
//	GET    /health                                  liveness probe
//	GET    /ready                                    readiness probe
//	GET    /metrics                                  Prometheus exposition
//	GET    /api/proxies                              list
//	POST   /api/proxies                              create
//	PUT    /api/proxies/{kind}/{port}                 update
//	DELETE /api/proxies/{kind}/{port}                 delete
//	POST   /api/proxies/{kind}/{port}/start           start
//	POST   /api/proxies/{kind}/{port}/stop            stop
//	POST   /api/proxies/{kind}/{port}/enable          enable
//	POST   /api/proxies/{kind}/{port}/disable         disable
//	POST   /api/proxies/{kind}/{port}/force_start     force_start
//	GET    /api/proxies/{kind}/{port}/verify_status   verify_status
//	POST   /api/admin/restart_all                     restart_all
//	GET    /api/admin/diagnose                        diagnose
//	GET    /api/mocks?port=                           list
//	POST   /api/mocks                                 add
//	PUT    /api/mocks/{id}                            update
//	DELETE /api/mocks/{id}                            remove
//	POST   /api/mocks/{id}/toggle                     toggle
//	GET    /api/mocks/export                          export
//	POST   /api/mocks/import                          import
//	GET    /api/requests?kind=&port=                  list
//	DELETE /api/requests?kind=&port=                  clear
//	POST   /api/requests/send_via                     send_via
//	POST   /api/settings/testing_mode                 testing-mode toggle
//	GET    /api/license                               license gate
//
// # Middleware Chain
//
// Requests pass through the following middleware (innermost to outermost):
//  1. Timeout: enforces a per-request timeout
//  2. CORS: adds Cross-Origin Resource Sharing headers, for a local web view
//  3. RequestID: generates a unique request ID for tracing
//  4. Logging: logs request/response details
//  5. Recovery: recovers from panics and returns a wireerr.Result
//
// Every admin operation returns a typed {ok, kind, message, details} result
// on failure (see pkg/wireerr) rather than letting a Go error cross the
// boundary untranslated.
package server

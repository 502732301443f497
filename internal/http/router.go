package httpserver

import "net/http"

// Routes groups handlers.
type Routes struct {
	Telemetry      http.HandlerFunc
	SessionEnd     http.HandlerFunc
	Verify         http.HandlerFunc
	SessionsMe     http.HandlerFunc
	GrantsMe       http.HandlerFunc
	WalletMe       http.HandlerFunc
	TelemetryWS    http.HandlerFunc
	Health         http.HandlerFunc
	AuthMiddleware func(http.Handler) http.Handler
}

// NewRouter registers endpoints. Driver-facing reads go through the auth
// middleware; internal callbacks and the telemetry feed do not.
func NewRouter(routes Routes) http.Handler {
	mux := http.NewServeMux()
	if routes.Telemetry != nil {
		mux.Handle("/internal/telemetry", method(http.MethodPost, routes.Telemetry))
	}
	if routes.SessionEnd != nil {
		mux.Handle("/internal/sessions/end", method(http.MethodPost, routes.SessionEnd))
	}
	if routes.Verify != nil {
		mux.Handle("/verify", method(http.MethodPost, routes.Verify))
	}
	if routes.SessionsMe != nil {
		mux.Handle("/sessions/me", authed(routes.AuthMiddleware, method(http.MethodGet, routes.SessionsMe)))
	}
	if routes.GrantsMe != nil {
		mux.Handle("/grants/me", authed(routes.AuthMiddleware, method(http.MethodGet, routes.GrantsMe)))
	}
	if routes.WalletMe != nil {
		mux.Handle("/wallet/me", authed(routes.AuthMiddleware, method(http.MethodGet, routes.WalletMe)))
	}
	if routes.TelemetryWS != nil {
		mux.Handle("/telemetry/ws", method(http.MethodGet, routes.TelemetryWS))
	}
	if routes.Health != nil {
		mux.Handle("/health", method(http.MethodGet, routes.Health))
	}
	return mux
}

func method(expected string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != expected {
			w.Header().Set("Allow", expected)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		handler(w, r)
	}
}

func authed(mw func(http.Handler) http.Handler, handler http.Handler) http.Handler {
	if mw == nil {
		return handler
	}
	return mw(handler)
}

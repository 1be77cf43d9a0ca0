// Package httpapi exposes the authentication flows over HTTP.
package httpapi

import (
	"encoding/json"
	"net/http"

	"staffgate.org/internal/auth"
	"staffgate.org/internal/obs"
	"staffgate.org/internal/token"
)

// maxBodyBytes bounds request bodies; every payload here is small.
const maxBodyBytes = 1 << 16

// API wires the auth service into HTTP handlers.
type API struct {
	svc    *auth.Service
	tokens *token.Service

	version string
	commit  string
	ready   func() error
}

// Option configures the API.
type Option func(*API)

// WithBuildInfo sets the version and commit reported by /v1/info.
func WithBuildInfo(version, commit string) Option {
	return func(a *API) {
		a.version = version
		a.commit = commit
	}
}

// WithReadiness sets the probe behind /readyz, typically a DB ping.
func WithReadiness(probe func() error) Option {
	return func(a *API) { a.ready = probe }
}

// New builds the API around the auth service.
func New(svc *auth.Service, tokens *token.Service, opts ...Option) *API {
	a := &API{
		svc:     svc,
		tokens:  tokens,
		version: "dev",
		commit:  "none",
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Handler returns the routed and instrumented handler tree.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/auth/login", a.handleLogin)
	mux.HandleFunc("POST /v1/auth/token", a.handleToken)
	mux.HandleFunc("POST /v1/auth/register-request", a.handleRegisterRequest)
	mux.HandleFunc("POST /v1/auth/register-verify", a.handleRegisterVerify)
	mux.HandleFunc("POST /v1/auth/register", a.handleRegister)
	mux.HandleFunc("POST /v1/auth/forgot-password", a.handleForgotPassword)
	mux.HandleFunc("POST /v1/auth/reset-password", a.handleResetPassword)
	mux.HandleFunc("POST /v1/auth/change-password", a.handleChangePassword)
	mux.HandleFunc("GET /v1/auth/public-key", a.handlePublicKey)

	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("GET /readyz", a.handleReadyz)
	mux.HandleFunc("GET /v1/info", a.handleInfo)
	mux.Handle("GET /metrics", obs.Handler())

	var h http.Handler = mux
	h = MaxBodyBytes(maxBodyBytes)(h)
	h = obs.Instrument(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return h
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		if err := a.ready(); err != nil {
			writeError(w, http.StatusServiceUnavailable, "not_ready", "dependency unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (a *API) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "staffgate-api",
		"version": a.version,
		"commit":  a.commit,
	})
}

func (a *API) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	pemBytes, err := a.tokens.PublicKeyPEM()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "cannot export key")
		return
	}
	w.Header().Set("Content-Type", "application/x-pem-file")
	w.WriteHeader(http.StatusOK)
	w.Write(pemBytes)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		obs.LogError("write response failed", map[string]any{"error": err.Error()})
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return false
	}
	return true
}

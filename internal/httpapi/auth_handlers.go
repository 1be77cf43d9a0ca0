package httpapi

import (
	"errors"
	"net/http"

	"staffgate.org/internal/auth"
)

type loginRequest struct {
	Identifier  string `json:"identifier"`
	Password    string `json:"password"`
	AppID       string `json:"app_id"`
	RedirectURI string `json:"redirect_uri"`
}

type loginResponse struct {
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	code, err := a.svc.Login(r.Context(), clientIP(r), req.Identifier, req.Password, req.AppID, req.RedirectURI)
	if err != nil {
		a.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{Code: code, RedirectURI: req.RedirectURI})
}

type tokenRequest struct {
	AppID        string `json:"app_id"`
	ClientSecret string `json:"client_secret"`
	Code         string `json:"code"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (a *API) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := a.svc.ExchangeCode(r.Context(), req.AppID, req.ClientSecret, req.Code)
	if err != nil {
		a.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: res.AccessToken,
		TokenType:   res.TokenType,
		ExpiresIn:   res.ExpiresIn,
	})
}

type registerRequestBody struct {
	Identifier string `json:"identifier"`
}

func (a *API) handleRegisterRequest(w http.ResponseWriter, r *http.Request) {
	var req registerRequestBody
	if !decodeJSON(w, r, &req) {
		return
	}

	tok, err := a.svc.StartRegistration(r.Context(), req.Identifier)
	if err != nil {
		a.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"registration_token": tok})
}

type registerVerifyBody struct {
	RegistrationToken string `json:"registration_token"`
	Name              string `json:"name"`
	Extension         string `json:"extension"`
}

func (a *API) handleRegisterVerify(w http.ResponseWriter, r *http.Request) {
	var req registerVerifyBody
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := a.svc.VerifyIdentity(r.Context(), req.RegistrationToken, req.Name, req.Extension); err != nil {
		a.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "pending_approval"})
}

type registerBody struct {
	OperatorToken string `json:"operator_token"`
	Password      string `json:"password"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerBody
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := a.svc.CompleteRegistration(r.Context(), req.OperatorToken, req.Password); err != nil {
		a.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req registerRequestBody
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := a.svc.RequestRecovery(r.Context(), clientIP(r), req.Identifier); err != nil {
		a.writeAuthError(w, err)
		return
	}
	// Identical answer whether or not the account exists.
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req registerBody
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := a.svc.ResetPassword(r.Context(), req.OperatorToken, req.Password); err != nil {
		a.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_reset"})
}

type changePasswordBody struct {
	Identifier      string `json:"identifier"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordBody
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := a.svc.ChangePassword(r.Context(), req.Identifier, req.CurrentPassword, req.NewPassword); err != nil {
		a.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

// writeAuthError maps service errors onto the wire. The mapping is part of
// the protocol: credential failures stay generic, policy denials name the
// failing rule, and every code defect is the same invalid_grant.
func (a *API) writeAuthError(w http.ResponseWriter, err error) {
	var denied *auth.PolicyDeniedError

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid identifier or password")
	case errors.Is(err, auth.ErrInvalidClient):
		writeError(w, http.StatusUnauthorized, "invalid_client", "unknown application or bad client secret")
	case errors.Is(err, auth.ErrInvalidGrant):
		writeError(w, http.StatusBadRequest, "invalid_grant", "authorization code is invalid")
	case errors.Is(err, auth.ErrRedirectMismatch):
		writeError(w, http.StatusBadRequest, "invalid_redirect_uri", "redirect URI does not match registration")
	case errors.Is(err, auth.ErrStaffNotFound):
		writeError(w, http.StatusBadRequest, "staff_not_found", "no personnel record for subject")
	case errors.Is(err, auth.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "rate_limited", "too many attempts, retry later")
	case errors.As(err, &denied):
		writeError(w, http.StatusForbidden, "access_denied", denied.Error())
	case errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, "invalid_token", "registration token is invalid")
	case errors.Is(err, auth.ErrIdentityMismatch):
		writeError(w, http.StatusBadRequest, "identity_mismatch", "verification details do not match")
	case errors.Is(err, auth.ErrPasswordPolicy):
		writeError(w, http.StatusBadRequest, "weak_password", "password does not meet policy")
	case errors.Is(err, auth.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "already_registered", "subject is already registered")
	case errors.Is(err, auth.ErrNotRegistered):
		writeError(w, http.StatusBadRequest, "not_registered", "subject has not completed registration")
	case errors.Is(err, auth.ErrTransient):
		writeError(w, http.StatusServiceUnavailable, "unavailable", "temporarily unavailable, retry later")
	case errors.Is(err, auth.ErrConfig):
		writeError(w, http.StatusInternalServerError, "configuration_error", "deployment configuration error")
	default:
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

package httpapi

import (
	"net/http"

	"github.com/Ahmedtambal/ZomiSaas-sub001/internal/auth"
)

type sessionResponse struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int64      `json:"expires_in"`
	User         *auth.User `json:"user"`
}

func renderSession(s *auth.Session) sessionResponse {
	return sessionResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    s.ExpiresIn,
		User:         s.User,
	}
}

// handleSignupAdmin creates an organization and its owning account.
func (a *API) handleSignupAdmin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var in auth.SignupAdminInput
	if !decodeJSON(w, r, &in) {
		return
	}
	session, err := a.svc.SignupAdmin(r.Context(), in)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderSession(session))
}

// handleSignupUser joins an existing organization through an invite code.
func (a *API) handleSignupUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var in auth.SignupUserInput
	if !decodeJSON(w, r, &in) {
		return
	}
	session, err := a.svc.SignupUser(r.Context(), in)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, renderSession(session))
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	session, err := a.svc.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderSession(session))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	session, err := a.svc.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, renderSession(session))
}

// handleLogout revokes the presented refresh token. It always succeeds so a
// client can safely retry.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var in struct {
		RefreshToken string `json:"refresh_token"`
	}
	if !decodeJSON(w, r, &in) {
		return
	}
	if err := a.svc.Logout(r.Context(), in.RefreshToken); err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// handleMe returns the calling user's profile.
func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		handleAuthError(w, r, auth.ErrUnauthenticated)
		return
	}
	user, err := a.svc.Store().Users().Find(r.Context(), p.UserID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

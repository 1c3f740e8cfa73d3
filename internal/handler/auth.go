package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/xid"

	"github.com/sakif/accomplo/internal/apperror"
	"github.com/sakif/accomplo/internal/auth"
	"github.com/sakif/accomplo/internal/model"
	"github.com/sakif/accomplo/internal/service"
)

const stateCookieName = "oauth_state"

// AuthHandler serves sign-up, sign-in, sign-out, password recovery and the
// OAuth login flow for every configured provider.
//
// Successful sign-ins set the access token as an HttpOnly cookie AND return
// it in the body, so browsers and API clients both work.
type AuthHandler struct {
	auth      *service.AuthService
	providers map[string]*auth.OAuthProvider
	cookies   CookieConfig
	logger    *slog.Logger
}

// CookieConfig controls the session cookie and where the OAuth flow sends
// the browser afterwards.
type CookieConfig struct {
	TTL         time.Duration // cookie lifetime; match the token TTL
	Secure      bool          // HTTPS-only cookies in production
	RedirectURL string        // app URL the OAuth callback lands on, "/" if empty
}

// NewAuthHandler creates an AuthHandler. providers may be empty, in which
// case the OAuth routes answer 404.
func NewAuthHandler(
	authService *service.AuthService,
	providers []*auth.OAuthProvider,
	cookies CookieConfig,
	logger *slog.Logger,
) *AuthHandler {
	byName := make(map[string]*auth.OAuthProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	if cookies.RedirectURL == "" {
		cookies.RedirectURL = "/"
	}
	return &AuthHandler{
		auth:      authService,
		providers: byName,
		cookies:   cookies,
		logger:    logger,
	}
}

// AuthResponse is the body of a successful sign-up or sign-in.
type AuthResponse struct {
	User  *model.User `json:"user"`
	Token string      `json:"token"`
}

type signUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

// HandleSignUp registers a password user and signs them in.
//
// HTTP: POST /auth/signup
// REQUEST BODY: {"email": "...", "password": "...", "displayName": "..."}
func (h *AuthHandler) HandleSignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSession(w, res.Token)
	writeJSON(w, http.StatusCreated, AuthResponse{User: res.User, Token: res.Token})
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleSignIn verifies credentials and starts a session.
//
// HTTP: POST /auth/signin
func (h *AuthHandler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSession(w, res.Token)
	writeJSON(w, http.StatusOK, AuthResponse{User: res.User, Token: res.Token})
}

// HandleSignOut revokes the presented token and clears the cookie.
//
// HTTP: POST /auth/signout
// Auth: Required
//
// Deleting the cookie alone would leave a copied token usable until it
// expires, so its ID goes on the revocation list as well.
func (h *AuthHandler) HandleSignOut(w http.ResponseWriter, r *http.Request) {
	if token, ok := auth.TokenFromRequest(r); ok {
		if err := h.auth.SignOut(r.Context(), token); err != nil {
			writeError(w, err)
			return
		}
	}

	h.clearSession(w)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Signed out"})
}

type resetRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirectTo"`
}

// HandleRequestPasswordReset mails a recovery link.
//
// HTTP: POST /auth/password/reset
// REQUEST BODY: {"email": "...", "redirectTo": "https://app.example/reset"}
//
// The response is identical whether or not the address has an account.
func (h *AuthHandler) HandleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.auth.RequestPasswordReset(r.Context(), req.Email, req.RedirectTo); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, MessageResponse{
		Message: "If an account exists for that email, a reset link has been sent",
	})
}

type recoverRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// HandleResetPassword sets a new password using a recovery token.
//
// HTTP: POST /auth/password/recover
// REQUEST BODY: {"token": "<recovery token>", "password": "..."}
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req recoverRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Password updated"})
}

// HandleOAuthLogin redirects the browser to the provider's consent page.
//
// HTTP: GET /auth/{provider}/login
//
// CSRF PROTECTION VIA STATE:
// A random state is stored in a short-lived HttpOnly cookie and sent to the
// provider. The callback only proceeds when both copies match.
func (h *AuthHandler) HandleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   600, // 10 minutes
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, provider.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleOAuthCallback completes the OAuth login flow.
//
// HTTP: GET /auth/{provider}/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for the provider's user info
//  3. Resolve it to a local user (create or link by email)
//  4. Set the session cookie and redirect to the app
func (h *AuthHandler) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.WarnContext(r.Context(), "oauth callback: state mismatch", slog.String("provider", provider.Name()))
		writeError(w, apperror.ValidationFailed("state", "Invalid OAuth state"))
		return
	}

	// Single use.
	http.SetCookie(w, &http.Cookie{
		Name:   stateCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.InfoContext(r.Context(), "oauth callback: authorization denied",
			slog.String("provider", provider.Name()),
			slog.String("error", errParam),
		)
		http.Redirect(w, r, h.landing("denied"), http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "Missing OAuth code"))
		return
	}

	pu, err := provider.Exchange(r.Context(), code)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "oauth callback: exchange failed",
			slog.String("provider", provider.Name()),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, h.landing("error"), http.StatusSeeOther)
		return
	}

	res, err := h.auth.LoginWithOAuth(r.Context(), pu)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "oauth callback: login failed",
			slog.String("provider", provider.Name()),
			slog.String("error", err.Error()),
		)
		http.Redirect(w, r, h.landing("error"), http.StatusSeeOther)
		return
	}

	h.setSession(w, res.Token)
	http.Redirect(w, r, h.cookies.RedirectURL, http.StatusSeeOther)
}

// HandleMe returns the currently authenticated user.
//
// HTTP: GET /api/me
// Auth: Required
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	user, err := h.auth.CurrentUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

type updatePasswordRequest struct {
	Password string `json:"password"`
}

// HandleUpdatePassword changes the signed-in user's password. Other
// sessions are signed out; this one gets a new cookie.
//
// HTTP: PUT /api/me/password
// Auth: Required
func (h *AuthHandler) HandleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req updatePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.UpdatePassword(r.Context(), userID, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	h.setSession(w, res.Token)
	writeJSON(w, http.StatusOK, AuthResponse{User: res.User, Token: res.Token})
}

// provider resolves the {provider} URL parameter to a configured provider.
func (h *AuthHandler) provider(w http.ResponseWriter, r *http.Request) (*auth.OAuthProvider, bool) {
	name := chi.URLParam(r, "provider")
	p, ok := h.providers[name]
	if !ok {
		writeError(w, apperror.NotFound("oauth provider", name))
		return nil, false
	}
	return p, true
}

// landing is the app URL with an ?auth=<outcome> marker the client can show.
func (h *AuthHandler) landing(outcome string) string {
	u, err := url.Parse(h.cookies.RedirectURL)
	if err != nil {
		return "/?auth=" + url.QueryEscape(outcome)
	}
	q := u.Query()
	q.Set("auth", outcome)
	u.RawQuery = q.Encode()
	return u.String()
}

// setSession stores the token in an HttpOnly cookie.
// HttpOnly keeps it away from JavaScript; SameSite=Lax keeps it off
// cross-site POSTs.
func (h *AuthHandler) setSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookies.TTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1, // delete immediately
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"eventguard.org/internal/auth"
	"eventguard.org/internal/directory"
	"eventguard.org/internal/roles"
)

type signupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type googleSignInRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token string          `json:"token"`
	User  *directory.User `json:"user"`
}

type approveRequest struct {
	Role string `json:"role"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Password string `json:"password"`
}

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	u, err := a.directory.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "registration received, awaiting approval",
		"user":    u,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	token, u, err := a.directory.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: u})
}

// handleGoogleSignIn resolves a federated identity: known emails log in,
// unknown ones get an approved account without a password.
func (a *API) handleGoogleSignIn(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req googleSignInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	token, u, err := a.directory.FederatedSignIn(r.Context(), req.Username, req.Email)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, User: u})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "no token, authorization denied")
		return
	}
	u, err := a.directory.Me(r.Context(), identity.ID)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) handlePendingUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	identity, ok := a.requireRole(w, r, roles.Head)
	if !ok {
		return
	}
	pending, err := a.directory.ListPending(r.Context(), identity.Role)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	if pending == nil {
		pending = []*directory.User{}
	}
	writeJSON(w, http.StatusOK, pending)
}

func (a *API) handleApproveUser(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	identity, ok := a.requireRole(w, r, roles.Head)
	if !ok {
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/api/auth/approve-user/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}

	// The body is optional; an empty one approves without a role change.
	var req approveRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	u, err := a.directory.Approve(r.Context(), identity.Role, id, req.Role)
	if err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "user approved",
		"user":    u,
	})
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.directory.ForgotPassword(r.Context(), req.Email); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	// Identical response for known and unknown emails.
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "if that email is registered, a reset link has been sent",
	})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token := strings.TrimPrefix(r.URL.Path, "/api/auth/reset-password/")
	if token == "" || strings.Contains(token, "/") {
		writeError(w, r, http.StatusBadRequest, "reset token is required")
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.directory.ResetPassword(r.Context(), token, req.Password); err != nil {
		handleDirectoryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "password has been reset",
	})
}

func handleDirectoryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrInvalidInput),
		errors.Is(err, directory.ErrAlreadyExists),
		errors.Is(err, directory.ErrResetTokenInvalid):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, directory.ErrInvalidCredentials):
		writeError(w, r, http.StatusBadRequest, "invalid credentials")
	case errors.Is(err, directory.ErrAwaitingApproval):
		writeError(w, r, http.StatusForbidden, "account awaiting approval")
	case errors.Is(err, directory.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "insufficient role")
	case errors.Is(err, directory.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

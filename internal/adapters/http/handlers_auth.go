package web

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"gymhub/internal/adapters/http/middleware"
	"gymhub/internal/application/orchestrators"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,max=72"`
}

type sessionResponse struct {
	AccountID   string `json:"account_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

type csrfResponse struct {
	CSRFToken string `json:"csrf_token"`
}

// handleLogin handles GET /login (CSRF token for form logins) and
// POST /login with a JSON or form body.
func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == "GET" {
		token := middleware.CSRFToken(r)
		w.Header().Set(middleware.CSRFHeader, token)
		writeJSON(w, http.StatusOK, csrfResponse{CSRFToken: token})
		return
	}
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var input loginRequest
	isJSON := strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
	if isJSON {
		if err := strictDecode(r, &input); err != nil {
			http.Error(w, "invalid JSON", http.StatusBadRequest)
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form submission", http.StatusBadRequest)
			return
		}
		input.Email = r.FormValue("email")
		input.Password = r.FormValue("password")
	}
	if err := validate.Struct(input); err != nil {
		http.Error(w, orchestrators.ErrInvalidCredentials.Error(), http.StatusUnauthorized)
		return
	}

	result, err := orchestrators.ExecuteLogin(r.Context(), orchestrators.LoginInput{
		Email:    input.Email,
		Password: input.Password,
	}, orchestrators.LoginDeps{AccountStore: s.Stores.AccountStore})
	switch {
	case errors.Is(err, orchestrators.ErrAccountLocked):
		http.Error(w, err.Error(), http.StatusLocked)
		return
	case errors.Is(err, orchestrators.ErrInvalidCredentials):
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	case err != nil:
		internalError(w, err)
		return
	}

	token, err := s.Sessions.Create(result.AccountID, result.Email, result.DisplayName, result.Role)
	if err != nil {
		internalError(w, err)
		return
	}
	middleware.SetSessionCookie(w, token, s.secure)

	if !isJSON {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		AccountID:   result.AccountID,
		Email:       result.Email,
		DisplayName: result.DisplayName,
		Role:        result.Role,
	})
}

// handleLogout handles POST /logout
func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != "POST" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if token := middleware.SessionToken(r); token != "" {
		s.Sessions.Delete(token)
	}
	if sess, ok := middleware.GetSessionFromContext(r.Context()); ok {
		slog.Info("auth_event", "event", "logout", "account_id", sess.AccountID)
	}
	middleware.ClearSessionCookie(w, s.secure)
	w.WriteHeader(http.StatusNoContent)
}

// handleMe handles GET /api/me
func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sess, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		http.Error(w, "not authenticated", http.StatusUnauthorized)
		return
	}
	if token := middleware.CSRFToken(r); token != "" {
		w.Header().Set(middleware.CSRFHeader, token)
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		AccountID:   sess.AccountID,
		Email:       sess.Email,
		DisplayName: sess.DisplayName,
		Role:        sess.Role,
	})
}

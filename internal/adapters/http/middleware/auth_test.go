package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSessionStore_CreateGetDelete(t *testing.T) {
	ss := NewSessionStore()
	token, err := ss.Create("a1", "sam@gym.test", "Sam", "coach")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("token length = %d, want 64 hex chars", len(token))
	}

	sess, ok := ss.Get(token)
	if !ok {
		t.Fatal("session not found after Create")
	}
	if sess.AccountID != "a1" || sess.DisplayName != "Sam" || !sess.IsStaff() {
		t.Errorf("session = %+v", sess)
	}

	ss.Delete(token)
	if _, ok := ss.Get(token); ok {
		t.Error("session still present after Delete")
	}
}

func TestAuth_SetsSessionInContext(t *testing.T) {
	ss := NewSessionStore()
	token, _ := ss.Create("a1", "kim@gym.test", "Kim", "member")

	var got Session
	var found bool
	handler := Auth(ss)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, found = GetSessionFromContext(r.Context())
	}))

	tests := []struct {
		name      string
		cookie    string
		wantFound bool
	}{
		{"valid cookie", token, true},
		{"unknown token", "deadbeef", false},
		{"no cookie", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found = false
			req := httptest.NewRequest("GET", "/api/presence/staff_chat", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: tt.cookie})
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)
			if found != tt.wantFound {
				t.Fatalf("found = %v, want %v", found, tt.wantFound)
			}
			if found && (got.AccountID != "a1" || got.IsStaff()) {
				t.Errorf("session = %+v", got)
			}
		})
	}
}

func TestSetAndClearSessionCookie(t *testing.T) {
	rr := httptest.NewRecorder()
	SetSessionCookie(rr, "tok", true)
	c := rr.Result().Cookies()
	if len(c) != 1 || c[0].Value != "tok" || !c[0].HttpOnly || !c[0].Secure {
		t.Errorf("set cookie = %+v", c)
	}

	rr = httptest.NewRecorder()
	ClearSessionCookie(rr, false)
	c = rr.Result().Cookies()
	if len(c) != 1 || c[0].MaxAge >= 0 {
		t.Errorf("clear cookie = %+v", c)
	}
}

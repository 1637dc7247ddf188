package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/pavelanni/smartquiz/internal/model"
)

func (e *testEnv) adminGet(path, user, pass string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestAdminDisabledWithoutPassword(t *testing.T) {
	env := newTestEnv(t, &fakeGen{raw: twoQuestions}, model.AppConfig{})
	if rec := env.adminGet("/admin/generations", "admin", "secret"); rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestAdminGenerations(t *testing.T) {
	env := newTestEnv(t, &fakeGen{raw: twoQuestions}, model.AppConfig{})
	if err := SetAdminPassword(env.store, "secret"); err != nil {
		t.Fatalf("SetAdminPassword: %v", err)
	}
	env.startQuiz(t)

	tests := []struct {
		name       string
		user, pass string
		want       int
	}{
		{"no credentials", "", "", http.StatusUnauthorized},
		{"wrong password", "admin", "guess", http.StatusUnauthorized},
		{"wrong user", "root", "secret", http.StatusUnauthorized},
		{"valid", "admin", "secret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.adminGet("/admin/generations", tt.user, tt.pass)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if tt.want == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 should carry a WWW-Authenticate challenge")
			}
		})
	}

	rec := env.adminGet("/admin/generations?limit=10", "admin", "secret")
	var list generationList
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if list.Total != 1 || len(list.Generations) != 1 || list.Sessions != 1 {
		t.Fatalf("unexpected list %+v", list)
	}
	g := list.Generations[0]
	if g.Questions != 2 || g.Raw != twoQuestions {
		t.Errorf("unexpected generation %+v", g)
	}

	if rec := env.adminGet("/admin/generations?limit=-1", "admin", "secret"); rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit = %d, want 400", rec.Code)
	}
}

func TestAdminGeneration(t *testing.T) {
	env := newTestEnv(t, &fakeGen{raw: twoQuestions}, model.AppConfig{})
	if err := SetAdminPassword(env.store, "secret"); err != nil {
		t.Fatalf("SetAdminPassword: %v", err)
	}
	env.startQuiz(t)

	gens, err := env.store.ListGenerations(1)
	if err != nil || len(gens) != 1 {
		t.Fatalf("ListGenerations: %v %v", gens, err)
	}

	tests := []struct {
		path string
		want int
	}{
		{"/admin/generations/" + strconv.FormatInt(gens[0].ID, 10), http.StatusOK},
		{"/admin/generations/999", http.StatusNotFound},
		{"/admin/generations/abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if rec := env.adminGet(tt.path, "admin", "secret"); rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}

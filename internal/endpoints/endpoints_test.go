package endpoints

import "testing"

func TestNormalizeBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", DefaultBaseURL, false},
		{"https://api.example.com/", "https://api.example.com", false},
		{" http://localhost:3000/api// ", "http://localhost:3000/api", false},
		{"ftp://example.com", "", true},
		{"https://", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeBaseURL(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeBaseURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeBaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMergeFillsEmptyPaths(t *testing.T) {
	e := HTTP{Refresh: "/v2/auth/refresh", Me: "   "}.Merge()
	if e.Refresh != "/v2/auth/refresh" {
		t.Errorf("Refresh = %q, override lost", e.Refresh)
	}
	if e.Me != "/auth/me" || e.Login != "/auth/login" || e.Quizzes != "/quizzes" {
		t.Errorf("defaults not filled: %+v", e)
	}
}

func TestQuizAttempts(t *testing.T) {
	if got := Defaults().QuizAttempts("intro 1"); got != "/quizzes/intro%201/attempts" {
		t.Errorf("QuizAttempts() = %q", got)
	}
	if got := (HTTP{Quizzes: "/v2/quizzes/"}).QuizAttempts("q"); got != "/v2/quizzes/q/attempts" {
		t.Errorf("QuizAttempts() = %q", got)
	}
}

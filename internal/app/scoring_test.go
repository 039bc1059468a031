package app_test

import (
	"testing"

	"quiz-battle/internal/app"
	"quiz-battle/internal/domain"
)

func TestGrade(t *testing.T) {
	question := domain.Question{
		ID:    "q",
		Score: 10,
		Options: []domain.Option{
			{ID: "a", IsCorrect: true},
			{ID: "b"},
			{ID: "c", IsCorrect: true},
		},
	}

	cases := []struct {
		name     string
		selected []string
		want     int
	}{
		{"both correct", []string{"a", "c"}, 10},
		{"one correct", []string{"c"}, 5},
		{"correct and wrong", []string{"a", "b"}, 0},
		{"nothing", nil, 0},
		{"unknown option", []string{"a", "zzz"}, 0},
		{"duplicates count once", []string{"a", "a"}, 5},
	}
	for _, tc := range cases {
		if got := app.Grade(question, tc.selected); got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestGradeFloorsPartialCredit(t *testing.T) {
	question := domain.Question{
		Score: 10,
		Options: []domain.Option{
			{ID: "a", IsCorrect: true},
			{ID: "b", IsCorrect: true},
			{ID: "c", IsCorrect: true},
		},
	}
	if got := app.Grade(question, []string{"a"}); got != 3 {
		t.Fatalf("expected floor(10/3) = 3, got %d", got)
	}
	if got := app.Grade(question, []string{"a", "b"}); got != 6 {
		t.Fatalf("expected floor(20/3) = 6, got %d", got)
	}
}

func TestGradeWithoutCorrectOptions(t *testing.T) {
	question := domain.Question{Score: 10, Options: []domain.Option{{ID: "a"}}}
	if got := app.Grade(question, []string{"a"}); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

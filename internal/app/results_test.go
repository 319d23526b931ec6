package app

import (
	"errors"
	"testing"
)

func TestGradeQuiz(t *testing.T) {
	key := []int{0, 1, 2, 0, 1, 2, 0, 1, 2, 0}
	cases := []struct {
		wrong int
		score int
		rank  string
	}{
		{0, 100, "soul mate"},
		{2, 80, "true friend"},
		{4, 60, "close friend"},
		{5, 50, "needs effort"},
	}
	for _, tc := range cases {
		answers := append([]int(nil), key...)
		for i := 0; i < tc.wrong; i++ {
			answers[i] = (answers[i] + 1) % 3
		}
		grade, err := GradeQuiz(answers, key)
		if err != nil {
			t.Fatalf("grade: %v", err)
		}
		if grade.Score != tc.score || grade.Rank != tc.rank || grade.Total != 10 || grade.Correct != 10-tc.wrong {
			t.Fatalf("%d wrong: unexpected grade %+v", tc.wrong, grade)
		}
	}
	if _, err := GradeQuiz([]int{0}, []int{0, 1}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for length mismatch, got %v", err)
	}
	if _, err := GradeQuiz(nil, nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty key, got %v", err)
	}
}

func TestParseSynergyClampsScore(t *testing.T) {
	got, err := parseSynergy(`{"score": 140, "title": "Perfect", "reason": ""}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Score != 100 {
		t.Fatalf("expected clamped score, got %d", got.Score)
	}
	if _, err := parseSynergy(`{"score": 50}`); !errors.Is(err, ErrMalformedModelOutput) {
		t.Fatalf("expected malformed output without verdict, got %v", err)
	}
	if _, err := parseSynergy(`not json`); !errors.Is(err, ErrMalformedModelOutput) {
		t.Fatalf("expected malformed output, got %v", err)
	}
}

func TestParseQuizAcceptsCodeFence(t *testing.T) {
	quiz, err := parseQuiz("```json\n{\"questions\":[{\"q\":\"Job?\",\"options\":[\"a\",\"b\",\"c\"],\"answer\":2}]}\n```", 10)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(quiz.Questions) != 1 || quiz.Questions[0].Answer != 2 {
		t.Fatalf("unexpected quiz: %+v", quiz)
	}
	if _, err := parseQuiz(`{"questions":[]}`, 10); !errors.Is(err, ErrMalformedModelOutput) {
		t.Fatalf("expected malformed output for empty quiz, got %v", err)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeChat, "CHAT": ModeChat, " quiz ": ModeQuiz, "synergy": ModeSynergy, "translate": ModeTranslate} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("poem"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected invalid mode, got %v", err)
	}
}

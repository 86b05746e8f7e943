package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/learnhub/judgecore/language"
	"github.com/learnhub/judgecore/store"
	"github.com/learnhub/judgecore/types"
)

const seed = `
questions:
  - id: q1
    title: Square
    exampleInputs: ["2", "3"]
    exampleOutputs: ["4", "9"]
    hiddenInputs: ["4", "5", "10"]
    hiddenOutputs: ["16", "25", "100"]
    points: 10
users:
  - id: u1
    username: alice
    streaks: 2
    lastStreakDate: "2024-03-01"
`

func TestLoad(t *testing.T) {
	s, err := Load([]byte(seed))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	q, err := s.Question(ctx, "q1")
	if err != nil {
		t.Fatal(err)
	}
	if q.Points != 10 || len(q.HiddenInputs) != 3 || q.ExampleOutputs[1] != "9" {
		t.Fatalf("question %+v", q)
	}
	u, err := s.User(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if u.Username != "alice" || u.Streaks != 2 || u.LastStreakDate != "2024-03-01" {
		t.Fatalf("user %+v", u)
	}
	if _, err := s.User(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err %v", err)
	}
	if _, err := s.Question(ctx, "nothing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err %v", err)
	}
}

func TestLoadInvalid(t *testing.T) {
	if _, err := Load([]byte("questions:\n  - title: x\n")); err == nil {
		t.Fatal("expected error for missing id")
	}
	if _, err := Load([]byte("questions:\n  - id: q\n    exampleInputs: [a]\n")); err == nil {
		t.Fatal("expected error for mismatched cases")
	}
}

func TestSaveProgress(t *testing.T) {
	s, err := Load([]byte(seed))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	u, _ := s.User(ctx, "u1")
	u.TotalPoints = 11
	u.Complete("q1")

	older := &types.Submission{QuestionID: "q1", Language: language.C, SubmittedAt: time.Unix(100, 0)}
	if err := s.SaveProgress(ctx, u, older); err != nil {
		t.Fatal(err)
	}
	newer := &types.Submission{QuestionID: "q1", Language: language.Python, Points: 10, SubmittedAt: time.Unix(200, 0)}
	if err := s.SaveProgress(ctx, u, newer); err != nil {
		t.Fatal(err)
	}
	if older.ID == "" || older.ID == newer.ID {
		t.Fatalf("ids %q %q", older.ID, newer.ID)
	}

	// modifying the loaded copy does not touch the store
	u.TotalPoints = 999
	got, _ := s.User(ctx, "u1")
	if got.TotalPoints != 11 || !got.HasCompleted("q1") || len(got.Submissions) != 2 {
		t.Fatalf("user %+v", got)
	}

	subs, err := s.UserSubmissions(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(subs) != 2 || subs[0].ID != newer.ID || subs[0].Username != "alice" {
		t.Fatalf("submissions %+v", subs)
	}
	qs, err := s.QuestionSubmissions(ctx, "q1")
	if err != nil || len(qs) != 2 {
		t.Fatalf("question submissions %v %v", qs, err)
	}

	if err := s.SaveProgress(ctx, &types.User{ID: "ghost"}, nil); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err %v", err)
	}
}

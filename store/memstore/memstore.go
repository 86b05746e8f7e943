// Package memstore is an in-memory store, optionally seeded from a YAML file
package memstore

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/google/uuid"
	"github.com/learnhub/judgecore/store"
	"github.com/learnhub/judgecore/types"
)

var _ store.Store = &Store{}

// Store keeps questions and users in maps
type Store struct {
	mu        sync.RWMutex
	questions map[string]*types.Question
	users     map[string]*types.User
}

// New creates an empty store
func New() *Store {
	return &Store{
		questions: make(map[string]*types.Question),
		users:     make(map[string]*types.User),
	}
}

type seedFile struct {
	Questions []seedQuestion `yaml:"questions"`
	Users     []seedUser     `yaml:"users"`
}

type seedQuestion struct {
	ID             string   `yaml:"id"`
	Title          string   `yaml:"title"`
	ExampleInputs  []string `yaml:"exampleInputs"`
	ExampleOutputs []string `yaml:"exampleOutputs"`
	HiddenInputs   []string `yaml:"hiddenInputs"`
	HiddenOutputs  []string `yaml:"hiddenOutputs"`
	Points         int      `yaml:"points"`
}

type seedUser struct {
	ID                 string   `yaml:"id"`
	Username           string   `yaml:"username"`
	TotalPoints        int      `yaml:"totalPoints"`
	Streaks            int      `yaml:"streaks"`
	LastStreakDate     string   `yaml:"lastStreakDate"`
	CompletedQuestions []string `yaml:"completedQuestions"`
}

// LoadFile creates a store seeded with the questions and users of a YAML file
func LoadFile(path string) (*Store, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("memstore: read seed: %w", err)
	}
	return Load(b)
}

// Load creates a store seeded from YAML content
func Load(b []byte) (*Store, error) {
	var f seedFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("memstore: parse seed: %w", err)
	}
	s := New()
	for _, q := range f.Questions {
		if q.ID == "" {
			return nil, fmt.Errorf("memstore: question %q without id", q.Title)
		}
		if len(q.ExampleInputs) != len(q.ExampleOutputs) || len(q.HiddenInputs) != len(q.HiddenOutputs) {
			return nil, fmt.Errorf("memstore: question %s: inputs and outputs differ in length", q.ID)
		}
		s.PutQuestion(&types.Question{
			ID:             q.ID,
			Title:          q.Title,
			ExampleInputs:  q.ExampleInputs,
			ExampleOutputs: q.ExampleOutputs,
			HiddenInputs:   q.HiddenInputs,
			HiddenOutputs:  q.HiddenOutputs,
			Points:         q.Points,
		})
	}
	for _, u := range f.Users {
		if u.ID == "" {
			return nil, fmt.Errorf("memstore: user %q without id", u.Username)
		}
		s.PutUser(&types.User{
			ID:                 u.ID,
			Username:           u.Username,
			TotalPoints:        u.TotalPoints,
			Streaks:            u.Streaks,
			LastStreakDate:     u.LastStreakDate,
			CompletedQuestions: u.CompletedQuestions,
		})
	}
	return s, nil
}

// PutQuestion adds or replaces a question
func (s *Store) PutQuestion(q *types.Question) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *q
	s.questions[q.ID] = &c
}

// PutUser adds or replaces a user
func (s *Store) PutUser(u *types.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u.Clone()
}

func (s *Store) Question(_ context.Context, id string) (*types.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.questions[id]
	if !ok {
		return nil, fmt.Errorf("question %s: %w", id, store.ErrNotFound)
	}
	c := *q
	return &c, nil
}

func (s *Store) User(_ context.Context, id string) (*types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	return u.Clone(), nil
}

func (s *Store) SaveProgress(ctx context.Context, user *types.User, sub *types.Submission) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[user.ID]
	if !ok {
		return fmt.Errorf("user %s: %w", user.ID, store.ErrNotFound)
	}
	next := cur.Clone()
	next.TotalPoints = user.TotalPoints
	next.Streaks = user.Streaks
	next.LastStreakDate = user.LastStreakDate
	next.CompletedQuestions = append([]string(nil), user.CompletedQuestions...)
	if sub != nil {
		sub.ID = uuid.NewString()
		next.Submissions = append(next.Submissions, *sub)
	}
	s.users[user.ID] = next
	return nil
}

func (s *Store) UserSubmissions(_ context.Context, userID string) ([]types.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
	}
	rt := make([]types.SubmissionRecord, 0, len(u.Submissions))
	for _, sub := range u.Submissions {
		rt = append(rt, types.SubmissionRecord{Submission: sub, UserID: u.ID, Username: u.Username})
	}
	store.SortNewestFirst(rt)
	return rt, nil
}

func (s *Store) QuestionSubmissions(_ context.Context, questionID string) ([]types.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.questions[questionID]; !ok {
		return nil, fmt.Errorf("question %s: %w", questionID, store.ErrNotFound)
	}
	var rt []types.SubmissionRecord
	for _, u := range s.users {
		for _, sub := range u.Submissions {
			if sub.QuestionID == questionID {
				rt = append(rt, types.SubmissionRecord{Submission: sub, UserID: u.ID, Username: u.Username})
			}
		}
	}
	store.SortNewestFirst(rt)
	return rt, nil
}

func (s *Store) Close(context.Context) error {
	return nil
}

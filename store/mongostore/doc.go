package mongostore

import (
	"time"

	"github.com/learnhub/judgecore/language"
	"github.com/learnhub/judgecore/types"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// questionDoc mirrors the questions collection of the platform
type questionDoc struct {
	ID             bson.ObjectID `bson:"_id"`
	Title          string        `bson:"title"`
	ExampleInput1  string        `bson:"exampleInput1"`
	ExampleInput2  string        `bson:"exampleInput2"`
	ExampleOutput1 string        `bson:"exampleOutput1"`
	ExampleOutput2 string        `bson:"exampleOutput2"`
	HiddenInput1   string        `bson:"hiddenInput1"`
	HiddenInput2   string        `bson:"hiddenInput2"`
	HiddenInput3   string        `bson:"hiddenInput3"`
	HiddenOutput1  string        `bson:"hiddenOutput1"`
	HiddenOutput2  string        `bson:"hiddenOutput2"`
	HiddenOutput3  string        `bson:"hiddenOutput3"`
	Points         int           `bson:"points"`
}

type submissionDoc struct {
	ID          bson.ObjectID `bson:"_id"`
	QuestionID  bson.ObjectID `bson:"questionId"`
	Submission  string        `bson:"submission"`
	Language    string        `bson:"language"`
	Points      int           `bson:"points"`
	SubmittedAt time.Time     `bson:"submittedAt"`
}

type userDoc struct {
	ID                  bson.ObjectID   `bson:"_id"`
	Username            string          `bson:"username"`
	TotalPoints         int             `bson:"totalPoints"`
	Streaks             int             `bson:"streaks"`
	LastStreakDate      string          `bson:"lastStreakDate,omitempty"`
	CompletedQuestions  []bson.ObjectID `bson:"completedQuestions"`
	QuestionSubmissions []submissionDoc `bson:"questionSubmissions"`
}

func (d *questionDoc) toQuestion() *types.Question {
	return &types.Question{
		ID:             d.ID.Hex(),
		Title:          d.Title,
		ExampleInputs:  []string{d.ExampleInput1, d.ExampleInput2},
		ExampleOutputs: []string{d.ExampleOutput1, d.ExampleOutput2},
		HiddenInputs:   []string{d.HiddenInput1, d.HiddenInput2, d.HiddenInput3},
		HiddenOutputs:  []string{d.HiddenOutput1, d.HiddenOutput2, d.HiddenOutput3},
		Points:         d.Points,
	}
}

func (d *submissionDoc) toSubmission() types.Submission {
	// unknown or missing languages decode as Invalid
	lang, _ := language.Parse(d.Language)
	return types.Submission{
		ID:          d.ID.Hex(),
		QuestionID:  d.QuestionID.Hex(),
		SourceCode:  d.Submission,
		Language:    lang,
		Points:      d.Points,
		SubmittedAt: d.SubmittedAt,
	}
}

func (d *userDoc) toUser() *types.User {
	u := &types.User{
		ID:                 d.ID.Hex(),
		Username:           d.Username,
		TotalPoints:        d.TotalPoints,
		Streaks:            d.Streaks,
		LastStreakDate:     d.LastStreakDate,
		CompletedQuestions: make([]string, 0, len(d.CompletedQuestions)),
		Submissions:        make([]types.Submission, 0, len(d.QuestionSubmissions)),
	}
	for _, id := range d.CompletedQuestions {
		u.CompletedQuestions = append(u.CompletedQuestions, id.Hex())
	}
	for i := range d.QuestionSubmissions {
		u.Submissions = append(u.Submissions, d.QuestionSubmissions[i].toSubmission())
	}
	return u
}

func fromSubmission(s *types.Submission) (submissionDoc, error) {
	qid, err := bson.ObjectIDFromHex(s.QuestionID)
	if err != nil {
		return submissionDoc{}, err
	}
	return submissionDoc{
		ID:          bson.NewObjectID(),
		QuestionID:  qid,
		Submission:  s.SourceCode,
		Language:    s.Language.String(),
		Points:      s.Points,
		SubmittedAt: s.SubmittedAt,
	}, nil
}

func objectIDs(hex []string) ([]bson.ObjectID, error) {
	rt := make([]bson.ObjectID, 0, len(hex))
	for _, h := range hex {
		id, err := bson.ObjectIDFromHex(h)
		if err != nil {
			return nil, err
		}
		rt = append(rt, id)
	}
	return rt, nil
}

// Package mongostore reads questions and users from the MongoDB database
// shared with the web application and writes scoring progress back
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/learnhub/judgecore/store"
	"github.com/learnhub/judgecore/types"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"
)

var _ store.Store = &Store{}

// Config defines the connection and collection names
type Config struct {
	URI                 string
	Database            string
	QuestionsCollection string
	UsersCollection     string
}

// Store is a MongoDB backed store
type Store struct {
	client    *mongo.Client
	questions *mongo.Collection
	users     *mongo.Collection
	logger    *zap.Logger
}

// New connects and pings the server
func New(ctx context.Context, conf Config, logger *zap.Logger) (*Store, error) {
	if conf.QuestionsCollection == "" {
		conf.QuestionsCollection = "questions"
	}
	if conf.UsersCollection == "" {
		conf.UsersCollection = "users"
	}
	client, err := mongo.Connect(options.Client().ApplyURI(conf.URI))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}
	db := client.Database(conf.Database)
	logger.Info("connected to mongodb", zap.String("database", conf.Database))
	return &Store{
		client:    client,
		questions: db.Collection(conf.QuestionsCollection),
		users:     db.Collection(conf.UsersCollection),
		logger:    logger,
	}, nil
}

func (s *Store) Question(ctx context.Context, id string) (*types.Question, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("question %s: %w", id, store.ErrNotFound)
	}
	var d questionDoc
	if err := s.questions.FindOne(ctx, bson.M{"_id": oid}).Decode(&d); err != nil {
		return nil, notFound("question", id, err)
	}
	return d.toQuestion(), nil
}

func (s *Store) User(ctx context.Context, id string) (*types.User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	var d userDoc
	if err := s.users.FindOne(ctx, bson.M{"_id": oid}).Decode(&d); err != nil {
		return nil, notFound("user", id, err)
	}
	return d.toUser(), nil
}

// SaveProgress updates the scoring fields and pushes the submission with
// one UpdateOne so that concurrent writers of other fields are kept
func (s *Store) SaveProgress(ctx context.Context, user *types.User, sub *types.Submission) error {
	oid, err := bson.ObjectIDFromHex(user.ID)
	if err != nil {
		return fmt.Errorf("user %s: %w", user.ID, store.ErrNotFound)
	}
	completed, err := objectIDs(user.CompletedQuestions)
	if err != nil {
		return fmt.Errorf("mongostore: completed questions: %w", err)
	}
	set := bson.M{
		"totalPoints":        user.TotalPoints,
		"streaks":            user.Streaks,
		"completedQuestions": completed,
	}
	if user.LastStreakDate != "" {
		set["lastStreakDate"] = user.LastStreakDate
	}
	update := bson.M{"$set": set}

	var doc submissionDoc
	if sub != nil {
		doc, err = fromSubmission(sub)
		if err != nil {
			return fmt.Errorf("mongostore: submission question id: %w", err)
		}
		update["$push"] = bson.M{"questionSubmissions": doc}
	}

	res, err := s.users.UpdateOne(ctx, bson.M{"_id": oid}, update)
	if err != nil {
		return fmt.Errorf("mongostore: save progress: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("user %s: %w", user.ID, store.ErrNotFound)
	}
	if sub != nil {
		sub.ID = doc.ID.Hex()
	}
	return nil
}

func (s *Store) UserSubmissions(ctx context.Context, userID string) ([]types.SubmissionRecord, error) {
	u, err := s.User(ctx, userID)
	if err != nil {
		return nil, err
	}
	rt := make([]types.SubmissionRecord, 0, len(u.Submissions))
	for _, sub := range u.Submissions {
		rt = append(rt, types.SubmissionRecord{Submission: sub, UserID: u.ID, Username: u.Username})
	}
	store.SortNewestFirst(rt)
	return rt, nil
}

func (s *Store) QuestionSubmissions(ctx context.Context, questionID string) ([]types.SubmissionRecord, error) {
	qid, err := bson.ObjectIDFromHex(questionID)
	if err != nil {
		return nil, fmt.Errorf("question %s: %w", questionID, store.ErrNotFound)
	}
	cur, err := s.users.Find(ctx,
		bson.M{"questionSubmissions.questionId": qid},
		options.Find().SetProjection(bson.M{"username": 1, "questionSubmissions": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("mongostore: find submissions: %w", err)
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: decode submissions: %w", err)
	}

	var rt []types.SubmissionRecord
	for i := range docs {
		for j := range docs[i].QuestionSubmissions {
			d := &docs[i].QuestionSubmissions[j]
			if d.QuestionID != qid {
				continue
			}
			rt = append(rt, types.SubmissionRecord{
				Submission: d.toSubmission(),
				UserID:     docs[i].ID.Hex(),
				Username:   docs[i].Username,
			})
		}
	}
	store.SortNewestFirst(rt)
	return rt, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func notFound(kind, id string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	return fmt.Errorf("mongostore: find %s %s: %w", kind, id, err)
}

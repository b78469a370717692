package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"RoboSupport/backend/go/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoCaseStore stores one document per case, keyed by task number.
type MongoCaseStore struct {
	collection *mongo.Collection
}

// NewMongoCaseStore creates a store over the given collection.
func NewMongoCaseStore(collection *mongo.Collection) *MongoCaseStore {
	return &MongoCaseStore{collection: collection}
}

func (s *MongoCaseStore) Create(ctx context.Context, userID, originalText, translatedText, taskNumber string) (*models.SupportCase, error) {
	now := time.Now().UTC().Truncate(time.Millisecond)
	c := &models.SupportCase{
		TaskNumber:     taskNumber,
		UserID:         userID,
		OriginalText:   originalText,
		TranslatedText: translatedText,
		Status:         models.CaseOpen,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.collection.InsertOne(ctx, c); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrDuplicateCase
		}
		return nil, fmt.Errorf("insert support case: %w", err)
	}
	return c, nil
}

func (s *MongoCaseStore) UpdateStatus(ctx context.Context, taskNumber string, status models.CaseStatus, response string) error {
	from := allowedFrom(status)
	if len(from) == 0 {
		return ErrInvalidStatus
	}

	set := bson.M{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if response != "" {
		set["support_response"] = response
	}

	filter := bson.M{"_id": taskNumber, "status": bson.M{"$in": from}}
	res, err := s.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update support case %s: %w", taskNumber, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	if _, err := s.GetByTaskNumber(ctx, taskNumber); err != nil {
		return err
	}
	return ErrInvalidTransition
}

func (s *MongoCaseStore) GetByTaskNumber(ctx context.Context, taskNumber string) (*models.SupportCase, error) {
	var c models.SupportCase
	err := s.collection.FindOne(ctx, bson.M{"_id": taskNumber}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get support case %s: %w", taskNumber, err)
	}
	return &c, nil
}

func (s *MongoCaseStore) ListByUser(ctx context.Context, userID string, page, limit int) ([]*models.SupportCase, error) {
	offset, size := normalizePage(page, limit)
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(size))
	return s.find(ctx, bson.M{"user_id": userID}, opts)
}

func (s *MongoCaseStore) ListOpen(ctx context.Context) ([]*models.SupportCase, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	return s.find(ctx, bson.M{"status": models.CaseOpen}, opts)
}

func (s *MongoCaseStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.SupportCase, error) {
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find support cases: %w", err)
	}
	defer cursor.Close(ctx)

	cases := make([]*models.SupportCase, 0)
	if err = cursor.All(ctx, &cases); err != nil {
		return nil, fmt.Errorf("decode support cases: %w", err)
	}
	return cases, nil
}

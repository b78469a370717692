package store

import (
	"context"
	"errors"
	"testing"

	"RoboSupport/backend/go/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func caseDoc(task string, status models.CaseStatus) bson.D {
	return bson.D{
		{Key: "_id", Value: task},
		{Key: "user_id", Value: "user-1"},
		{Key: "original_text", Value: "issue"},
		{Key: "status", Value: string(status)},
	}
}

func updateReply(matched int) bson.D {
	return mtest.CreateSuccessResponse(
		bson.E{Key: "n", Value: matched},
		bson.E{Key: "nModified", Value: matched},
	)
}

func TestMongoCaseStore_UpdateStatus(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("open to resolved", func(mt *mtest.T) {
		mt.AddMockResponses(updateReply(1))
		if err := NewMongoCaseStore(mt.Coll).UpdateStatus(ctx, "SUP-1", models.CaseResolved, "Fixed it for you."); err != nil {
			mt.Errorf("UpdateStatus() error = %v", err)
		}
	})

	mt.Run("resolved to open rejected", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(
			updateReply(0),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, caseDoc("SUP-1", models.CaseResolved)),
		)
		err := NewMongoCaseStore(mt.Coll).UpdateStatus(ctx, "SUP-1", models.CaseOpen, "")
		if !errors.Is(err, ErrInvalidTransition) {
			mt.Errorf("UpdateStatus() error = %v, want ErrInvalidTransition", err)
		}
	})

	mt.Run("missing case", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(
			updateReply(0),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
		)
		err := NewMongoCaseStore(mt.Coll).UpdateStatus(ctx, "SUP-404", models.CaseResolved, "x")
		if !errors.Is(err, ErrCaseNotFound) {
			mt.Errorf("UpdateStatus() error = %v, want ErrCaseNotFound", err)
		}
	})

	mt.Run("unknown status never written", func(mt *mtest.T) {
		err := NewMongoCaseStore(mt.Coll).UpdateStatus(ctx, "SUP-1", models.CaseUnknown, "")
		if !errors.Is(err, ErrInvalidStatus) {
			mt.Errorf("UpdateStatus() error = %v, want ErrInvalidStatus", err)
		}
	})
}

func TestMongoCaseStore_ListOpen(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes batch", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			caseDoc("SUP-A", models.CaseOpen),
			caseDoc("SUP-B", models.CaseOpen),
		))
		open, err := NewMongoCaseStore(mt.Coll).ListOpen(context.Background())
		if err != nil {
			mt.Fatalf("ListOpen() error = %v", err)
		}
		if got := taskNumbers(open); len(got) != 2 || got[0] != "SUP-A" || got[1] != "SUP-B" {
			mt.Errorf("ListOpen() = %v", got)
		}
	})
}

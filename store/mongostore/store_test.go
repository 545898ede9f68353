package mongostore

import (
	"context"
	"testing"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleUser() *goGuard.User {
	end := fixedNow.Add(14 * 24 * time.Hour)
	return &goGuard.User{
		ID:                  "u-1",
		Email:               "alice@example.com",
		Name:                "Alice",
		PasswordHash:        "$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$aGFzaA",
		MFABackupCodes:      []string{"h1", "h2"},
		SubscriptionEndDate: &end,
		CreatedAt:           fixedNow,
		UpdatedAt:           fixedNow,
	}
}

func docD(t *testing.T, u *goGuard.User) bson.D {
	t.Helper()
	raw, err := bson.Marshal(toDoc(u))
	require.NoError(t, err)
	var d bson.D
	require.NoError(t, bson.Unmarshal(raw, &d))
	return d
}

func countReply(ns string, n int32) bson.D {
	return mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: n}})
}

func TestStore(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()

	mt.Run("find by id", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, docD(mt.T, sampleUser())))

		got, err := New(mt.Coll).FindByID(ctx, "u-1")
		require.NoError(mt, err)
		assert.Equal(mt, "alice@example.com", got.Email)
		assert.Equal(mt, []string{"h1", "h2"}, got.MFABackupCodes)
		require.NotNil(mt, got.SubscriptionEndDate)
		assert.True(mt, got.SubscriptionEndDate.Equal(fixedNow.Add(14*24*time.Hour)))
		assert.Nil(mt, got.LastLoginAt)
	})

	mt.Run("find miss", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := New(mt.Coll).FindByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(mt, err, goGuard.ErrUserNotFound)
	})

	mt.Run("create duplicate", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error",
		}))

		err := New(mt.Coll).Create(ctx, sampleUser())
		assert.ErrorIs(mt, err, goGuard.ErrAccountExists)
	})

	mt.Run("create rejects incomplete", func(mt *mtest.T) {
		err := New(mt.Coll).Create(ctx, &goGuard.User{ID: "x"})
		assert.ErrorIs(mt, err, goGuard.ErrInvalidInput)
	})

	mt.Run("update matched", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		err := New(mt.Coll).Update(ctx, "u-1", goGuard.UserPatch{Name: goGuard.Set("Al")})
		assert.NoError(mt, err)
	})

	mt.Run("update missing account", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		err := New(mt.Coll).Update(ctx, "ghost", goGuard.UserPatch{Name: goGuard.Set("x")})
		assert.ErrorIs(mt, err, goGuard.ErrUserNotFound)
	})

	mt.Run("update precondition conflict", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			countReply(ns, 1),
		)

		err := New(mt.Coll).Update(ctx, "u-1", goGuard.UserPatch{
			ResetTokenHash: goGuard.Unset[string](),
			Precondition:   goGuard.Precondition{ResetTokenHash: "stale"},
		})
		assert.ErrorIs(mt, err, goGuard.ErrPatchConflict)
	})

	mt.Run("consume backup code", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		ok, err := New(mt.Coll).ConsumeBackupCode(ctx, "u-1", "h1")
		require.NoError(mt, err)
		assert.True(mt, ok)
	})

	mt.Run("consume already used", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			countReply(ns, 1),
		)

		ok, err := New(mt.Coll).ConsumeBackupCode(ctx, "u-1", "h1")
		require.NoError(mt, err)
		assert.False(mt, ok)
	})

	mt.Run("list", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		second := sampleUser()
		second.ID, second.Email = "u-2", "bob@example.com"
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, docD(mt.T, sampleUser()), docD(mt.T, second)))

		users, err := New(mt.Coll).List(ctx, 10)
		require.NoError(mt, err)
		require.Len(mt, users, 2)
		assert.Equal(mt, "u-2", users[1].ID)
	})

	mt.Run("ensure indexes", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())
		assert.NoError(mt, New(mt.Coll).EnsureIndexes(ctx))
	})
}

func TestUpdateFilter(t *testing.T) {
	enabled := false
	got := updateFilter("u-1", goGuard.Precondition{
		MFASecretPending: "PENDING",
		MFAEnabled:       &enabled,
	})
	assert.Equal(t, bson.D{
		{Key: fieldID, Value: "u-1"},
		{Key: fieldMFASecretPending, Value: "PENDING"},
		{Key: fieldMFAEnabled, Value: false},
	}, got)

	assert.Equal(t, bson.D{{Key: fieldID, Value: "u-1"}}, updateFilter("u-1", goGuard.Precondition{}))

	admin := true
	end := time.Date(2025, 4, 1, 8, 30, 0, 0, time.FixedZone("X", 3600))
	assert.Equal(t, bson.D{
		{Key: fieldID, Value: "u-1"},
		{Key: fieldIsAdmin, Value: true},
		{Key: fieldSubscriptionEndDate, Value: end.UTC()},
	}, updateFilter("u-1", goGuard.Precondition{IsAdmin: &admin, SubscriptionEndDate: goGuard.Set(end)}))

	assert.Equal(t, bson.D{
		{Key: fieldID, Value: "u-1"},
		{Key: fieldSubscriptionEndDate, Value: nil},
	}, updateFilter("u-1", goGuard.Precondition{SubscriptionEndDate: goGuard.Unset[time.Time]()}))
}

func TestUpdateDoc(t *testing.T) {
	verifiedAt := fixedNow.Add(time.Hour)
	doc := updateDoc(goGuard.UserPatch{
		EmailVerified:              goGuard.Set(true),
		MFAEnabled:                 goGuard.Unset[bool](),
		LastLoginAt:                goGuard.Set(verifiedAt),
		VerificationTokenHash:      goGuard.Unset[string](),
		VerificationTokenExpiresAt: goGuard.Unset[time.Time](),
		MFABackupCodes:             goGuard.Set([]string{}),
	}, fixedNow)

	require.Len(t, doc, 2)
	assert.Equal(t, "$set", doc[0].Key)
	assert.Equal(t, bson.D{
		{Key: fieldEmailVerified, Value: true},
		{Key: fieldMFAEnabled, Value: false},
		{Key: fieldMFABackupCodes, Value: []string{}},
		{Key: fieldLastLoginAt, Value: verifiedAt},
		{Key: fieldUpdatedAt, Value: fixedNow},
	}, doc[0].Value)
	assert.Equal(t, "$unset", doc[1].Key)
	assert.Equal(t, bson.D{
		{Key: fieldVerificationToken, Value: ""},
		{Key: fieldVerificationTokenExp, Value: ""},
	}, doc[1].Value)
}

func TestUpdateDocOnlyTouchesUpdatedAt(t *testing.T) {
	doc := updateDoc(goGuard.UserPatch{}, fixedNow)
	assert.Equal(t, bson.D{{Key: "$set", Value: bson.D{{Key: fieldUpdatedAt, Value: fixedNow}}}}, doc)
}

package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	goGuard "github.com/MrEthical07/goGuard"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollection is the collection name used by the server command.
const DefaultCollection = "users"

// Store is a goGuard.AccountStore backed by one collection.
type Store struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ goGuard.AccountStore = (*Store)(nil)

// New returns a store over coll.
func New(coll *mongo.Collection) *Store {
	return &Store{coll: coll, now: time.Now}
}

// WithClock sets the clock used for updated_at.
func (s *Store) WithClock(now func() time.Time) *Store {
	if now != nil {
		s.now = now
	}
	return s
}

// EnsureIndexes creates the unique id and email indexes and the listing index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: fieldID, Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_id")},
		{Keys: bson.D{{Key: fieldEmail, Value: 1}}, Options: options.Index().SetUnique(true).SetName("uniq_email")},
		{Keys: bson.D{{Key: fieldCreatedAt, Value: 1}, {Key: fieldID, Value: 1}}, Options: options.Index().SetName("created_id")},
	})
	if err != nil {
		return fmt.Errorf("mongostore: create indexes: %w", err)
	}
	return nil
}

// FindByEmail looks the account up by its lower-cased email.
func (s *Store) FindByEmail(ctx context.Context, email string) (*goGuard.User, error) {
	return s.findOne(ctx, bson.D{{Key: fieldEmail, Value: email}})
}

// FindByID looks the account up by id.
func (s *Store) FindByID(ctx context.Context, id string) (*goGuard.User, error) {
	return s.findOne(ctx, bson.D{{Key: fieldID, Value: id}})
}

func (s *Store) findOne(ctx context.Context, filter bson.D) (*goGuard.User, error) {
	var doc userDoc
	err := s.coll.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, goGuard.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: find: %w", err)
	}
	return doc.user(), nil
}

// Create inserts user. A unique index violation maps to ErrAccountExists.
func (s *Store) Create(ctx context.Context, user *goGuard.User) error {
	if user == nil || user.ID == "" || user.Email == "" {
		return goGuard.ErrInvalidInput
	}
	_, err := s.coll.InsertOne(ctx, toDoc(user))
	if mongo.IsDuplicateKeyError(err) {
		return goGuard.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("mongostore: insert: %w", err)
	}
	return nil
}

// Update translates patch into $set and $unset. The precondition becomes part
// of the filter, so a stale precondition matches nothing and yields
// ErrPatchConflict.
func (s *Store) Update(ctx context.Context, id string, patch goGuard.UserPatch) error {
	res, err := s.coll.UpdateOne(ctx, updateFilter(id, patch.Precondition), updateDoc(patch, s.now()))
	if err != nil {
		return fmt.Errorf("mongostore: update: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if patch.Precondition.IsZero() {
		return goGuard.ErrUserNotFound
	}
	return s.missOrConflict(ctx, id)
}

// List returns up to limit accounts ordered by created_at, then id.
func (s *Store) List(ctx context.Context, limit int) ([]*goGuard.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: fieldCreatedAt, Value: 1}, {Key: fieldID, Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: list: %w", err)
	}
	defer cur.Close(ctx)

	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: list decode: %w", err)
	}
	out := make([]*goGuard.User, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.user())
	}
	return out, nil
}

// ConsumeBackupCode pulls hash in the same write that matches it, so only one
// of several concurrent callers sees a modification.
func (s *Store) ConsumeBackupCode(ctx context.Context, id, hash string) (bool, error) {
	res, err := s.coll.UpdateOne(ctx,
		bson.D{{Key: fieldID, Value: id}, {Key: fieldMFABackupCodes, Value: hash}},
		bson.D{
			{Key: "$pull", Value: bson.D{{Key: fieldMFABackupCodes, Value: hash}}},
			{Key: "$set", Value: bson.D{{Key: fieldUpdatedAt, Value: s.now().UTC()}}},
		},
	)
	if err != nil {
		return false, fmt.Errorf("mongostore: consume backup code: %w", err)
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}
	n, err := s.coll.CountDocuments(ctx, bson.D{{Key: fieldID, Value: id}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("mongostore: count: %w", err)
	}
	if n == 0 {
		return false, goGuard.ErrUserNotFound
	}
	return false, nil
}

func (s *Store) missOrConflict(ctx context.Context, id string) error {
	n, err := s.coll.CountDocuments(ctx, bson.D{{Key: fieldID, Value: id}}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("mongostore: count: %w", err)
	}
	if n == 0 {
		return goGuard.ErrUserNotFound
	}
	return goGuard.ErrPatchConflict
}

func updateFilter(id string, pre goGuard.Precondition) bson.D {
	filter := bson.D{{Key: fieldID, Value: id}}
	if pre.ResetTokenHash != "" {
		filter = append(filter, bson.E{Key: fieldResetToken, Value: pre.ResetTokenHash})
	}
	if pre.VerificationTokenHash != "" {
		filter = append(filter, bson.E{Key: fieldVerificationToken, Value: pre.VerificationTokenHash})
	}
	if pre.MFASecretPending != "" {
		filter = append(filter, bson.E{Key: fieldMFASecretPending, Value: pre.MFASecretPending})
	}
	if pre.MFAEnabled != nil {
		filter = append(filter, bson.E{Key: fieldMFAEnabled, Value: *pre.MFAEnabled})
	}
	if pre.IsAdmin != nil {
		filter = append(filter, bson.E{Key: fieldIsAdmin, Value: *pre.IsAdmin})
	}
	switch {
	case pre.SubscriptionEndDate.IsSet():
		filter = append(filter, bson.E{Key: fieldSubscriptionEndDate, Value: pre.SubscriptionEndDate.Value().UTC()})
	case pre.SubscriptionEndDate.IsUnset():
		// Matches both a missing field and an explicit null.
		filter = append(filter, bson.E{Key: fieldSubscriptionEndDate, Value: nil})
	}
	return filter
}

type updateBuilder struct {
	set   bson.D
	unset bson.D
}

func (b *updateBuilder) unsetField(name string) {
	b.unset = append(b.unset, bson.E{Key: name, Value: ""})
}

func value[T any](b *updateBuilder, name string, f goGuard.Field[T]) {
	switch {
	case f.IsSet():
		b.set = append(b.set, bson.E{Key: name, Value: f.Value()})
	case f.IsUnset():
		b.unsetField(name)
	}
}

// flag writes false instead of removing the field so equality filters on it
// keep matching.
func flag(b *updateBuilder, name string, f goGuard.Field[bool]) {
	switch {
	case f.IsSet():
		b.set = append(b.set, bson.E{Key: name, Value: f.Value()})
	case f.IsUnset():
		b.set = append(b.set, bson.E{Key: name, Value: false})
	}
}

func timestamp(b *updateBuilder, name string, f goGuard.Field[time.Time]) {
	switch {
	case f.IsSet():
		b.set = append(b.set, bson.E{Key: name, Value: f.Value().UTC()})
	case f.IsUnset():
		b.unsetField(name)
	}
}

func updateDoc(p goGuard.UserPatch, now time.Time) bson.D {
	var b updateBuilder
	value(&b, fieldName, p.Name)
	value(&b, fieldPasswordHash, p.PasswordHash)
	flag(&b, fieldIsAdmin, p.IsAdmin)
	flag(&b, fieldEmailVerified, p.EmailVerified)
	flag(&b, fieldMFAEnabled, p.MFAEnabled)
	value(&b, fieldMFASecret, p.MFASecret)
	value(&b, fieldMFASecretPending, p.MFASecretPending)
	switch {
	case p.MFABackupCodes.IsSet():
		codes := append([]string{}, p.MFABackupCodes.Value()...)
		b.set = append(b.set, bson.E{Key: fieldMFABackupCodes, Value: codes})
	case p.MFABackupCodes.IsUnset():
		b.unsetField(fieldMFABackupCodes)
	}
	timestamp(&b, fieldMFAGraceResetAt, p.MFAGraceResetAt)
	timestamp(&b, fieldSubscriptionEndDate, p.SubscriptionEndDate)
	timestamp(&b, fieldLastLoginAt, p.LastLoginAt)
	value(&b, fieldVerificationToken, p.VerificationTokenHash)
	timestamp(&b, fieldVerificationTokenExp, p.VerificationTokenExpiresAt)
	value(&b, fieldResetToken, p.ResetTokenHash)
	timestamp(&b, fieldResetTokenExp, p.ResetTokenExpiresAt)
	b.set = append(b.set, bson.E{Key: fieldUpdatedAt, Value: now.UTC()})

	update := bson.D{{Key: "$set", Value: b.set}}
	if len(b.unset) > 0 {
		update = append(update, bson.E{Key: "$unset", Value: b.unset})
	}
	return update
}

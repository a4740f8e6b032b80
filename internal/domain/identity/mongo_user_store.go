package identity

import (
	"context"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/danghamo/mongoidentity/internal/domain/shared"
	"github.com/danghamo/mongoidentity/pkg/mongox"
)

// UserCollection is the collection user documents live in
const UserCollection = "users"

// MongoUserStore implements UserStore on a MongoDB collection.
//
// There is no in-process locking; concurrent-writer correctness rests
// entirely on the server's atomic single-document conditional replace
// (filter by id + version). The store never retries: a caller that
// observes a concurrency failure must re-fetch before trying again.
type MongoUserStore struct {
	collection *mongo.Collection
	disposed   atomic.Bool
}

// NewMongoUserStore creates a user store over the client's users collection
func NewMongoUserStore(client *mongox.Client) *MongoUserStore {
	return &MongoUserStore{
		collection: client.Collection(UserCollection),
	}
}

func (s *MongoUserStore) checkState() error {
	if s.disposed.Load() {
		return shared.ErrStoreDisposed("user store")
	}
	return nil
}

// Dispose transitions the store to Disposed. Idempotent.
func (s *MongoUserStore) Dispose() {
	s.disposed.Store(true)
}

// Create inserts a new user document
func (s *MongoUserStore) Create(ctx context.Context, user *User) error {
	if err := s.checkState(); err != nil {
		return err
	}
	if user == nil {
		return shared.ErrInvalidArgument("user")
	}

	// The username is unique across the collection. The check is a
	// separate read, so a racing insert can still slip through; the
	// consuming framework treats that as an acceptable window.
	if user.NormalizedUserName != "" {
		existing, err := s.FindByName(ctx, user.NormalizedUserName)
		if err != nil {
			return err
		}
		if existing != nil {
			return shared.ErrDuplicateKey("userName " + user.UserName)
		}
	}

	if _, err := s.collection.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return shared.ErrDuplicateKey("user id " + user.ID)
		}
		return err
	}
	return nil
}

// Update replaces the stored document conditioned on the caller's
// last-read version. The whole document is written, embedded
// sub-collections included. On success the caller's in-memory version
// is bumped; on a concurrency failure it is left untouched.
func (s *MongoUserStore) Update(ctx context.Context, user *User) error {
	if err := s.checkState(); err != nil {
		return err
	}
	if user == nil {
		return shared.ErrInvalidArgument("user")
	}

	next := *user
	next.Version = user.Version + 1

	filter := bson.M{"_id": user.ID, "version": user.Version}
	res, err := s.collection.ReplaceOne(ctx, filter, &next)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return shared.ErrConcurrencyFailure(user.ID)
	}

	user.Version = next.Version
	return nil
}

// Delete removes the document conditioned on the caller's last-read
// version. Deletion is hard; the document is gone afterwards.
func (s *MongoUserStore) Delete(ctx context.Context, user *User) error {
	if err := s.checkState(); err != nil {
		return err
	}
	if user == nil {
		return shared.ErrInvalidArgument("user")
	}

	filter := bson.M{"_id": user.ID, "version": user.Version}
	res, err := s.collection.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return shared.ErrConcurrencyFailure(user.ID)
	}
	return nil
}

func (s *MongoUserStore) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var user User
	err := s.collection.FindOne(ctx, filter).Decode(&user)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID returns the user with the given id, or nil
func (s *MongoUserStore) FindByID(ctx context.Context, id string) (*User, error) {
	if err := s.checkState(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, shared.ErrInvalidArgument("id")
	}
	return s.findOne(ctx, bson.M{"_id": id})
}

// FindByName returns the user with the given normalized username, or nil
func (s *MongoUserStore) FindByName(ctx context.Context, normalizedName string) (*User, error) {
	if err := s.checkState(); err != nil {
		return nil, err
	}
	if normalizedName == "" {
		return nil, shared.ErrInvalidArgument("normalizedName")
	}
	return s.findOne(ctx, bson.M{"normalizedUserName": normalizedName})
}

// FindByEmail returns the user with the given normalized email, or nil
func (s *MongoUserStore) FindByEmail(ctx context.Context, normalizedEmail string) (*User, error) {
	if err := s.checkState(); err != nil {
		return nil, err
	}
	if normalizedEmail == "" {
		return nil, shared.ErrInvalidArgument("normalizedEmail")
	}
	return s.findOne(ctx, bson.M{"normalizedEmail": normalizedEmail})
}

// FindByLogin returns the user owning the (provider, key) external login, or nil
func (s *MongoUserStore) FindByLogin(ctx context.Context, provider, providerKey string) (*User, error) {
	if err := s.checkState(); err != nil {
		return nil, err
	}
	if provider == "" {
		return nil, shared.ErrInvalidArgument("provider")
	}
	if providerKey == "" {
		return nil, shared.ErrInvalidArgument("providerKey")
	}
	return s.findOne(ctx, bson.M{"logins": bson.M{"$elemMatch": bson.M{
		"provider":    provider,
		"providerKey": providerKey,
	}}})
}

// --- Claim operations ---

// AddClaims adds the claims to the in-memory document and persists it
func (s *MongoUserStore) AddClaims(ctx context.Context, user *User, claims []Claim) error {
	if err := s.checkState(); err != nil {
		return err
	}
	if user == nil {
		return shared.ErrInvalidArgument("user")
	}

	for i := range claims {
		if _, err := user.AddClaim(&claims[i]); err != nil {
			return err
		}
	}
	return s.Update(ctx, user)
}

// ReplaceClaim replaces matching claims on the document and persists it
func (s *MongoUserStore) ReplaceClaim(ctx context.Context, user *User, oldClaim, newClaim *Claim) error {
	if err := s.checkState(); err != nil {
		return err
	}
	if user == nil {
		return shared.ErrInvalidArgument("user")
	}

	if _, err := user.ClaimHolder.ReplaceClaim(oldClaim, newClaim); err != nil {
		return err
	}
	return s.Update(ctx, user)
}

// RemoveClaims removes matching claims from the document and persists it
func (s *MongoUserStore) RemoveClaims(ctx context.Context, user *User, claims []Claim) error {
	if err := s.checkState(); err != nil {
		return err
	}
	if user == nil {
		return shared.ErrInvalidArgument("user")
	}

	user.ClaimHolder.RemoveClaims(claims)
	return s.Update(ctx, user)
}

// --- Login operations ---

// AddLogin records an external login on the document and persists it
func (s *MongoUserStore) AddLogin(ctx context.Context, user *User, login *UserLogin) error {
	if err := s.checkState(); err != nil {
		return err
	}
	if user == nil {
		return shared.ErrInvalidArgument("user")
	}

	if _, err := user.AddLogin(login); err != nil {
		return err
	}
	return s.Update(ctx, user)
}

// RemoveLogin removes the (provider, key) login and persists the document
func (s *MongoUserStore) RemoveLogin(ctx context.Context, user *User, provider, providerKey string) error {
	if err := s.checkState(); err != nil {
		return err
	}
	if user == nil {
		return shared.ErrInvalidArgument("user")
	}

	if _, err := user.RemoveLogin(&UserLogin{Provider: provider, ProviderKey: providerKey}); err != nil {
		return err
	}
	return s.Update(ctx, user)
}

// --- Role membership operations ---

// AddToRole adds a role id to the document and persists it.
// The role's existence is not verified here; role lifecycle is the
// role store's concern and there is no cross-document cleanup.
func (s *MongoUserStore) AddToRole(ctx context.Context, user *User, roleID string) error {
	if err := s.checkState(); err != nil {
		return err
	}
	if user == nil {
		return shared.ErrInvalidArgument("user")
	}
	if roleID == "" {
		return shared.ErrInvalidArgument("roleID")
	}

	user.AddRole(roleID)
	return s.Update(ctx, user)
}

// RemoveFromRole removes a role id from the document and persists it
func (s *MongoUserStore) RemoveFromRole(ctx context.Context, user *User, roleID string) error {
	if err := s.checkState(); err != nil {
		return err
	}
	if user == nil {
		return shared.ErrInvalidArgument("user")
	}
	if roleID == "" {
		return shared.ErrInvalidArgument("roleID")
	}

	user.RemoveRole(roleID)
	return s.Update(ctx, user)
}

// --- Token operations ---

// SetToken adds or overwrites the (provider, name) token and persists
// the document
func (s *MongoUserStore) SetToken(ctx context.Context, user *User, token *UserToken) error {
	if err := s.checkState(); err != nil {
		return err
	}
	if user == nil {
		return shared.ErrInvalidArgument("user")
	}

	if _, err := user.SetToken(token); err != nil {
		return err
	}
	return s.Update(ctx, user)
}

// RemoveToken removes the (provider, name) token and persists the document
func (s *MongoUserStore) RemoveToken(ctx context.Context, user *User, provider, name string) error {
	if err := s.checkState(); err != nil {
		return err
	}
	if user == nil {
		return shared.ErrInvalidArgument("user")
	}

	user.RemoveToken(provider, name)
	return s.Update(ctx, user)
}

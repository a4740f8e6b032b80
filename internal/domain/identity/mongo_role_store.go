package identity

import (
	"context"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/danghamo/mongoidentity/internal/domain/shared"
	"github.com/danghamo/mongoidentity/pkg/mongox"
)

// RoleCollection is the collection role documents live in
const RoleCollection = "roles"

// MongoRoleStore implements RoleStore on a MongoDB collection, with the
// same conditional-write discipline as MongoUserStore.
type MongoRoleStore struct {
	collection *mongo.Collection
	disposed   atomic.Bool
}

// NewMongoRoleStore creates a role store over the client's roles collection
func NewMongoRoleStore(client *mongox.Client) *MongoRoleStore {
	return &MongoRoleStore{
		collection: client.Collection(RoleCollection),
	}
}

func (s *MongoRoleStore) checkState() error {
	if s.disposed.Load() {
		return shared.ErrStoreDisposed("role store")
	}
	return nil
}

// Dispose transitions the store to Disposed. Idempotent.
func (s *MongoRoleStore) Dispose() {
	s.disposed.Store(true)
}

// Create inserts a new role document
func (s *MongoRoleStore) Create(ctx context.Context, role *Role) error {
	if err := s.checkState(); err != nil {
		return err
	}
	if role == nil {
		return shared.ErrInvalidArgument("role")
	}

	if role.NormalizedName != "" {
		existing, err := s.FindByName(ctx, role.NormalizedName)
		if err != nil {
			return err
		}
		if existing != nil {
			return shared.ErrDuplicateKey("role name " + role.Name)
		}
	}

	if _, err := s.collection.InsertOne(ctx, role); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return shared.ErrDuplicateKey("role id " + role.ID)
		}
		return err
	}
	return nil
}

// Update replaces the stored document conditioned on the caller's
// last-read version, bumping the caller's copy on success.
func (s *MongoRoleStore) Update(ctx context.Context, role *Role) error {
	if err := s.checkState(); err != nil {
		return err
	}
	if role == nil {
		return shared.ErrInvalidArgument("role")
	}

	next := *role
	next.Version = role.Version + 1

	filter := bson.M{"_id": role.ID, "version": role.Version}
	res, err := s.collection.ReplaceOne(ctx, filter, &next)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return shared.ErrConcurrencyFailure(role.ID)
	}

	role.Version = next.Version
	return nil
}

// Delete removes the document conditioned on the caller's last-read
// version. Users that reference the deleted role keep its id; there is
// no cascading cleanup of memberships.
func (s *MongoRoleStore) Delete(ctx context.Context, role *Role) error {
	if err := s.checkState(); err != nil {
		return err
	}
	if role == nil {
		return shared.ErrInvalidArgument("role")
	}

	filter := bson.M{"_id": role.ID, "version": role.Version}
	res, err := s.collection.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return shared.ErrConcurrencyFailure(role.ID)
	}
	return nil
}

func (s *MongoRoleStore) findOne(ctx context.Context, filter bson.M) (*Role, error) {
	var role Role
	err := s.collection.FindOne(ctx, filter).Decode(&role)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &role, nil
}

// FindByID returns the role with the given id, or nil
func (s *MongoRoleStore) FindByID(ctx context.Context, id string) (*Role, error) {
	if err := s.checkState(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, shared.ErrInvalidArgument("id")
	}
	return s.findOne(ctx, bson.M{"_id": id})
}

// FindByName returns the role with the given normalized name, or nil
func (s *MongoRoleStore) FindByName(ctx context.Context, normalizedName string) (*Role, error) {
	if err := s.checkState(); err != nil {
		return nil, err
	}
	if normalizedName == "" {
		return nil, shared.ErrInvalidArgument("normalizedName")
	}
	return s.findOne(ctx, bson.M{"normalizedName": normalizedName})
}

// AddClaim adds a claim to the role document and persists it
func (s *MongoRoleStore) AddClaim(ctx context.Context, role *Role, claim *Claim) error {
	if err := s.checkState(); err != nil {
		return err
	}
	if role == nil {
		return shared.ErrInvalidArgument("role")
	}

	if _, err := role.ClaimHolder.AddClaim(claim); err != nil {
		return err
	}
	return s.Update(ctx, role)
}

// RemoveClaim removes a claim from the role document and persists it
func (s *MongoRoleStore) RemoveClaim(ctx context.Context, role *Role, claim *Claim) error {
	if err := s.checkState(); err != nil {
		return err
	}
	if role == nil {
		return shared.ErrInvalidArgument("role")
	}

	if _, err := role.ClaimHolder.RemoveClaim(claim); err != nil {
		return err
	}
	return s.Update(ctx, role)
}

package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/Skotchmaster/scenario_manager/internal/models"
)

const usersCollection = "users"

type MongoRepo struct {
	Users   *mongo.Collection
	Timeout time.Duration
}

var _ UserRepo = (*MongoRepo)(nil)

func NewMongoRepo(db *mongo.Database, timeout time.Duration) *MongoRepo {
	return &MongoRepo{Users: db.Collection(usersCollection), Timeout: timeout}
}

func (r *MongoRepo) EnsureIndexes(ctx context.Context) error {
	_, err := r.Users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return fmt.Errorf("create users indexes: %w", err)
	}
	return nil
}

func (r *MongoRepo) CreateUser(ctx context.Context, u *models.User) error {
	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	if _, err := r.Users.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrUserAlreadyExist
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *MongoRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoRepo) GetUserById(ctx context.Context, id string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *MongoRepo) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	var user models.User
	if err := r.Users.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (r *MongoRepo) SetRefreshHash(ctx context.Context, id string, hash *string) error {
	res, err := r.update(ctx, bson.M{"_id": id}, bson.M{"refreshTokenHash": hash})
	if err != nil {
		return fmt.Errorf("set refresh hash: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *MongoRepo) SwapRefreshHash(ctx context.Context, id, oldHash, newHash string) (bool, error) {
	res, err := r.update(ctx,
		bson.M{"_id": id, "refreshTokenHash": oldHash},
		bson.M{"refreshTokenHash": newHash},
	)
	if err != nil {
		return false, fmt.Errorf("swap refresh hash: %w", err)
	}
	return res.MatchedCount == 1, nil
}

func (r *MongoRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.update(ctx, bson.M{"_id": id}, bson.M{"lastLoginAt": at.UTC()})
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *MongoRepo) update(ctx context.Context, filter, set bson.M) (*mongo.UpdateResult, error) {
	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()

	set["updatedAt"] = time.Now().UTC()
	return r.Users.UpdateOne(ctx, filter, bson.M{"$set": set})
}

func (r *MongoRepo) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, r.Timeout)
	defer cancel()
	return r.Users.Database().Client().Ping(ctx, readpref.Primary())
}

package store

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"safezone-api-server/internal/models"
	"safezone-api-server/pkg/e"
)

const UsersCollection = "users"

type MongoUsers struct {
	coll    *mongo.Collection
	timeout time.Duration
	logger  *slog.Logger
}

func NewMongoUsers(db *mongo.Database, timeout time.Duration, logger *slog.Logger) *MongoUsers {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &MongoUsers{coll: db.Collection(UsersCollection), timeout: timeout, logger: logger}
}

func (u *MongoUsers) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "store.MongoUsers.FindByEmail"
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	var user models.User
	err := u.coll.FindOne(ctx, bson.M{"email": strings.ToLower(email)}).Decode(&user)
	if err != nil {
		if err != mongo.ErrNoDocuments {
			u.logger.Error("find user failed", slog.String("op", op), slog.Any("error", err))
		}
		return nil, e.WrapMongo(ctx, op, err)
	}
	return &user, nil
}

func (u *MongoUsers) CreateUser(ctx context.Context, user *models.User) error {
	const op = "store.MongoUsers.CreateUser"
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	user.Email = strings.ToLower(user.Email)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if _, err := u.coll.InsertOne(ctx, user); err != nil {
		u.logger.Error("insert user failed", slog.String("op", op), slog.Any("error", err))
		return e.WrapMongo(ctx, op, err)
	}
	return nil
}

func (u *MongoUsers) CountUsers(ctx context.Context, email string) (int64, error) {
	const op = "store.MongoUsers.CountUsers"
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	n, err := u.coll.CountDocuments(ctx, bson.M{"email": strings.ToLower(email)})
	if err != nil {
		return 0, e.WrapMongo(ctx, op, err)
	}
	return n, nil
}

package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/db"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/models"
)

// IUserRepository persists accounts.
type IUserRepository interface {
	Insert(ctx context.Context, u *models.User) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	SetContractorID(ctx context.Context, userID, contractorID primitive.ObjectID) error
}

type userRepository struct {
	coll *mongo.Collection
}

func NewUserRepository(database *mongo.Database) IUserRepository {
	return &userRepository{coll: database.Collection(db.UsersCollection)}
}

func (r *userRepository) Insert(ctx context.Context, u *models.User) error {
	u.GenIDIfEmpty()
	_, err := r.coll.InsertOne(ctx, u)
	return translate(err, "failed to insert user")
}

func (r *userRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.User, error) {
	var u models.User
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, translate(err, fmt.Sprintf("error finding user %s", id.Hex()))
	}
	return &u, nil
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	if err := r.coll.FindOne(ctx, bson.M{"username": username}).Decode(&u); err != nil {
		return nil, translate(err, "error finding user by username")
	}
	return &u, nil
}

func (r *userRepository) SetContractorID(ctx context.Context, userID, contractorID primitive.ObjectID) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"contractor_id": contractorID}})
	if err != nil {
		return translate(err, "failed to link contractor profile")
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

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

// IContractorRepository persists contractor profiles.
type IContractorRepository interface {
	Insert(ctx context.Context, c *models.Contractor) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Contractor, error)
	FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Contractor, error)
	List(ctx context.Context, limit int64) ([]models.Contractor, error)
}

type contractorRepository struct {
	coll *mongo.Collection
}

func NewContractorRepository(database *mongo.Database) IContractorRepository {
	return &contractorRepository{coll: database.Collection(db.ContractorsCollection)}
}

func (r *contractorRepository) Insert(ctx context.Context, c *models.Contractor) error {
	c.GenIDIfEmpty()
	_, err := r.coll.InsertOne(ctx, c)
	return translate(err, "failed to insert contractor")
}

func (r *contractorRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Contractor, error) {
	var c models.Contractor
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		return nil, translate(err, fmt.Sprintf("error finding contractor %s", id.Hex()))
	}
	return &c, nil
}

func (r *contractorRepository) FindByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Contractor, error) {
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}}, 0)
}

func (r *contractorRepository) List(ctx context.Context, limit int64) ([]models.Contractor, error) {
	return r.find(ctx, bson.M{}, limit)
}

func (r *contractorRepository) find(ctx context.Context, filter bson.M, limit int64) ([]models.Contractor, error) {
	cursor, err := r.coll.Find(ctx, filter, findOptions(limit, "name", 1))
	if err != nil {
		return nil, fmt.Errorf("failed to query contractors: %w", err)
	}
	defer cursor.Close(ctx)

	contractors := []models.Contractor{}
	if err := cursor.All(ctx, &contractors); err != nil {
		return nil, fmt.Errorf("failed to decode contractors: %w", err)
	}
	return contractors, nil
}

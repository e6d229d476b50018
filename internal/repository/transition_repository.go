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

// ITransitionRepository stores the status history of properties.
type ITransitionRepository interface {
	Insert(ctx context.Context, rec *models.TransitionRecord) error
	ListByProperty(ctx context.Context, propertyID primitive.ObjectID) ([]models.TransitionRecord, error)
}

type transitionRepository struct {
	coll *mongo.Collection
}

func NewTransitionRepository(database *mongo.Database) ITransitionRepository {
	return &transitionRepository{coll: database.Collection(db.TransitionsCollection)}
}

func (r *transitionRepository) Insert(ctx context.Context, rec *models.TransitionRecord) error {
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	_, err := r.coll.InsertOne(ctx, rec)
	return translate(err, "failed to record transition")
}

func (r *transitionRepository) ListByProperty(ctx context.Context, propertyID primitive.ObjectID) ([]models.TransitionRecord, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"property": propertyID}, findOptions(0, "at", 1))
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer cursor.Close(ctx)

	records := []models.TransitionRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode transitions: %w", err)
	}
	return records, nil
}

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

// ICompletionImageRepository persists the photos attached when a job is finished.
type ICompletionImageRepository interface {
	InsertMany(ctx context.Context, images []models.CompletionImage) error
	ListByProperty(ctx context.Context, propertyID primitive.ObjectID) ([]models.CompletionImage, error)
}

type completionImageRepository struct {
	coll *mongo.Collection
}

func NewCompletionImageRepository(database *mongo.Database) ICompletionImageRepository {
	return &completionImageRepository{coll: database.Collection(db.CompletionImagesCollection)}
}

func (r *completionImageRepository) InsertMany(ctx context.Context, images []models.CompletionImage) error {
	if len(images) == 0 {
		return nil
	}
	docs := make([]interface{}, len(images))
	for i := range images {
		if images[i].ID.IsZero() {
			images[i].ID = primitive.NewObjectID()
		}
		docs[i] = images[i]
	}
	_, err := r.coll.InsertMany(ctx, docs)
	return translate(err, "failed to insert completion images")
}

func (r *completionImageRepository) ListByProperty(ctx context.Context, propertyID primitive.ObjectID) ([]models.CompletionImage, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"property": propertyID}, findOptions(0, "order", 1))
	if err != nil {
		return nil, fmt.Errorf("failed to query completion images: %w", err)
	}
	defer cursor.Close(ctx)

	images := []models.CompletionImage{}
	if err := cursor.All(ctx, &images); err != nil {
		return nil, fmt.Errorf("failed to decode completion images: %w", err)
	}
	return images, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/db"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/models"
)

// IPropertyRepository persists properties.
type IPropertyRepository interface {
	Insert(ctx context.Context, p *models.Property) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Property, error)
	Find(ctx context.Context, filter bson.M, limit int64) ([]models.Property, error)
	// ReplaceIfUnchanged stores p only if the stored document still has the status and
	// updated_at of before, the snapshot p was derived from.
	ReplaceIfUnchanged(ctx context.Context, p *models.Property, before *models.Property) error
	// AppendImages pushes images onto a property that is not in a terminal state.
	AppendImages(ctx context.Context, id primitive.ObjectID, images []models.PropertyImage, terminal []models.PropertyStatus, now time.Time) error
}

type propertyRepository struct {
	coll *mongo.Collection
}

func NewPropertyRepository(database *mongo.Database) IPropertyRepository {
	return &propertyRepository{coll: database.Collection(db.PropertiesCollection)}
}

func (r *propertyRepository) Insert(ctx context.Context, p *models.Property) error {
	p.GenIDIfEmpty()
	if p.Images == nil {
		p.Images = []models.PropertyImage{}
	}
	_, err := r.coll.InsertOne(ctx, p)
	return translate(err, "failed to insert property")
}

func (r *propertyRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Property, error) {
	var p models.Property
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		return nil, translate(err, fmt.Sprintf("error finding property %s", id.Hex()))
	}
	return &p, nil
}

func (r *propertyRepository) Find(ctx context.Context, filter bson.M, limit int64) ([]models.Property, error) {
	cursor, err := r.coll.Find(ctx, filter, findOptions(limit, "created_at", -1))
	if err != nil {
		return nil, fmt.Errorf("failed to query properties: %w", err)
	}
	defer cursor.Close(ctx)

	properties := []models.Property{}
	if err := cursor.All(ctx, &properties); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}
	return properties, nil
}

func (r *propertyRepository) ReplaceIfUnchanged(ctx context.Context, p *models.Property, before *models.Property) error {
	res, err := r.coll.ReplaceOne(ctx, bson.M{
		"_id":        p.ID,
		"status":     before.Status,
		"updated_at": before.UpdatedAt,
	}, p)
	if err != nil {
		return translate(err, fmt.Sprintf("failed to update property %s", p.ID.Hex()))
	}
	if res.MatchedCount == 0 {
		return r.diagnose(ctx, p.ID)
	}
	return nil
}

func (r *propertyRepository) AppendImages(ctx context.Context, id primitive.ObjectID, images []models.PropertyImage, terminal []models.PropertyStatus, now time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$nin": terminal}},
		bson.M{
			"$push": bson.M{"images": bson.M{"$each": images}},
			"$set":  bson.M{"updated_at": now},
		},
	)
	if err != nil {
		return translate(err, fmt.Sprintf("failed to add images to property %s", id.Hex()))
	}
	if res.MatchedCount == 0 {
		return r.diagnose(ctx, id)
	}
	return nil
}

// diagnose tells a missing document apart from one whose state moved on.
func (r *propertyRepository) diagnose(ctx context.Context, id primitive.ObjectID) error {
	count, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to check property %s: %w", id.Hex(), err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return ErrStale
}

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

// IOfferRepository persists price offers.
type IOfferRepository interface {
	Insert(ctx context.Context, o *models.PriceOffer) error
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.PriceOffer, error)
	Find(ctx context.Context, filter bson.M, limit int64) ([]models.PriceOffer, error)
	HasPending(ctx context.Context, propertyID, contractorID primitive.ObjectID) (bool, error)
	// Decide moves a pending offer to status. ErrStale means it was already decided.
	Decide(ctx context.Context, id primitive.ObjectID, status models.OfferStatus, at time.Time) error
	// RejectOtherPending rejects every pending offer on the property except keep.
	RejectOtherPending(ctx context.Context, propertyID, keep primitive.ObjectID, at time.Time) ([]models.PriceOffer, error)
}

type offerRepository struct {
	coll *mongo.Collection
}

func NewOfferRepository(database *mongo.Database) IOfferRepository {
	return &offerRepository{coll: database.Collection(db.PriceOffersCollection)}
}

func (r *offerRepository) Insert(ctx context.Context, o *models.PriceOffer) error {
	o.GenIDIfEmpty()
	_, err := r.coll.InsertOne(ctx, o)
	return translate(err, "failed to insert price offer")
}

func (r *offerRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.PriceOffer, error) {
	var o models.PriceOffer
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&o); err != nil {
		return nil, translate(err, fmt.Sprintf("error finding price offer %s", id.Hex()))
	}
	return &o, nil
}

func (r *offerRepository) Find(ctx context.Context, filter bson.M, limit int64) ([]models.PriceOffer, error) {
	cursor, err := r.coll.Find(ctx, filter, findOptions(limit, "proposed_at", -1))
	if err != nil {
		return nil, fmt.Errorf("failed to query price offers: %w", err)
	}
	defer cursor.Close(ctx)

	offers := []models.PriceOffer{}
	if err := cursor.All(ctx, &offers); err != nil {
		return nil, fmt.Errorf("failed to decode price offers: %w", err)
	}
	return offers, nil
}

func (r *offerRepository) HasPending(ctx context.Context, propertyID, contractorID primitive.ObjectID) (bool, error) {
	count, err := r.coll.CountDocuments(ctx, bson.M{
		"property":   propertyID,
		"contractor": contractorID,
		"status":     models.OfferPending,
	})
	if err != nil {
		return false, fmt.Errorf("failed to count pending offers: %w", err)
	}
	return count > 0, nil
}

func (r *offerRepository) Decide(ctx context.Context, id primitive.ObjectID, status models.OfferStatus, at time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.OfferPending},
		bson.M{"$set": bson.M{"status": status, "decided_at": at, "updated_at": at}},
	)
	if err != nil {
		return translate(err, fmt.Sprintf("failed to update price offer %s", id.Hex()))
	}
	if res.MatchedCount == 0 {
		count, err := r.coll.CountDocuments(ctx, bson.M{"_id": id})
		if err != nil {
			return fmt.Errorf("failed to check price offer %s: %w", id.Hex(), err)
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrStale
	}
	return nil
}

func (r *offerRepository) RejectOtherPending(ctx context.Context, propertyID, keep primitive.ObjectID, at time.Time) ([]models.PriceOffer, error) {
	filter := bson.M{
		"property": propertyID,
		"status":   models.OfferPending,
		"_id":      bson.M{"$ne": keep},
	}
	losing, err := r.Find(ctx, filter, 0)
	if err != nil {
		return nil, err
	}
	if len(losing) == 0 {
		return losing, nil
	}
	if _, err := r.coll.UpdateMany(ctx, filter,
		bson.M{"$set": bson.M{"status": models.OfferRejected, "decided_at": at, "updated_at": at}},
	); err != nil {
		return nil, fmt.Errorf("failed to reject sibling offers of property %s: %w", propertyID.Hex(), err)
	}
	for i := range losing {
		losing[i].Status = models.OfferRejected
		decided := at
		losing[i].DecidedAt = &decided
		losing[i].UpdatedAt = at
	}
	return losing, nil
}

package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Collection names.
const (
	UsersCollection            = "users"
	ContractorsCollection      = "contractors"
	PropertiesCollection       = "properties"
	PriceOffersCollection      = "price_offers"
	CompletionImagesCollection = "completion_images"
	TransitionsCollection      = "property_transitions"
)

// OnePendingOfferIndex keeps a contractor to one pending offer per property.
const OnePendingOfferIndex = "one_pending_offer"

// ConnectDB initializes and returns a MongoDB client and database instance.
func ConnectDB(uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	ctxPing, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := client.Ping(ctxPing, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	fmt.Println("Successfully connected to MongoDB!")
	return client, client.Database(dbName), nil
}

// DisconnectDB closes the MongoDB client connection.
func DisconnectDB(client *mongo.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect MongoDB: %w", err)
	}
	fmt.Println("MongoDB connection closed.")
	return nil
}

// EnsureIndexes creates the indexes the repositories rely on. It is idempotent.
func EnsureIndexes(ctx context.Context, database *mongo.Database) error {
	indexes := map[string][]mongo.IndexModel{
		UsersCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{
				Keys: bson.D{{Key: "national_id", Value: 1}},
				Options: options.Index().SetUnique(true).
					SetPartialFilterExpression(bson.M{"national_id": bson.M{"$type": "string"}}),
			},
		},
		ContractorsCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		PropertiesCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "homeowner", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "assigned_contractor", Value: 1}}},
		},
		PriceOffersCollection: {
			{Keys: bson.D{{Key: "property", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "contractor", Value: 1}, {Key: "proposed_at", Value: -1}}},
			{Keys: bson.D{{Key: "homeowner", Value: 1}, {Key: "proposed_at", Value: -1}}},
			// One accepted offer per property at the storage level too.
			{
				Keys: bson.D{{Key: "property", Value: 1}},
				Options: options.Index().SetUnique(true).SetName("one_accepted_offer").
					SetPartialFilterExpression(bson.M{"status": "accepted"}),
			},
			{
				Keys: bson.D{{Key: "property", Value: 1}, {Key: "contractor", Value: 1}},
				Options: options.Index().SetUnique(true).SetName(OnePendingOfferIndex).
					SetPartialFilterExpression(bson.M{"status": "pending"}),
			},
		},
		CompletionImagesCollection: {
			{Keys: bson.D{{Key: "property", Value: 1}, {Key: "order", Value: 1}}},
		},
		TransitionsCollection: {
			{Keys: bson.D{{Key: "property", Value: 1}, {Key: "at", Value: 1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := database.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CompletionImage is a photo attached by the contractor when finishing a job.
type CompletionImage struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Property    primitive.ObjectID `bson:"property" json:"property"`
	Key         string             `bson:"key" json:"key"`
	URL         string             `bson:"url" json:"url"`
	Description string             `bson:"description" json:"description"`
	Order       int                `bson:"order" json:"order"`
	UploadedAt  time.Time          `bson:"uploaded_at" json:"uploaded_at"`
}

// TransitionRecord is one entry of a property's status history.
type TransitionRecord struct {
	ID        primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	Property  primitive.ObjectID  `bson:"property" json:"property"`
	ActorID   primitive.ObjectID  `bson:"actor_id" json:"actor_id"`
	ActorRole Role                `bson:"actor_role" json:"actor_role"`
	Action    string              `bson:"action" json:"action"`
	From      PropertyStatus      `bson:"from" json:"from"`
	To        PropertyStatus      `bson:"to" json:"to"`
	Offer     *primitive.ObjectID `bson:"offer,omitempty" json:"offer,omitempty"`
	At        time.Time           `bson:"at" json:"at"`
}

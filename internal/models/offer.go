package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
)

// PriceOffer is a contractor's bid on a property.
type PriceOffer struct {
	Base       `bson:",inline"`
	Property   primitive.ObjectID `bson:"property" json:"property"`
	Contractor primitive.ObjectID `bson:"contractor" json:"contractor"`
	// Homeowner is copied from the property so offers can be scoped without a join.
	Homeowner   primitive.ObjectID `bson:"homeowner" json:"homeowner"`
	Amount      float64            `bson:"amount" json:"amount"`
	Description string             `bson:"description" json:"description"`
	ProposedAt  time.Time          `bson:"proposed_at" json:"proposed_at"`
	Status      OfferStatus        `bson:"status" json:"status"`
	DecidedAt   *time.Time         `bson:"decided_at,omitempty" json:"decided_at,omitempty"`
}

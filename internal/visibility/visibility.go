// Package visibility decides which properties and offers an actor may see. Filters are
// expressed as Mongo queries for listings and as predicates for single-record reads.
package visibility

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/models"
)

// View distinguishes list queries from detail lookups; anonymous users see more on detail.
type View int

const (
	ViewList View = iota
	ViewDetail
)

// anonymousStatuses are the states an unauthenticated visitor may observe.
func anonymousStatuses(view View) []models.PropertyStatus {
	if view == ViewDetail {
		return []models.PropertyStatus{models.StatusApproved, models.StatusCompleted}
	}
	return []models.PropertyStatus{models.StatusCompleted}
}

// PropertyFilter returns the Mongo filter limiting properties to those actor may see.
// ok is false when nothing is visible.
func PropertyFilter(actor models.Actor, view View) (filter bson.M, ok bool) {
	switch {
	case actor.IsAnonymous():
		return bson.M{"status": bson.M{"$in": anonymousStatuses(view)}}, true
	case actor.IsAdmin():
		return bson.M{}, true
	case actor.IsHomeowner():
		return bson.M{"homeowner": actor.UserID}, true
	case actor.IsContractor():
		return bson.M{"$or": bson.A{
			bson.M{"status": models.StatusApproved},
			bson.M{"assigned_contractor": actor.ContractorID},
		}}, true
	}
	return nil, false
}

// WithStatus narrows a visibility filter to a single status.
func WithStatus(filter bson.M, status models.PropertyStatus) bson.M {
	if status == "" {
		return filter
	}
	if len(filter) == 0 {
		return bson.M{"status": status}
	}
	return bson.M{"$and": bson.A{filter, bson.M{"status": status}}}
}

// CanViewProperty is the single-record counterpart of PropertyFilter for detail reads.
func CanViewProperty(actor models.Actor, p *models.Property) bool {
	switch {
	case actor.IsAnonymous():
		for _, s := range anonymousStatuses(ViewDetail) {
			if p.Status == s {
				return true
			}
		}
		return false
	case actor.IsAdmin():
		return true
	case actor.IsHomeowner():
		return p.Homeowner == actor.UserID
	case actor.IsContractor():
		return p.Status == models.StatusApproved || actor.IsAssignedTo(p)
	}
	return false
}

// OfferFilter returns the Mongo filter limiting offers to those actor may see.
func OfferFilter(actor models.Actor) (filter bson.M, ok bool) {
	switch {
	case actor.IsAnonymous():
		return nil, false
	case actor.IsAdmin():
		return bson.M{}, true
	case actor.IsHomeowner():
		return bson.M{"homeowner": actor.UserID}, true
	case actor.IsContractor():
		return bson.M{"contractor": actor.ContractorID}, true
	}
	return nil, false
}

// CanViewOffer reports whether actor may read o.
func CanViewOffer(actor models.Actor, o *models.PriceOffer) bool {
	switch {
	case actor.IsAnonymous():
		return false
	case actor.IsAdmin():
		return true
	case actor.IsHomeowner():
		return o.Homeowner == actor.UserID
	case actor.IsContractor():
		return o.Contractor == actor.ContractorID
	}
	return false
}

// CanViewHistory limits the audit trail to administrators and the owner.
func CanViewHistory(actor models.Actor, p *models.Property) bool {
	return actor.IsAdmin() || actor.Owns(p)
}

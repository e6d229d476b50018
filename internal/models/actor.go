package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Actor is the identity a request runs as. The zero value is anonymous.
type Actor struct {
	UserID       primitive.ObjectID
	Role         Role
	ContractorID primitive.ObjectID
}

// Anonymous is the actor of unauthenticated requests.
var Anonymous = Actor{}

func (a Actor) IsAnonymous() bool {
	return a.UserID.IsZero()
}

func (a Actor) IsAdmin() bool {
	return !a.IsAnonymous() && a.Role == RoleAdmin
}

func (a Actor) IsHomeowner() bool {
	return !a.IsAnonymous() && a.Role == RoleHomeowner
}

// IsContractor is true only when the account also has a contractor profile.
func (a Actor) IsContractor() bool {
	return !a.IsAnonymous() && a.Role == RoleContractor && !a.ContractorID.IsZero()
}

// Owns reports whether the actor is the homeowner of p.
func (a Actor) Owns(p *Property) bool {
	return a.IsHomeowner() && p.Homeowner == a.UserID
}

// IsAssignedTo reports whether the actor is the contractor currently assigned to p.
func (a Actor) IsAssignedTo(p *Property) bool {
	return a.IsContractor() && p.AssignedContractor != nil && *p.AssignedContractor == a.ContractorID
}

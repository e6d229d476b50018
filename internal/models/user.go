package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role identifies what a user is allowed to do in the marketplace.
type Role string

const (
	RoleHomeowner  Role = "homeowner"
	RoleAdmin      Role = "admin"
	RoleContractor Role = "contractor"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleHomeowner, RoleAdmin, RoleContractor:
		return true
	}
	return false
}

type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

// User represents an account holder.
type User struct {
	Base           `bson:",inline"`
	Username       string     `bson:"username" json:"username"`
	Email          string     `bson:"email" json:"email"`
	PasswordHash   string     `bson:"password" json:"-"`
	FirstName      string     `bson:"first_name" json:"first_name"`
	LastName       string     `bson:"last_name" json:"last_name"`
	Role           Role       `bson:"role" json:"role"`
	Gender         Gender     `bson:"gender,omitempty" json:"gender,omitempty"`
	DateOfBirth    *time.Time `bson:"date_of_birth,omitempty" json:"date_of_birth,omitempty"`
	Phone          string     `bson:"phone,omitempty" json:"phone,omitempty"`
	MobileVerified bool       `bson:"mobile_verified" json:"mobile_verified"`
	NationalID     string     `bson:"national_id,omitempty" json:"national_id,omitempty"`
	// ContractorID links a contractor account to its profile document.
	ContractorID *primitive.ObjectID `bson:"contractor_id,omitempty" json:"contractor_id,omitempty"`
}

// Contractor is the professional profile attached to a contractor account.
type Contractor struct {
	Base            `bson:",inline"`
	UserID          primitive.ObjectID `bson:"user_id" json:"user_id"`
	Specialization  string             `bson:"specialization" json:"specialization"`
	ExperienceYears int                `bson:"experience_years" json:"experience_years"`
	LicenseNumber   string             `bson:"license_number" json:"license_number"`
	// Display name copied from the user at signup.
	Name string `bson:"name" json:"name"`
}

package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// PropertyStatus is a state of the property workflow.
type PropertyStatus string

const (
	StatusPending       PropertyStatus = "pending"
	StatusApproved      PropertyStatus = "approved"
	StatusPriceProposed PropertyStatus = "price_proposed"
	StatusInProgress    PropertyStatus = "in_progress"
	StatusCompleted     PropertyStatus = "completed"
	StatusRejected      PropertyStatus = "rejected"
)

// AllStatuses lists every workflow state in lifecycle order.
var AllStatuses = []PropertyStatus{
	StatusPending,
	StatusApproved,
	StatusPriceProposed,
	StatusInProgress,
	StatusCompleted,
	StatusRejected,
}

func (s PropertyStatus) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// HasContractor reports whether a property in this state must carry an assigned contractor.
func (s PropertyStatus) HasContractor() bool {
	return s == StatusPriceProposed || s == StatusInProgress || s == StatusCompleted
}

type PropertyType string

const (
	PropertyTypeHouse     PropertyType = "house"
	PropertyTypeApartment PropertyType = "apartment"
)

type Condition string

const (
	ConditionGood        Condition = "GOOD"
	ConditionFair        Condition = "FAIR"
	ConditionPoor        Condition = "POOR"
	ConditionDilapidated Condition = "DILAPIDATED"
)

// PropertyImage is a photo uploaded by the homeowner. The first one becomes the thumbnail.
type PropertyImage struct {
	Key         string    `bson:"key" json:"key"`
	URL         string    `bson:"url" json:"url"`
	Order       int       `bson:"order" json:"order"`
	IsThumbnail bool      `bson:"is_thumbnail" json:"is_thumbnail"`
	UploadedAt  time.Time `bson:"uploaded_at" json:"uploaded_at"`
}

// Property is a homeowner's renovation job moving through the workflow.
type Property struct {
	Base           `bson:",inline"`
	Title          string       `bson:"title" json:"title" validate:"required,max=200"`
	Description    string       `bson:"description" json:"description" validate:"required"`
	Address        string       `bson:"address" json:"address" validate:"required,max=255"`
	City           string       `bson:"city" json:"city" validate:"required,max=100"`
	Latitude       float64      `bson:"latitude" json:"latitude" validate:"gte=-90,lte=90"`
	Longitude      float64      `bson:"longitude" json:"longitude" validate:"gte=-180,lte=180"`
	PlotNumber     string       `bson:"plot_number" json:"plot_number" validate:"required,max=50"`
	PropertyType   PropertyType `bson:"property_type" json:"property_type" validate:"oneof=house apartment"`
	Size           float64      `bson:"size" json:"size" validate:"gt=0"`
	NumberOfFloors *int         `bson:"number_of_floors,omitempty" json:"number_of_floors,omitempty" validate:"omitempty,gte=1"`
	NumberOfRooms  *int         `bson:"number_of_rooms,omitempty" json:"number_of_rooms,omitempty" validate:"omitempty,gte=1"`
	Condition      Condition    `bson:"condition" json:"condition" validate:"oneof=GOOD FAIR POOR DILAPIDATED"`

	Status             PropertyStatus      `bson:"status" json:"status"`
	Homeowner          primitive.ObjectID  `bson:"homeowner" json:"homeowner"`
	AdminApprover      *primitive.ObjectID `bson:"admin_approver,omitempty" json:"admin_approver,omitempty"`
	AssignedContractor *primitive.ObjectID `bson:"assigned_contractor,omitempty" json:"assigned_contractor,omitempty"`

	EvaluationReport string     `bson:"evaluation_report,omitempty" json:"evaluation_report,omitempty"`
	Rating           *float64   `bson:"rating,omitempty" json:"rating,omitempty"`
	EvaluationDate   *time.Time `bson:"evaluation_date,omitempty" json:"evaluation_date,omitempty"`

	CompletionNote string     `bson:"completion_note,omitempty" json:"completion_note,omitempty"`
	CompletionDate *time.Time `bson:"completion_date,omitempty" json:"completion_date,omitempty"`

	Images []PropertyImage `bson:"images" json:"images"`
}

// Clone returns a deep copy so callers can compute a next state without touching the original.
func (p *Property) Clone() *Property {
	c := *p
	if p.NumberOfFloors != nil {
		v := *p.NumberOfFloors
		c.NumberOfFloors = &v
	}
	if p.NumberOfRooms != nil {
		v := *p.NumberOfRooms
		c.NumberOfRooms = &v
	}
	if p.AdminApprover != nil {
		c.AdminApprover = idPtr(*p.AdminApprover)
	}
	if p.AssignedContractor != nil {
		c.AssignedContractor = idPtr(*p.AssignedContractor)
	}
	if p.Rating != nil {
		v := *p.Rating
		c.Rating = &v
	}
	c.EvaluationDate = timePtr(p.EvaluationDate)
	c.CompletionDate = timePtr(p.CompletionDate)
	if p.Images != nil {
		c.Images = append([]PropertyImage(nil), p.Images...)
	}
	return &c
}

// Thumbnail returns the thumbnail image, if any.
func (p *Property) Thumbnail() *PropertyImage {
	for i := range p.Images {
		if p.Images[i].IsThumbnail {
			return &p.Images[i]
		}
	}
	return nil
}

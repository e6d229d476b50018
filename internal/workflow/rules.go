package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/apperr"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/models"
)

// rule is one row of the transition table. An empty to keeps the current status.
type rule struct {
	from     []models.PropertyStatus
	action   Action
	to       models.PropertyStatus
	guard    func(actor models.Actor, p *models.Property) bool
	validate func(p *models.Property, in Input) error
	effect   func(actor models.Actor, next *models.Property, in Input, now time.Time)
}

func (r *rule) appliesTo(s models.PropertyStatus) bool {
	for _, f := range r.from {
		if f == s {
			return true
		}
	}
	return false
}

const (
	minRating = 0.0
	maxRating = 5.0
)

var rules = []rule{
	{
		from:   []models.PropertyStatus{models.StatusPending},
		action: ActionApprove,
		to:     models.StatusApproved,
		guard:  isAdmin,
		effect: func(actor models.Actor, next *models.Property, _ Input, _ time.Time) {
			approver := actor.UserID
			next.AdminApprover = &approver
		},
	},
	{
		from:   []models.PropertyStatus{models.StatusPending},
		action: ActionReject,
		to:     models.StatusRejected,
		guard:  isAdmin,
		effect: func(actor models.Actor, next *models.Property, _ Input, _ time.Time) {
			approver := actor.UserID
			next.AdminApprover = &approver
		},
	},
	{
		// The latest bidder becomes the assigned contractor until the owner decides.
		from:   []models.PropertyStatus{models.StatusApproved, models.StatusPriceProposed},
		action: ActionSubmitOffer,
		to:     models.StatusPriceProposed,
		guard: func(actor models.Actor, _ *models.Property) bool {
			return actor.IsContractor()
		},
		validate: func(_ *models.Property, in Input) error {
			if in.OfferAmount <= 0 {
				return apperr.Validation("amount", "must be greater than zero")
			}
			return nil
		},
		effect: func(actor models.Actor, next *models.Property, _ Input, _ time.Time) {
			contractor := actor.ContractorID
			next.AssignedContractor = &contractor
		},
	},
	{
		from:     []models.PropertyStatus{models.StatusApproved, models.StatusPriceProposed},
		action:   ActionAcceptOffer,
		to:       models.StatusInProgress,
		guard:    isOwner,
		validate: pendingOfferOf,
		effect: func(_ models.Actor, next *models.Property, in Input, _ time.Time) {
			contractor := in.Offer.Contractor
			next.AssignedContractor = &contractor
		},
	},
	{
		from:     []models.PropertyStatus{models.StatusApproved, models.StatusPriceProposed},
		action:   ActionRejectOffer,
		to:       models.StatusApproved,
		guard:    isOwner,
		validate: pendingOfferOf,
		effect: func(_ models.Actor, next *models.Property, _ Input, _ time.Time) {
			next.AssignedContractor = nil
		},
	},
	{
		from:   []models.PropertyStatus{models.StatusPriceProposed, models.StatusInProgress},
		action: ActionEvaluate,
		guard:  isAssigned,
		validate: func(_ *models.Property, in Input) error {
			fields := map[string]string{}
			if strings.TrimSpace(in.EvaluationReport) == "" {
				fields["evaluation_report"] = "required"
			}
			if in.Rating == nil {
				fields["rating"] = "required"
			} else if *in.Rating < minRating || *in.Rating > maxRating {
				fields["rating"] = fmt.Sprintf("must be between %g and %g", minRating, maxRating)
			}
			if len(fields) > 0 {
				return apperr.ValidationFields(fields)
			}
			return nil
		},
		effect: func(_ models.Actor, next *models.Property, in Input, now time.Time) {
			rating := *in.Rating
			next.EvaluationReport = strings.TrimSpace(in.EvaluationReport)
			next.Rating = &rating
			next.EvaluationDate = &now
		},
	},
	{
		from:   []models.PropertyStatus{models.StatusInProgress},
		action: ActionComplete,
		to:     models.StatusCompleted,
		guard:  isAssigned,
		validate: func(_ *models.Property, in Input) error {
			fields := map[string]string{}
			if strings.TrimSpace(in.CompletionNote) == "" {
				fields["note"] = "required"
			}
			if in.ImageCount < 1 {
				fields["images"] = "at least one image is required"
			}
			if len(fields) > 0 {
				return apperr.ValidationFields(fields)
			}
			return nil
		},
		effect: func(_ models.Actor, next *models.Property, in Input, now time.Time) {
			next.CompletionNote = strings.TrimSpace(in.CompletionNote)
			next.CompletionDate = &now
		},
	},
}

func lookup(s models.PropertyStatus, action Action) *rule {
	for i := range rules {
		if rules[i].action == action && rules[i].appliesTo(s) {
			return &rules[i]
		}
	}
	return nil
}

func isAdmin(actor models.Actor, _ *models.Property) bool {
	return actor.IsAdmin()
}

func isOwner(actor models.Actor, p *models.Property) bool {
	return actor.Owns(p)
}

func isAssigned(actor models.Actor, p *models.Property) bool {
	return actor.IsAssignedTo(p)
}

func pendingOfferOf(p *models.Property, in Input) error {
	if in.Offer == nil {
		return apperr.Validation("offer", "required")
	}
	if in.Offer.Property != p.ID {
		return apperr.Validation("offer", "offer does not belong to this property")
	}
	if in.Offer.Status != models.OfferPending {
		return apperr.Validation("offer", fmt.Sprintf("offer is already %s", in.Offer.Status))
	}
	return nil
}

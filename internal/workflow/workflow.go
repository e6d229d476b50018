// Package workflow holds the property state machine. Every status change in the
// system is computed by Apply from the rules table in rules.go.
package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/apperr"
	"github.com/Faisal-Alqabbani/BUILD-SAUDI/internal/models"
)

// Action is a workflow verb requested by an actor.
type Action string

const (
	ActionApprove     Action = "approve"
	ActionReject      Action = "reject"
	ActionSubmitOffer Action = "submit_offer"
	ActionAcceptOffer Action = "accept_offer"
	ActionRejectOffer Action = "reject_offer"
	ActionEvaluate    Action = "evaluate"
	ActionComplete    Action = "complete"
)

var knownActions = []Action{
	ActionApprove,
	ActionReject,
	ActionSubmitOffer,
	ActionAcceptOffer,
	ActionRejectOffer,
	ActionEvaluate,
	ActionComplete,
}

// ParseAction maps a request token onto an Action.
func ParseAction(token string) (Action, error) {
	t := Action(strings.ToLower(strings.TrimSpace(token)))
	for _, a := range knownActions {
		if a == t {
			return a, nil
		}
	}
	return "", apperr.Validation("action", fmt.Sprintf("unknown action %q", token))
}

// Input carries the data an action needs besides the actor and the property.
type Input struct {
	// Offer is the offer being accepted or rejected.
	Offer *models.PriceOffer
	// OfferAmount is the amount of a submitted offer.
	OfferAmount float64

	EvaluationReport string
	Rating           *float64

	CompletionNote string
	ImageCount     int

	Now time.Time
}

func (in Input) now() time.Time {
	if in.Now.IsZero() {
		return time.Now().UTC()
	}
	return in.Now
}

// Terminal reports whether no action can leave status s.
func Terminal(s models.PropertyStatus) bool {
	for _, r := range rules {
		if r.appliesTo(s) {
			return false
		}
	}
	return true
}

// Authorize reports whether actor may perform action on p right now.
func Authorize(actor models.Actor, action Action, p *models.Property) bool {
	if actor.IsAnonymous() {
		return false
	}
	r := lookup(p.Status, action)
	return r != nil && r.guard(actor, p)
}

// ActionsFor lists the actions actor may currently perform on p.
func ActionsFor(actor models.Actor, p *models.Property) []Action {
	actions := []Action{}
	if actor.IsAnonymous() {
		return actions
	}
	for _, a := range knownActions {
		if Authorize(actor, a, p) {
			actions = append(actions, a)
		}
	}
	return actions
}

// Apply validates and authorizes action and returns the property as it looks after the
// transition. p itself is never modified.
func Apply(actor models.Actor, action Action, p *models.Property, in Input) (*models.Property, error) {
	if actor.IsAnonymous() {
		return nil, apperr.Authorization("authentication required")
	}
	r := lookup(p.Status, action)
	if r == nil {
		return nil, apperr.Validation("status", fmt.Sprintf("cannot %s a property that is %s", action, p.Status))
	}
	if !r.guard(actor, p) {
		return nil, apperr.Authorization("not allowed to %s this property", action)
	}
	if r.validate != nil {
		if err := r.validate(p, in); err != nil {
			return nil, err
		}
	}

	next := p.Clone()
	now := in.now()
	if r.to != "" {
		next.Status = r.to
	}
	if r.effect != nil {
		r.effect(actor, next, in, now)
	}
	next.UpdatedAt = now
	return next, nil
}

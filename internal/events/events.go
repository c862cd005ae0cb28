package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	EntityBank     = "bank"
	EntityBudget   = "budget"
	EntityGroup    = "group"
	EntityCategory = "category"
	EntityMember   = "member"
	EntityFamily   = "family"
	EntityLoan     = "loan"

	ActionCreated = "created"
	ActionUpdated = "updated"
)

// Event notifies family members that a record changed. It never carries the
// record itself; clients refetch what they display.
type Event struct {
	Type     string    `json:"type"`
	Entity   string    `json:"entity"`
	Action   string    `json:"action"`
	ID       int64     `json:"id"`
	FamilyID int64     `json:"family_id"`
	At       time.Time `json:"at"`
}

func New(familyID int64, entity, action string, id int64) Event {
	return Event{
		Type:     fmt.Sprintf("%s_%s", entity, action),
		Entity:   entity,
		Action:   action,
		ID:       id,
		FamilyID: familyID,
		At:       time.Now().UTC(),
	}
}

// RoutingKey is the topic key used on the broker, e.g. "family.3.bank.created".
func (e Event) RoutingKey() string {
	return fmt.Sprintf("family.%d.%s.%s", e.FamilyID, e.Entity, e.Action)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Fanout delivers each event to every publisher, even when some fail, and
// joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Notify publishes e and logs a failure instead of returning it. The write
// that produced the event has already committed by the time this runs.
func Notify(ctx context.Context, p Publisher, logger *slog.Logger, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		logger.WarnContext(ctx, "publish event",
			"type", e.Type,
			"id", e.ID,
			"family_id", e.FamilyID,
			"error", err)
	}
}

package service

import (
	"context"
	"fmt"

	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/events"
)

// ResolveAudience returns the de-duplicated recipient ids for event. When the
// admin lookup fails the partial audience is returned with the error.
func (n *NotificationService) ResolveAudience(ctx context.Context, event events.Event) ([]string, error) {
	a := newAudience()
	ref := event.Ticket
	var lookupErr error

	addAdmins := func() {
		ids, err := n.directory.ListActiveByRole(ctx, domain.RoleAdmin)
		if err != nil {
			lookupErr = fmt.Errorf("list admins: %w", err)
			return
		}
		a.add(ids...)
	}

	switch event.Type {
	case events.EventTicketCreated:
		addAdmins()
	case events.EventTicketTransitioned:
		a.add(ref.OwnerID)
		a.addPtr(ref.AssignedHandlerID)
		if p, ok := event.Payload.(events.TicketTransitionedPayload); ok {
			a.addPtr(p.PreviousHandlerID)
			if p.ToStatus == domain.TicketStatusResolved || p.ToStatus == domain.TicketStatusCancelled {
				addAdmins()
			}
		}
	case events.EventTicketAssigned:
		a.add(ref.OwnerID)
		if p, ok := event.Payload.(events.TicketAssignedPayload); ok {
			a.add(p.HandlerID)
		} else {
			a.addPtr(ref.AssignedHandlerID)
		}
	case events.EventCommentAdded:
		if event.Actor.ID != ref.OwnerID {
			a.add(ref.OwnerID)
		}
		a.addPtr(ref.AssignedHandlerID)
	case events.EventWorkUpdateAdded:
		a.add(ref.OwnerID)
		a.addPtr(ref.AssignedHandlerID)
	}
	return a.ids, lookupErr
}

type audience struct {
	seen map[string]struct{}
	ids  []string
}

func newAudience() *audience {
	return &audience{seen: make(map[string]struct{})}
}

func (a *audience) add(ids ...string) {
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := a.seen[id]; ok {
			continue
		}
		a.seen[id] = struct{}{}
		a.ids = append(a.ids, id)
	}
}

func (a *audience) addPtr(id *string) {
	if id != nil {
		a.add(*id)
	}
}

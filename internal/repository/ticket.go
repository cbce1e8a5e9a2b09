package repository

import (
	"context"

	"helpdesk/internal/domain"
)

// TicketFilter narrows List and Count to tickets matching the set fields.
type TicketFilter struct {
	Status   domain.TicketStatus
	Priority domain.TicketPriority
}

// TicketUpdate carries a partial update; nil fields are left untouched.
type TicketUpdate struct {
	Title       *string
	Description *string
	Status      *domain.TicketStatus
	Priority    *domain.TicketPriority
	Category    *string
	AssignedTo  *int64
}

// Empty reports whether no field is set.
func (u TicketUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Status == nil &&
		u.Priority == nil && u.Category == nil && u.AssignedTo == nil
}

// TicketRepository exposes persistence operations for Ticket aggregates.
type TicketRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, ticket *domain.Ticket) (int64, error)
	// Get returns the ticket joined with creator and assignee identities.
	Get(ctx context.Context, id int64) (*domain.Ticket, error)
	// List returns one page of tickets, most recently created first.
	List(ctx context.Context, filter TicketFilter, limit, offset int) ([]domain.Ticket, error)
	Count(ctx context.Context, filter TicketFilter) (int64, error)
	Update(ctx context.Context, id int64, update TicketUpdate) error
	// Delete removes the ticket and its comments.
	Delete(ctx context.Context, id int64) error
}

// CommentRepository manages ticket comment threads.
type CommentRepository interface {
	Init(ctx context.Context) error
	Create(ctx context.Context, comment *domain.Comment) (int64, error)
	// ListByTicket returns the ticket's comments oldest first, each joined
	// with its author's username.
	ListByTicket(ctx context.Context, ticketID int64) ([]domain.Comment, error)
}

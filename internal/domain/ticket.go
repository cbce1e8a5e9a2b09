package domain

import "time"

type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "open"
	TicketStatusInProgress TicketStatus = "in_progress"
	TicketStatusResolved   TicketStatus = "resolved"
	TicketStatusClosed     TicketStatus = "closed"
)

type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "low"
	TicketPriorityMedium TicketPriority = "medium"
	TicketPriorityHigh   TicketPriority = "high"
	TicketPriorityUrgent TicketPriority = "urgent"
)

// Ticket represents a helpdesk work item.
type Ticket struct {
	ID          int64
	Title       string
	Description string
	Status      TicketStatus
	Priority    TicketPriority
	Category    string
	AssignedTo  *int64
	CreatedBy   int64
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// Joined identity fields, populated on reads.
	CreatedByUsername  string
	CreatedByEmail     string
	AssignedToUsername string
	AssignedToEmail    string

	Comments []Comment
}

// Comment is a message attached to a ticket. Comments are never edited and
// are removed only when their ticket is deleted.
type Comment struct {
	ID        int64
	TicketID  int64
	UserID    int64
	Content   string
	CreatedAt time.Time

	AuthorUsername string
}

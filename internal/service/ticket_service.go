package service

import (
	"context"
	"errors"
	"strings"

	"helpdesk/internal/domain"
	"helpdesk/internal/repository"
)

var (
	// ErrNoFields is returned by UpdateTicket when the update carries nothing.
	ErrNoFields = errors.New("no fields to update")
	// ErrEmptyComment is returned when a comment has no content.
	ErrEmptyComment = errors.New("comment content is required")
)

// CreateTicketInput carries the caller-supplied fields of a new ticket.
type CreateTicketInput struct {
	Title       string
	Description string
	Priority    domain.TicketPriority
	Category    string
}

// Pagination describes one page of a ticket listing.
type Pagination struct {
	Page  int
	Limit int
	Total int64
	Pages int
}

// TicketService coordinates ticket level operations backed by repositories.
type TicketService interface {
	CreateTicket(ctx context.Context, input CreateTicketInput, createdBy int64) (*domain.Ticket, error)
	GetTicket(ctx context.Context, id int64) (*domain.Ticket, error)
	ListTickets(ctx context.Context, filter repository.TicketFilter, page, limit int) ([]domain.Ticket, Pagination, error)
	UpdateTicket(ctx context.Context, id int64, update repository.TicketUpdate) error
	DeleteTicket(ctx context.Context, id int64) error
	AddComment(ctx context.Context, ticketID, userID int64, content string) (*domain.Comment, error)
}

type ticketService struct {
	tickets  repository.TicketRepository
	comments repository.CommentRepository
}

func NewTicketService(tickets repository.TicketRepository, comments repository.CommentRepository) TicketService {
	return &ticketService{
		tickets:  tickets,
		comments: comments,
	}
}

func (s *ticketService) CreateTicket(ctx context.Context, input CreateTicketInput, createdBy int64) (*domain.Ticket, error) {
	ticket := &domain.Ticket{
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Status:      domain.TicketStatusOpen,
		Priority:    input.Priority,
		Category:    strings.TrimSpace(input.Category),
		CreatedBy:   createdBy,
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}

	if _, err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	return ticket, nil
}

func (s *ticketService) GetTicket(ctx context.Context, id int64) (*domain.Ticket, error) {
	ticket, err := s.tickets.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	comments, err := s.comments.ListByTicket(ctx, id)
	if err != nil {
		return nil, err
	}
	ticket.Comments = comments
	return ticket, nil
}

// ListTickets returns one page of tickets plus pagination metadata. The page
// and its total count are two separate reads, not a snapshot; a concurrent
// mutation between them can skew the metadata by a row.
func (s *ticketService) ListTickets(ctx context.Context, filter repository.TicketFilter, page, limit int) ([]domain.Ticket, Pagination, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	offset := (page - 1) * limit
	tickets, err := s.tickets.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, Pagination{}, err
	}

	total, err := s.tickets.Count(ctx, filter)
	if err != nil {
		return nil, Pagination{}, err
	}

	pages := int((total + int64(limit) - 1) / int64(limit))
	return tickets, Pagination{
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: pages,
	}, nil
}

func (s *ticketService) UpdateTicket(ctx context.Context, id int64, update repository.TicketUpdate) error {
	if update.Empty() {
		return ErrNoFields
	}
	return s.tickets.Update(ctx, id, update)
}

func (s *ticketService) DeleteTicket(ctx context.Context, id int64) error {
	return s.tickets.Delete(ctx, id)
}

func (s *ticketService) AddComment(ctx context.Context, ticketID, userID int64, content string) (*domain.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyComment
	}

	comment := &domain.Comment{
		TicketID: ticketID,
		UserID:   userID,
		Content:  content,
	}
	if _, err := s.comments.Create(ctx, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"helpdesk/internal/domain"
	"helpdesk/internal/repository"
)

const createTicketsTable = `
CREATE TABLE IF NOT EXISTS tickets (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	title TEXT NOT NULL,
	description TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'open',
	priority TEXT NOT NULL DEFAULT 'medium',
	category TEXT NOT NULL DEFAULT '',
	assigned_to INTEGER NULL,
	created_by INTEGER NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	FOREIGN KEY(assigned_to) REFERENCES users(id),
	FOREIGN KEY(created_by) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_tickets_status ON tickets(status);
CREATE INDEX IF NOT EXISTS idx_tickets_priority ON tickets(priority);
`

const ticketColumns = `
t.id, t.title, t.description, t.status, t.priority, t.category,
t.assigned_to, t.created_by, t.created_at, t.updated_at,
u1.username, u1.email, u2.username, u2.email`

const ticketJoins = `
FROM tickets t
LEFT JOIN users u1 ON t.created_by = u1.id
LEFT JOIN users u2 ON t.assigned_to = u2.id`

type TicketRepository struct {
	db *sql.DB
}

func NewTicketRepository(db *sql.DB) repository.TicketRepository {
	return &TicketRepository{db: db}
}

func (r *TicketRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createTicketsTable); err != nil {
		return fmt.Errorf("create tickets table: %w", err)
	}
	return nil
}

func (r *TicketRepository) Create(ctx context.Context, ticket *domain.Ticket) (int64, error) {
	now := time.Now().UTC()
	ticket.CreatedAt = now
	ticket.UpdatedAt = now
	if ticket.Status == "" {
		ticket.Status = domain.TicketStatusOpen
	}
	if ticket.Priority == "" {
		ticket.Priority = domain.TicketPriorityMedium
	}

	res, err := r.db.ExecContext(ctx, `
INSERT INTO tickets (title, description, status, priority, category, assigned_to, created_by, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ticket.Title,
		ticket.Description,
		string(ticket.Status),
		string(ticket.Priority),
		ticket.Category,
		nullInt64(ticket.AssignedTo),
		ticket.CreatedBy,
		ticket.CreatedAt,
		ticket.UpdatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert ticket: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ticket last insert id: %w", err)
	}
	ticket.ID = id
	return id, nil
}

func (r *TicketRepository) Get(ctx context.Context, id int64) (*domain.Ticket, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ticketColumns+ticketJoins+`
WHERE t.id = ?`,
		id,
	)
	return scanTicket(row)
}

func (r *TicketRepository) List(ctx context.Context, filter repository.TicketFilter, limit, offset int) ([]domain.Ticket, error) {
	where, args := buildTicketFilter(filter)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, `SELECT `+ticketColumns+ticketJoins+where+`
ORDER BY t.created_at DESC, t.id DESC
LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("query tickets: %w", err)
	}
	defer rows.Close()

	var tickets []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, *ticket)
	}

	return tickets, rows.Err()
}

func (r *TicketRepository) Count(ctx context.Context, filter repository.TicketFilter) (int64, error) {
	where, args := buildTicketFilter(filter)

	var total int64
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tickets t`+where, args...)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("count tickets: %w", err)
	}
	return total, nil
}

func (r *TicketRepository) Update(ctx context.Context, id int64, update repository.TicketUpdate) error {
	var (
		sets []string
		args []any
	)
	addSet := func(column string, value any) {
		sets = append(sets, column+"=?")
		args = append(args, value)
	}

	if update.Title != nil {
		addSet("title", *update.Title)
	}
	if update.Description != nil {
		addSet("description", *update.Description)
	}
	if update.Status != nil {
		addSet("status", string(*update.Status))
	}
	if update.Priority != nil {
		addSet("priority", string(*update.Priority))
	}
	if update.Category != nil {
		addSet("category", *update.Category)
	}
	if update.AssignedTo != nil {
		addSet("assigned_to", *update.AssignedTo)
	}
	if len(sets) == 0 {
		return errors.New("no fields to update")
	}

	addSet("updated_at", time.Now().UTC())
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE tickets
SET %s
WHERE id=?`, strings.Join(sets, ", ")), args...)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}

	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ticket update rows affected: %w", err)
	}
	if aff == 0 {
		return fmt.Errorf("ticket %w", repository.ErrNotFound)
	}
	return nil
}

func (r *TicketRepository) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE ticket_id=?`, id); err != nil {
		return fmt.Errorf("delete ticket comments: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM tickets WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("ticket delete rows affected: %w", err)
	}
	if aff == 0 {
		return fmt.Errorf("ticket %w", repository.ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ticket delete: %w", err)
	}
	return nil
}

func buildTicketFilter(filter repository.TicketFilter) (string, []any) {
	var (
		conditions []string
		args       []any
	)
	if filter.Status != "" {
		conditions = append(conditions, "t.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Priority != "" {
		conditions = append(conditions, "t.priority = ?")
		args = append(args, string(filter.Priority))
	}
	if len(conditions) == 0 {
		return "", nil
	}
	return "\nWHERE " + strings.Join(conditions, " AND "), args
}

func scanTicket(scanner interface {
	Scan(dest ...any) error
}) (*domain.Ticket, error) {
	var (
		ticket           domain.Ticket
		status           string
		priority         string
		assignedTo       sql.NullInt64
		creatorUsername  sql.NullString
		creatorEmail     sql.NullString
		assigneeUsername sql.NullString
		assigneeEmail    sql.NullString
	)

	if err := scanner.Scan(
		&ticket.ID,
		&ticket.Title,
		&ticket.Description,
		&status,
		&priority,
		&ticket.Category,
		&assignedTo,
		&ticket.CreatedBy,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&creatorUsername,
		&creatorEmail,
		&assigneeUsername,
		&assigneeEmail,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ticket %w", repository.ErrNotFound)
		}
		return nil, fmt.Errorf("scan ticket: %w", err)
	}

	ticket.Status = domain.TicketStatus(status)
	ticket.Priority = domain.TicketPriority(priority)
	if assignedTo.Valid {
		ticket.AssignedTo = &assignedTo.Int64
	}
	ticket.CreatedByUsername = creatorUsername.String
	ticket.CreatedByEmail = creatorEmail.String
	ticket.AssignedToUsername = assigneeUsername.String
	ticket.AssignedToEmail = assigneeEmail.String

	return &ticket, nil
}

func nullInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

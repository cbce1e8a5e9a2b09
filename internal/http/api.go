package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"helpdesk/internal/auth"
	"helpdesk/internal/domain"
	"helpdesk/internal/ratelimit"
	"helpdesk/internal/repository"
	"helpdesk/internal/service"
)

// Handler wires HTTP routes to domain services.
type Handler struct {
	users      service.UserService
	tickets    service.TicketService
	tokens     *auth.TokenService
	limiter    *ratelimit.Limiter
	logger     *logrus.Logger
	production bool
}

func NewHandler(
	users service.UserService,
	tickets service.TicketService,
	tokens *auth.TokenService,
	limiter *ratelimit.Limiter,
	logger *logrus.Logger,
	production bool,
) *Handler {
	return &Handler{
		users:      users,
		tickets:    tickets,
		tokens:     tokens,
		limiter:    limiter,
		logger:     logger,
		production: production,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine, allowOrigin string) {
	router.Use(corsMiddleware(allowOrigin))
	router.Use(requestIDMiddleware())
	router.Use(loggingMiddleware(h.logger))

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Helpdesk API Server",
			"health":  "/api/health",
		})
	})

	api := router.Group("/api")

	api.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "OK",
			"message":   "Helpdesk API is running",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	authGroup := api.Group("/auth", rateLimitMiddleware(h.limiter))
	{
		authGroup.POST("/register", h.register)
		authGroup.POST("/login", h.login)
		authGroup.GET("/verify", h.verify)
	}

	tickets := api.Group("/tickets", authMiddleware(h.tokens, h.logger))
	{
		tickets.GET("", h.listTickets)
		tickets.GET("/:id", h.getTicket)
		tickets.POST("", h.createTicket)
		tickets.PUT("/:id", h.updateTicket)
		tickets.DELETE("/:id", h.deleteTicket)
		tickets.POST("/:id/comments", h.addComment)
	}

	users := api.Group("/users", authMiddleware(h.tokens, h.logger), adminOnly())
	{
		users.GET("", h.listUsers)
	}
}

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErrorResponse(c, err)
		return
	}

	user, err := h.users.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUserAlreadyExists) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Username or email already exists"})
			return
		}
		h.serverError(c, "register", err)
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		h.serverError(c, "issue token", err)
		return
	}
	h.setAuthCookie(c, token)

	c.JSON(http.StatusCreated, gin.H{
		"token": token,
		"user":  userToResponse(*user),
	})
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErrorResponse(c, err)
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		h.serverError(c, "login", err)
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		h.serverError(c, "issue token", err)
		return
	}
	h.setAuthCookie(c, token)

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  userToResponse(*user),
	})
}

func (h *Handler) verify(c *gin.Context) {
	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "No token provided"})
		return
	}

	claims, err := h.tokens.Verify(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid": true,
		"user": gin.H{
			"id":       claims.UserID,
			"username": claims.Username,
			"role":     claims.Role,
		},
	})
}

// setAuthCookie mirrors the token into an HttpOnly cookie in production.
func (h *Handler) setAuthCookie(c *gin.Context, token string) {
	if !h.production {
		return
	}
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(tokenCookieName, token, int(h.tokens.TTL().Seconds()), "/", "", true, true)
}

func (h *Handler) listTickets(c *gin.Context) {
	filter := repository.TicketFilter{
		Status:   domain.TicketStatus(c.Query("status")),
		Priority: domain.TicketPriority(c.Query("priority")),
	}
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 10)

	tickets, pagination, err := h.tickets.ListTickets(c.Request.Context(), filter, page, limit)
	if err != nil {
		h.serverError(c, "list tickets", err)
		return
	}

	resp := make([]TicketResponse, len(tickets))
	for i := range tickets {
		resp[i] = ticketToResponse(tickets[i])
	}
	c.JSON(http.StatusOK, gin.H{
		"tickets": resp,
		"pagination": gin.H{
			"page":  pagination.Page,
			"limit": pagination.Limit,
			"total": pagination.Total,
			"pages": pagination.Pages,
		},
	})
}

func (h *Handler) getTicket(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}

	ticket, err := h.tickets.GetTicket(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
			return
		}
		h.serverError(c, "get ticket", err)
		return
	}

	resp := ticketToResponse(*ticket)
	resp.CreatedByEmail = ticket.CreatedByEmail
	resp.AssignedToEmail = ticket.AssignedToEmail
	resp.Comments = make([]CommentResponse, len(ticket.Comments))
	for i := range ticket.Comments {
		resp.Comments[i] = commentToResponse(ticket.Comments[i])
	}
	c.JSON(http.StatusOK, resp)
}

type createTicketRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description" binding:"required"`
	Priority    string `json:"priority"`
	Category    string `json:"category"`
}

func (h *Handler) createTicket(c *gin.Context) {
	var req createTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title and description are required"})
		return
	}

	claims, _ := claimsFromContext(c)
	ticket, err := h.tickets.CreateTicket(c.Request.Context(), service.CreateTicketInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    domain.TicketPriority(req.Priority),
		Category:    req.Category,
	}, claims.UserID)
	if err != nil {
		h.serverError(c, "create ticket", err)
		return
	}

	resp := ticketToResponse(*ticket)
	resp.Message = "Ticket created successfully"
	c.JSON(http.StatusCreated, resp)
}

type updateTicketRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	Category    *string `json:"category"`
	AssignedTo  *int64  `json:"assigned_to"`
}

func (h *Handler) updateTicket(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}

	var req updateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	update := repository.TicketUpdate{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		AssignedTo:  req.AssignedTo,
	}
	if req.Status != nil {
		status := domain.TicketStatus(*req.Status)
		update.Status = &status
	}
	if req.Priority != nil {
		priority := domain.TicketPriority(*req.Priority)
		update.Priority = &priority
	}

	if err := h.tickets.UpdateTicket(c.Request.Context(), id, update); err != nil {
		switch {
		case errors.Is(err, service.ErrNoFields):
			c.JSON(http.StatusBadRequest, gin.H{"error": "No fields to update"})
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
		default:
			h.serverError(c, "update ticket", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Ticket updated successfully"})
}

func (h *Handler) deleteTicket(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}

	if err := h.tickets.DeleteTicket(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Ticket not found"})
			return
		}
		h.serverError(c, "delete ticket", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Ticket deleted successfully"})
}

type addCommentRequest struct {
	Content string `json:"content"`
}

func (h *Handler) addComment(c *gin.Context) {
	id, ok := ticketID(c)
	if !ok {
		return
	}

	var req addCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Comment content is required"})
		return
	}

	claims, _ := claimsFromContext(c)
	comment, err := h.tickets.AddComment(c.Request.Context(), id, claims.UserID, req.Content)
	if err != nil {
		if errors.Is(err, service.ErrEmptyComment) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Comment content is required"})
			return
		}
		h.serverError(c, "add comment", err)
		return
	}

	resp := commentToResponse(*comment)
	resp.Message = "Comment added successfully"
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) listUsers(c *gin.Context) {
	role := domain.Role(c.Query("role"))

	users, err := h.users.ListUsers(c.Request.Context(), role)
	if err != nil {
		h.serverError(c, "list users", err)
		return
	}

	resp := make([]UserResponse, len(users))
	for i := range users {
		resp[i] = userToResponse(users[i])
	}
	c.JSON(http.StatusOK, gin.H{"users": resp})
}

// serverError logs the failure and answers with a generic message; internal
// detail never reaches the caller.
func (h *Handler) serverError(c *gin.Context, op string, err error) {
	h.logger.WithError(err).WithField("request_id", c.GetString("request_id")).Errorf("%s failed", op)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
}

func ticketID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ticket id"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, defaultVal int) int {
	if val := c.Query(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 1 {
			return n
		}
	}
	return defaultVal
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// bindErrorResponse answers a failed bind with the full list of field
// failures rather than just the first one.
func bindErrorResponse(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	fieldErrors := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		fieldErrors = append(fieldErrors, fieldError{
			Field:   strings.ToLower(fe.Field()),
			Message: validationMessage(fe),
		})
	}
	c.JSON(http.StatusBadRequest, gin.H{"errors": fieldErrors})
}

func validationMessage(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return "Valid email is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

type UserResponse struct {
	ID       int64       `json:"id"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Role     domain.Role `json:"role"`
}

type TicketResponse struct {
	ID                 int64                 `json:"id"`
	Title              string                `json:"title"`
	Description        string                `json:"description"`
	Status             domain.TicketStatus   `json:"status"`
	Priority           domain.TicketPriority `json:"priority"`
	Category           string                `json:"category"`
	AssignedTo         *int64                `json:"assigned_to"`
	CreatedBy          int64                 `json:"created_by"`
	CreatedAt          string                `json:"created_at"`
	UpdatedAt          string                `json:"updated_at"`
	CreatedByUsername  string                `json:"created_by_username,omitempty"`
	CreatedByEmail     string                `json:"created_by_email,omitempty"`
	AssignedToUsername string                `json:"assigned_to_username,omitempty"`
	AssignedToEmail    string                `json:"assigned_to_email,omitempty"`
	Comments           []CommentResponse     `json:"comments,omitempty"`
	Message            string                `json:"message,omitempty"`
}

type CommentResponse struct {
	ID             int64  `json:"id"`
	TicketID       int64  `json:"ticket_id"`
	UserID         int64  `json:"user_id"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
	AuthorUsername string `json:"author_username,omitempty"`
	Message        string `json:"message,omitempty"`
}

func userToResponse(user domain.User) UserResponse {
	return UserResponse{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Role:     user.Role,
	}
}

func ticketToResponse(ticket domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:                 ticket.ID,
		Title:              ticket.Title,
		Description:        ticket.Description,
		Status:             ticket.Status,
		Priority:           ticket.Priority,
		Category:           ticket.Category,
		AssignedTo:         ticket.AssignedTo,
		CreatedBy:          ticket.CreatedBy,
		CreatedAt:          ticket.CreatedAt.Format(time.RFC3339),
		UpdatedAt:          ticket.UpdatedAt.Format(time.RFC3339),
		CreatedByUsername:  ticket.CreatedByUsername,
		AssignedToUsername: ticket.AssignedToUsername,
	}
}

func commentToResponse(comment domain.Comment) CommentResponse {
	return CommentResponse{
		ID:             comment.ID,
		TicketID:       comment.TicketID,
		UserID:         comment.UserID,
		Content:        comment.Content,
		CreatedAt:      comment.CreatedAt.Format(time.RFC3339),
		AuthorUsername: comment.AuthorUsername,
	}
}

package portfolio

import (
	"errors"
	"time"
)

// Domain errors surfaced by the repository.
var (
	ErrPortfolioNotFound = errors.New("portfolio not found")
	ErrSectionNotFound   = errors.New("section not found")
	ErrSlugExists        = errors.New("portfolio slug already exists")
	ErrNotOwner          = errors.New("not the portfolio owner")
)

// Portfolio is a user's public work showcase.
type Portfolio struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	Tagline   string    `json:"tagline,omitempty"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Section is an ordered content block within a portfolio.
type Section struct {
	ID          string    `json:"id"`
	PortfolioID string    `json:"portfolio_id"`
	Kind        string    `json:"kind"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	Position    int       `json:"position"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Testimonial is a quote attached to a portfolio by a visitor or client.
type Testimonial struct {
	ID          string    `json:"id"`
	PortfolioID string    `json:"portfolio_id"`
	AuthorName  string    `json:"author_name"`
	AuthorTitle string    `json:"author_title,omitempty"`
	Quote       string    `json:"quote"`
	CreatedAt   time.Time `json:"created_at"`
}

// ContactMessage is a contact-form submission addressed to the owner.
type ContactMessage struct {
	ID          string    `json:"id"`
	PortfolioID string    `json:"portfolio_id"`
	SenderName  string    `json:"sender_name"`
	SenderEmail string    `json:"sender_email"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"created_at"`
}

// Analytics holds the per-portfolio view counters.
type Analytics struct {
	PortfolioID    string    `json:"portfolio_id"`
	Views          int64     `json:"views"`
	UniqueVisitors int64     `json:"unique_visitors"`
	UpdatedAt      time.Time `json:"updated_at"`
}

package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for portfolio persistence. Every
// mutation commits before the caller emits any broadcast for it.
type Repository interface {
	Create(ctx context.Context, p *Portfolio) error
	Get(ctx context.Context, id string) (*Portfolio, error)
	GetBySlug(ctx context.Context, slug string) (*Portfolio, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*Portfolio, error)
	Update(ctx context.Context, p *Portfolio) error

	CreateSection(ctx context.Context, s *Section) error
	UpdateSection(ctx context.Context, s *Section) error
	ListSections(ctx context.Context, portfolioID string) ([]*Section, error)

	InsertTestimonial(ctx context.Context, t *Testimonial) error
	InsertContactMessage(ctx context.Context, m *ContactMessage) error

	IncrementViews(ctx context.Context, portfolioID string, uniqueVisitor bool) (*Analytics, error)

	// CanAccess reports whether a user may join the portfolio's room:
	// the portfolio is published, or the user owns it.
	CanAccess(ctx context.Context, portfolioID, userID string) (bool, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed portfolio repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a portfolio and seeds its analytics row.
func (r *SQLiteRepository) Create(ctx context.Context, p *Portfolio) error {
	if p.ID == "" {
		p.ID = "pf-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	stamp := now.Format(time.RFC3339)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	_, err = tx.ExecContext(ctx,
		`INSERT INTO portfolios (id, owner_id, title, slug, tagline, published, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.Title, p.Slug, nullString(p.Tagline), boolToInt(p.Published), stamp, stamp,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugExists
		}
		return fmt.Errorf("creating portfolio: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO portfolio_analytics (portfolio_id, views, unique_visitors, updated_at)
		 VALUES (?, 0, 0, ?)`,
		p.ID, stamp,
	)
	if err != nil {
		return fmt.Errorf("seeding analytics: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing portfolio: %w", err)
	}
	return nil
}

// Get retrieves a portfolio by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Portfolio, error) {
	return r.getPortfolio(ctx,
		`SELECT id, owner_id, title, slug, tagline, published, created_at, updated_at
		 FROM portfolios WHERE id = ?`, id)
}

// GetBySlug retrieves a portfolio by its public slug.
func (r *SQLiteRepository) GetBySlug(ctx context.Context, slug string) (*Portfolio, error) {
	return r.getPortfolio(ctx,
		`SELECT id, owner_id, title, slug, tagline, published, created_at, updated_at
		 FROM portfolios WHERE slug = ?`, slug)
}

// ListByOwner retrieves all portfolios owned by a user, newest first.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]*Portfolio, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, title, slug, tagline, published, created_at, updated_at
		 FROM portfolios WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing portfolios: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []*Portfolio
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update persists title, slug, tagline and published for an existing
// portfolio and bumps updated_at.
func (r *SQLiteRepository) Update(ctx context.Context, p *Portfolio) error {
	p.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx,
		`UPDATE portfolios SET title = ?, slug = ?, tagline = ?, published = ?, updated_at = ?
		 WHERE id = ?`,
		p.Title, p.Slug, nullString(p.Tagline), boolToInt(p.Published),
		p.UpdatedAt.Format(time.RFC3339), p.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlugExists
		}
		return fmt.Errorf("updating portfolio: %w", err)
	}
	return requireRow(res, ErrPortfolioNotFound)
}

// CreateSection inserts a content section.
func (r *SQLiteRepository) CreateSection(ctx context.Context, s *Section) error {
	if s.ID == "" {
		s.ID = "sec-" + uuid.NewString()[:8]
	}
	s.UpdatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sections (id, portfolio_id, kind, title, content, position, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.PortfolioID, s.Kind, s.Title, s.Content, s.Position,
		s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("creating section: %w", err)
	}
	return nil
}

// UpdateSection persists a section edit. The section must belong to the
// portfolio named on it.
func (r *SQLiteRepository) UpdateSection(ctx context.Context, s *Section) error {
	s.UpdatedAt = time.Now().UTC()

	res, err := r.db.ExecContext(ctx,
		`UPDATE sections SET kind = ?, title = ?, content = ?, position = ?, updated_at = ?
		 WHERE id = ? AND portfolio_id = ?`,
		s.Kind, s.Title, s.Content, s.Position, s.UpdatedAt.Format(time.RFC3339),
		s.ID, s.PortfolioID,
	)
	if err != nil {
		return fmt.Errorf("updating section: %w", err)
	}
	return requireRow(res, ErrSectionNotFound)
}

// ListSections retrieves a portfolio's sections in display order.
func (r *SQLiteRepository) ListSections(ctx context.Context, portfolioID string) ([]*Section, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, portfolio_id, kind, title, content, position, updated_at
		 FROM sections WHERE portfolio_id = ? ORDER BY position, id`, portfolioID)
	if err != nil {
		return nil, fmt.Errorf("listing sections: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []*Section
	for rows.Next() {
		var s Section
		var updatedAt string
		if err := rows.Scan(&s.ID, &s.PortfolioID, &s.Kind, &s.Title, &s.Content, &s.Position, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning section: %w", err)
		}
		s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
		out = append(out, &s)
	}
	return out, rows.Err()
}

// InsertTestimonial persists a testimonial.
func (r *SQLiteRepository) InsertTestimonial(ctx context.Context, t *Testimonial) error {
	if t.ID == "" {
		t.ID = "tst-" + uuid.NewString()[:8]
	}
	t.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO testimonials (id, portfolio_id, author_name, author_title, quote, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.PortfolioID, t.AuthorName, nullString(t.AuthorTitle), t.Quote,
		t.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting testimonial: %w", err)
	}
	return nil
}

// InsertContactMessage persists a contact-form submission.
func (r *SQLiteRepository) InsertContactMessage(ctx context.Context, m *ContactMessage) error {
	if m.ID == "" {
		m.ID = "msg-" + uuid.NewString()[:8]
	}
	m.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO contact_messages (id, portfolio_id, sender_name, sender_email, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID, m.PortfolioID, m.SenderName, m.SenderEmail, m.Body,
		m.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting contact message: %w", err)
	}
	return nil
}

// IncrementViews bumps the counters atomically and returns the updated
// row, so the caller broadcasts exactly the committed values.
func (r *SQLiteRepository) IncrementViews(ctx context.Context, portfolioID string, uniqueVisitor bool) (*Analytics, error) {
	unique := 0
	if uniqueVisitor {
		unique = 1
	}
	stamp := time.Now().UTC().Format(time.RFC3339)

	var a Analytics
	var updatedAt string
	err := r.db.QueryRowContext(ctx,
		`UPDATE portfolio_analytics
		 SET views = views + 1, unique_visitors = unique_visitors + ?, updated_at = ?
		 WHERE portfolio_id = ?
		 RETURNING portfolio_id, views, unique_visitors, updated_at`,
		unique, stamp, portfolioID,
	).Scan(&a.PortfolioID, &a.Views, &a.UniqueVisitors, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPortfolioNotFound
		}
		return nil, fmt.Errorf("incrementing views: %w", err)
	}

	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &a, nil
}

// CanAccess reports whether a user may observe the portfolio's room.
func (r *SQLiteRepository) CanAccess(ctx context.Context, portfolioID, userID string) (bool, error) {
	var ownerID string
	var published int
	err := r.db.QueryRowContext(ctx,
		"SELECT owner_id, published FROM portfolios WHERE id = ?", portfolioID,
	).Scan(&ownerID, &published)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrPortfolioNotFound
		}
		return false, fmt.Errorf("checking portfolio access: %w", err)
	}
	return published == 1 || ownerID == userID, nil
}

// getPortfolio executes a query and scans a single portfolio result.
func (r *SQLiteRepository) getPortfolio(ctx context.Context, query string, args ...any) (*Portfolio, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	p, err := scanPortfolio(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPortfolioNotFound
		}
		return nil, err
	}
	return p, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPortfolio(row rowScanner) (*Portfolio, error) {
	var p Portfolio
	var tagline sql.NullString
	var published int
	var createdAt, updatedAt string

	err := row.Scan(&p.ID, &p.OwnerID, &p.Title, &p.Slug, &tagline, &published, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning portfolio: %w", err)
	}

	p.Tagline = tagline.String
	p.Published = published == 1
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &p, nil
}

// requireRow converts a zero-rows-affected result into notFound.
func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking affected rows: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

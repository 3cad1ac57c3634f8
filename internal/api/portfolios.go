package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashmarby/folioline-core/internal/identity"
	"github.com/ashmarby/folioline-core/internal/portfolio"
)

// createPortfolioRequest is the request body for POST /portfolios.
type createPortfolioRequest struct {
	Title   string `json:"title"`
	Slug    string `json:"slug"`
	Tagline string `json:"tagline"`
}

// updatePortfolioRequest is the request body for PATCH /portfolios/{id}.
// Pointer fields distinguish "not sent" from zero values.
type updatePortfolioRequest struct {
	Title     *string `json:"title"`
	Slug      *string `json:"slug"`
	Tagline   *string `json:"tagline"`
	Published *bool   `json:"published"`
}

// sectionRequest is the request body for section create and update.
type sectionRequest struct {
	Kind     string `json:"kind"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Position int    `json:"position"`
}

// contactRequest is the request body for POST /portfolios/{id}/contact.
type contactRequest struct {
	SenderName  string `json:"sender_name"`
	SenderEmail string `json:"sender_email"`
	Body        string `json:"body"`
}

// testimonialRequest is the request body for POST /portfolios/{id}/testimonials.
type testimonialRequest struct {
	AuthorName  string `json:"author_name"`
	AuthorTitle string `json:"author_title"`
	Quote       string `json:"quote"`
}

// viewRequest is the optional request body for POST /portfolios/{id}/views.
type viewRequest struct {
	Unique bool `json:"unique"`
}

// ─── Owner mutations ────────────────────────────────────────────────

// handleCreatePortfolio creates a portfolio owned by the caller.
func (s *Server) handleCreatePortfolio(w http.ResponseWriter, r *http.Request) {
	ident, ok := identityFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "not authenticated")
		return
	}

	var req createPortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Slug) == "" {
		writeBadRequest(w, "title and slug are required")
		return
	}

	p := &portfolio.Portfolio{
		OwnerID: ident.UserID,
		Title:   req.Title,
		Slug:    req.Slug,
		Tagline: req.Tagline,
	}
	if err := s.portfolios.Create(r.Context(), p); err != nil {
		if errors.Is(err, portfolio.ErrSlugExists) {
			writeConflict(w, "slug already in use")
			return
		}
		s.logger.Error("creating portfolio", "error", err)
		writeInternalError(w, "failed to create portfolio")
		return
	}

	writeJSON(w, http.StatusCreated, p)
}

// handleListPortfolios lists the caller's portfolios.
func (s *Server) handleListPortfolios(w http.ResponseWriter, r *http.Request) {
	ident, ok := identityFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "not authenticated")
		return
	}

	list, err := s.portfolios.ListByOwner(r.Context(), ident.UserID)
	if err != nil {
		s.logger.Error("listing portfolios", "error", err)
		writeInternalError(w, "failed to list portfolios")
		return
	}
	if list == nil {
		list = []*portfolio.Portfolio{}
	}

	writeJSON(w, http.StatusOK, list)
}

// handleUpdatePortfolio applies a partial edit, then broadcasts the
// committed state to the portfolio's room.
func (s *Server) handleUpdatePortfolio(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireOwner(w, r)
	if !ok {
		return
	}

	var req updatePortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Title != nil {
		p.Title = *req.Title
	}
	if req.Slug != nil {
		p.Slug = *req.Slug
	}
	if req.Tagline != nil {
		p.Tagline = *req.Tagline
	}
	if req.Published != nil {
		p.Published = *req.Published
	}
	if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Slug) == "" {
		writeBadRequest(w, "title and slug cannot be empty")
		return
	}

	if err := s.portfolios.Update(r.Context(), p); err != nil {
		if errors.Is(err, portfolio.ErrSlugExists) {
			writeConflict(w, "slug already in use")
			return
		}
		s.logger.Error("updating portfolio", "portfolio_id", p.ID, "error", err)
		writeInternalError(w, "failed to update portfolio")
		return
	}

	// Broadcast after commit only.
	s.notifier.PortfolioUpdated(p)

	writeJSON(w, http.StatusOK, p)
}

// handleCreateSection adds a section and broadcasts the change.
func (s *Server) handleCreateSection(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireOwner(w, r)
	if !ok {
		return
	}

	var req sectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Kind) == "" || strings.TrimSpace(req.Title) == "" {
		writeBadRequest(w, "kind and title are required")
		return
	}

	section := &portfolio.Section{
		PortfolioID: p.ID,
		Kind:        req.Kind,
		Title:       req.Title,
		Content:     req.Content,
		Position:    req.Position,
	}
	if err := s.portfolios.CreateSection(r.Context(), section); err != nil {
		s.logger.Error("creating section", "portfolio_id", p.ID, "error", err)
		writeInternalError(w, "failed to create section")
		return
	}

	s.notifier.SectionChanged(p, section)

	writeJSON(w, http.StatusCreated, section)
}

// handleUpdateSection edits a section and broadcasts the change.
func (s *Server) handleUpdateSection(w http.ResponseWriter, r *http.Request) {
	p, ok := s.requireOwner(w, r)
	if !ok {
		return
	}

	var req sectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	section := &portfolio.Section{
		ID:          chi.URLParam(r, "sectionID"),
		PortfolioID: p.ID,
		Kind:        req.Kind,
		Title:       req.Title,
		Content:     req.Content,
		Position:    req.Position,
	}
	if err := s.portfolios.UpdateSection(r.Context(), section); err != nil {
		if errors.Is(err, portfolio.ErrSectionNotFound) {
			writeNotFound(w, "section not found")
			return
		}
		s.logger.Error("updating section", "section_id", section.ID, "error", err)
		writeInternalError(w, "failed to update section")
		return
	}

	s.notifier.SectionChanged(p, section)

	writeJSON(w, http.StatusOK, section)
}

// ─── Public reads ───────────────────────────────────────────────────

// handleGetPortfolio returns a portfolio. Drafts are visible to their
// owner only; strangers get 404 so draft IDs are not probeable.
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	p, err := s.portfolios.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, portfolio.ErrPortfolioNotFound) {
			writeNotFound(w, "portfolio not found")
			return
		}
		s.logger.Error("fetching portfolio", "error", err)
		writeInternalError(w, "failed to fetch portfolio")
		return
	}

	if !p.Published && !s.isOwner(r, p) {
		writeNotFound(w, "portfolio not found")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// handleGetPortfolioBySlug returns a portfolio by its public slug.
func (s *Server) handleGetPortfolioBySlug(w http.ResponseWriter, r *http.Request) {
	p, err := s.portfolios.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		if errors.Is(err, portfolio.ErrPortfolioNotFound) {
			writeNotFound(w, "portfolio not found")
			return
		}
		s.logger.Error("fetching portfolio by slug", "error", err)
		writeInternalError(w, "failed to fetch portfolio")
		return
	}

	if !p.Published && !s.isOwner(r, p) {
		writeNotFound(w, "portfolio not found")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

// handleListSections returns a portfolio's sections in display order.
func (s *Server) handleListSections(w http.ResponseWriter, r *http.Request) {
	p, err := s.portfolios.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, portfolio.ErrPortfolioNotFound) {
			writeNotFound(w, "portfolio not found")
			return
		}
		s.logger.Error("fetching portfolio", "error", err)
		writeInternalError(w, "failed to fetch portfolio")
		return
	}
	if !p.Published && !s.isOwner(r, p) {
		writeNotFound(w, "portfolio not found")
		return
	}

	sections, err := s.portfolios.ListSections(r.Context(), p.ID)
	if err != nil {
		s.logger.Error("listing sections", "portfolio_id", p.ID, "error", err)
		writeInternalError(w, "failed to list sections")
		return
	}
	if sections == nil {
		sections = []*portfolio.Section{}
	}

	writeJSON(w, http.StatusOK, sections)
}

// ─── Visitor mutations ──────────────────────────────────────────────

// handleRecordView bumps the view counters and broadcasts the committed
// totals to the portfolio's room.
func (s *Server) handleRecordView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
	}

	analytics, err := s.portfolios.IncrementViews(r.Context(), chi.URLParam(r, "id"), req.Unique)
	if err != nil {
		if errors.Is(err, portfolio.ErrPortfolioNotFound) {
			writeNotFound(w, "portfolio not found")
			return
		}
		s.logger.Error("recording view", "error", err)
		writeInternalError(w, "failed to record view")
		return
	}

	s.notifier.AnalyticsIncremented(analytics, req.Unique)

	writeJSON(w, http.StatusOK, analytics)
}

// handleSubmitContactForm stores a contact message and alerts the owner
// in their personal room. The portfolio room hears nothing.
func (s *Server) handleSubmitContactForm(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.SenderName) == "" || strings.TrimSpace(req.SenderEmail) == "" || strings.TrimSpace(req.Body) == "" {
		writeBadRequest(w, "sender_name, sender_email and body are required")
		return
	}

	p, err := s.portfolios.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, portfolio.ErrPortfolioNotFound) {
			writeNotFound(w, "portfolio not found")
			return
		}
		s.logger.Error("fetching portfolio", "error", err)
		writeInternalError(w, "failed to submit message")
		return
	}

	message := &portfolio.ContactMessage{
		PortfolioID: p.ID,
		SenderName:  req.SenderName,
		SenderEmail: req.SenderEmail,
		Body:        req.Body,
	}
	if err := s.portfolios.InsertContactMessage(r.Context(), message); err != nil {
		s.logger.Error("inserting contact message", "portfolio_id", p.ID, "error", err)
		writeInternalError(w, "failed to submit message")
		return
	}

	s.notifier.ContactFormReceived(p.OwnerID, message)

	writeJSON(w, http.StatusCreated, map[string]string{"id": message.ID})
}

// handleAddTestimonial stores a testimonial, announces it to the
// portfolio's room and notifies the owner.
func (s *Server) handleAddTestimonial(w http.ResponseWriter, r *http.Request) {
	var req testimonialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.AuthorName) == "" || strings.TrimSpace(req.Quote) == "" {
		writeBadRequest(w, "author_name and quote are required")
		return
	}

	p, err := s.portfolios.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, portfolio.ErrPortfolioNotFound) {
			writeNotFound(w, "portfolio not found")
			return
		}
		s.logger.Error("fetching portfolio", "error", err)
		writeInternalError(w, "failed to add testimonial")
		return
	}

	testimonial := &portfolio.Testimonial{
		PortfolioID: p.ID,
		AuthorName:  req.AuthorName,
		AuthorTitle: req.AuthorTitle,
		Quote:       req.Quote,
	}
	if err := s.portfolios.InsertTestimonial(r.Context(), testimonial); err != nil {
		s.logger.Error("inserting testimonial", "portfolio_id", p.ID, "error", err)
		writeInternalError(w, "failed to add testimonial")
		return
	}

	s.notifier.TestimonialAdded(p.OwnerID, testimonial)

	writeJSON(w, http.StatusCreated, testimonial)
}

// ─── Helpers ────────────────────────────────────────────────────────

// requireOwner loads the portfolio from the URL and verifies the caller
// owns it. It writes the error response itself when the check fails.
func (s *Server) requireOwner(w http.ResponseWriter, r *http.Request) (*portfolio.Portfolio, bool) {
	ident, ok := identityFrom(r.Context())
	if !ok {
		writeUnauthorized(w, "not authenticated")
		return nil, false
	}

	p, err := s.portfolios.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, portfolio.ErrPortfolioNotFound) {
			writeNotFound(w, "portfolio not found")
			return nil, false
		}
		s.logger.Error("fetching portfolio", "error", err)
		writeInternalError(w, "failed to fetch portfolio")
		return nil, false
	}

	if p.OwnerID != ident.UserID {
		writeForbidden(w, "not the portfolio owner")
		return nil, false
	}

	return p, true
}

// isOwner reports whether the request carries a valid credential for the
// portfolio's owner. Used on public routes where auth is optional.
func (s *Server) isOwner(r *http.Request, p *portfolio.Portfolio) bool {
	credential := identity.BearerFromHeader(r.Header.Get("Authorization"))
	if credential == "" {
		return false
	}
	ident, err := s.auth.Authenticate(r.Context(), credential)
	if err != nil {
		return false
	}
	return ident.UserID == p.OwnerID
}

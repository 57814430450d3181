// Package queryapi is the daemon's read-only HTTP query surface plus the
// administrative blacklist/company-deletion endpoints (spec §6's "Query
// surface" contract). The business logic behind each handler is out of
// scope per spec §1 — every handler is a thin translation from
// internal/store reads/writes to JSON — but the HTTP plumbing itself is
// ambient infrastructure every daemon like this carries, grounded on
// hackclub-news/main.go's chi + middleware + httprate server.
package queryapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"

	"github.com/mailgraph/relationshipd/internal/apierr"
	"github.com/mailgraph/relationshipd/internal/blacklist"
	"github.com/mailgraph/relationshipd/internal/domain"
	"github.com/mailgraph/relationshipd/internal/store"
)

// Server holds the dependencies every handler reads or writes through.
type Server struct {
	Store     store.Store
	Blacklist *blacklist.Engine
}

// New builds a Server over the given store and blacklist engine.
func New(s store.Store, bl *blacklist.Engine) *Server {
	return &Server{Store: s, Blacklist: bl}
}

// Router assembles the chi mux: request-id/recover/heartbeat middleware
// on every route, a relaxed rate limit on the read-only GET routes, and a
// tighter one on the admin mutation routes (same split hackclub-news
// uses between its public feed routes and its higher-frequency stream
// route, generalized here to "reads" vs "admin writes").
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(60, time.Minute))
		r.Get("/companies", s.handleListCompanies)
		r.Get("/companies/{id}", s.handleGetCompany)
		r.Get("/companies/{id}/contacts", s.handleListContacts)
		r.Get("/blacklist", s.handleListBlacklist)
	})

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(20, time.Minute))
		r.Post("/blacklist", s.handleAddBlacklistEntry)
		r.Delete("/blacklist/{domain}", s.handleRemoveBlacklistEntry)
		r.Delete("/companies/{id}", s.handleDeleteCompany)
	})

	return r
}

type apiErr struct {
	Message string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, op string, err error) {
	kind := apierr.KindOf(err)
	if kind == apierr.Internal {
		log.Printf("queryapi: %s: %v", op, err)
	}
	writeJSON(w, apierr.HTTPStatus(kind), apiErr{Message: err.Error()})
}

func (s *Server) handleListCompanies(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			offset = n
		}
	}

	companies, err := s.Store.ListCompanies(r.Context(), limit, offset)
	if err != nil {
		writeError(w, "ListCompanies", err)
		return
	}
	writeJSON(w, http.StatusOK, companies)
}

func (s *Server) handleGetCompany(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "GetCompany", apierr.New(apierr.Validation, "queryapi.GetCompany", err))
		return
	}
	company, err := s.Store.GetCompany(r.Context(), id)
	if err != nil {
		writeError(w, "GetCompany", err)
		return
	}
	writeJSON(w, http.StatusOK, company)
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "ListContactsByCompany", apierr.New(apierr.Validation, "queryapi.ListContacts", err))
		return
	}
	contacts, err := s.Store.ListContactsByCompany(r.Context(), id)
	if err != nil {
		writeError(w, "ListContactsByCompany", err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (s *Server) handleListBlacklist(w http.ResponseWriter, r *http.Request) {
	var category *domain.Category
	if raw := r.URL.Query().Get("category"); raw != "" {
		c := domain.Category(raw)
		category = &c
	}
	entries, err := s.Store.ListBlacklistEntries(r.Context(), category)
	if err != nil {
		writeError(w, "ListBlacklistEntries", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type addBlacklistRequest struct {
	Domain   string          `json:"domain"`
	Category domain.Category `json:"category"`
	Source   string          `json:"source"`
}

func (s *Server) handleAddBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	var req addBlacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "AddBlacklistEntry", apierr.New(apierr.Validation, "queryapi.AddBlacklistEntry", err))
		return
	}
	if req.Domain == "" {
		writeError(w, "AddBlacklistEntry", apierr.New(apierr.Validation, "queryapi.AddBlacklistEntry", errors.New("domain is required")))
		return
	}
	if req.Source == "" {
		req.Source = "manual"
	}
	if req.Category == "" {
		req.Category = domain.CategoryManual
	}
	if err := s.Blacklist.Add(r.Context(), req.Domain, req.Category, req.Source); err != nil {
		writeError(w, "AddBlacklistEntry", err)
		return
	}
	writeJSON(w, http.StatusCreated, nil)
}

func (s *Server) handleRemoveBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	fqdn := chi.URLParam(r, "domain")
	if err := s.Blacklist.Remove(r.Context(), fqdn); err != nil {
		writeError(w, "RemoveBlacklistEntry", err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// handleDeleteCompany blacklists the company's domains before deleting
// it (spec §6: delete "blacklist its domains and cascades through its
// dependents"), so no future message re-creates the company from one of
// them.
func (s *Server) handleDeleteCompany(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "DeleteCompany", apierr.New(apierr.Validation, "queryapi.DeleteCompany", err))
		return
	}
	domains, err := s.Store.ListDomainsByCompany(r.Context(), id)
	if err != nil {
		writeError(w, "DeleteCompany", err)
		return
	}
	for _, fqdn := range domains {
		if err := s.Blacklist.Add(r.Context(), fqdn, domain.CategoryManual, "company_deleted"); err != nil {
			writeError(w, "DeleteCompany", err)
			return
		}
	}
	if err := s.Store.DeleteCompany(r.Context(), id); err != nil {
		writeError(w, "DeleteCompany", err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

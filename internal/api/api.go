// Package api exposes the scored table over a read-only HTTP API.
package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/shiok-scout/gems-cli/internal/checkpoint"
	"github.com/shiok-scout/gems-cli/internal/config"
	"github.com/shiok-scout/gems-cli/internal/export"
	"github.com/shiok-scout/gems-cli/internal/model"
)

// Server serves scored entities from the results store.
type Server struct {
	store   checkpoint.Store
	scoring config.ScoringConfig
}

// NewServer creates a read API server over the given store.
func NewServer(st checkpoint.Store, scoring config.ScoringConfig) *Server {
	return &Server{store: st, scoring: scoring}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/entities", s.handleEntities)
		r.Get("/entities/{key}", s.handleEntity)
		r.Get("/stats", s.handleStats)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	scored, err := s.store.LoadScored(r.Context())
	if err != nil {
		zap.L().Error("api: load scored entities", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load entities")
		return
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows := export.Apply(scored, filter)

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(rows),
		"entities": rows,
	})
}

func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	// Keys are normalized names with spaces, so they arrive percent-encoded.
	if decoded, err := url.PathUnescape(key); err == nil {
		key = decoded
	}

	scored, err := s.store.LoadScored(r.Context())
	if err != nil {
		zap.L().Error("api: load scored entities", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load entities")
		return
	}

	for _, e := range scored {
		if e.Key == key {
			writeJSON(w, http.StatusOK, e)
			return
		}
	}
	writeError(w, http.StatusNotFound, "entity not found")
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.Counts(r.Context())
	if err != nil {
		zap.L().Error("api: load sweep counts", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	scored, err := s.store.LoadScored(r.Context())
	if err != nil {
		zap.L().Error("api: load scored entities", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	tiers := make(map[model.Tier]int, 3)
	zonesSeen := make(map[string]bool)
	for _, e := range scored {
		tiers[e.Tier]++
		zonesSeen[e.Zone] = true
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sweep": map[string]int{
			"seeds_complete": counts.Complete,
			"seeds_failed":   counts.Failed,
			"raw_entities":   counts.Entities,
		},
		"scored": len(scored),
		"tiers":  tiers,
		"zones":  len(zonesSeen),
	})
}

func filterFromQuery(r *http.Request) (export.Filter, error) {
	q := r.URL.Query()
	f := export.Filter{
		Tier:     q.Get("tier"),
		Zone:     q.Get("zone"),
		Category: q.Get("category"),
	}
	var err error
	if v := q.Get("min_rating"); v != "" {
		if f.MinRating, err = strconv.ParseFloat(v, 64); err != nil {
			return f, eris.New("invalid min_rating")
		}
	}
	if v := q.Get("min_reviews"); v != "" {
		if f.MinReviews, err = strconv.Atoi(v); err != nil {
			return f, eris.New("invalid min_reviews")
		}
	}
	if v := q.Get("top"); v != "" {
		if f.Top, err = strconv.Atoi(v); err != nil {
			return f, eris.New("invalid top")
		}
	}
	return f, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

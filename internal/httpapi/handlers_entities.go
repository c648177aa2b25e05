package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/service"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/store"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/types"
)

func (s *Server) handleListEntities(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := s.registry.List(r.Context(), kind)
		if err != nil {
			s.logger.Error().Err(err).Str("entity_type", kind).Msg("list entities")
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		if list == nil {
			list = []types.Entity{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func (s *Server) handleGetEntity(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_entity_id", service.ErrInvalidEntityID.Error())
			return
		}

		e, found, err := s.registry.Find(r.Context(), kind, id)
		switch {
		case errors.Is(err, service.ErrInvalidEntityID):
			writeError(w, http.StatusBadRequest, "invalid_entity_id", err.Error())
		case err != nil:
			s.logger.Error().Err(err).Str("entity_type", kind).Int("id", id).Msg("get entity")
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		case !found:
			writeError(w, http.StatusNotFound, "not_found", kind+" not found")
		default:
			writeJSON(w, http.StatusOK, e)
		}
	}
}

// handleRegister creates the record and captures the finger in one call.
// Nothing is stored if the capture fails.
func (s *Server) handleRegister(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in types.NewEntity
		if !decodeJSON(w, r, &in) {
			return
		}

		e, err := s.enrollment.Register(r.Context(), kind, in)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidInput):
				writeError(w, http.StatusBadRequest, "invalid_request", strings.TrimPrefix(err.Error(), service.ErrInvalidInput.Error()+": "))
			case errors.Is(err, store.ErrDuplicateEmail):
				writeError(w, http.StatusConflict, "duplicate_email", "email already registered")
			case errors.Is(err, store.ErrNoFreeSlot):
				writeError(w, http.StatusConflict, "no_free_slot", err.Error())
			case errors.Is(err, service.ErrCaptureFailed):
				writeError(w, http.StatusBadRequest, "capture_failed", strings.TrimPrefix(err.Error(), service.ErrCaptureFailed.Error()+": "))
			default:
				s.logger.Error().Err(err).Str("entity_type", kind).Msg("register entity")
				writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			}
			return
		}
		writeJSON(w, http.StatusCreated, e)
	}
}

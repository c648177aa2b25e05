package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/service"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/types"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/validate"
)

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req types.AccessRequest

	if isProtobuf(r) {
		var msg structpb.Struct
		if err := readProto(r, &msg); err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", "invalid protobuf body")
			return
		}
		var err error
		if req, err = accessRequestFromProto(&msg); err != nil {
			writeError(w, http.StatusBadRequest, "bad_proto", err.Error())
			return
		}
		if err := validate.Struct(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", validate.Message(err))
			return
		}
	} else if !decodeJSON(w, r, &req) {
		return
	}

	if req.EntityID == nil {
		writeError(w, http.StatusBadRequest, "invalid_entity_id", service.ErrInvalidEntityID.Error())
		return
	}

	d, err := s.access.VerifyAccess(r.Context(), req.EntityType, *req.EntityID, req.MaxRetries)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEntityType):
			writeError(w, http.StatusBadRequest, "invalid_entity_type", err.Error())
		case errors.Is(err, service.ErrInvalidEntityID):
			writeError(w, http.StatusBadRequest, "invalid_entity_id", err.Error())
		default:
			s.logger.Error().Err(err).Msg("verify access")
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}

	if wantsProtobuf(r) {
		msg, err := accessDecisionToProto(d)
		if err != nil {
			s.logger.Error().Err(err).Msg("encode decision")
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, ok := queryInt(q.Get("limit"), service.DefaultLogLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
		return
	}
	offset, ok := queryInt(q.Get("offset"), 0)
	if !ok || offset < 0 {
		writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be a non-negative integer")
		return
	}

	page, err := s.access.ListLogs(r.Context(), types.LogQuery{
		Period:     q.Get("period"),
		EntityType: q.Get("entity_type"),
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("list logs")
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func queryInt(raw string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

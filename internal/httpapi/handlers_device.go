package httpapi

import (
	"errors"
	"net/http"

	"github.com/BrandonDHaskell/portunus-bio/server/internal/hardware/fingerprint"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/hardware/serialport"
	"github.com/BrandonDHaskell/portunus-bio/server/internal/portunus/types"
)

type linkResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Status  serialport.Status `json:"status"`
}

func (s *Server) handleListPorts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.link.ListPorts())
}

func (s *Server) handleRefreshPorts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.link.RefreshPorts())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.link.Status())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req types.ConnectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	baud := req.Baudrate
	if baud == 0 {
		baud = serialport.DefaultBaudRate
	}

	res, err := s.link.Connect(req.Port, baud, s.readTimeout)
	if err != nil {
		s.logger.Error().Err(err).Str("port", req.Port).Msg("connect failed")
		writeJSON(w, http.StatusInternalServerError, linkResponse{
			Message: err.Error(),
			Status:  s.link.Status(),
		})
		return
	}

	writeJSON(w, http.StatusOK, linkResponse{
		Success: true,
		Message: res.Message,
		Status:  s.link.Status(),
	})
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	msg, err := s.link.Disconnect()
	if err != nil {
		s.logger.Warn().Err(err).Msg("disconnect")
		msg = err.Error()
	}
	writeJSON(w, http.StatusOK, linkResponse{
		Success: err == nil,
		Message: msg,
		Status:  s.link.Status(),
	})
}

// handleTestCapture enrolls a finger into an arbitrary slot without
// creating a record. Used to bench-test the reader.
func (s *Server) handleTestCapture(w http.ResponseWriter, r *http.Request) {
	var req types.CaptureRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.EntityID == nil {
		writeError(w, http.StatusBadRequest, "invalid_entity_id", "entity_id must be an integer")
		return
	}

	retries := req.MaxRetries
	if retries == 0 {
		retries = fingerprint.DefaultEnrollRetries
	}

	res, err := s.driver.Capture(req.Entity, *req.EntityID, retries, s.captureTimeout)
	if err != nil && !errors.Is(err, fingerprint.ErrNotConnected) {
		s.logger.Warn().Err(err).Int("slot", *req.EntityID).Msg("test capture")
	}

	status := http.StatusOK
	if !res.OK {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, types.CaptureResponse{
		OK:       res.OK,
		Message:  res.Message,
		Attempts: res.Attempts,
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	if err := s.driver.Cancel(); err != nil {
		if errors.Is(err, fingerprint.ErrNotConnected) {
			writeError(w, http.StatusConflict, "not_connected", err.Error())
			return
		}
		s.logger.Error().Err(err).Msg("cancel")
		writeError(w, http.StatusInternalServerError, "device_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

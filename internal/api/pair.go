package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zefau/huesync/internal/bridges/hue"
)

// PairRequest optionally overrides the devicetype registered with the
// bridge.
type PairRequest struct {
	Devicetype string `json:"devicetype"`
}

// PairResponse carries the username issued by the bridge.
type PairResponse struct {
	Username string `json:"username"`
}

// handlePair performs a single registration exchange with the bridge.
// The bridge's link button must have been pressed within the preceding
// 30 seconds; a refusal maps to 409 so callers know to press it and
// retry.
func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	if s.pairer == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "pairing is not available")
		return
	}

	devicetype := s.devicetype
	if r.ContentLength != 0 {
		var req PairRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body")
			return
		}
		if req.Devicetype != "" {
			devicetype = req.Devicetype
		}
	}

	username, err := s.pairer.Register(r.Context(), devicetype)
	if err != nil {
		if errors.Is(err, hue.ErrBridgeResponse) {
			writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
			return
		}
		s.logger.Error("bridge pairing failed", "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeBridge, err.Error())
		return
	}

	s.logger.Info("bridge pairing succeeded", "devicetype", devicetype)
	writeJSON(w, http.StatusOK, PairResponse{Username: username})
}

package web

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"

	"rfidpanel/internal/controller"
	"rfidpanel/internal/transport"
)

// envelope is the response shape every API handler returns.
type envelope struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.WithError(err).Error("encode response")
	}
}

func (s *Server) ok(w http.ResponseWriter, message string, data interface{}) {
	s.writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

// fail maps controller and transport errors onto HTTP statuses while
// keeping the envelope shape the UI expects.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var invalid *controller.InvalidParameterError
	var failed *controller.CommandFailedError
	var device *controller.DeviceError
	switch {
	case errors.As(err, &invalid):
		status = http.StatusBadRequest
	case errors.Is(err, controller.ErrNotConnected),
		errors.Is(err, controller.ErrAlreadyConnected),
		errors.Is(err, controller.ErrInventoryRunning),
		errors.Is(err, controller.ErrBusy):
		status = http.StatusConflict
	case errors.As(err, &failed), errors.As(err, &device),
		transport.IsConnError(err), errors.Is(err, transport.ErrTimeout):
		status = http.StatusBadGateway
	}

	s.writeJSON(w, status, envelope{Success: false, Message: err.Error()})
}

func (s *Server) badRequest(w http.ResponseWriter, message string) {
	s.writeJSON(w, http.StatusBadRequest, envelope{Success: false, Message: message})
}

// decodeBody parses a JSON request body into dst. An empty body is
// allowed; handlers fall back to their defaults.
func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}

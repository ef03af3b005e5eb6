package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/servermon/internal/domain"
	"github.com/hamed0406/servermon/internal/persist"
)

const maxStateBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidAddress):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, persist.ErrMalformed):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// endpointPayload accepts ports either as a JSON array or as the
// comma-separated string a user would type ("22, 80,443").
type endpointPayload struct {
	Name  string          `json:"name"`
	IP    string          `json:"ip"`
	Ports json.RawMessage `json:"ports"`
}

func (p endpointPayload) ports() ([]uint16, error) {
	raw := bytes.TrimSpace(p.Ports)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		return domain.ParsePorts(s), nil
	}
	var ports []uint16
	if err := json.Unmarshal(raw, &ports); err != nil {
		return nil, fmt.Errorf("ports: %w", err)
	}
	return ports, nil
}

func decodeEndpoint(r *http.Request) (endpointPayload, []uint16, error) {
	var p endpointPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		return p, nil, err
	}
	ports, err := p.ports()
	return p, ports, err
}

func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	all, err := s.Monitor.Endpoints(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	now := s.Now()
	out := make([]endpointView, 0, len(all))
	for _, e := range all {
		out = append(out, newEndpointView(e, now))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	e, err := s.Monitor.Endpoint(r.Context(), domain.EndpointID(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newEndpointView(e, s.Now()))
}

func (s *Server) handleAddEndpoint(w http.ResponseWriter, r *http.Request) {
	p, ports, err := decodeEndpoint(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	e, err := s.Monitor.AddEndpoint(r.Context(), p.Name, p.IP, ports)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, newEndpointView(e, s.Now()))
}

func (s *Server) handleEditEndpoint(w http.ResponseWriter, r *http.Request) {
	p, ports, err := decodeEndpoint(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	id := domain.EndpointID(chi.URLParam(r, "id"))
	e, err := s.Monitor.EditEndpoint(r.Context(), id, p.Name, p.IP, ports)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newEndpointView(e, s.Now()))
}

func (s *Server) handleRemoveEndpoint(w http.ResponseWriter, r *http.Request) {
	id := domain.EndpointID(chi.URLParam(r, "id"))
	if err := s.Monitor.RemoveEndpoint(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckNow(w http.ResponseWriter, r *http.Request) {
	s.Monitor.TriggerCheckNow()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "scheduled"})
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newPolicyView(s.Monitor.Policy()))
}

type policyPayload struct {
	RefreshIntervalSecs *uint64 `json:"refresh_interval_secs"`
}

func (s *Server) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	var p policyPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || p.RefreshIntervalSecs == nil {
		writeError(w, http.StatusBadRequest, "refresh_interval_secs is required")
		return
	}
	s.Monitor.SetInterval(*p.RefreshIntervalSecs)
	writeJSON(w, http.StatusOK, newPolicyView(s.Monitor.Policy()))
}

func (s *Server) handleDownloadState(w http.ResponseWriter, r *http.Request) {
	data, err := s.Monitor.ExportData(r.Context())
	if err != nil {
		s.Logger.Error("state_download_failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "export error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="servermon.cfg"`)
	_, _ = w.Write(data)
}

func (s *Server) handleUploadState(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxStateBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "state document too large")
		return
	}
	if err := s.Monitor.ImportData(r.Context(), data); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, newPolicyView(s.Monitor.Policy()))
}

func (s *Server) handleExportState(w http.ResponseWriter, r *http.Request) {
	if err := s.Monitor.Export(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "exported", "path": s.Monitor.StatePath()})
}

func (s *Server) handleImportState(w http.ResponseWriter, r *http.Request) {
	if err := s.Monitor.Import(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "imported", "path": s.Monitor.StatePath()})
}

package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"eventguard.org/internal/audit"
	"eventguard.org/internal/incident"
	"eventguard.org/internal/live"
)

type createIncidentRequest struct {
	Type         string   `json:"type"`
	Location     string   `json:"location"`
	ImageURL     string   `json:"imageUrl"`
	VisionLabels []string `json:"visionLabels"`
}

func (a *API) handleIncidentsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.listIncidents(w, r)
	case http.MethodPost:
		a.createIncident(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleIncidentResource(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/incidents/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "incident not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		a.getIncident(w, r, id)
	case http.MethodDelete:
		a.deleteIncident(w, r, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) listIncidents(w http.ResponseWriter, r *http.Request) {
	incidents, err := a.incidents.List(r.Context())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if incidents == nil {
		incidents = []*incident.Incident{}
	}
	writeJSON(w, http.StatusOK, incidents)
}

func (a *API) createIncident(w http.ResponseWriter, r *http.Request) {
	var req createIncidentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	inc := &incident.Incident{
		Type:         strings.TrimSpace(req.Type),
		Location:     strings.TrimSpace(req.Location),
		ImageURL:     req.ImageURL,
		VisionLabels: req.VisionLabels,
	}
	if err := a.incidents.Create(r.Context(), inc); err != nil {
		handleIncidentError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "incident.created", map[string]any{
		"incident_id": inc.ID,
		"type":        inc.Type,
		"location":    inc.Location,
	})
	// Every connected client hears about new incidents, whatever its role.
	if a.gateway != nil {
		a.gateway.Broadcast(live.EventNewIncident, inc)
	}
	writeJSON(w, http.StatusCreated, inc)
}

func (a *API) getIncident(w http.ResponseWriter, r *http.Request, id string) {
	inc, err := a.incidents.Find(r.Context(), id)
	if err != nil {
		handleIncidentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

func (a *API) deleteIncident(w http.ResponseWriter, r *http.Request, id string) {
	if err := a.incidents.Delete(r.Context(), id); err != nil {
		handleIncidentError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "incident.deleted", map[string]any{
		"incident_id": id,
	})
	if a.gateway != nil {
		a.gateway.Broadcast(live.EventIncidentDeleted, map[string]string{"id": id})
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "incident deleted"})
}

func handleIncidentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, incident.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, incident.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "incident not found")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

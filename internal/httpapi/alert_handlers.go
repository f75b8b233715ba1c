package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"eventguard.org/internal/alert"
	"eventguard.org/internal/media"
	"eventguard.org/internal/vision"
)

func (a *API) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	limit := alert.DefaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		val, err := strconv.Atoi(raw)
		if err != nil || val < 1 || val > alert.DefaultRecentLimit {
			writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 50")
			return
		}
		limit = val
	}

	alerts, err := a.alerts.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if alerts == nil {
		alerts = []alert.Alert{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

// handleMediaUpload stores an alert attachment and returns the URL the
// client should put on its next send-alert.
func (a *API) handleMediaUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.media == nil {
		writeError(w, r, http.StatusServiceUnavailable, "media storage is not configured")
		return
	}

	// Clients have always posted the attachment under "alertMedia";
	// "media" is accepted as well.
	file, header, err := r.FormFile("alertMedia")
	if err != nil {
		file, header, err = r.FormFile("media")
	}
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "media file is required")
		return
	}
	defer file.Close()

	url, kind, err := a.media.Save(header.Filename, file)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedType) {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, r, http.StatusInternalServerError, "upload failed")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"mediaUrl":  url,
		"mediaType": kind,
	})
}

// handleUploadedFile serves a stored attachment by the URL path issued
// at upload time. The lookup flattens the path to its base name, so a
// crafted path cannot escape the upload directory.
func (a *API) handleUploadedFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	f, err := a.media.Open(r.URL.Path)
	if err != nil {
		writeError(w, r, http.StatusNotFound, "file not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "file unavailable")
		return
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}

// handleAnalyzeImage proxies an image to the detection service and
// returns its labels.
func (a *API) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	detections, err := a.vision.Analyze(r.Context(), header.Filename, file)
	if err != nil {
		if errors.Is(err, vision.ErrUnavailable) {
			writeError(w, r, http.StatusServiceUnavailable, "image analysis is unavailable")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "image analysis failed")
		return
	}
	if detections == nil {
		detections = []vision.Detection{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"detections": detections,
	})
}

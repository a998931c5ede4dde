// Package api is the HTTP surface a device shim and the UI talk to:
// notification ingestion, feed queries and mutations, the live stream
// and the remote mirror push endpoint.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"notifeed/pkg/ingest"
	"notifeed/pkg/logger"
	"notifeed/pkg/models"
	"notifeed/pkg/settings"
	"notifeed/pkg/store"
)

// Deps are the collaborators handlers need.
type Deps struct {
	Pipeline *ingest.Pipeline
}

// Handler returns the service router.
func Handler(deps Deps) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", readyz).Methods(http.MethodGet)

	r.HandleFunc("/v1/notifications", deps.postNotification).Methods(http.MethodPost)
	r.HandleFunc("/v1/feed", getFeed).Methods(http.MethodGet)
	r.HandleFunc("/v1/feed/stream", streamFeed).Methods(http.MethodGet)
	r.HandleFunc("/v1/feed/{id}/seen", markSeen).Methods(http.MethodPost)
	r.HandleFunc("/v1/feed/{id}/archive", archiveItem).Methods(http.MethodPost)
	r.HandleFunc("/v1/mirror/push", mirrorPush).Methods(http.MethodPost)
	r.HandleFunc("/v1/settings", getSettings).Methods(http.MethodGet)
	r.HandleFunc("/v1/settings/packages/{pkg}", putPackageSetting).Methods(http.MethodPut)
	r.HandleFunc("/v1/admin/feed/clear", adminClear).Methods(http.MethodPost)
	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func readyz(w http.ResponseWriter, _ *http.Request) {
	if !store.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// postNotification is the device notification callback surface. The
// response reports what the pipeline did with the posting; a posting the
// pipeline filtered is still a 202, not an error.
func (d Deps) postNotification(w http.ResponseWriter, r *http.Request) {
	var ev models.NotificationEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json", false)
		return
	}
	if ev.PackageName == "" || ev.Key == "" {
		writeError(w, http.StatusBadRequest, "package_name and key are required", false)
		return
	}
	outcome := d.Pipeline.HandlePosting(ev)
	writeJSON(w, http.StatusAccepted, map[string]string{"outcome": string(outcome)})
}

func getFeed(w http.ResponseWriter, _ *http.Request) {
	items, err := store.ListActive()
	if err != nil {
		storeError(w, err)
		return
	}
	grouped := map[models.Category][]models.FeedItem{}
	for _, it := range items {
		grouped[it.Category] = append(grouped[it.Category], it)
	}
	writeJSON(w, http.StatusOK, struct {
		Items      []models.FeedItem                    `json:"items"`
		Categories map[models.Category][]models.FeedItem `json:"categories"`
	}{Items: items, Categories: grouped})
}

func markSeen(w http.ResponseWriter, r *http.Request) {
	mutateStatus(w, r, store.MarkSeen)
}

func archiveItem(w http.ResponseWriter, r *http.Request) {
	mutateStatus(w, r, store.Archive)
}

// mutateStatus translates a UI action to a store mutation. Store
// unavailability surfaces as a retryable failure indication, never as a
// fault across the boundary.
func mutateStatus(w http.ResponseWriter, r *http.Request, f func(id string, nowMs int64) error) {
	id := mux.Vars(r)["id"]
	err := f(id, time.Now().UnixMilli())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "ok"})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "item not found", false)
	default:
		logger.Error("feed_mutation_failed", "id", id, "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable", true)
	}
}

// mirrorPush applies remote-origin items under last-writer-wins.
func mirrorPush(w http.ResponseWriter, r *http.Request) {
	var it models.FeedItem
	if err := json.NewDecoder(r.Body).Decode(&it); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json", false)
		return
	}
	if it.ID == "" || !it.Category.Valid() {
		writeError(w, http.StatusBadRequest, "id and a valid category are required", false)
		return
	}
	applied, err := store.ApplyRemote(it)
	if err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": it.ID, "applied": applied})
}

// getSettings exposes the active settings snapshot so the device shim
// can decide whether to suppress the original OS notification.
func getSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		SuppressMirrored bool     `json:"suppress_mirrored"`
		DisabledPackages []string `json:"disabled_packages"`
	}{SuppressMirrored: settings.SuppressMirrored(), DisabledPackages: settings.DisabledPackages()})
}

func putPackageSetting(w http.ResponseWriter, r *http.Request) {
	pkg := mux.Vars(r)["pkg"]
	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Enabled == nil {
		writeError(w, http.StatusBadRequest, "enabled is required", false)
		return
	}
	settings.SetPackageEnabled(pkg, *body.Enabled)
	writeJSON(w, http.StatusOK, map[string]any{"package": pkg, "enabled": *body.Enabled})
}

func adminClear(w http.ResponseWriter, _ *http.Request) {
	if err := store.ClearAll(); err != nil {
		storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func storeError(w http.ResponseWriter, err error) {
	logger.Error("store_error", "error", err)
	writeError(w, http.StatusServiceUnavailable, "store unavailable", true)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, retryable bool) {
	writeJSON(w, status, map[string]any{"error": msg, "retryable": retryable})
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/tubeshelf/internal/feed"
	"github.com/JakeFAU/tubeshelf/internal/library"
	"github.com/JakeFAU/tubeshelf/internal/metrics"
)

const maxFeedItems = 500

type submitRequest struct {
	URL      string `json:"url"`
	Category string `json:"category"`
	Force    bool   `json:"force"`
}

type tagsRequest struct {
	Tags []string `json:"tags"`
}

func (s *Server) submitLink(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.ObserveSubmission("invalid")
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		metrics.ObserveSubmission("invalid")
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	result, err := s.lib.Submit(r.Context(), req.URL, req.Category, req.Force)
	metrics.ObserveSubmission(submissionOutcome(result, err))
	if err != nil {
		s.writeLibraryError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.IsDuplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

func submissionOutcome(result library.SubmitResult, err error) string {
	switch {
	case errors.Is(err, library.ErrInvalidURL):
		return "invalid"
	case errors.Is(err, library.ErrCategoryConflict):
		return "conflict"
	case err != nil:
		return "error"
	case result.IsDuplicate:
		return "duplicate"
	default:
		return "created"
	}
}

func (s *Server) getLink(w http.ResponseWriter, r *http.Request) {
	id, err := parseLinkID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	link, err := s.lib.Get(id)
	if err != nil {
		s.writeLibraryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (s *Server) deleteLink(w http.ResponseWriter, r *http.Request) {
	id, err := parseLinkID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.lib.Delete(r.Context(), id); err != nil {
		s.writeLibraryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (s *Server) changeCategory(w http.ResponseWriter, r *http.Request) {
	id, err := parseLinkID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	if category == "" {
		writeError(w, http.StatusBadRequest, "category is required")
		return
	}
	link, err := s.lib.ChangeCategory(r.Context(), id, category)
	if err != nil {
		s.writeLibraryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (s *Server) updateTags(w http.ResponseWriter, r *http.Request) {
	id, err := parseLinkID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req tagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	link, err := s.lib.UpdateTags(r.Context(), id, req.Tags)
	if err != nil {
		s.writeLibraryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, link)
}

func (s *Server) refreshLink(w http.ResponseWriter, r *http.Request) {
	id, err := parseLinkID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	link, err := s.lib.Refresh(r.Context(), id)
	if err != nil {
		s.writeLibraryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, link)
}

func (s *Server) listCategories(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"categories": s.lib.Categories()})
}

func (s *Server) addCategory(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := s.lib.AddCategory(r.Context(), name); err != nil {
		s.writeLibraryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": s.lib.Categories()})
}

func (s *Server) getDraft(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.lib.Draft())
}

func (s *Server) getQueue(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"queue": s.lib.QueueSnapshot()})
}

func (s *Server) save(w http.ResponseWriter, r *http.Request) {
	if err := s.lib.Save(r.Context()); err != nil {
		s.writeLibraryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) exportText(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="tubeshelf.txt"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(s.lib.ExportText())); err != nil {
		s.logger.Error("export write failed", zap.Error(err))
	}
}

func (s *Server) exportJSON(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Disposition", `attachment; filename="tubeshelf.json"`)
	writeJSON(w, http.StatusOK, s.lib.ExportJSON())
}

// exportFeed serves the library as a syndication feed. ?category= narrows it
// and ?limit= caps the item count.
func (s *Server) exportFeed(format feed.Format) http.HandlerFunc {
	contentType := "application/atom+xml; charset=utf-8"
	if format == feed.FormatRSS {
		contentType = "application/rss+xml; charset=utf-8"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r, 0, maxFeedItems)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		out, err := feed.Render(s.lib.ExportJSON(), format, feed.Options{
			Category: strings.TrimSpace(r.URL.Query().Get("category")),
			Limit:    limit,
		})
		if err != nil {
			s.logger.Error("feed render failed", zap.String("format", string(format)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "feed render failed")
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(out)); err != nil {
			s.logger.Error("feed write failed", zap.Error(err))
		}
	}
}

func (s *Server) getConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.lib.Settings())
}

func (s *Server) updateConfig(w http.ResponseWriter, r *http.Request) {
	var patch library.SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	settings, err := s.lib.UpdateSettings(r.Context(), patch)
	if err != nil {
		s.writeLibraryError(w, r, err)
		return
	}
	s.logger.Info("settings updated",
		zap.Int("rate_limit_per_second", settings.RateLimitPerSecond),
		zap.Int("rate_limit_per_minute", settings.RateLimitPerMinute),
		zap.String("duplicate_policy", string(settings.DuplicatePolicy)),
	)
	writeJSON(w, http.StatusOK, settings)
}

func parseLinkID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	if raw == "" {
		return 0, errors.New("id is required")
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

package api

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/dgallion1/mdguard/internal/guard"
	"github.com/dgallion1/mdguard/internal/parser"
	"github.com/dgallion1/mdguard/internal/profile"
)

// requestProfile resolves ?profile=, falling back to the configured default.
func (s *Server) requestProfile(r *http.Request) (profile.Name, error) {
	q := r.URL.Query().Get("profile")
	if q == "" {
		return s.cfg.DefaultProfile, nil
	}
	return profile.Parse(q)
}

// parseBody parses the raw request body as one document.
func (s *Server) parseBody(w http.ResponseWriter, r *http.Request) (*parser.Document, error) {
	p, err := s.requestProfile(r)
	if err != nil {
		return nil, err
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return parser.Parse(r.Context(), body, p,
		parser.WithLogger(s.log.With("request_path", r.URL.Path)),
		parser.WithCollectorTimeout(s.cfg.CollectorTimeout))
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	doc, err := s.parseBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc.Result)
}

func (s *Server) handleSanitize(w http.ResponseWriter, r *http.Request) {
	doc, err := s.parseBody(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	q := r.URL.Query()
	pol := parser.Policy{}
	if v := q.Get("sanitize_profile"); v != "" {
		if pol.Profile, err = profile.Parse(v); err != nil {
			writeError(w, err)
			return
		}
	}
	pol.StripDataURIImages, _ = strconv.ParseBool(q.Get("strip_data_uri_images"))
	pol.AllowHTML, _ = strconv.ParseBool(q.Get("allow_html"))

	out, err := doc.Sanitize(pol)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGuard(w http.ResponseWriter, r *http.Request) {
	doc, err := s.parseBody(w, r)
	if err != nil {
		code := statusFor(err)
		if code != http.StatusRequestEntityTooLarge && code != http.StatusUnprocessableEntity {
			writeError(w, err)
			return
		}
		// Refused documents still get a verdict.
		writeJSON(w, code, map[string]any{
			"error":    bodyFor(err),
			"decision": guard.ForError(err),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"decision":           guard.ForRAG(&doc.Result),
		"quarantined":        doc.Metadata.Quarantined,
		"quarantine_reasons": doc.Metadata.QuarantineReasons,
		"warnings":           doc.Metadata.Security.Warnings,
	})
}

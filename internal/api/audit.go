package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nerrad567/laurabot-hal/internal/audit"
)

// auditFilter parses the audit query string. Non-numeric or negative paging
// values are rejected rather than silently ignored.
func auditFilter(q url.Values) (audit.Filter, error) {
	f := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return audit.Filter{}, fmt.Errorf("%s must be a non-negative integer", name)
		}
		*dst = n
	}
	return f, nil
}

// handleListAuditLogs returns one page of hardware audit entries, newest first.
//
// Query parameters:
//   - action: probe, rebind, fallback, alert, recovery, failure_injected, failure_restored
//   - entity_type: class or sensor
//   - entity_id: class name or sensor id
//   - limit: page size (default 50, max 200)
//   - offset: entries to skip
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	if s.auditRepo == nil {
		writeUnavailable(w, "audit trail not configured")
		return
	}
	filter, err := auditFilter(r.URL.Query())
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	page, err := s.auditRepo.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit entries", "error", err, "request_id", RequestID(r.Context()))
		writeInternalError(w, "failed to list audit entries")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

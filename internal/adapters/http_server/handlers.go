package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"repscore/internal/app"
	"repscore/internal/csvio"
	"repscore/internal/domain"
	"repscore/internal/scoring"
)

type Handlers struct {
	Catalog   *app.CatalogService
	Snapshots *app.SnapshotService
	Groups    *app.GroupService
	Reconcile *app.Reconciler
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Route("/v1", func(r chi.Router) {
		r.Get("/hotels", h.listHotels)
		r.Post("/hotels", h.registerHotel)
		r.Get("/hotels/{id}", h.getHotel)
		r.Put("/hotels/{id}", h.updateHotel)
		r.Delete("/hotels/{id}", h.deleteHotel)
		r.Get("/hotels/{id}/latest", h.latestSnapshot)
		r.Get("/hotels/{id}/history", h.snapshotHistory)
		r.Post("/hotels/{id}/snapshots", h.appendSnapshot)
		r.Post("/hotels/{id}/collect", h.collectHotel)

		r.Post("/import", h.importCSV)
		r.Get("/export/hotels", h.exportCatalog)

		r.Get("/groups", h.listGroups)
		r.Post("/groups", h.createGroup)
		r.Get("/groups/{id}", h.projectGroup)
		r.Put("/groups/{id}", h.updateGroup)
		r.Delete("/groups/{id}", h.deleteGroup)
		r.Get("/groups/{id}/export", h.exportGroup)
	})
}

// ---- wire shapes ----

type hotelPayload struct {
	ID          int64             `json:"id,omitempty"`
	Name        string            `json:"name"`
	City        *string           `json:"city,omitempty"`
	State       *string           `json:"state,omitempty"`
	Keys        *int              `json:"keys,omitempty"`
	Kind        *string           `json:"kind,omitempty"`
	Brand       *string           `json:"brand,omitempty"`
	Parent      *string           `json:"parent,omitempty"`
	SourceNames map[string]string `json:"source_names,omitempty"`
}

func toHotelPayload(h domain.Hotel) hotelPayload {
	p := hotelPayload{
		ID: h.ID, Name: h.Name, City: h.City, State: h.State,
		Keys: h.Keys, Kind: h.Kind, Brand: h.Brand, Parent: h.Parent,
	}
	if len(h.SourceNames) > 0 {
		p.SourceNames = make(map[string]string, len(h.SourceNames))
		for src, n := range h.SourceNames {
			p.SourceNames[string(src)] = n
		}
	}
	return p
}

func (p hotelPayload) toDomain() domain.Hotel {
	h := domain.Hotel{
		ID: p.ID, Name: p.Name, City: p.City, State: p.State,
		Keys: p.Keys, Kind: p.Kind, Brand: p.Brand, Parent: p.Parent,
	}
	if len(p.SourceNames) > 0 {
		h.SourceNames = make(map[domain.Source]string, len(p.SourceNames))
		for src, n := range p.SourceNames {
			h.SourceNames[domain.Source(src)] = n
		}
	}
	return h
}

type readingPayload struct {
	Score      *float64 `json:"score"`
	Count      *int     `json:"count"`
	Normalized *float64 `json:"normalized,omitempty"`
}

type snapshotPayload struct {
	ID              int64                     `json:"id"`
	HotelID         int64                     `json:"hotel_id"`
	CollectedAt     time.Time                 `json:"collected_at"`
	Method          string                    `json:"method"`
	Readings        map[string]readingPayload `json:"readings"`
	WeightedAverage *float64                  `json:"weighted_average"`
}

func toSnapshotPayload(s domain.Snapshot) snapshotPayload {
	p := snapshotPayload{
		ID:          s.ID,
		HotelID:     s.HotelID,
		CollectedAt: s.CollectedAt,
		Method:      string(s.Method),
		Readings:    make(map[string]readingPayload, len(s.Readings)),
	}
	for _, src := range domain.KnownSources() {
		rd := s.Readings[src]
		p.Readings[string(src)] = readingPayload{
			Score:      rd.Score,
			Count:      rd.Count,
			Normalized: round2p(rd.Normalized),
		}
	}
	p.WeightedAverage = round2p(s.Composite)
	return p
}

// round2p rounds derived values for display at the API boundary only.
func round2p(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := scoring.Round2(*v)
	return &r
}

// ---- helpers ----

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func writeError(w http.ResponseWriter, err error) {
	var (
		unknownHotel *domain.UnknownHotelError
		dupKey       *domain.DuplicateKeyError
		badScore     *domain.InvalidScoreError
		badCount     *domain.InvalidCountError
		badWeight    *domain.InvalidWeightError
	)
	switch {
	case errors.As(err, &unknownHotel), errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &dupKey):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.As(err, &badScore), errors.As(err, &badCount), errors.As(err, &badWeight):
		writeProblem(w, http.StatusBadRequest, "Invalid Input", err.Error())
	case errors.Is(err, app.ErrNoLiveData):
		writeProblem(w, http.StatusBadGateway, "Collection Failed", err.Error())
	default:
		writeProblem(w, http.StatusInternalServerError, "Internal Error", err.Error())
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeJSONWithETag(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

// ---- hotel handlers ----

func (h *Handlers) listHotels(w http.ResponseWriter, r *http.Request) {
	hotels, err := h.Catalog.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]hotelPayload, 0, len(hotels))
	for _, ht := range hotels {
		out = append(out, toHotelPayload(ht))
	}
	writeJSONWithETag(w, r, out)
}

func (h *Handlers) registerHotel(w http.ResponseWriter, r *http.Request) {
	var p hotelPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	created, err := h.Catalog.Register(r.Context(), p.toDomain())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHotelPayload(created))
}

func (h *Handlers) getHotel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	hotel, err := h.Catalog.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSONWithETag(w, r, toHotelPayload(hotel))
}

func (h *Handlers) updateHotel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	var p hotelPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	hotel := p.toDomain()
	hotel.ID = id
	updated, err := h.Catalog.Update(r.Context(), hotel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHotelPayload(updated))
}

func (h *Handlers) deleteHotel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	if err := h.Catalog.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// ---- snapshot handlers ----

func (h *Handlers) latestSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	snap, err := h.Snapshots.Latest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if snap == nil {
		// hotel exists but has no measurements yet
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSONWithETag(w, r, toSnapshotPayload(*snap))
}

func (h *Handlers) snapshotHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	snaps, err := h.Snapshots.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]snapshotPayload, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, toSnapshotPayload(s))
	}
	writeJSONWithETag(w, r, out)
}

type appendRequest struct {
	Readings    map[string]readingPayload `json:"readings"`
	CollectedAt *time.Time                `json:"collected_at,omitempty"`
}

func (h *Handlers) appendSnapshot(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	var req appendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	raw := make(map[domain.Source]domain.RawReading, len(req.Readings))
	for src, rd := range req.Readings {
		// normalized values from callers are never trusted; they are
		// recomputed from the raw score
		raw[domain.Source(src)] = domain.RawReading{Score: rd.Score, Count: rd.Count}
	}
	snap, err := h.Snapshots.Append(r.Context(), id, raw, domain.MethodManual, req.CollectedAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSnapshotPayload(snap))
}

func (h *Handlers) collectHotel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	snap, err := h.Snapshots.Collect(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSnapshotPayload(snap))
}

// ---- import/export handlers ----

type rowResultPayload struct {
	Line    int    `json:"line"`
	Name    string `json:"name"`
	Outcome string `json:"outcome"`
	HotelID int64  `json:"hotel_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type reportPayload struct {
	Total          int                `json:"total"`
	Created        int                `json:"created"`
	Updated        int                `json:"updated"`
	SnapshotsAdded int                `json:"snapshots_added"`
	Rejected       int                `json:"rejected"`
	Rows           []rowResultPayload `json:"rows"`
}

func (h *Handlers) importCSV(w http.ResponseWriter, r *http.Request) {
	rows, err := csvio.Parse(r.Body)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid CSV", err.Error())
		return
	}
	report, err := h.Reconcile.Reconcile(r.Context(), rows)
	if err != nil {
		writeError(w, err)
		return
	}
	out := reportPayload{
		Total:          report.Total(),
		Created:        report.Created,
		Updated:        report.Updated,
		SnapshotsAdded: report.SnapshotsAdded,
		Rejected:       report.Rejected,
	}
	for _, res := range report.Results {
		out.Rows = append(out.Rows, rowResultPayload{
			Line:    res.Line,
			Name:    res.Name,
			Outcome: string(res.Outcome),
			HotelID: res.HotelID,
			Reason:  res.Reason,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) exportCatalog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename=hotels_export.csv`)
	if err := h.Catalog.Export(r.Context(), w); err != nil {
		log.Error().Err(err).Msg("catalog export failed")
	}
}

func (h *Handlers) exportGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	// resolve before writing headers so a missing group still gets a 404
	if _, err := h.Groups.Get(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename=group_"+strconv.FormatInt(id, 10)+"_export.csv")
	if err := h.Groups.Export(r.Context(), id, w); err != nil {
		log.Error().Err(err).Msg("group export failed")
	}
}

// ---- group handlers ----

type groupRequest struct {
	Name     *string `json:"name,omitempty"`
	HotelIDs []int64 `json:"hotel_ids,omitempty"`
}

type groupPayload struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	HotelCount int     `json:"hotel_count"`
	HotelIDs   []int64 `json:"hotel_ids,omitempty"`
}

func (h *Handlers) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Groups.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]groupPayload, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupPayload{ID: g.ID, Name: g.Name, HotelCount: len(g.HotelIDs)})
	}
	writeJSONWithETag(w, r, out)
}

func (h *Handlers) createGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	name := ""
	if req.Name != nil {
		name = *req.Name
	}
	g, err := h.Groups.Create(r.Context(), name, req.HotelIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, groupPayload{ID: g.ID, Name: g.Name, HotelCount: len(g.HotelIDs), HotelIDs: g.HotelIDs})
}

func (h *Handlers) updateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	var req groupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	g, err := h.Groups.Update(r.Context(), id, req.Name, req.HotelIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, groupPayload{ID: g.ID, Name: g.Name, HotelCount: len(g.HotelIDs), HotelIDs: g.HotelIDs})
}

func (h *Handlers) deleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	if err := h.Groups.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

type groupRowPayload struct {
	Hotel           hotelPayload        `json:"hotel"`
	Normalized      map[string]*float64 `json:"normalized"`
	WeightedAverage *float64            `json:"weighted_average"`
}

func (h *Handlers) projectGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a number")
		return
	}
	g, err := h.Groups.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := h.Groups.Project(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	out := struct {
		ID     int64             `json:"id"`
		Name   string            `json:"name"`
		Hotels []groupRowPayload `json:"hotels"`
	}{ID: g.ID, Name: g.Name, Hotels: make([]groupRowPayload, 0, len(rows))}
	for _, row := range rows {
		p := groupRowPayload{
			Hotel:           toHotelPayload(row.Hotel),
			Normalized:      make(map[string]*float64, len(row.Normalized)),
			WeightedAverage: round2p(row.Composite),
		}
		for src, v := range row.Normalized {
			p.Normalized[string(src)] = round2p(v)
		}
		out.Hotels = append(out.Hotels, p)
	}
	writeJSONWithETag(w, r, out)
}

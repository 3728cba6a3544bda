/*
rows.go - Raw row surface over the configured adapters

PURPOSE:
  Serves the row-service contract that store/httprows speaks, so one
  deployment can act as the backing store of another. Responses are bare
  JSON (no envelope) because that is what row-service clients expect.

ROUTES (mounted at /rows):
  GET    /                      all rows of ?sheet=
  GET    /search?f=v            matching rows, 404 when none
  POST   /                      insert one row
  PATCH  /match/{field}/{value} update matching rows -> {"updated": n}
  DELETE /match/{field}/{value} delete matching rows -> {"deleted": n}

AUTH:
  Every request needs "Authorization: Bearer <ROWS_API_TOKEN>". The surface
  is not mounted when no token is configured.
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/dnyanpeeth/fee-ledger/rowstore"
)

// RowsHandler exposes named sheets.
type RowsHandler struct {
	Sheets       map[string]rowstore.Adapter
	DefaultSheet string
	Log          logrus.FieldLogger
}

// Routes returns the /rows sub-router guarded by token.
func (rh *RowsHandler) Routes(token string) chi.Router {
	r := chi.NewRouter()
	r.Use(requireBearer(token))
	r.Get("/", rh.fetchAll)
	r.Get("/search", rh.search)
	r.Post("/", rh.insert)
	r.Patch("/match/{field}/{value}", rh.update)
	r.Delete("/match/{field}/{value}", rh.delete)
	return r
}

func (rh *RowsHandler) sheet(w http.ResponseWriter, r *http.Request) (rowstore.Adapter, bool) {
	name := r.URL.Query().Get("sheet")
	if name == "" {
		name = rh.DefaultSheet
	}
	a, ok := rh.Sheets[name]
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unknown sheet %q", name)})
		return nil, false
	}
	return a, true
}

func (rh *RowsHandler) fetchAll(w http.ResponseWriter, r *http.Request) {
	a, ok := rh.sheet(w, r)
	if !ok {
		return
	}
	rows, err := a.FetchAll(r.Context())
	if err != nil {
		rh.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (rh *RowsHandler) search(w http.ResponseWriter, r *http.Request) {
	a, ok := rh.sheet(w, r)
	if !ok {
		return
	}
	p := rowstore.Predicate{}
	for k, vs := range r.URL.Query() {
		if k == "sheet" || len(vs) == 0 {
			continue
		}
		p[k] = vs[0]
	}
	rows, err := a.Search(r.Context(), p)
	if err != nil {
		rh.fail(w, err)
		return
	}
	if len(rows) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no rows found"})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (rh *RowsHandler) insert(w http.ResponseWriter, r *http.Request) {
	a, ok := rh.sheet(w, r)
	if !ok {
		return
	}
	row, err := decodeRow(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := a.Insert(r.Context(), row); err != nil {
		rh.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"created": 1})
}

func (rh *RowsHandler) update(w http.ResponseWriter, r *http.Request) {
	a, ok := rh.sheet(w, r)
	if !ok {
		return
	}
	p, err := matchParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	fields, err := decodeRow(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	n, err := a.Update(r.Context(), p, fields)
	if err != nil {
		rh.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (rh *RowsHandler) delete(w http.ResponseWriter, r *http.Request) {
	a, ok := rh.sheet(w, r)
	if !ok {
		return
	}
	p, err := matchParams(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	n, err := a.Delete(r.Context(), p)
	if err != nil {
		rh.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (rh *RowsHandler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, rowstore.ErrUnknownColumn),
		errors.Is(err, rowstore.ErrMissingIdentity),
		errors.Is(err, rowstore.ErrUnsupportedMatch):
		status = http.StatusBadRequest
	default:
		if rh.Log != nil {
			rh.Log.WithError(err).Error("row surface request failed")
		}
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// matchParams reads {field}/{value}. chi hands back the raw segment when
// the path was escaped.
func matchParams(r *http.Request) (rowstore.Predicate, error) {
	field, err := url.PathUnescape(chi.URLParam(r, "field"))
	if err != nil {
		return nil, err
	}
	value, err := url.PathUnescape(chi.URLParam(r, "value"))
	if err != nil {
		return nil, err
	}
	return rowstore.Predicate{field: value}, nil
}

// decodeRow reads a JSON object, stringifying numbers and booleans the way
// the store encodes them.
func decodeRow(r *http.Request) (rowstore.Row, error) {
	var raw map[string]any
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid row body: %w", err)
	}
	row := make(rowstore.Row, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case nil:
			row[k] = ""
		case string:
			row[k] = t
		case bool:
			if t {
				row[k] = "TRUE"
			} else {
				row[k] = "FALSE"
			}
		case json.Number:
			row[k] = t.String()
		default:
			return nil, fmt.Errorf("column %s: nested values are not supported", k)
		}
	}
	return row, nil
}

package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"campus-rides/internal/rides"
	"campus-rides/pkg/validation"
)

// RideService is the ride controller as the handlers use it.
type RideService interface {
	Snapshot() rides.Snapshot
	SubmitFilters(ctx context.Context, in rides.FormValues) error
	QuickSetFilter(ctx context.Context, field rides.Field, value string) error
	ClearFilters(ctx context.Context) error
	SetPage(ctx context.Context, n int) error
	Refresh(ctx context.Context) error
}

// RideHandler exposes the ride query controller.
type RideHandler struct{ svc RideService }

// NewRideHandler wires a handler to the ride controller.
func NewRideHandler(svc RideService) *RideHandler { return &RideHandler{svc: svc} }

// Routes returns a chi.Router with all ride routes.
func (h *RideHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.Get)
	r.Post("/search", h.Search)
	r.Post("/quick", h.Quick)
	r.Delete("/filters", h.Clear)
	r.Put("/page", h.Page)
	r.Post("/refresh", h.Refresh)
	r.Get("/locations", h.Locations)
	return r
}

type quickRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type pageRequest struct {
	Page int `json:"page"`
}

// ParseField maps a form field name to a quick filter field.
func ParseField(s string) (rides.Field, error) {
	switch s {
	case "pickup", "pickupLocation":
		return rides.FieldPickup, nil
	case "destination":
		return rides.FieldDestination, nil
	}
	return "", &validation.Error{Field: "field", Msg: "must be pickup or destination"}
}

func (h *RideHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Snapshot())
}

func (h *RideHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req rides.FormValues
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	h.respond(w, h.svc.SubmitFilters(r.Context(), req))
}

func (h *RideHandler) Quick(w http.ResponseWriter, r *http.Request) {
	var req quickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	field, err := ParseField(req.Field)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respond(w, h.svc.QuickSetFilter(r.Context(), field, req.Value))
}

func (h *RideHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.svc.ClearFilters(r.Context()))
}

func (h *RideHandler) Page(w http.ResponseWriter, r *http.Request) {
	var req pageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	h.respond(w, h.svc.SetPage(r.Context(), req.Page))
}

func (h *RideHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.respond(w, h.svc.Refresh(r.Context()))
}

func (h *RideHandler) Locations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"locations": rides.CommonLocations})
}

// respond writes the snapshot after an operation. A failed fetch still
// carries the snapshot (empty rides, error set) with a 502.
func (h *RideHandler) respond(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, h.svc.Snapshot())
	case validation.IsValidation(err), errors.Is(err, rides.ErrInvalidPage):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeJSON(w, http.StatusBadGateway, h.svc.Snapshot())
	}
}

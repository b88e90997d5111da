package http

import (
	"net/http"
	"time"

	mongoadapter "github.com/robertarktes/tour-package-bookings/internal/adapters/mongo"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
)

func (h *Handlers) AdminListBookings(w http.ResponseWriter, r *http.Request) {
	h.listBookings(w, r)
}

func (h *Handlers) Decide(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req decisionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	decision, err := domain.ParseDecision(req.Decision)
	if err != nil {
		writeError(w, r, err)
		return
	}
	actor := PrincipalFrom(r.Context())
	b, err := h.bookings.Decide(r.Context(), actor, id, decision, req.Note)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b, actor))
}

func (h *Handlers) UpdateNotes(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req notesRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	actor := PrincipalFrom(r.Context())
	b, err := h.bookings.UpdateAdminNotes(r.Context(), actor, id, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b, actor))
}

func (h *Handlers) BookingStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.bookings.Stats(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handlers) AdminListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := h.catalog.ListPackages(r.Context(), PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]packageResponse, 0, len(packages))
	for _, p := range packages {
		out = append(out, toPackageResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) CreatePackage(w http.ResponseWriter, r *http.Request) {
	var req packageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.catalog.CreatePackage(r.Context(), PrincipalFrom(r.Context()), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPackageResponse(p))
}

func (h *Handlers) UpdatePackage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req packageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.catalog.UpdatePackage(r.Context(), PrincipalFrom(r.Context()), id, req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toPackageResponse(p))
}

func (h *Handlers) SetPackageActive(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req activeRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.catalog.SetPackageActive(r.Context(), PrincipalFrom(r.Context()), id, *req.Active); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) DeletePackage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.catalog.DeletePackage(r.Context(), PrincipalFrom(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) SaveDetails(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req mongoadapter.PackageDetails
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.catalog.SaveDetails(r.Context(), PrincipalFrom(r.Context()), id, req); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) AddDate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req dateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		badRequest(w, r, "date must be formatted as YYYY-MM-DD")
		return
	}
	d, err := h.catalog.AddDate(r.Context(), PrincipalFrom(r.Context()), id, date, req.MaxBookings)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDateResponse(d))
}

func (h *Handlers) UpdateDate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req capacityRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	d, err := h.catalog.UpdateDateCapacity(r.Context(), PrincipalFrom(r.Context()), id, req.MaxBookings)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toDateResponse(d))
}

func (h *Handlers) DeleteDate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.catalog.DeleteDate(r.Context(), PrincipalFrom(r.Context()), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

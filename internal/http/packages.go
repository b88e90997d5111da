package http

import (
	"net/http"

	mongoadapter "github.com/robertarktes/tour-package-bookings/internal/adapters/mongo"
	"github.com/robertarktes/tour-package-bookings/internal/catalog"
)

type packageDetailResponse struct {
	packageResponse
	Details *mongoadapter.PackageDetails `json:"details,omitempty"`
	Dates   []catalog.DateAvailability   `json:"dates"`
}

func (h *Handlers) ListPackages(w http.ResponseWriter, r *http.Request) {
	packages, err := h.catalog.ListActivePackages(r.Context())
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

func (h *Handlers) GetPackage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.catalog.GetPackage(r.Context(), PrincipalFrom(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	dates := view.Dates
	if dates == nil {
		dates = []catalog.DateAvailability{}
	}
	writeJSON(w, http.StatusOK, packageDetailResponse{
		packageResponse: toPackageResponse(view.Package),
		Details:         view.Details,
		Dates:           dates,
	})
}

func (h *Handlers) Availability(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	dates, err := h.catalog.Availability(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if dates == nil {
		dates = []catalog.DateAvailability{}
	}
	writeJSON(w, http.StatusOK, dates)
}

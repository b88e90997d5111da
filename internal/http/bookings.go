package http

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/robertarktes/tour-package-bookings/internal/booking"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
)

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req createBookingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	travelers := make([]domain.Traveler, 0, len(req.Travelers))
	for _, t := range req.Travelers {
		travelers = append(travelers, domain.Traveler{Name: t.Name, Age: t.Age, Phone: t.Phone, PaidAdvance: t.PaidAdvance})
	}

	actor := PrincipalFrom(r.Context())
	b, err := h.bookings.CreateBooking(r.Context(), actor, booking.CreateBookingInput{
		PackageID:     req.PackageID,
		PackageDateID: req.PackageDateID,
		ContactName:   req.ContactName,
		ContactEmail:  req.ContactEmail,
		ContactPhone:  req.ContactPhone,
		Travelers:     travelers,
		Advance:       req.Advance,
		ProofRef:      req.ProofRef,
		UTR:           req.UTR,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResponse(b, actor))
}

func (h *Handlers) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	h.listBookings(w, r)
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	actor := PrincipalFrom(r.Context())
	b, err := h.bookings.GetBooking(r.Context(), actor, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b, actor))
}

func (h *Handlers) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req paymentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	actor := PrincipalFrom(r.Context())
	b, err := h.bookings.RecordPayment(r.Context(), actor, id, req.Amount, req.ProofRef, req.UTR)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b, actor))
}

func (h *Handlers) SubmitRemainder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req remainderRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	actor := PrincipalFrom(r.Context())
	b, err := h.bookings.SubmitRemainder(r.Context(), actor, id, req.ProofRef, req.UTR)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingResponse(b, actor))
}

// listBookings serves both the customer and the admin listing. The service scopes customers
// to their own bookings.
func (h *Handlers) listBookings(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	actor := PrincipalFrom(r.Context())
	page, err := h.bookings.ListBookings(r.Context(), actor, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := bookingPage{Items: make([]bookingResponse, 0, len(page.Items)), Total: page.Total, Page: page.Page, Limit: page.Limit}
	for _, b := range page.Items {
		out.Items = append(out.Items, toBookingResponse(b, actor))
	}
	writeJSON(w, http.StatusOK, out)
}

func parseFilter(r *http.Request) (domain.BookingFilter, error) {
	q := r.URL.Query()
	var f domain.BookingFilter
	if s := q.Get("status"); s != "" {
		status, err := domain.ParseStatus(s)
		if err != nil {
			return f, err
		}
		f.Status = &status
	}
	if s := q.Get("package_date_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return f, domain.Validationf("invalid package_date_id")
		}
		f.PackageDateID = &id
	}
	for name, dst := range map[string]*int{"page": &f.Page, "limit": &f.Limit} {
		if s := q.Get(name); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n < 1 {
				return f, domain.Validationf("%s must be a positive integer", name)
			}
			*dst = n
		}
	}
	return f, nil
}

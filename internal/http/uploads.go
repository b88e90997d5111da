package http

import (
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-package-bookings/internal/domain"
)

const maxProofSize = 5 << 20

// UploadPaymentProof stores a payment screenshot and returns the reference to submit with a payment.
func (h *Handlers) UploadPaymentProof(w http.ResponseWriter, r *http.Request) {
	if h.proofs == nil {
		writeJSON(w, http.StatusNotImplemented, errorBody{Error: "not_configured", Message: "proof uploads are not enabled"})
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxProofSize+1<<10)
	if err := r.ParseMultipartForm(maxProofSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			badRequest(w, r, "payment proof must be at most 5 MB")
			return
		}
		badRequest(w, r, "expected a multipart form with a file field")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		badRequest(w, r, "missing file field")
		return
	}
	defer file.Close()

	if ct := header.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") && ct != "application/pdf" {
		badRequest(w, r, "payment proof must be an image or a PDF")
		return
	}

	actor := PrincipalFrom(r.Context())
	url, err := h.proofs.Upload(r.Context(), actor.UserID, file)
	if err != nil {
		writeError(w, r, domain.PersistenceFailure("upload payment proof", err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"payment_proof_ref": url})
}

package handlers

import (
	"net/http"
	"strings"

	"github.com/cosmomed/pharmacy-locator/interfaces"
	"github.com/cosmomed/pharmacy-locator/logging"
	"github.com/cosmomed/pharmacy-locator/pharmacy"
)

// DirectoryHandler serves the pharmacy register.
type DirectoryHandler struct {
	store     interfaces.DirectoryStore
	validator interfaces.InputValidator
}

// NewDirectoryHandler creates a new directory handler with injected dependencies
func NewDirectoryHandler(store interfaces.DirectoryStore, validator interfaces.InputValidator) *DirectoryHandler {
	return &DirectoryHandler{store: store, validator: validator}
}

// ListPharmacies handles GET /pharmacies?search=&district=&moh=.
func (h *DirectoryHandler) ListPharmacies(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	q := pharmacy.Query{
		Search:   strings.TrimSpace(params.Get("search")),
		District: strings.TrimSpace(params.Get("district")),
		MOH:      strings.TrimSpace(params.Get("moh")),
	}

	if err := h.validator.ValidateQuery(q); err != nil {
		logging.Warn("Unusual user input", "search", q.Search, "district", q.District, "moh", q.MOH, "error", err)
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	listings, err := h.store.Search(r.Context(), q)
	if err != nil {
		logging.Error("Directory search failed", "error", err)
		RespondWithError(w, http.StatusInternalServerError, "Failed to load pharmacies")
		return
	}

	RespondWithJSON(w, http.StatusOK, listings)
}

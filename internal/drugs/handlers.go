package drugs

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/noah-isme/rxrebate/internal/common"
)

// Handler exposes the drug price endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service   *Service
	Validator *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	v := cfg.Validator
	if v == nil {
		v = validator.New(validator.WithRequiredStructEnabled())
	}
	return &Handler{service: cfg.Service, validate: v}
}

type priceParams struct {
	DrugID     string `validate:"required,numeric,max=16"`
	PharmacyID string `validate:"omitempty,alphanum,max=32"`
}

// Routes mounts the endpoints under /drugs.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/drugs/{drugId}/prices", h.Prices)
	r.Get("/drugs/{drugId}/prices/lowest", h.LowestPrices)
}

// Prices handles GET /api/v1/drugs/{drugId}/prices?pharmacy_id=.
func (h *Handler) Prices(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "drug service not configured", nil)
		return
	}
	params := priceParams{
		DrugID:     strings.TrimSpace(chi.URLParam(r, "drugId")),
		PharmacyID: strings.TrimSpace(r.URL.Query().Get("pharmacy_id")),
	}
	if err := h.check(params); err != nil {
		common.WriteError(w, err)
		return
	}
	var pharmacyID *string
	if params.PharmacyID != "" {
		pharmacyID = &params.PharmacyID
	}
	quotes, err := h.service.Prices(r.Context(), params.DrugID, pharmacyID)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	common.JSONData(w, http.StatusOK, quotes)
}

// LowestPrices handles GET /api/v1/drugs/{drugId}/prices/lowest.
func (h *Handler) LowestPrices(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "drug service not configured", nil)
		return
	}
	params := priceParams{DrugID: strings.TrimSpace(chi.URLParam(r, "drugId"))}
	if err := h.check(params); err != nil {
		common.WriteError(w, err)
		return
	}
	quotes, err := h.service.LowestPrices(r.Context(), params.DrugID)
	if err != nil {
		h.writeError(r, w, err)
		return
	}
	common.JSONData(w, http.StatusOK, quotes)
}

func (h *Handler) check(p priceParams) error {
	err := h.validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return common.ValidationError("invalid parameters", nil)
	}
	details := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		details[fieldName(fe.Field())] = fe.Tag()
	}
	return common.ValidationError("invalid parameters", details)
}

func (h *Handler) writeError(r *http.Request, w http.ResponseWriter, err error) {
	zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("drug prices request failed")
	common.WriteError(w, err)
}

func fieldName(field string) string {
	switch field {
	case "DrugID":
		return "drug_id"
	case "PharmacyID":
		return "pharmacy_id"
	default:
		return strings.ToLower(field)
	}
}

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/services"
)

// CatalogHandlers lists the active pricing catalog for storefront configurators.
type CatalogHandlers struct {
	pricing services.PricingService
}

func NewCatalogHandlers(pricing services.PricingService) *CatalogHandlers {
	return &CatalogHandlers{pricing: pricing}
}

func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/paper-stocks", h.listPaperStocks)
	r.Get("/add-ons", h.listAddOns)
}

type paperStockPayload struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	PricePerSqIn          string `json:"pricePerSqIn"`
	Markup                string `json:"markup"`
	SingleSidedMultiplier string `json:"singleSidedMultiplier"`
	DoubleSidedMultiplier string `json:"doubleSidedMultiplier"`
}

type subOptionPayload struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Kind     string   `json:"kind"`
	Required bool     `json:"required"`
	Choices  []string `json:"choices,omitempty"`
	Min      *int     `json:"min,omitempty"`
	Max      *int     `json:"max,omitempty"`
	Default  string   `json:"default,omitempty"`
}

type addOnCatalogPayload struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Pricing     string             `json:"pricing"`
	SubOptions  []subOptionPayload `json:"subOptions"`
}

func (h *CatalogHandlers) listPaperStocks(w http.ResponseWriter, _ *http.Request) {
	stocks := h.pricing.PaperStocks()
	items := make([]paperStockPayload, 0, len(stocks))
	for _, s := range stocks {
		items = append(items, paperStockPayload{
			ID:                    s.ID,
			Name:                  s.Name,
			PricePerSqIn:          s.PricePerSqIn.String(),
			Markup:                s.Markup.String(),
			SingleSidedMultiplier: s.SingleSided.String(),
			DoubleSidedMultiplier: s.DoubleSided.String(),
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func (h *CatalogHandlers) listAddOns(w http.ResponseWriter, _ *http.Request) {
	addOns := h.pricing.AddOns()
	items := make([]addOnCatalogPayload, 0, len(addOns))
	for _, a := range addOns {
		items = append(items, addOnCatalogPayload{
			ID:          a.ID,
			Name:        a.Name,
			Description: a.Description,
			Pricing:     string(a.Rule.Family()),
			SubOptions:  buildSubOptionPayloads(a.SubOptions),
		})
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}

func buildSubOptionPayloads(specs []domain.SubOptionSpec) []subOptionPayload {
	out := make([]subOptionPayload, 0, len(specs))
	for _, spec := range specs {
		p := subOptionPayload{
			Key:      spec.Key,
			Label:    spec.Label,
			Kind:     string(spec.Kind),
			Required: spec.Required,
			Choices:  spec.Choices,
			Default:  spec.Default,
		}
		if spec.Kind != domain.SubOptionEnum {
			lo, hi := spec.Min, spec.Max
			p.Min, p.Max = &lo, &hi
		}
		out = append(out, p)
	}
	return out
}

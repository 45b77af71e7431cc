package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/platform/httpx"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/services"
)

const noShippingOptionsMessage = "no shipping options available"

// QuoteHandlers serves pricing and shipping quotes to the storefront.
type QuoteHandlers struct {
	quotes services.QuotationService
}

func NewQuoteHandlers(quotes services.QuotationService) *QuoteHandlers {
	return &QuoteHandlers{quotes: quotes}
}

// Routes wires the /quotes endpoints.
func (h *QuoteHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createQuote)
	r.Post("/price", h.priceQuote)
	r.Post("/shipping", h.shippingQuote)
}

type addressPayload struct {
	Street        string `json:"street" validate:"required,max=200"`
	Street2       string `json:"street2" validate:"max=200"`
	City          string `json:"city" validate:"required,max=100"`
	State         string `json:"state" validate:"required,max=50"`
	ZipCode       string `json:"zipCode" validate:"required,max=20"`
	Country       string `json:"country" validate:"required,len=2"`
	IsResidential bool   `json:"isResidential"`
}

type itemPayload struct {
	Quantity      int     `json:"quantity" validate:"gt=0,lte=1000000"`
	WeightPerItem float64 `json:"weightPerItem" validate:"gt=0,lte=1000"`
}

type configurationPayload struct {
	PaperStockID string          `json:"paperStockId" validate:"required,max=80"`
	Width        decimal.Decimal `json:"width"`
	Height       decimal.Decimal `json:"height"`
	Quantity     int             `json:"quantity" validate:"gt=0,lte=1000000"`
	Sides        string          `json:"sides" validate:"required,oneof=single double"`
	Turnaround   string          `json:"turnaround" validate:"required,max=20"`
}

type addOnPayload struct {
	AddOnID    string         `json:"addOnId" validate:"required,max=80"`
	SubOptions map[string]any `json:"subOptions"`
}

type shippingQuoteRequest struct {
	ToAddress           *addressPayload `json:"toAddress" validate:"required"`
	Items               []itemPayload   `json:"items" validate:"required,min=1,dive"`
	SelectedCarrierHint string          `json:"selectedCarrierHint" validate:"max=32"`
}

type priceQuoteRequest struct {
	ProductConfiguration *configurationPayload `json:"productConfiguration" validate:"required"`
	AddOnSelections      []addOnPayload        `json:"addOnSelections" validate:"max=20,dive"`
}

type combinedQuoteRequest struct {
	ProductConfiguration *configurationPayload `json:"productConfiguration" validate:"required_without=ToAddress"`
	AddOnSelections      []addOnPayload        `json:"addOnSelections" validate:"max=20,dive"`
	ToAddress            *addressPayload       `json:"toAddress"`
	Items                []itemPayload         `json:"items" validate:"dive"`
	SelectedCarrierHint  string                `json:"selectedCarrierHint" validate:"max=32"`
}

func (h *QuoteHandlers) shippingQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req shippingQuoteRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	result, err := h.quotes.ShippingQuote(ctx, req.ToAddress.toDomain(), toShipmentItems(req.Items), httpx.Clean(req.SelectedCarrierHint, 32))
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, shippingQuoteResponse{
		QuoteID:         result.ID,
		IssuedAt:        issuedAt(result),
		shippingPayload: buildShippingPayload(result.Shipping),
	})
}

func (h *QuoteHandlers) priceQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req priceQuoteRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	config, err := req.ProductConfiguration.toDomain()
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}
	result, err := h.quotes.PriceQuote(ctx, config, toSelections(req.AddOnSelections))
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}
	if result.Price == nil {
		writeQuoteError(ctx, w, errors.New("price quote returned no breakdown"))
		return
	}
	writeJSONResponse(w, http.StatusOK, priceQuoteResponse{
		QuoteID:      result.ID,
		IssuedAt:     issuedAt(result),
		pricePayload: buildPricePayload(*result.Price),
	})
}

func (h *QuoteHandlers) createQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req combinedQuoteRequest
	if !decodeRequest(w, r, &req) {
		return
	}
	cmd := services.QuoteCommand{
		AddOns:      toSelections(req.AddOnSelections),
		Items:       toShipmentItems(req.Items),
		CarrierHint: httpx.Clean(req.SelectedCarrierHint, 32),
	}
	if req.ProductConfiguration != nil {
		config, err := req.ProductConfiguration.toDomain()
		if err != nil {
			writeQuoteError(ctx, w, err)
			return
		}
		cmd.Configuration = &config
	}
	if req.ToAddress != nil {
		dest := req.ToAddress.toDomain()
		cmd.Destination = &dest
	}
	result, err := h.quotes.Quote(ctx, cmd)
	if err != nil {
		writeQuoteError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildQuotePayload(result))
}

func (a *addressPayload) toDomain() domain.ShippingAddress {
	return domain.ShippingAddress{
		Street:        httpx.Clean(a.Street, 200),
		Street2:       httpx.Clean(a.Street2, 200),
		City:          httpx.Clean(a.City, 100),
		State:         strings.ToUpper(httpx.Clean(a.State, 50)),
		ZipCode:       httpx.Clean(a.ZipCode, 20),
		Country:       strings.ToUpper(httpx.Clean(a.Country, 2)),
		IsResidential: a.IsResidential,
	}
}

func (c *configurationPayload) toDomain() (domain.ProductConfiguration, error) {
	speed, ok := domain.ParseSpeedCategory(c.Turnaround)
	if !ok {
		return domain.ProductConfiguration{}, fmt.Errorf("%w: unknown turnaround %q", services.ErrPricingInvalidInput, httpx.Clean(c.Turnaround, 20))
	}
	return domain.ProductConfiguration{
		PaperStockID: strings.TrimSpace(c.PaperStockID),
		WidthIn:      c.Width,
		HeightIn:     c.Height,
		Quantity:     c.Quantity,
		Sides:        domain.Sides(c.Sides),
		Speed:        speed,
	}, nil
}

func toShipmentItems(items []itemPayload) []services.ShipmentItem {
	out := make([]services.ShipmentItem, 0, len(items))
	for _, item := range items {
		out = append(out, services.ShipmentItem{Quantity: item.Quantity, WeightPerItem: item.WeightPerItem})
	}
	return out
}

func toSelections(payload []addOnPayload) []domain.AddOnSelection {
	out := make([]domain.AddOnSelection, 0, len(payload))
	for _, p := range payload {
		sel := domain.AddOnSelection{AddOnID: strings.TrimSpace(p.AddOnID), SubOptions: make(map[string]string, len(p.SubOptions))}
		for k, v := range p.SubOptions {
			sel.SubOptions[k] = subOptionString(v)
		}
		out = append(out, sel)
	}
	return out
}

// subOptionString flattens a JSON sub-option value into the string form the evaluator parses.
func subOptionString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// quotePayload is the POST /quotes envelope carrying either half of a quote.
type quotePayload struct {
	QuoteID  string           `json:"quoteId"`
	IssuedAt string           `json:"issuedAt"`
	Price    *pricePayload    `json:"price,omitempty"`
	Shipping *shippingPayload `json:"shipping,omitempty"`
}

type priceQuoteResponse struct {
	QuoteID  string `json:"quoteId"`
	IssuedAt string `json:"issuedAt"`
	pricePayload
}

type shippingQuoteResponse struct {
	QuoteID  string `json:"quoteId"`
	IssuedAt string `json:"issuedAt"`
	shippingPayload
}

type pricePayload struct {
	BaseCost             string             `json:"baseCost"`
	MarkedUpCost         string             `json:"markedUpCost"`
	TurnaroundMultiplier string             `json:"turnaroundMultiplier"`
	Subtotal             string             `json:"subtotal"`
	AddOnsCost           string             `json:"addOnsCost"`
	AddOns               []addOnLinePayload `json:"addOns"`
	TotalPrice           string             `json:"totalPrice"`
	DisplayTotal         string             `json:"displayTotal"`
}

type addOnLinePayload struct {
	AddOnID string `json:"addOnId"`
	Name    string `json:"name"`
	Cost    string `json:"cost"`
}

// ratePayload is the public rate shape. Delivery estimates stay internal.
type ratePayload struct {
	Carrier     string `json:"carrier"`
	Service     string `json:"service"`
	ServiceName string `json:"serviceName"`
	Cost        string `json:"cost"`
	DisplayCost string `json:"displayCost"`
}

type shippingPayload struct {
	Rates       []ratePayload `json:"rates"`
	TotalWeight float64       `json:"totalWeight"`
	BoxSummary  string        `json:"boxSummary"`
	NumBoxes    int           `json:"numBoxes"`
	Message     string        `json:"message,omitempty"`
}

func buildQuotePayload(result services.QuoteResult) quotePayload {
	payload := quotePayload{QuoteID: result.ID, IssuedAt: issuedAt(result)}
	if result.Price != nil {
		price := buildPricePayload(*result.Price)
		payload.Price = &price
	}
	if result.Shipping != nil {
		shipping := buildShippingPayload(result.Shipping)
		payload.Shipping = &shipping
	}
	return payload
}

func issuedAt(result services.QuoteResult) string {
	return result.IssuedAt.UTC().Format(time.RFC3339)
}

func buildPricePayload(p domain.PriceBreakdown) pricePayload {
	lines := make([]addOnLinePayload, 0, len(p.AddOnLineItems))
	for _, line := range p.AddOnLineItems {
		lines = append(lines, addOnLinePayload{AddOnID: line.AddOnID, Name: line.Name, Cost: line.Cost.StringFixed(2)})
	}
	return pricePayload{
		BaseCost:             p.BaseCost.StringFixed(4),
		MarkedUpCost:         p.MarkedUpCost.StringFixed(4),
		TurnaroundMultiplier: p.TurnaroundMultiplier.String(),
		Subtotal:             p.Subtotal.StringFixed(2),
		AddOnsCost:           p.AddOnsCost.StringFixed(2),
		AddOns:               lines,
		TotalPrice:           p.TotalPrice.StringFixed(2),
		DisplayTotal:         displayDollars(p.TotalPrice),
	}
}

// buildShippingPayload renders s; a nil quote renders as no options.
func buildShippingPayload(s *services.ShippingQuote) shippingPayload {
	payload := shippingPayload{Rates: []ratePayload{}}
	if s != nil {
		for _, rate := range s.Rates {
			cost := decimal.New(rate.CostCents, -2)
			payload.Rates = append(payload.Rates, ratePayload{
				Carrier:     rate.Carrier,
				Service:     rate.ServiceCode,
				ServiceName: rate.ServiceName,
				Cost:        cost.StringFixed(2),
				DisplayCost: displayDollars(cost),
			})
		}
		payload.TotalWeight = s.TotalWeightLbs
		payload.BoxSummary = s.BoxSummary
		payload.NumBoxes = s.PackageCount
	}
	if len(payload.Rates) == 0 {
		payload.Message = noShippingOptionsMessage
	}
	return payload
}

var dollarPrinter = message.NewPrinter(language.AmericanEnglish)

func displayDollars(amount decimal.Decimal) string {
	return "$" + dollarPrinter.Sprintf("%.2f", amount.Round(2).InexactFloat64())
}

func writeQuoteError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPricingNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("pricing_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrInvalidSubOption):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_sub_option", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPricingInvalidInput), errors.Is(err, services.ErrShippingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUnknownPricingFamily):
		httpx.WriteError(ctx, w, httpx.NewError("pricing_rule_unsupported", "add-on pricing rule is not supported", http.StatusInternalServerError))
	case errors.Is(err, services.ErrPricingCatalogUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "pricing catalog is unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		httpx.WriteError(ctx, w, httpx.NewError("request_timeout", "quote request timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("quote_failed", "unable to produce quote", http.StatusInternalServerError))
	}
}

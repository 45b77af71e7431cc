package carriers

import (
	"context"
	"net/http"
	"strings"
	"time"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/services"
)

// AirCargoName is the registry name of the airport-to-airport cargo carrier.
const AirCargoName = "air_cargo"

// AirCargoConfig configures the air cargo quote client.
type AirCargoConfig struct {
	BaseURL   string
	APIKey    string
	AccountID string
	// DefaultAirport is the pickup airport used when a shipment carries no hint.
	DefaultAirport string
}

// AirCargoProvider quotes air cargo services. Shipments are picked up at an
// airport, chosen from the package carrier hint or the configured default.
type AirCargoProvider struct {
	client         *jsonClient
	accountID      string
	defaultAirport string
	now            func() time.Time
}

var _ services.CarrierRateProvider = (*AirCargoProvider)(nil)

func NewAirCargoProvider(cfg AirCargoConfig, opts ...Option) *AirCargoProvider {
	o := buildOptions(opts)
	airport := normalizeAirport(cfg.DefaultAirport)
	return &AirCargoProvider{
		client: &jsonClient{
			carrier:        AirCargoName,
			baseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			apiKey:         strings.TrimSpace(cfg.APIKey),
			http:           o.httpClient,
			invalidAddress: airInvalidAddress,
		},
		accountID:      strings.TrimSpace(cfg.AccountID),
		defaultAirport: airport,
		now:            o.now,
	}
}

func (p *AirCargoProvider) Name() string { return AirCargoName }

func (p *AirCargoProvider) GetRates(ctx context.Context, req services.RateRequest) ([]domain.Rate, error) {
	if len(req.Packages) == 0 {
		return nil, nil
	}
	body := airQuoteRequest{
		Account:       p.accountID,
		OriginZip:     strings.TrimSpace(req.Origin.ZipCode),
		PickupAirport: p.pickupAirport(req.Packages),
		Destination: airDestination{
			PostalCode:  strings.TrimSpace(req.Destination.ZipCode),
			State:       strings.ToUpper(strings.TrimSpace(req.Destination.State)),
			Country:     strings.ToUpper(strings.TrimSpace(req.Destination.Country)),
			Residential: req.Destination.IsResidential,
		},
		Pieces: make([]airPiece, 0, len(req.Packages)),
	}
	for _, pkg := range req.Packages {
		body.Pieces = append(body.Pieces, airPiece{
			WeightLbs: roundTenth(pkg.WeightLbs),
			LengthIn:  roundTenth(pkg.LengthIn),
			WidthIn:   roundTenth(pkg.WidthIn),
			HeightIn:  roundTenth(pkg.HeightIn),
		})
		body.TotalWeightLbs += pkg.WeightLbs
	}
	body.TotalWeightLbs = roundTenth(body.TotalWeightLbs)

	var resp airQuoteResponse
	if err := p.client.post(ctx, "/quotes", body, &resp); err != nil {
		return nil, err
	}
	return resp.toRates(p.now()), nil
}

// pickupAirport returns the first valid airport hint on the shipment, else the default.
func (p *AirCargoProvider) pickupAirport(pkgs []domain.Package) string {
	for _, pkg := range pkgs {
		if code := normalizeAirport(pkg.Metadata[domain.MetadataCarrierHint]); code != "" {
			return code
		}
	}
	return p.defaultAirport
}

// normalizeAirport accepts three-letter IATA codes only.
func normalizeAirport(raw string) string {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != 3 {
		return ""
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return ""
		}
	}
	return code
}

type airQuoteRequest struct {
	Account        string         `json:"account,omitempty"`
	OriginZip      string         `json:"originZip"`
	PickupAirport  string         `json:"pickupAirport,omitempty"`
	Destination    airDestination `json:"destination"`
	Pieces         []airPiece     `json:"pieces"`
	TotalWeightLbs float64        `json:"totalWeightLbs"`
}

type airDestination struct {
	PostalCode  string `json:"postalCode"`
	State       string `json:"state"`
	Country     string `json:"country"`
	Residential bool   `json:"residential"`
}

type airPiece struct {
	WeightLbs float64 `json:"weightLbs"`
	LengthIn  float64 `json:"lengthIn"`
	WidthIn   float64 `json:"widthIn"`
	HeightIn  float64 `json:"heightIn"`
}

type airQuoteResponse struct {
	Quotes []struct {
		Service           string `json:"service"`
		Description       string `json:"description"`
		PriceCents        int64  `json:"priceCents"`
		TransitDays       int    `json:"transitDays"`
		EstimatedDelivery string `json:"estimatedDelivery"`
	} `json:"quotes"`
}

func (r airQuoteResponse) toRates(now time.Time) []domain.Rate {
	rates := make([]domain.Rate, 0, len(r.Quotes))
	for _, q := range r.Quotes {
		days, eta := deliveryEstimate(now, q.TransitDays)
		if ts := strings.TrimSpace(q.EstimatedDelivery); ts != "" {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				parsed = parsed.UTC()
				eta = &parsed
			}
		}
		rates = append(rates, domain.Rate{
			Carrier:           AirCargoName,
			ServiceCode:       q.Service,
			ServiceName:       q.Description,
			CostCents:         q.PriceCents,
			DeliveryDays:      days,
			EstimatedDelivery: eta,
		})
	}
	return rates
}

func airInvalidAddress(status int, body []byte) bool {
	if status != http.StatusBadRequest && status != http.StatusUnprocessableEntity {
		return false
	}
	codes := errorCodes(body)
	return hasCodePrefix(codes, "INVALID_DESTINATION") || hasCodePrefix(codes, "NO_SERVICE_AREA")
}

package carriers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/domain"
	"github.com/iradwatkins/uvcoatedclubflyers-sub002/internal/services"
)

// GroundParcelName is the registry name of the ground parcel carrier.
const GroundParcelName = "ground_parcel"

// GroundParcelConfig configures the ground parcel rate client.
type GroundParcelConfig struct {
	BaseURL   string
	APIKey    string
	AccountID string
}

// GroundParcelProvider rates shipments against the ground parcel carrier's rate API.
type GroundParcelProvider struct {
	client    *jsonClient
	accountID string
	now       func() time.Time
}

var _ services.CarrierRateProvider = (*GroundParcelProvider)(nil)

func NewGroundParcelProvider(cfg GroundParcelConfig, opts ...Option) *GroundParcelProvider {
	o := buildOptions(opts)
	return &GroundParcelProvider{
		client: &jsonClient{
			carrier:        GroundParcelName,
			baseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			apiKey:         strings.TrimSpace(cfg.APIKey),
			http:           o.httpClient,
			invalidAddress: groundInvalidAddress,
		},
		accountID: strings.TrimSpace(cfg.AccountID),
		now:       o.now,
	}
}

func (p *GroundParcelProvider) Name() string { return GroundParcelName }

func (p *GroundParcelProvider) GetRates(ctx context.Context, req services.RateRequest) ([]domain.Rate, error) {
	if len(req.Packages) == 0 {
		return nil, nil
	}
	body := groundRateRequest{
		AccountNumber: p.accountID,
		Shipper:       toGroundAddress(req.Origin),
		Recipient:     toGroundAddress(req.Destination),
		Packages:      make([]groundPackage, 0, len(req.Packages)),
	}
	for _, pkg := range req.Packages {
		body.Packages = append(body.Packages, groundPackage{
			Weight: groundWeight{Units: "LB", Value: roundTenth(pkg.WeightLbs)},
			Dimensions: groundDimensions{
				Units:  "IN",
				Length: roundTenth(pkg.LengthIn),
				Width:  roundTenth(pkg.WidthIn),
				Height: roundTenth(pkg.HeightIn),
			},
		})
	}

	var resp groundRateResponse
	if err := p.client.post(ctx, "/v1/rates", body, &resp); err != nil {
		return nil, err
	}
	return resp.toRates(p.now())
}

type groundRateRequest struct {
	AccountNumber string          `json:"accountNumber,omitempty"`
	Shipper       groundAddress   `json:"shipper"`
	Recipient     groundAddress   `json:"recipient"`
	Packages      []groundPackage `json:"packages"`
}

type groundAddress struct {
	StreetLines []string `json:"streetLines"`
	City        string   `json:"city"`
	State       string   `json:"stateOrProvinceCode"`
	PostalCode  string   `json:"postalCode"`
	Country     string   `json:"countryCode"`
	Residential bool     `json:"residential"`
}

type groundPackage struct {
	Weight     groundWeight     `json:"weight"`
	Dimensions groundDimensions `json:"dimensions"`
}

type groundWeight struct {
	Units string  `json:"units"`
	Value float64 `json:"value"`
}

type groundDimensions struct {
	Units  string  `json:"units"`
	Length float64 `json:"length"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type groundRateResponse struct {
	Rates []struct {
		ServiceType string `json:"serviceType"`
		ServiceName string `json:"serviceName"`
		TotalCharge struct {
			Amount   string `json:"amount"`
			Currency string `json:"currency"`
		} `json:"totalNetCharge"`
		TransitDays int `json:"transitDays"`
	} `json:"rates"`
}

func (r groundRateResponse) toRates(now time.Time) ([]domain.Rate, error) {
	rates := make([]domain.Rate, 0, len(r.Rates))
	for _, item := range r.Rates {
		if currency := strings.TrimSpace(item.TotalCharge.Currency); currency != "" && !strings.EqualFold(currency, "USD") {
			continue
		}
		amount, err := decimal.NewFromString(strings.TrimSpace(item.TotalCharge.Amount))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: charge %q: %v", domain.ErrCarrierUnavailable, GroundParcelName, item.TotalCharge.Amount, err)
		}
		days, eta := deliveryEstimate(now, item.TransitDays)
		rates = append(rates, domain.Rate{
			Carrier:           GroundParcelName,
			ServiceCode:       item.ServiceType,
			ServiceName:       item.ServiceName,
			CostCents:         amount.Shift(2).Round(0).IntPart(),
			DeliveryDays:      days,
			EstimatedDelivery: eta,
		})
	}
	return rates, nil
}

func toGroundAddress(a domain.ShippingAddress) groundAddress {
	lines := []string{strings.TrimSpace(a.Street)}
	if street2 := strings.TrimSpace(a.Street2); street2 != "" {
		lines = append(lines, street2)
	}
	return groundAddress{
		StreetLines: lines,
		City:        strings.TrimSpace(a.City),
		State:       strings.ToUpper(strings.TrimSpace(a.State)),
		PostalCode:  strings.TrimSpace(a.ZipCode),
		Country:     strings.ToUpper(strings.TrimSpace(a.Country)),
		Residential: a.IsResidential,
	}
}

func groundInvalidAddress(status int, body []byte) bool {
	if status != http.StatusBadRequest && status != http.StatusUnprocessableEntity {
		return false
	}
	codes := errorCodes(body)
	return hasCodePrefix(codes, "ADDRESS") || hasCodePrefix(codes, "RECIPIENT") || hasCodePrefix(codes, "POSTALCODE")
}

func roundTenth(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(1).Float64()
	return f
}

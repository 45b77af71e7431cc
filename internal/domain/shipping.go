package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrCarrierUnavailable reports a network, authentication or protocol failure talking to a carrier.
	ErrCarrierUnavailable = errors.New("carrier: unavailable")
	// ErrInvalidAddress reports that a carrier rejected the destination address.
	ErrInvalidAddress = errors.New("carrier: invalid address")
)

// MetadataCarrierHint is the package metadata key holding the caller's carrier hint.
const MetadataCarrierHint = "carrier_hint"

// ShippingAddress is a postal address used as shipment origin or destination.
type ShippingAddress struct {
	Street        string
	Street2       string
	City          string
	State         string
	ZipCode       string
	Country       string
	IsResidential bool
}

// MissingFields lists the required address fields that are blank.
func (a ShippingAddress) MissingFields() []string {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("street", a.Street)
	check("city", a.City)
	check("state", a.State)
	check("zipCode", a.ZipCode)
	check("country", a.Country)
	return missing
}

// Package is one physical box in a shipment.
type Package struct {
	LengthIn  float64
	WidthIn   float64
	HeightIn  float64
	WeightLbs float64
	Metadata  map[string]string
}

// Rate is a priced carrier service option for a shipment.
type Rate struct {
	Carrier           string
	ServiceCode       string
	ServiceName       string
	CostCents         int64
	DeliveryDays      *int
	EstimatedDelivery *time.Time
}

// Package model defines the core data types shared across the ingestion
// pipeline: raw and canonical listings, classification and financial results,
// and the persisted property record.
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// RawListing is a provider record exactly as returned by the scraping
// provider. Field names vary between the provider's search and detail
// endpoints, so every known alias is enumerated here and resolved by
// transform.Normalize. RawListing is ephemeral and never persisted.
type RawListing struct {
	// Identifiers.
	ZPID json.Number `json:"zpid,omitempty"`
	ID   json.Number `json:"id,omitempty"`

	// URLs.
	URL       string `json:"url,omitempty"`
	DetailURL string `json:"detailUrl,omitempty"`
	HdpURL    string `json:"hdpUrl,omitempty"`

	// Address: the detail endpoint nests it, the search endpoint flattens it.
	Address       json.RawMessage `json:"address,omitempty"`
	StreetAddress string          `json:"streetAddress,omitempty"`
	City          string          `json:"city,omitempty"`
	State         string          `json:"state,omitempty"`
	ZipCode       string          `json:"zipcode,omitempty"`
	Zip           string          `json:"zip,omitempty"`
	County        string          `json:"county,omitempty"`

	// Pricing aliases.
	Price         json.Number `json:"price,omitempty"`
	ListPrice     json.Number `json:"listPrice,omitempty"`
	Zestimate     float64     `json:"zestimate,omitempty"`
	HomeValue     float64     `json:"homeValue,omitempty"`
	Estimate      float64     `json:"estimate,omitempty"`
	RentZestimate float64     `json:"rentZestimate,omitempty"`
	RentEstimate  float64     `json:"rentEstimate,omitempty"`

	// Recurring costs.
	MonthlyHOAFee   float64         `json:"monthlyHoaFee,omitempty"`
	HOAFee          float64         `json:"hoaFee,omitempty"`
	HOA             float64         `json:"hoa,omitempty"`
	AnnualTaxAmount float64         `json:"annualTaxAmount,omitempty"`
	TaxHistory      []TaxHistoryRow `json:"taxHistory,omitempty"`

	// Size and rooms.
	Bedrooms        float64 `json:"bedrooms,omitempty"`
	Beds            float64 `json:"beds,omitempty"`
	Bathrooms       float64 `json:"bathrooms,omitempty"`
	Baths           float64 `json:"baths,omitempty"`
	LivingArea      float64 `json:"livingArea,omitempty"`
	LivingAreaValue float64 `json:"livingAreaValue,omitempty"`
	SquareFoot      float64 `json:"squareFoot,omitempty"`
	LotSize         float64 `json:"lotSize,omitempty"`
	LotAreaValue    float64 `json:"lotAreaValue,omitempty"`
	YearBuilt       int     `json:"yearBuilt,omitempty"`

	// Type and status.
	HomeType     string `json:"homeType,omitempty"`
	PropertyType string `json:"propertyType,omitempty"`
	HomeStatus   string `json:"homeStatus,omitempty"`

	// Location.
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`

	Description string `json:"description,omitempty"`

	// Contact: detail endpoint nests attribution, search flattens.
	AttributionInfo  *AttributionInfo `json:"attributionInfo,omitempty"`
	AgentName        string           `json:"agentName,omitempty"`
	AgentPhone       string           `json:"agentPhone,omitempty"`
	AgentPhoneNumber string           `json:"agentPhoneNumber,omitempty"`
	AgentEmail       string           `json:"agentEmail,omitempty"`
	BrokerName       string           `json:"brokerName,omitempty"`
	BrokerageName    string           `json:"brokerageName,omitempty"`
	BrokerPhone      string           `json:"brokerPhone,omitempty"`
	BrokerPhoneNumber string          `json:"brokerPhoneNumber,omitempty"`

	// Media aliases.
	ImgSrc                 string          `json:"imgSrc,omitempty"`
	HiResImageLink         string          `json:"hiResImageLink,omitempty"`
	DesktopWebHdpImageLink string          `json:"desktopWebHdpImageLink,omitempty"`
	Photos                 json.RawMessage `json:"photos,omitempty"`
	ResponsivePhotos       []ResponsivePhoto `json:"responsivePhotos,omitempty"`
	Images                 []string        `json:"images,omitempty"`
	PhotoCount             int             `json:"photoCount,omitempty"`

	DaysOnMarket int `json:"daysOnZillow,omitempty"`
}

// RawAddress is the nested address object returned by the detail endpoint.
type RawAddress struct {
	StreetAddress string `json:"streetAddress,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	ZipCode       string `json:"zipcode,omitempty"`
	Zip           string `json:"zip,omitempty"`
}

// TaxHistoryRow is one entry of the provider's tax history array.
type TaxHistoryRow struct {
	Time    int64   `json:"time,omitempty"`
	TaxPaid float64 `json:"taxPaid,omitempty"`
}

// AttributionInfo is the nested listing-contact block from the detail endpoint.
type AttributionInfo struct {
	AgentName         string `json:"agentName,omitempty"`
	AgentPhoneNumber  string `json:"agentPhoneNumber,omitempty"`
	AgentEmail        string `json:"agentEmail,omitempty"`
	BrokerName        string `json:"brokerName,omitempty"`
	BrokerPhoneNumber string `json:"brokerPhoneNumber,omitempty"`
	MlsID             string `json:"mlsId,omitempty"`
}

// ResponsivePhoto is one entry of the detail endpoint's photo array.
type ResponsivePhoto struct {
	URL string `json:"url,omitempty"`
}

// Listing is the canonical, normalized shape of a provider record. It is
// produced by transform.Normalize and immutable for the remainder of a run.
type Listing struct {
	NativeID string `json:"native_id" validate:"required"`

	URL string `json:"url"`

	FullAddress   string `json:"full_address" validate:"required"`
	StreetAddress string `json:"street_address"`
	City          string `json:"city" validate:"required"`
	State         string `json:"state" validate:"required,len=2"`
	ZipCode       string `json:"zip_code"`
	County        string `json:"county"`

	Price        float64 `json:"price"`
	Estimate     float64 `json:"estimate"`
	RentEstimate float64 `json:"rent_estimate"`
	MonthlyHOA   float64 `json:"monthly_hoa"`
	AnnualTax    float64 `json:"annual_tax"`

	Bedrooms   float64 `json:"bedrooms"`
	Bathrooms  float64 `json:"bathrooms"`
	SquareFeet float64 `json:"square_feet"`
	LotSize    float64 `json:"lot_size"`
	YearBuilt  int     `json:"year_built"`
	HomeType   string  `json:"home_type"`
	HomeStatus string  `json:"home_status"`

	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	Description string `json:"description"`

	AgentName  string `json:"agent_name"`
	AgentPhone string `json:"agent_phone"`
	AgentEmail string `json:"agent_email"`
	BrokerName string `json:"broker_name"`

	Images     []string `json:"images"`
	FirstImage string   `json:"first_image"`
	PhotoCount int      `json:"photo_count"`

	DaysOnMarket int `json:"days_on_market"`
}

// HasCoordinates reports whether the listing carries a usable lat/lng pair.
func (l *Listing) HasCoordinates() bool {
	return l.Latitude != 0 || l.Longitude != 0
}

// PropertyID derives the persisted-store document key from a provider-native
// identifier. The mapping is a pure function: the same native ID always
// yields the same key, which is what the duplicate filter relies on.
func PropertyID(nativeID string) string {
	return fmt.Sprintf("prop_%s", nativeID)
}

// Property is the record written to the primary store: the canonical listing
// plus classification, optional financial metrics, and run bookkeeping.
type Property struct {
	ID      string  `json:"id"`
	Listing Listing `json:"listing"`

	Classification Classification `json:"classification"`
	Metrics        *Metrics       `json:"metrics,omitempty"`

	NearbyCities []string `json:"nearby_cities"`

	Active         bool      `json:"active"`
	Regional       bool      `json:"regional"`
	RelaySent      bool      `json:"relay_sent"`
	AgentConfirmed bool      `json:"agent_confirmed"`
	NoResultStreak int       `json:"no_result_streak"`
	InactiveReason string    `json:"inactive_reason,omitempty"`
	FirstSeenAt    time.Time `json:"first_seen_at"`
	LastRefreshed  time.Time `json:"last_refreshed_at"`
}

// CityCoordinate is one entry of the static geo index. It is lookup-only and
// never mutated by the pipeline.
type CityCoordinate struct {
	Name  string  `json:"name"`
	State string  `json:"state"`
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
}

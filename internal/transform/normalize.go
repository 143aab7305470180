// Package transform converts provider records into the canonical listing
// shape and validates them. The provider's search and detail endpoints name
// fields differently; Normalize resolves every known alias so the rest of the
// pipeline only ever sees the canonical form.
package transform

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ownerfi/dealflow/internal/model"
)

const providerBaseURL = "https://www.zillow.com"

// Normalize resolves a raw provider record into a canonical Listing. It never
// fails: missing fields zero out and are caught by Validate afterwards.
func Normalize(raw *model.RawListing) model.Listing {
	l := model.Listing{
		NativeID: firstNonEmpty(raw.ZPID.String(), raw.ID.String()),
	}
	if l.NativeID == "0" {
		l.NativeID = ""
	}

	addr, addrString := decodeAddress(raw.Address)
	l.City = firstNonEmpty(addr.City, raw.City)
	l.State = strings.ToUpper(strings.TrimSpace(firstNonEmpty(addr.State, raw.State)))
	l.ZipCode = firstNonEmpty(addr.ZipCode, addr.Zip, raw.ZipCode, raw.Zip)
	l.County = raw.County

	street := firstNonEmpty(addr.StreetAddress, raw.StreetAddress, addrString)
	l.StreetAddress = streetPart(street)

	if l.StreetAddress != "" && l.City != "" && l.State != "" {
		l.FullAddress = strings.TrimSpace(fmt.Sprintf("%s, %s, %s %s", l.StreetAddress, l.City, l.State, l.ZipCode))
	} else {
		l.FullAddress = addrString
	}

	l.URL = resolveURL(raw)

	l.Price = number(raw.Price, raw.ListPrice)
	l.Estimate = first(raw.Zestimate, raw.HomeValue, raw.Estimate)
	l.RentEstimate = first(raw.RentZestimate, raw.RentEstimate)
	l.MonthlyHOA = first(raw.MonthlyHOAFee, raw.HOAFee, raw.HOA)
	l.AnnualTax = annualTax(raw)

	l.Bedrooms = first(raw.Bedrooms, raw.Beds)
	l.Bathrooms = first(raw.Bathrooms, raw.Baths)
	l.SquareFeet = first(raw.LivingArea, raw.LivingAreaValue, raw.SquareFoot)
	l.LotSize = first(raw.LotSize, raw.LotAreaValue)
	l.YearBuilt = raw.YearBuilt
	l.HomeType = firstNonEmpty(raw.HomeType, raw.PropertyType)
	l.HomeStatus = strings.ToUpper(strings.TrimSpace(raw.HomeStatus))

	l.Latitude = raw.Latitude
	l.Longitude = raw.Longitude

	l.Description = SanitizeDescription(raw.Description)

	resolveContact(raw, &l)
	resolveImages(raw, &l)

	l.DaysOnMarket = raw.DaysOnMarket

	return l
}

// decodeAddress handles the two shapes the provider uses for the address
// field: a nested object on detail records, a plain string on search records.
func decodeAddress(raw json.RawMessage) (model.RawAddress, string) {
	if len(raw) == 0 {
		return model.RawAddress{}, ""
	}
	var obj model.RawAddress
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj, ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return model.RawAddress{}, strings.TrimSpace(s)
	}
	return model.RawAddress{}, ""
}

// streetPart cuts a full "street, city, state" string down to its street
// component. Already-bare street addresses pass through untouched.
func streetPart(addr string) string {
	street, _, _ := strings.Cut(addr, ",")
	return strings.TrimSpace(street)
}

func resolveURL(raw *model.RawListing) string {
	u := firstNonEmpty(raw.URL, raw.DetailURL)
	if strings.HasPrefix(u, "http") {
		return u
	}
	if raw.HdpURL != "" {
		return providerBaseURL + raw.HdpURL
	}
	if zpid := raw.ZPID.String(); zpid != "" && zpid != "0" {
		return fmt.Sprintf("%s/homedetails/%s_zpid/", providerBaseURL, zpid)
	}
	return u
}

// annualTax prefers the explicit amount, falling back to the most recent tax
// history row that actually recorded a payment.
func annualTax(raw *model.RawListing) float64 {
	if raw.AnnualTaxAmount > 0 {
		return raw.AnnualTaxAmount
	}
	for _, row := range raw.TaxHistory {
		if row.TaxPaid > 0 {
			return row.TaxPaid
		}
	}
	return 0
}

func resolveContact(raw *model.RawListing, l *model.Listing) {
	var attr model.AttributionInfo
	if raw.AttributionInfo != nil {
		attr = *raw.AttributionInfo
	}
	l.AgentName = firstNonEmpty(attr.AgentName, raw.AgentName)
	l.AgentEmail = firstNonEmpty(attr.AgentEmail, raw.AgentEmail)
	l.BrokerName = firstNonEmpty(attr.BrokerName, raw.BrokerName, raw.BrokerageName)

	agentPhone := firstNonEmpty(attr.AgentPhoneNumber, raw.AgentPhoneNumber, raw.AgentPhone)
	brokerPhone := firstNonEmpty(attr.BrokerPhoneNumber, raw.BrokerPhoneNumber, raw.BrokerPhone)
	l.AgentPhone = firstNonEmpty(agentPhone, brokerPhone)
}

func resolveImages(raw *model.RawListing, l *model.Listing) {
	var images []string
	for _, p := range raw.ResponsivePhotos {
		if p.URL != "" {
			images = append(images, p.URL)
		}
	}
	if len(images) == 0 {
		images = decodePhotos(raw.Photos)
	}
	if len(images) == 0 {
		images = raw.Images
	}

	first := firstNonEmpty(raw.DesktopWebHdpImageLink, raw.HiResImageLink, raw.ImgSrc)
	if first == "" && len(images) > 0 {
		first = images[0]
	}
	if len(images) == 0 && first != "" {
		images = []string{first}
	}

	l.Images = images
	l.FirstImage = first
	l.PhotoCount = raw.PhotoCount
	if l.PhotoCount == 0 {
		l.PhotoCount = len(images)
	}
}

// decodePhotos accepts either an array of URL strings or an array of objects
// carrying url/href keys.
func decodePhotos(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var strs []string
	if err := json.Unmarshal(raw, &strs); err == nil {
		return strs
	}
	var objs []struct {
		URL  string `json:"url"`
		Href string `json:"href"`
	}
	if err := json.Unmarshal(raw, &objs); err == nil {
		var out []string
		for _, o := range objs {
			if u := firstNonEmpty(o.URL, o.Href); u != "" {
				out = append(out, u)
			}
		}
		return out
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func first(vals ...float64) float64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func number(vals ...json.Number) float64 {
	for _, v := range vals {
		if f, err := v.Float64(); err == nil && f != 0 {
			return f
		}
	}
	return 0
}

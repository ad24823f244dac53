// Package shipping maps governorate codes to shipping regions and their
// fees and delivery estimates. The table is static configuration: pricing is
// re-derived from it wherever it is displayed or sent, so the review step,
// the order summary, and the submitted payload can never disagree.
package shipping

import (
	"fmt"
	"sort"

	"github.com/soukly/storefront-checkout/internal/domain"
)

// Region codes. Several governorates share one pricing region.
const (
	RegionGreaterCairo = "greater_cairo"
	RegionAlexandria   = "alexandria"
	RegionDelta        = "delta"
	RegionCanal        = "canal"
	RegionUpperEgypt   = "upper_egypt"
	RegionSinai        = "sinai"
	RegionRemote       = "remote"
)

// rate holds the shipping fee (EGP) and delivery estimate for one region.
type rate struct {
	fee      int64
	estimate string
}

var regionRates = map[string]rate{
	RegionGreaterCairo: {fee: 50, estimate: "1-2 business days"},
	RegionAlexandria:   {fee: 60, estimate: "2-3 business days"},
	RegionDelta:        {fee: 65, estimate: "2-4 business days"},
	RegionCanal:        {fee: 70, estimate: "3-4 business days"},
	RegionUpperEgypt:   {fee: 85, estimate: "4-6 business days"},
	RegionSinai:        {fee: 100, estimate: "5-7 business days"},
	RegionRemote:       {fee: 100, estimate: "5-7 business days"},
}

// governorateRegions is the closed set of governorate codes. Any code outside
// this table is a programming error, since the UI only offers codes from the
// fixed list.
var governorateRegions = map[string]string{
	"cairo":         RegionGreaterCairo,
	"giza":          RegionGreaterCairo,
	"qalyubia":      RegionGreaterCairo,
	"alexandria":    RegionAlexandria,
	"beheira":       RegionDelta,
	"dakahlia":      RegionDelta,
	"sharqia":       RegionDelta,
	"gharbia":       RegionDelta,
	"monufia":       RegionDelta,
	"kafr_elsheikh": RegionDelta,
	"damietta":      RegionDelta,
	"port_said":     RegionCanal,
	"ismailia":      RegionCanal,
	"suez":          RegionCanal,
	"north_sinai":   RegionSinai,
	"south_sinai":   RegionSinai,
	"faiyum":        RegionUpperEgypt,
	"beni_suef":     RegionUpperEgypt,
	"minya":         RegionUpperEgypt,
	"asyut":         RegionUpperEgypt,
	"sohag":         RegionUpperEgypt,
	"qena":          RegionUpperEgypt,
	"luxor":         RegionUpperEgypt,
	"aswan":         RegionUpperEgypt,
	"red_sea":       RegionRemote,
	"new_valley":    RegionRemote,
	"matruh":        RegionRemote,
}

// UnknownGovernorateError is returned for a code outside the fixed table.
type UnknownGovernorateError struct {
	Code string
}

func (e *UnknownGovernorateError) Error() string {
	return fmt.Sprintf("unknown governorate code %q", e.Code)
}

// RegionOf returns the shipping region for a governorate code.
func RegionOf(governorate string) (string, error) {
	region, ok := governorateRegions[governorate]
	if !ok {
		return "", &UnknownGovernorateError{Code: governorate}
	}
	return region, nil
}

// FeeFor returns the shipping fee (EGP) for a governorate code.
func FeeFor(governorate string) (int64, error) {
	region, err := RegionOf(governorate)
	if err != nil {
		return 0, err
	}
	return regionRates[region].fee, nil
}

// EstimateFor returns the delivery estimate text for a governorate code.
func EstimateFor(governorate string) (string, error) {
	region, err := RegionOf(governorate)
	if err != nil {
		return "", err
	}
	return regionRates[region].estimate, nil
}

// QuoteFor returns region, fee, and estimate in one lookup. Every render
// site and the submitted payload derive their shipping figures through this.
func QuoteFor(governorate string) (domain.ShippingQuote, error) {
	region, err := RegionOf(governorate)
	if err != nil {
		return domain.ShippingQuote{}, err
	}
	r := regionRates[region]
	return domain.ShippingQuote{
		Region:   region,
		Fee:      r.fee,
		Estimate: r.estimate,
	}, nil
}

// IsValid reports whether the code is in the fixed governorate table.
func IsValid(governorate string) bool {
	_, ok := governorateRegions[governorate]
	return ok
}

// Governorates returns the sorted list of valid governorate codes.
func Governorates() []string {
	codes := make([]string, 0, len(governorateRegions))
	for code := range governorateRegions {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

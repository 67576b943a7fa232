package network

import "github.com/kilianp07/fieldalloc/core/model"

type areaProfile struct {
	tier     model.DensityTier
	industry string
}

// areaTable maps postcode areas to a business density tier and the
// dominant industry. Areas missing from the table are treated as low
// density with mixed industry.
var areaTable = map[string]areaProfile{
	"EC": {model.DensityVeryHigh, "financial services"},
	"WC": {model.DensityVeryHigh, "professional services"},
	"W":  {model.DensityVeryHigh, "retail"},
	"SW": {model.DensityHigh, "retail"},
	"SE": {model.DensityHigh, "hospitality"},
	"E":  {model.DensityHigh, "hospitality"},
	"N":  {model.DensityHigh, "retail"},
	"NW": {model.DensityHigh, "healthcare"},
	"M":  {model.DensityHigh, "professional services"},
	"B":  {model.DensityHigh, "manufacturing"},
	"LS": {model.DensityHigh, "professional services"},
	"G":  {model.DensityHigh, "retail"},
	"L":  {model.DensityMedium, "hospitality"},
	"BS": {model.DensityMedium, "professional services"},
	"EH": {model.DensityMedium, "hospitality"},
	"NE": {model.DensityMedium, "manufacturing"},
	"S":  {model.DensityMedium, "manufacturing"},
	"NG": {model.DensityMedium, "retail"},
	"CF": {model.DensityMedium, "public sector"},
	"SO": {model.DensityMedium, "logistics"},
	"OX": {model.DensityMedium, "education"},
	"CB": {model.DensityMedium, "education"},
	"BN": {model.DensityMedium, "hospitality"},
	"LL": {model.DensityRural, "agriculture"},
	"LD": {model.DensityRural, "agriculture"},
	"TD": {model.DensityRural, "agriculture"},
	"DG": {model.DensityRural, "agriculture"},
	"PH": {model.DensityRural, "tourism"},
	"IV": {model.DensityRural, "tourism"},
	"KW": {model.DensityRural, "agriculture"},
	"HS": {model.DensityRural, "fishing"},
	"ZE": {model.DensityRural, "fishing"},
	"TR": {model.DensityRural, "tourism"},
}

// businessesPerDistrict estimates the number of businesses in one district
// of each tier.
var businessesPerDistrict = map[model.DensityTier]int{
	model.DensityVeryHigh: 5000,
	model.DensityHigh:     2500,
	model.DensityMedium:   1200,
	model.DensityLow:      600,
	model.DensityRural:    200,
}

var densityPoints = map[model.DensityTier]float64{
	model.DensityVeryHigh: 40,
	model.DensityHigh:     32,
	model.DensityMedium:   24,
	model.DensityLow:      16,
	model.DensityRural:    8,
}

func profileFor(area string) areaProfile {
	if p, ok := areaTable[area]; ok {
		return p
	}
	return areaProfile{tier: model.DensityLow, industry: "mixed"}
}

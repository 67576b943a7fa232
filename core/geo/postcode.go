package geo

import (
	"regexp"
	"strings"
	"unicode"
)

var postcodeRE = regexp.MustCompile(`^[A-Z]{1,2}[0-9][A-Z0-9]? [0-9][A-Z]{2}$`)

// Normalize upper-cases a UK postcode and collapses whitespace to a single
// space between outward and inward codes.
func Normalize(postcode string) string {
	p := strings.ToUpper(strings.Join(strings.Fields(postcode), ""))
	if len(p) > 3 {
		return p[:len(p)-3] + " " + p[len(p)-3:]
	}
	return p
}

// District returns the outward code, e.g. "M1" for "M1 4BT".
func District(postcode string) string {
	p := Normalize(postcode)
	if i := strings.IndexByte(p, ' '); i > 0 {
		return p[:i]
	}
	return p
}

// Area returns the leading letters of the postcode, e.g. "SW" for "SW1A 1AA".
func Area(postcode string) string {
	d := District(postcode)
	for i, r := range d {
		if !unicode.IsLetter(r) {
			return d[:i]
		}
	}
	return d
}

// Valid reports whether postcode has the shape of a full UK postcode once
// normalised. It does not check that the postcode exists.
func Valid(postcode string) bool {
	return postcodeRE.MatchString(Normalize(postcode))
}

package canon

import (
	"regexp"
	"strings"
)

var (
	rePunct       = regexp.MustCompile(`[^A-Za-z0-9\s]`)
	reUKPostcode  = regexp.MustCompile(`^([A-Z]{1,2}\d[A-Z\d]?)\s*(\d[A-Z]{2})?$`)
	reInlinePcode = regexp.MustCompile(`\b[A-Z]{1,2}\d[A-Z\d]?\s*\d[A-Z]{2}\b`)
)

// Canonicalize normalizes a UK address line and postcode and computes a
// stable property key. Two providers listing the same property rarely agree
// on punctuation, suffix spelling or postcode spacing; the key folds those
// differences away while keeping flat numbers, so distinct flats in one
// building stay distinct.
func Canonicalize(address, postcode string) (normAddress, normPostcode, propertyKey string) {
	a := strings.ToUpper(strings.TrimSpace(address))
	a = reInlinePcode.ReplaceAllString(a, "")
	a = rePunct.ReplaceAllString(a, " ")
	a = abbreviateSuffix(a)
	a = collapseSpaces(a)

	pc := Postcode(postcode)
	if pc == "" {
		pc = Postcode(reInlinePcode.FindString(strings.ToUpper(address)))
	}

	key := strings.ToLower(a + "|" + pc)
	return a, pc, key
}

// Postcode uppercases and re-spaces a UK postcode (outward + inward parts
// separated by one space). Anything that does not look like a postcode is
// returned trimmed and uppercased as-is.
func Postcode(pc string) string {
	p := strings.ToUpper(strings.Join(strings.Fields(pc), ""))
	if p == "" {
		return ""
	}
	m := reUKPostcode.FindStringSubmatch(p)
	if m == nil {
		return strings.ToUpper(strings.TrimSpace(pc))
	}
	if m[2] == "" {
		return m[1]
	}
	return m[1] + " " + m[2]
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var suffixAbbrev = map[string]string{
	"STREET":   "ST",
	"ROAD":     "RD",
	"AVENUE":   "AVE",
	"LANE":     "LN",
	"CLOSE":    "CL",
	"COURT":    "CT",
	"CRESCENT": "CRES",
	"GARDENS":  "GDNS",
	"GROVE":    "GR",
	"TERRACE":  "TER",
	"PLACE":    "PL",
	"DRIVE":    "DR",
	"SQUARE":   "SQ",
}

// abbreviateSuffix replaces whole tokens only, so names that merely contain
// a suffix ("Streeter") are left alone.
func abbreviateSuffix(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		if v, ok := suffixAbbrev[f]; ok {
			fields[i] = v
		}
	}
	return strings.Join(fields, " ")
}

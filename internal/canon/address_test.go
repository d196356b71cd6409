package canon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalizeFoldsProviderDifferences(t *testing.T) {
	_, _, k1 := Canonicalize("12, Mill Road, Cambridge", "CB1 2AD")
	_, _, k2 := Canonicalize("12 Mill Rd Cambridge", "cb12ad")
	assert.Equal(t, k1, k2)
}

func TestCanonicalizeKeepsFlatNumbers(t *testing.T) {
	_, _, k1 := Canonicalize("Flat 3, 12 Mill Road, Cambridge", "CB1 2AD")
	_, _, k2 := Canonicalize("Flat 4, 12 Mill Road, Cambridge", "CB1 2AD")
	assert.NotEqual(t, k1, k2)
}

func TestCanonicalizeLiftsInlinePostcode(t *testing.T) {
	_, pc, _ := Canonicalize("9 Kings Road, Brighton BN1 3XE", "")
	assert.Equal(t, "BN1 3XE", pc)
}

func TestPostcode(t *testing.T) {
	assert.Equal(t, "SW1A 1AA", Postcode("sw1a1aa"))
	assert.Equal(t, "NR2", Postcode(" nr2 "))
	assert.Equal(t, "", Postcode("  "))
	assert.Equal(t, "NOT A PC", Postcode("not a pc"))
}

func TestAbbreviateSuffixWholeTokensOnly(t *testing.T) {
	a1, _, _ := Canonicalize("2 Streeter Avenue, Millbrook", "")
	assert.Equal(t, "2 STREETER AVE MILLBROOK", a1)

	a2, _, k2 := Canonicalize("2 Streeter Ave, Millbrook", "")
	assert.Equal(t, a1, a2)
	_, _, k1 := Canonicalize("2 Streeter Avenue, Millbrook", "")
	assert.Equal(t, k1, k2)
}

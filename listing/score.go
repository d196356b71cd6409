package listing

// Score computes the bounded investment-desirability score for a normalized
// listing. Base 70, plus fixed bonuses; missing inputs simply don't earn
// their bonus. Always within [0,100].
//
// The price threshold applies to the listing's native currency unit with no
// conversion; a price of 0 means unknown and earns nothing.
func Score(l *Listing) int {
	score := 70
	if l.Bedrooms >= 3 {
		score += 5
	}
	if l.Bathrooms >= 2 {
		score += 5
	}
	if l.SquareFeet > 1000 {
		score += 5
	}
	if len(l.Features) > 5 {
		score += 5
	}
	if l.Price > 0 && l.Price < 200000 {
		score += 10
	}
	return clampScore(score)
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

package catalog

import (
	"strings"

	"github.com/SebastianMertens-sebmer/degiro-connector/internal/types"
)

// ClassifySubtype infers a leveraged product's subtype from its name. The
// catalog exposes no structured subtype field, so this is a pure name
// heuristic: "BNP CALL STR 150" style warrants, "SG MINI LONG" knockouts,
// "UNLIMITED SHORT" factor certificates. Anything else is unknown.
func ClassifySubtype(name string) types.ProductSubtype {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "mini long") || strings.Contains(lower, "mini short"):
		return types.SubtypeMini
	case strings.Contains(lower, "unlimited long") || strings.Contains(lower, "unlimited short"):
		return types.SubtypeUnlimited
	case (strings.Contains(lower, "call str") || strings.Contains(lower, "put str")) &&
		!strings.Contains(lower, "mini") && !strings.Contains(lower, "unlimited"):
		return types.SubtypeCallPut
	default:
		return types.SubtypeUnknown
	}
}

// MatchesSubtype applies a subtype filter. The ALL filter passes every
// product, unknown classifications included.
func MatchesSubtype(name string, filter types.ProductSubtype) bool {
	if filter == "" || filter == types.SubtypeAll {
		return true
	}
	return ClassifySubtype(name) == filter
}

// ExtractIssuer pulls the issuing bank out of a product name.
func ExtractIssuer(name string) string {
	upper := strings.ToUpper(name)
	switch {
	case strings.HasPrefix(upper, "BNP"):
		return "BNP"
	case strings.HasPrefix(upper, "SG"), strings.Contains(upper, "SOCIETE GENERALE"):
		return "SG"
	default:
		return "Unknown"
	}
}

package progress

import (
	"strings"
	"unicode/utf8"

	"github.com/smallbiznis/campaignbridge/internal/campaign/domain"
)

const UnknownLocation = "UNKNOWN"

// NormalizeLocation renders the backer's location as "City, Province", then
// city alone, province alone, country, falling back to UNKNOWN. The shipping
// address wins; billing is consulted only when shipping yields nothing.
func NormalizeLocation(shipping, billing *domain.Address) string {
	if loc := addressLocation(shipping); loc != "" {
		return loc
	}
	if loc := addressLocation(billing); loc != "" {
		return loc
	}
	return UnknownLocation
}

func addressLocation(addr *domain.Address) string {
	if addr == nil {
		return ""
	}
	city := strings.TrimSpace(addr.City)
	province := firstNonEmpty(addr.Province, addr.ProvinceCode)
	switch {
	case city != "" && province != "":
		return city + ", " + province
	case city != "":
		return city
	case province != "":
		return province
	default:
		return firstNonEmpty(addr.Country, addr.CountryCode)
	}
}

// MaskEmail keeps the first character of the local part and the domain.
func MaskEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	_, size := utf8.DecodeRuneInString(email)
	return email[:size] + "***" + email[at:]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

package invoice

import (
	"strconv"
	"strings"
)

// FormatMoney renders minor units as "<prefix> 1,250.00".
func FormatMoney(prefix string, cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	whole := strconv.FormatInt(cents/100, 10)
	frac := cents % 100

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	out := sign + b.String() + "." + strconv.FormatInt(frac/10, 10) + strconv.FormatInt(frac%10, 10)
	if prefix == "" {
		return out
	}
	return prefix + " " + out
}

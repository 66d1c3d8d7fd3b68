package transfers

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DAIDecimals is the number of decimals of the DAI token.
const DAIDecimals = 18

// ToDecimal scales a raw on-chain integer amount by the token decimals.
func ToDecimal(raw *big.Int, decimals int32) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -decimals)
}

// FormatUnits renders a raw amount the way ethers' formatUnits does:
// trailing zeros are trimmed but at least one fractional digit is kept,
// so 1e18 wei of DAI renders as "1.0".
func FormatUnits(raw *big.Int, decimals int32) string {
	return FormatValue(ToDecimal(raw, decimals))
}

// FormatValue renders an already scaled amount in the FormatUnits style.
func FormatValue(v decimal.Decimal) string {
	s := v.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// FormatTimestamp renders t as "October 16th 2026, 3:04:05 pm" in UTC.
func FormatTimestamp(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s %d%s %d, %s",
		t.Format("January"),
		t.Day(),
		ordinalSuffix(t.Day()),
		t.Year(),
		t.Format("3:04:05 pm"),
	)
}

func ordinalSuffix(day int) string {
	if day%100 >= 11 && day%100 <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}

package normalize

import (
	"math"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Display strings use a fixed English locale regardless of where the server runs.
var printer = message.NewPrinter(language.AmericanEnglish)

// FormatCount renders 1200 as "1,200", dropping a zero fraction.
func FormatCount(v float64) string {
	if v == math.Trunc(v) {
		return printer.Sprintf("%d", int64(v))
	}
	return printer.Sprintf("%.2f", v)
}

// FormatUnits renders a quantity as "1,200 units".
func FormatUnits(v float64) string {
	return FormatCount(v) + " units"
}

// FormatDollars renders a base price the short way: "$45", "$1,250.50".
func FormatDollars(v float64) string {
	if v < 0 {
		return "-$" + FormatCount(-v)
	}
	return "$" + FormatCount(v)
}

// FormatUSD renders a currency amount with two decimals: "$1,234.50".
func FormatUSD(v float64) string {
	if v < 0 {
		return printer.Sprintf("-$%.2f", -v)
	}
	return printer.Sprintf("$%.2f", v)
}

// FormatCompact abbreviates thousands for stock levels: 1500 becomes "2k", 999 stays "999".
func FormatCompact(v float64) string {
	if v >= 1000 {
		return strconv.FormatFloat(math.Round(v/1000), 'f', -1, 64) + "k"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatPercent renders 72.5 as "72.5%" and 80 as "80%".
func FormatPercent(v float64) string {
	return strconv.FormatFloat(math.Round(v*10)/10, 'f', -1, 64) + "%"
}

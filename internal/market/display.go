package market

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/creaturebot/market-engine/internal/model"
)

var (
	hundred = decimal.NewFromInt(100)
	printer = message.NewPrinter(language.English)
)

// FormatIV renders a creature's IV percentage with two decimals, e.g. "93.55%".
func FormatIV(c model.Creature) string {
	return c.IVPercentage().Mul(hundred).StringFixed(2) + "%"
}

// FormatCoins renders an amount with grouped digits, e.g. "12,500".
func FormatCoins(n int64) string {
	return printer.Sprintf("%d", n)
}

// DisplayLine is the one-line browse summary of a listing.
func DisplayLine(speciesName string, l model.Listing) string {
	shiny := ""
	if l.Creature.Shiny {
		shiny = " ✨"
	}
	return fmt.Sprintf("L%d %s%s • %s • %s pc",
		l.Creature.Level, speciesName, shiny, FormatIV(l.Creature), FormatCoins(l.Price))
}

// Footer is the browse page footer, e.g. "Showing 21–40 out of 45.".
func Footer(start, end, total int) string {
	return printer.Sprintf("Showing %d–%d out of %d.", start+1, end, total)
}

package pipeline

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// commas renders n with thousands separators.
func commas(n int64) string {
	return printer.Sprintf("%d", n)
}

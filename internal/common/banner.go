package common

import (
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner
func PrintBanner(version string) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorCyan).
		SetTextColor(banner.ColorWhite).
		SetBold(true)

	b.PrintTopLine()
	b.PrintCenteredText("PORTICO")
	b.PrintCenteredText("Retiros de estudiantes")
	b.PrintSeparatorLine()
	b.PrintKeyValue("Version", version, 10)
	b.PrintBottomLine()
}

package styles

// HighContrastTheme favors legibility on low-quality terminals.
var HighContrastTheme = Theme{
	Name: "high-contrast",
	Base: BaseColors{
		Background: "16",
		Foreground: "231",
		Muted:      "250",
		Accent:     "51",
		Border:     "231",
	},
	Message: MessageColors{
		Own:     "87",
		Other:   "225",
		Pending: "226",
		Read:    "46",
	},
	Chrome: ChromeColors{
		Header:     "117",
		Footer:     "159",
		Notice:     "196",
		DayDivider: "195",
	},
}

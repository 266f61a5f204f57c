package kobo

import "strings"

// deviceModels maps device-code prefixes from the .kobo/version file to
// marketing names, per Kobo's supported-models list.
var deviceModels = map[string]string{
	// Current/recent models (2023-2024)
	"N428": "Kobo Libra Colour",
	"N367": "Kobo Clara Colour",
	"N365": "Kobo Clara BW",
	"N605": "Kobo Elipsa 2E",
	"N506": "Kobo Clara 2E",
	"N778": "Kobo Sage",
	"N418": "Kobo Libra 2",

	// 2021-2022
	"N604": "Kobo Elipsa",
	"N306": "Kobo Nia",
	"N873": "Kobo Libra H2O",
	"N782": "Kobo Forma",

	// 2019-2020
	"N249": "Kobo Clara HD",
	"N867": "Kobo Aura H2O Edition 2",
	"N709": "Kobo Aura ONE",
	"N236": "Kobo Aura Edition 2",
	"N587": "Kobo Touch 2.0",
	"N437": "Kobo Glo HD",

	// Legacy (2015-2018)
	"N250":  "Kobo Aura H2O",
	"N514":  "Kobo Aura",
	"N204B": "Kobo Aura HD",
	"N204":  "Kobo Aura HD",
	"N613":  "Kobo Glo",
	"N905B": "Kobo Touch",
	"N905C": "Kobo Touch",
	"N905":  "Kobo Touch",
}

// GenericModelName is the fallback label for devices whose code is not in
// the table; unknown models are handled gracefully, never fatally.
const GenericModelName = "Kobo eReader"

// modelForDeviceCode resolves a serial like "N418190060008" to a model name
// by exact match, then by prefix. Longer prefixes win (N905B before N905).
func modelForDeviceCode(code string) (string, bool) {
	if name, ok := deviceModels[code]; ok {
		return name, true
	}
	best := ""
	for prefix, name := range deviceModels {
		if strings.HasPrefix(code, prefix) && len(prefix) > len(best) {
			best = prefix
			_ = name
		}
	}
	if best != "" {
		return deviceModels[best], true
	}
	return GenericModelName, false
}

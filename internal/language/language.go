package language

import (
	"strings"

	xlanguage "golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// bibliographic maps ISO 639-2/B codes to their terminology forms.
var bibliographic = map[string]string{
	"alb": "sqi",
	"arm": "hye",
	"baq": "eus",
	"chi": "zho",
	"cze": "ces",
	"dut": "nld",
	"fre": "fra",
	"geo": "kat",
	"ger": "deu",
	"gre": "ell",
	"ice": "isl",
	"mac": "mkd",
	"may": "msa",
	"per": "fas",
	"rum": "ron",
	"slo": "slk",
	"wel": "cym",
}

// namedCodes are the languages whose English names are accepted as input.
var namedCodes = []string{
	"ar", "ca", "cs", "cy", "da", "de", "el", "en", "es", "et", "fa", "fi",
	"fr", "he", "hi", "hr", "hu", "id", "is", "it", "ja", "ko", "lt", "lv",
	"ms", "nl", "no", "pl", "pt", "ro", "ru", "sk", "sl", "sr", "sv", "ta",
	"th", "tr", "uk", "ur", "vi", "zh",
}

var byName = func() map[string]xlanguage.Base {
	names := display.English.Languages()
	out := make(map[string]xlanguage.Base, len(namedCodes))
	for _, code := range namedCodes {
		base := xlanguage.MustParseBase(code)
		if name := strings.ToLower(names.Name(base)); name != "" {
			out[name] = base
		}
	}
	return out
}()

func lookup(code string) (xlanguage.Base, bool) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return xlanguage.Base{}, false
	}
	if base, ok := byName[code]; ok {
		return base, true
	}
	if alias, ok := bibliographic[code]; ok {
		code = alias
	}
	tag, err := xlanguage.Parse(code)
	if err != nil {
		return xlanguage.Base{}, false
	}
	base, confidence := tag.Base()
	if confidence == xlanguage.No || base.String() == "und" {
		return xlanguage.Base{}, false
	}
	return base, true
}

// ToISO2 converts a recognized code, tag or English name to ISO 639-1.
// Unknown two-letter input passes through; anything else unknown yields "".
func ToISO2(code string) string {
	trimmed := strings.ToLower(strings.TrimSpace(code))
	if trimmed == "" {
		return ""
	}
	if base, ok := lookup(trimmed); ok {
		if iso2 := base.String(); len(iso2) == 2 {
			return iso2
		}
		return ""
	}
	if len(trimmed) == 2 {
		return trimmed
	}
	return ""
}

// Known reports whether code names a language the package recognizes.
func Known(code string) bool {
	_, ok := lookup(code)
	return ok
}

// DisplayName returns the English name of a language. Empty input yields
// "Unknown" and unrecognized input is returned upper-cased.
func DisplayName(code string) string {
	if strings.TrimSpace(code) == "" {
		return "Unknown"
	}
	if base, ok := lookup(code); ok {
		if name := display.English.Languages().Name(base); name != "" {
			return name
		}
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

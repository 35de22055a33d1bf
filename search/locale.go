package search

import (
	"strings"

	"golang.org/x/text/language"
)

// Locale is the resolved language and region of a request.
type Locale struct {
	Language string
	Region   string
}

// ResolveLocale picks the language from the request, then the detected
// language, then the default. The region comes from the request, then the
// language tag, then the default.
func ResolveLocale(reqLanguage, reqRegion, detected, defLanguage, defRegion string) Locale {
	var tag language.Tag
	found := false
	for _, candidate := range []string{reqLanguage, detected, defLanguage} {
		if candidate == "" {
			continue
		}
		t, err := language.Parse(candidate)
		if err != nil {
			continue
		}
		tag, found = t, true
		break
	}
	if !found {
		tag = language.English
	}

	base, _ := tag.Base()
	loc := Locale{Language: base.String()}

	if r, err := language.ParseRegion(strings.TrimSpace(reqRegion)); err == nil && reqRegion != "" {
		loc.Region = r.String()
		return loc
	}
	if r, conf := tag.Region(); conf == language.Exact || conf == language.High {
		loc.Region = r.String()
		return loc
	}
	if r, err := language.ParseRegion(defRegion); err == nil {
		loc.Region = r.String()
		return loc
	}
	if r, conf := tag.Region(); conf != language.No {
		loc.Region = r.String()
	}
	return loc
}

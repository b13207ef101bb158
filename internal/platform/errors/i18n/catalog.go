// Package i18n provides internationalization support for error messages.
package i18n

import (
	"bytes"
	"strings"
	"text/template"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Code is a machine-readable error code (duplicated from errors package to avoid cycle).
type Code = string

var (
	// BaseTag is the source locale every message is written in first.
	BaseTag = language.AmericanEnglish

	supported = []language.Tag{language.AmericanEnglish, language.Spanish}
	matcher   = language.NewMatcher(supported)
	messages  = mustBuildCatalog()
)

func mustBuildCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(BaseTag))
	for tag, set := range map[language.Tag]map[Code]string{
		language.AmericanEnglish: enUS,
		language.Spanish:         es,
	} {
		for code, msg := range set {
			if err := b.SetString(tag, code, msg); err != nil {
				panic(err)
			}
		}
	}
	return b
}

// SupportedTags returns the locales with a message catalog.
func SupportedTags() []language.Tag {
	return append([]language.Tag(nil), supported...)
}

// MatchAcceptLanguage resolves an Accept-Language header to a supported tag.
func MatchAcceptLanguage(header string) language.Tag {
	header = strings.TrimSpace(header)
	if header == "" {
		return BaseTag
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return BaseTag
	}
	_, idx, _ := matcher.Match(tags...)
	return supported[idx]
}

// Format renders the message for code in the given locale.
// Falls back to the error code itself if no template is found.
func Format(tag language.Tag, code Code, metadata map[string]string) string {
	p := message.NewPrinter(tag, message.Catalog(messages))
	tmpl := p.Sprintf(code)
	if tmpl == code {
		return code
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	t, err := template.New("msg").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return tmpl
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, metadata); err != nil {
		return tmpl
	}
	return buf.String()
}

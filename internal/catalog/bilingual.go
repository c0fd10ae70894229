package catalog

import "strings"

// Lang is a service language. English is the default.
type Lang string

const (
	English Lang = "en"
	French  Lang = "fr"
)

// Languages lists every published language, default first.
var Languages = []Lang{English, French}

// ParseLang maps a LANG request value onto a language. f, fr and fra select
// French; anything else is English.
func ParseLang(s string) Lang {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "f", "fr", "fra":
		return French
	}
	return English
}

// Bilingual holds a value in both service languages.
type Bilingual[V any] struct {
	En V `yaml:"en"`
	Fr V `yaml:"fr"`
}

func Both[V any](en, fr V) Bilingual[V] { return Bilingual[V]{En: en, Fr: fr} }

// In returns the value for lang, falling back to English.
func (b Bilingual[V]) In(lang Lang) V {
	if lang == French {
		return b.Fr
	}
	return b.En
}

// Map applies fn to both languages.
func Map[V, W any](b Bilingual[V], fn func(Lang, V) W) Bilingual[W] {
	return Bilingual[W]{En: fn(English, b.En), Fr: fn(French, b.Fr)}
}

package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
)

//go:embed messages/*.json
var messagesFS embed.FS

// Supported locales
const (
	LocaleEnglish = "en"
	LocaleArabic  = "ar"
	DefaultLocale = LocaleEnglish
)

var supportedLocales = []string{LocaleEnglish, LocaleArabic}

type localeKey struct{}

var (
	catalogs     map[string]map[string]any
	catalogsOnce sync.Once
)

func loadCatalogs() {
	catalogsOnce.Do(func() {
		catalogs = make(map[string]map[string]any, len(supportedLocales))
		for _, locale := range supportedLocales {
			data, err := messagesFS.ReadFile("messages/" + locale + ".json")
			if err != nil {
				continue
			}
			var catalog map[string]any
			if err := json.Unmarshal(data, &catalog); err != nil {
				continue
			}
			catalogs[locale] = catalog
		}
	})
}

// IsSupported reports whether a catalog exists for the locale.
func IsSupported(locale string) bool {
	for _, l := range supportedLocales {
		if l == locale {
			return true
		}
	}
	return false
}

// Localizer translates message keys for a single locale.
type Localizer struct {
	locale string
}

// NewLocalizer creates a localizer, falling back to English for unknown locales.
func NewLocalizer(locale string) *Localizer {
	loadCatalogs()
	if !IsSupported(locale) {
		locale = DefaultLocale
	}
	return &Localizer{locale: locale}
}

// LocalizerFromContext creates a localizer from the locale stored in ctx.
func LocalizerFromContext(ctx context.Context) *Localizer {
	return NewLocalizer(LocaleFromContext(ctx))
}

// T translates a dot-notation key, substituting {name} placeholders from params.
// Unknown keys are returned unchanged.
func (l *Localizer) T(key string, params ...map[string]string) string {
	msg := lookup(catalogs[l.locale], key)
	if msg == "" && l.locale != DefaultLocale {
		msg = lookup(catalogs[DefaultLocale], key)
	}
	if msg == "" {
		return key
	}

	if len(params) > 0 {
		for k, v := range params[0] {
			msg = strings.ReplaceAll(msg, "{"+k+"}", v)
		}
	}
	return msg
}

// Locale returns the localizer's locale
func (l *Localizer) Locale() string {
	return l.locale
}

func lookup(catalog map[string]any, key string) string {
	if catalog == nil {
		return ""
	}
	parts := strings.Split(key, ".")
	node := catalog
	for _, part := range parts[:len(parts)-1] {
		next, ok := node[part].(map[string]any)
		if !ok {
			return ""
		}
		node = next
	}
	s, _ := node[parts[len(parts)-1]].(string)
	return s
}

// WithLocale adds locale to context
func WithLocale(ctx context.Context, locale string) context.Context {
	return context.WithValue(ctx, localeKey{}, locale)
}

// LocaleFromContext retrieves the locale from context, defaulting to English.
func LocaleFromContext(ctx context.Context) string {
	if locale, ok := ctx.Value(localeKey{}).(string); ok && locale != "" {
		return locale
	}
	return DefaultLocale
}

// ParseAcceptLanguage returns the supported locale with the highest q-value in an
// Accept-Language header. Region subtags are ignored ("ar-SA" matches "ar").
func ParseAcceptLanguage(header string) string {
	type candidate struct {
		locale string
		q      float64
		order  int
	}

	var candidates []candidate
	for i, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		tag, q := part, 1.0
		if idx := strings.Index(part, ";"); idx >= 0 {
			tag = strings.TrimSpace(part[:idx])
			param := strings.TrimSpace(part[idx+1:])
			if strings.HasPrefix(param, "q=") {
				if v, err := strconv.ParseFloat(strings.TrimPrefix(param, "q="), 64); err == nil {
					q = v
				}
			}
		}

		base := strings.ToLower(strings.SplitN(tag, "-", 2)[0])
		if IsSupported(base) && q > 0 {
			candidates = append(candidates, candidate{locale: base, q: q, order: i})
		}
	}

	if len(candidates) == 0 {
		return DefaultLocale
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].q != candidates[j].q {
			return candidates[i].q > candidates[j].q
		}
		return candidates[i].order < candidates[j].order
	})
	return candidates[0].locale
}

// T translates using the default locale
func T(key string, params ...map[string]string) string {
	return NewLocalizer(DefaultLocale).T(key, params...)
}

// TFromContext translates using locale from context
func TFromContext(ctx context.Context, key string, params ...map[string]string) string {
	return LocalizerFromContext(ctx).T(key, params...)
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}

var LocaleKey = localeContextKey{}

var (
	supportedLocales = []language.Tag{language.English, language.Chinese}
	localeMatcher    = language.NewMatcher(supportedLocales)
)

// I18N stores the caller's display locale ("en" or "zh") in the request
// context. X-Locale wins over Accept-Language; defaultLocale applies when
// neither is usable.
func I18N(defaultLocale string) func(http.Handler) http.Handler {
	fallback := normalizeLocale(defaultLocale)
	if fallback == "" {
		fallback = "en"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := detectLocale(r, fallback)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func detectLocale(r *http.Request, fallback string) string {
	if v := normalizeLocale(r.Header.Get("X-Locale")); v != "" {
		return v
	}
	if v := r.Header.Get("Accept-Language"); v != "" {
		tags, _, err := language.ParseAcceptLanguage(v)
		if err == nil && len(tags) > 0 {
			if _, idx, conf := localeMatcher.Match(tags...); conf != language.No {
				return baseOf(supportedLocales[idx])
			}
		}
	}
	return fallback
}

// normalizeLocale maps a single tag to a supported locale, or "" when none fits.
func normalizeLocale(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return ""
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	_, idx, conf := localeMatcher.Match(tag)
	if conf == language.No {
		return ""
	}
	return baseOf(supportedLocales[idx])
}

func baseOf(tag language.Tag) string {
	base, _ := tag.Base()
	return base.String()
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok {
		return v
	}
	return "en"
}

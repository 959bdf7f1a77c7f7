package i18n

import (
	"net/http"

	"github.com/nicksnyder/go-i18n/v2/i18n"
)

// Middleware injects a localizer into every request context. The configured
// language is the default; an Accept-Language header can narrow it.
func Middleware(lang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			loc := requestLocalizer(lang, r.Header.Get("Accept-Language"))
			ctx := WithLocalizer(r.Context(), loc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestLocalizer(lang, accept string) *i18n.Localizer {
	if accept != "" {
		return NewLocalizer(accept + "," + lang)
	}
	return NewLocalizer(lang)
}

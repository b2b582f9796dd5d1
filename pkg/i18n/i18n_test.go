package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAcceptLanguage(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"", LocaleEnglish},
		{"ar", LocaleArabic},
		{"ar-SA,ar;q=0.9,en;q=0.8", LocaleArabic},
		{"en-US,en;q=0.9,ar;q=0.8", LocaleEnglish},
		{"fr-FR,ar;q=0.5,en;q=0.7", LocaleEnglish},
		{"fr-FR,de;q=0.9", LocaleEnglish},
		{"en;q=0,ar;q=0.1", LocaleArabic},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseAcceptLanguage(tt.header))
		})
	}
}

func TestLocalizer_T(t *testing.T) {
	en := NewLocalizer(LocaleEnglish)
	assert.Equal(t, "material not found", en.T("errors.not_found", map[string]string{"resource": "material"}))
	assert.Equal(t, "errors.missing_key", en.T("errors.missing_key"))
	assert.Equal(t, "errors", en.T("errors"))

	ar := NewLocalizer(LocaleArabic)
	assert.Equal(t, "رمز غير صالح", ar.T("errors.token_invalid"))

	unknown := NewLocalizer("xx")
	assert.Equal(t, LocaleEnglish, unknown.Locale())
}

func TestContextLocale(t *testing.T) {
	assert.Equal(t, DefaultLocale, LocaleFromContext(context.Background()))

	ctx := WithLocale(context.Background(), LocaleArabic)
	assert.Equal(t, LocaleArabic, LocaleFromContext(ctx))
	assert.Equal(t, "طلب غير صالح", TFromContext(ctx, "errors.bad_request"))
}

func TestMiddleware(t *testing.T) {
	var got string
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = LocaleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "ar-EG")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, LocaleArabic, got)
	assert.Equal(t, LocaleArabic, rec.Header().Get("Content-Language"))
}

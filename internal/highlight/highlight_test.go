package highlight

import (
	"html/template"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeywordsAccentInsensitive(t *testing.T) {
	got := Keywords("Declaración del Ministro", "declaracion ministro")
	assert.Equal(t, template.HTML("<mark>Declaración</mark> del <mark>Ministro</mark>"), got)
}

func TestKeywordsQueryWithAccents(t *testing.T) {
	got := Keywords("La energia solar", "ENERGÍA")
	assert.Equal(t, template.HTML("La <mark>energia</mark> solar"), got)
}

func TestKeywordsEscapesHTML(t *testing.T) {
	got := Keywords("<b>alerta</b> & otros", "alerta")
	assert.Equal(t, template.HTML("&lt;b&gt;<mark>alerta</mark>&lt;/b&gt; &amp; otros"), got)
}

func TestKeywordsMergesOverlaps(t *testing.T) {
	got := Keywords("corrupción", "corrup rupcion")
	assert.Equal(t, template.HTML("<mark>corrupción</mark>"), got)
}

func TestKeywordsNoQuery(t *testing.T) {
	assert.Equal(t, template.HTML("a &lt; b"), Keywords("a < b", "   "))
	assert.Equal(t, template.HTML("sin coincidencias"), Keywords("sin coincidencias", "xyz"))
}

func TestInRange(t *testing.T) {
	cases := []struct {
		name                string
		value, desde, hasta string
		want                bool
	}{
		{"open bounds", "2024-05-10", "", "", true},
		{"inside", "2024-05-10", "2024-05-01", "2024-05-31", true},
		{"inclusive end with time", "2024-05-31T23:10:00Z", "2024-05-01", "2024-05-31", true},
		{"before", "2024-04-30", "2024-05-01", "", false},
		{"after", "2024-06-01", "", "2024-05-31", false},
		{"bad bound ignored", "2024-05-10", "ayer", "", true},
		{"bad value", "nunca", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, InRange(tc.value, tc.desde, tc.hasta))
		})
	}
}

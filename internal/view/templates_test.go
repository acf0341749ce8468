package view

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alertas/alertas-admin/internal/shared"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestEveryPageIsDefined(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	for _, name := range []string{
		"pages/login.html", "pages/home.html", "pages/proyectos.html", "pages/proyecto_form.html",
		"pages/medios.html", "pages/redes.html", "pages/historial.html", "pages/plantillas.html",
	} {
		assert.NotNil(t, engine.templates.Lookup(name), name)
	}
}

func TestRenderHomeWithFlash(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	err = engine.Render(rr, "pages/home.html", TemplateData{
		Title: "Inicio",
		User:  "Ana",
		Flash: &shared.FlashMessage{Kind: "success", Message: "Bienvenido, Ana"},
		Data:  map[string]any{"Counts": struct{ Proyectos, Medios, Redes int }{1, 2, 3}},
	})
	require.NoError(t, err)
	body := rr.Body.String()
	assert.Contains(t, body, `class="flash flash-success"`)
	assert.Contains(t, body, "/static/js/telemetry.js")
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
}

func TestTemplateFuncs(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)
	tpl, err := engine.templates.New("funcs").Parse(
		`{{highlight .Text .Q}}|{{if inRange .At "2024-03-01" "2024-03-31"}}in{{else}}out{{end}}|{{isoDate .At}}`)
	require.NoError(t, err)

	var out strings.Builder
	require.NoError(t, tpl.Execute(&out, map[string]any{
		"Text": "Canción <b>",
		"Q":    "cancion",
		"At":   time.Date(2024, 3, 31, 23, 0, 0, 0, time.UTC),
	}))
	assert.Equal(t, "<mark>Canción</mark> &lt;b&gt;|in|2024-03-31", out.String())
}

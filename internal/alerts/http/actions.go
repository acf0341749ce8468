package alertshttp

import (
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/alertas/alertas-admin/internal/alerts"
	"github.com/alertas/alertas-admin/internal/apiclient"
	"github.com/alertas/alertas-admin/internal/auth"
	"github.com/alertas/alertas-admin/internal/shared"
)

type proyectoFormPage struct {
	Form   alerts.ProyectoForm
	Errors map[string]string
}

func (h *Handler) proyectoForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "pages/proyecto_form.html", "Nuevo proyecto", proyectoFormPage{Errors: map[string]string{}}, http.StatusOK)
}

func (h *Handler) createProyecto(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	form := alerts.ProyectoForm{
		Nombre:      r.PostFormValue("nombre"),
		Descripcion: r.PostFormValue("descripcion"),
		Keywords:    r.PostFormValue("keywords"),
	}
	created, err := h.service.CreateProyecto(r.Context(), form)
	if err != nil {
		if fields, ok := alerts.AsValidation(err); ok {
			h.render(w, r, "pages/proyecto_form.html", "Nuevo proyecto", proyectoFormPage{Form: form, Errors: fields}, http.StatusBadRequest)
			return
		}
		if apiclient.IsValidation(err) {
			h.render(w, r, "pages/proyecto_form.html", "Nuevo proyecto", proyectoFormPage{
				Form:   form,
				Errors: map[string]string{"general": err.Error()},
			}, http.StatusBadRequest)
			return
		}
		h.apiFailure(w, r, "proyectos", "/proyectos/new", err)
		return
	}
	h.redirectWithFlash(w, r, "/proyectos", "success", "Proyecto «"+created.Nombre+"» creado")
}

func (h *Handler) deleteProyecto(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	back := backTarget(r, "/proyectos")
	if err := h.service.DeleteProyecto(r.Context(), chi.URLParam(r, "id")); err != nil {
		if apiclient.IsNotFound(err) {
			h.redirectWithFlash(w, r, back, "warning", "El proyecto ya no existe")
			return
		}
		h.apiFailure(w, r, "proyectos", back, err)
		return
	}
	h.redirectWithFlash(w, r, back, "success", "Proyecto eliminado")
}

// ingest accepts either an uploaded file, streamed to the backend, or an article URL,
// queued for the worker.
func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.redirectWithFlash(w, r, "/medios", "error", "El archivo supera el tamaño permitido")
		return
	}
	back := backTarget(r, "/medios")
	proyectoID := r.PostFormValue("proyecto_id")

	file, header, err := r.FormFile("archivo")
	switch {
	case err == nil:
		defer file.Close()
		name := filepath.Base(header.Filename)
		if err := h.service.UploadMedios(r.Context(), proyectoID, name, file); err != nil {
			if fields, ok := alerts.AsValidation(err); ok {
				h.redirectWithFlash(w, r, back, "error", firstMessage(fields))
				return
			}
			h.apiFailure(w, r, "medios", back, err)
			return
		}
		h.redirectWithFlash(w, r, back, "success", "Archivo «"+name+"» enviado para procesar")
		return
	case !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart):
		h.logger.Warn("read ingest upload", slog.Any("error", err))
		h.redirectWithFlash(w, r, back, "error", "No se pudo leer el archivo")
		return
	}

	queued, err := h.service.QueueIngest(r.Context(), alerts.IngestForm{ProyectoID: proyectoID, URL: r.PostFormValue("url")})
	if err != nil {
		if fields, ok := alerts.AsValidation(err); ok {
			h.redirectWithFlash(w, r, back, "error", firstMessage(fields))
			return
		}
		h.logger.Error("queue ingest", slog.Any("error", err))
		h.redirectWithFlash(w, r, back, "error", "No se pudo encolar la URL")
		return
	}
	if !queued {
		h.redirectWithFlash(w, r, back, "info", "Esa URL ya está en cola")
		return
	}
	h.redirectWithFlash(w, r, back, "success", "URL en cola de ingesta")
}

type plantillasPage struct {
	Plantillas []apiclient.Plantilla
	Form       alerts.PlantillaForm
	Errors     map[string]string
	Error      string
}

func (h *Handler) plantillas(w http.ResponseWriter, r *http.Request) {
	h.renderPlantillas(w, r, plantillasPage{Errors: map[string]string{}}, http.StatusOK)
}

func (h *Handler) renderPlantillas(w http.ResponseWriter, r *http.Request, data plantillasPage, status int) {
	list, err := h.service.Plantillas(r.Context())
	if err != nil {
		if apiclient.IsUnauthorized(err) {
			auth.Expire(w, r)
			return
		}
		h.logger.Error("list plantillas", slog.Any("error", err))
		data.Error = "No se pudieron cargar las plantillas"
	}
	data.Plantillas = list
	h.render(w, r, "pages/plantillas.html", "Plantillas", data, status)
}

func (h *Handler) createPlantilla(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	form := alerts.PlantillaForm{Nombre: r.PostFormValue("nombre"), Cuerpo: r.PostFormValue("cuerpo")}
	if _, err := h.service.CreatePlantilla(r.Context(), form); err != nil {
		if fields, ok := alerts.AsValidation(err); ok {
			h.renderPlantillas(w, r, plantillasPage{Form: form, Errors: fields}, http.StatusBadRequest)
			return
		}
		h.apiFailure(w, r, "plantillas", "/plantillas", err)
		return
	}
	h.redirectWithFlash(w, r, "/plantillas", "success", "Plantilla creada")
}

func (h *Handler) deletePlantilla(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeletePlantilla(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.apiFailure(w, r, "plantillas", "/plantillas", err)
		return
	}
	h.redirectWithFlash(w, r, "/plantillas", "success", "Plantilla eliminada")
}

func (h *Handler) forward(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	form := alerts.ForwardForm{
		Tipo:        r.PostFormValue("tipo"),
		AlertaIDs:   r.PostForm["alerta_ids"],
		PlantillaID: r.PostFormValue("plantilla_id"),
		Destino:     r.PostFormValue("destino"),
	}
	fallback := "/medios"
	if form.Tipo == alerts.TipoRedes {
		fallback = "/redes"
	}
	back := backTarget(r, fallback)

	_, err := h.service.QueueForward(r.Context(), form)
	switch {
	case err == nil:
		h.redirectWithFlash(w, r, back, "success", "Envío a WhatsApp en cola")
	case errors.Is(err, shared.ErrAlreadyForwarded):
		h.redirectWithFlash(w, r, back, "warning", "Estas alertas ya se enviaron con esa plantilla")
	default:
		if fields, ok := alerts.AsValidation(err); ok {
			h.redirectWithFlash(w, r, back, "error", firstMessage(fields))
			return
		}
		h.logger.Error("queue forward", slog.Any("error", err))
		h.redirectWithFlash(w, r, back, "error", "No se pudo encolar el envío")
	}
}

var fieldLabels = map[string]string{
	"ProyectoID":  "Proyecto",
	"URL":         "URL",
	"Tipo":        "Tipo",
	"AlertaIDs":   "Alertas",
	"PlantillaID": "Plantilla",
	"Destino":     "Destino",
}

// firstMessage condenses field errors into one flash line, in a stable field order.
func firstMessage(fields map[string]string) string {
	for _, name := range []string{"ProyectoID", "URL", "Tipo", "AlertaIDs", "PlantillaID", "Destino"} {
		if msg, ok := fields[name]; ok {
			return fieldLabels[name] + ": " + msg
		}
	}
	for name, msg := range fields {
		return name + ": " + msg
	}
	return "Formulario no válido"
}

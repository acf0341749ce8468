// Package alerts holds the dashboard's list screens over the alerts backend: their filter
// key sets, the forms reviewers submit, and the service that fetches and mutates resources.
package alerts

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/alertas/alertas-admin/internal/filters"
)

// ProyectoKey names a filter of the proyectos screen.
type ProyectoKey string

const (
	ProyectoNombre ProyectoKey = "nombre"
	ProyectoEstado ProyectoKey = "estado"
)

// MedioKey names a filter of the medios screen.
type MedioKey string

const (
	MedioProyecto MedioKey = "proyecto"
	MedioNombre   MedioKey = "nombre"
	MedioTipo     MedioKey = "tipo"
	MedioDesde    MedioKey = "desde"
	MedioHasta    MedioKey = "hasta"
	MedioTexto    MedioKey = "q"
)

// RedKey names a filter of the redes screen.
type RedKey string

const (
	RedProyecto RedKey = "proyecto"
	RedRed      RedKey = "red"
	RedAutor    RedKey = "autor"
	RedDesde    RedKey = "desde"
	RedHasta    RedKey = "hasta"
	RedTexto    RedKey = "q"
)

// EnvioKey names a filter of the WhatsApp history screen.
type EnvioKey string

const (
	EnvioProyecto EnvioKey = "proyecto"
	EnvioEstado   EnvioKey = "estado"
	EnvioDesde    EnvioKey = "desde"
	EnvioHasta    EnvioKey = "hasta"
)

// Filter schemas. Every screen starts with all filters empty.
var (
	ProyectosSchema = filters.NewSchema(
		filters.Field[ProyectoKey]{Key: ProyectoNombre},
		filters.Field[ProyectoKey]{Key: ProyectoEstado},
	)
	MediosSchema = filters.NewSchema(
		filters.Field[MedioKey]{Key: MedioProyecto},
		filters.Field[MedioKey]{Key: MedioNombre},
		filters.Field[MedioKey]{Key: MedioTipo},
		filters.Field[MedioKey]{Key: MedioDesde},
		filters.Field[MedioKey]{Key: MedioHasta},
		filters.Field[MedioKey]{Key: MedioTexto},
	)
	RedesSchema = filters.NewSchema(
		filters.Field[RedKey]{Key: RedProyecto},
		filters.Field[RedKey]{Key: RedRed},
		filters.Field[RedKey]{Key: RedAutor},
		filters.Field[RedKey]{Key: RedDesde},
		filters.Field[RedKey]{Key: RedHasta},
		filters.Field[RedKey]{Key: RedTexto},
	)
	HistorialSchema = filters.NewSchema(
		filters.Field[EnvioKey]{Key: EnvioProyecto},
		filters.Field[EnvioKey]{Key: EnvioEstado},
		filters.Field[EnvioKey]{Key: EnvioDesde},
		filters.Field[EnvioKey]{Key: EnvioHasta},
	)
)

// Alert kinds accepted by the WhatsApp forward.
const (
	TipoMedios = "medios"
	TipoRedes  = "redes"
)

// ProyectoForm is submitted from /proyectos/new.
type ProyectoForm struct {
	Nombre      string `validate:"required,max=120"`
	Descripcion string `validate:"max=500"`
	Keywords    string `validate:"max=1000"`
}

// KeywordList splits the comma separated keywords field.
func (f ProyectoForm) KeywordList() []string {
	var out []string
	for _, k := range strings.Split(f.Keywords, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// IngestForm queues an article URL. Uploaded files bypass it and go straight to the backend.
type IngestForm struct {
	ProyectoID string `validate:"required"`
	URL        string `validate:"required,url,max=2048"`
}

// PlantillaForm creates a WhatsApp template.
type PlantillaForm struct {
	Nombre string `validate:"required,max=80"`
	Cuerpo string `validate:"required,max=1000"`
}

// ForwardForm forwards selected alerts through WhatsApp.
type ForwardForm struct {
	Tipo        string   `validate:"required,oneof=medios redes"`
	AlertaIDs   []string `validate:"required,min=1,max=50,dive,required"`
	PlantillaID string   `validate:"required"`
	Destino     string   `validate:"max=64"`
}

// ValidationError carries per-field messages for a rejected form.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return "validation failed"
}

// AsValidation extracts field messages from err, if it is a validation failure.
func AsValidation(err error) (map[string]string, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Fields, true
	}
	return nil, false
}

var fieldMessages = map[string]string{
	"required":   "Campo obligatorio",
	"max":        "Demasiado largo",
	"min":        "Selecciona al menos una alerta",
	"url":        "URL no válida",
	"oneof":      "Valor no permitido",
	"email":      "Correo no válido",
	"startswith": "Valor no permitido",
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Tag()]
		if !ok {
			msg = "Valor no válido"
		}
		name := fe.StructField()
		if i := strings.IndexByte(name, '['); i >= 0 {
			name = name[:i]
		}
		if _, seen := fields[name]; !seen {
			fields[name] = msg
		}
	}
	return &ValidationError{Fields: fields}
}

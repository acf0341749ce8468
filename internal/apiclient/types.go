package apiclient

import "time"

// Page is the backend's pagination envelope.
type Page[T any] struct {
	Data       []T `json:"data"`
	Page       int `json:"page"`
	PerPage    int `json:"per_page"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type User struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Nombre string `json:"nombre"`
	Rol    string `json:"rol"`
}

type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type RefreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Proyecto groups the alerts monitored for one client.
type Proyecto struct {
	ID          string    `json:"id"`
	Nombre      string    `json:"nombre"`
	Descripcion string    `json:"descripcion"`
	Estado      string    `json:"estado"`
	Keywords    []string  `json:"keywords"`
	CreatedAt   time.Time `json:"created_at"`
}

type ProyectoInput struct {
	Nombre      string   `json:"nombre"`
	Descripcion string   `json:"descripcion"`
	Keywords    []string `json:"keywords"`
}

// Medio is a media article alert.
type Medio struct {
	ID         string    `json:"id"`
	ProyectoID string    `json:"proyecto_id"`
	Proyecto   string    `json:"proyecto"`
	Nombre     string    `json:"nombre"`
	Tipo       string    `json:"tipo"`
	Titulo     string    `json:"titulo"`
	Resumen    string    `json:"resumen"`
	URL        string    `json:"url"`
	Fecha      time.Time `json:"fecha"`
	Enviado    bool      `json:"enviado"`
}

// Red is a social-network post alert.
type Red struct {
	ID         string    `json:"id"`
	ProyectoID string    `json:"proyecto_id"`
	Proyecto   string    `json:"proyecto"`
	Red        string    `json:"red"`
	Autor      string    `json:"autor"`
	Contenido  string    `json:"contenido"`
	URL        string    `json:"url"`
	Fecha      time.Time `json:"fecha"`
	Enviado    bool      `json:"enviado"`
}

// Envio is one entry of the WhatsApp delivery history.
type Envio struct {
	ID          string    `json:"id"`
	ProyectoID  string    `json:"proyecto_id"`
	Proyecto    string    `json:"proyecto"`
	Plantilla   string    `json:"plantilla"`
	Destino     string    `json:"destino"`
	Estado      string    `json:"estado"`
	Alertas     int       `json:"alertas"`
	EnviadoPor  string    `json:"enviado_por"`
	CreatedAt   time.Time `json:"created_at"`
	ErrorDetail string    `json:"error,omitempty"`
}

// Plantilla is a WhatsApp message template.
type Plantilla struct {
	ID        string    `json:"id"`
	Nombre    string    `json:"nombre"`
	Cuerpo    string    `json:"cuerpo"`
	CreatedAt time.Time `json:"created_at"`
}

type PlantillaInput struct {
	Nombre string `json:"nombre"`
	Cuerpo string `json:"cuerpo"`
}

type IngestRequest struct {
	ProyectoID string `json:"proyecto_id"`
	URL        string `json:"url"`
}

type ForwardRequest struct {
	Tipo        string   `json:"tipo"`
	AlertaIDs   []string `json:"alerta_ids"`
	PlantillaID string   `json:"plantilla_id"`
	Destino     string   `json:"destino,omitempty"`
}

type ForwardResponse struct {
	EnvioID string `json:"envio_id"`
	Estado  string `json:"estado"`
}

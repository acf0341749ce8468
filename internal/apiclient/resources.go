package apiclient

import (
	"context"
	"io"
	"net/url"
)

const (
	PathProyectos  = "/api/proyectos"
	PathMedios     = "/api/medios"
	PathRedes      = "/api/redes"
	PathPlantillas = "/api/plantillas"
	PathHistorial  = "/api/whatsapp/historial"
	PathForward    = "/api/whatsapp/enviar"
)

// List fetches one page of a collection filtered by query.
func List[T any](ctx context.Context, c *Client, path, query string, page int) (Page[T], error) {
	var out Page[T]
	if err := c.Get(ctx, path, WithPage(query, page), &out); err != nil {
		return Page[T]{}, err
	}
	if out.Page == 0 {
		out.Page = max(page, 1)
	}
	return out, nil
}

func (c *Client) CreateProyecto(ctx context.Context, in ProyectoInput) (Proyecto, error) {
	var out Proyecto
	err := c.Post(ctx, PathProyectos, in, &out)
	return out, err
}

func (c *Client) DeleteProyecto(ctx context.Context, id string) error {
	return c.Delete(ctx, PathProyectos+"/"+url.PathEscape(id))
}

// IngestURL asks the backend to fetch and parse an article.
func (c *Client) IngestURL(ctx context.Context, in IngestRequest) (Medio, error) {
	var out Medio
	err := c.Post(ctx, PathMedios+"/ingest", in, &out)
	return out, err
}

// UploadMedios sends a file of alerts for the backend to parse.
func (c *Client) UploadMedios(ctx context.Context, proyectoID, filename string, file io.Reader) error {
	return c.Upload(ctx, PathMedios+"/upload", map[string]string{"proyecto_id": proyectoID}, "archivo", filename, file, nil)
}

func (c *Client) ListPlantillas(ctx context.Context) ([]Plantilla, error) {
	var out []Plantilla
	if err := c.Get(ctx, PathPlantillas, "", &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreatePlantilla(ctx context.Context, in PlantillaInput) (Plantilla, error) {
	var out Plantilla
	err := c.Post(ctx, PathPlantillas, in, &out)
	return out, err
}

func (c *Client) DeletePlantilla(ctx context.Context, id string) error {
	return c.Delete(ctx, PathPlantillas+"/"+url.PathEscape(id))
}

// Forward sends alerts through WhatsApp using a template.
func (c *Client) Forward(ctx context.Context, in ForwardRequest) (ForwardResponse, error) {
	var out ForwardResponse
	err := c.Post(ctx, PathForward, in, &out)
	return out, err
}

package jobs

import (
	"strings"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskWhatsAppForward forwards selected alerts through WhatsApp.
	TaskWhatsAppForward = "whatsapp:forward"
	// TaskMediosIngest asks the backend to fetch and parse an article URL.
	TaskMediosIngest = "medios:ingest"
)

// taskNamespace scopes deterministic task ids.
var taskNamespace = uuid.MustParse("5b0c1f8e-8f0e-4c57-9d4b-7a8f9f1c2e31")

// ForwardPayload describes a WhatsApp forward requested by a reviewer.
type ForwardPayload struct {
	Key         string   `json:"key"`
	Tipo        string   `json:"tipo"`
	AlertaIDs   []string `json:"alerta_ids"`
	PlantillaID string   `json:"plantilla_id"`
	Destino     string   `json:"destino,omitempty"`
	Actor       string   `json:"actor"`
}

// IngestPayload describes an article URL queued for ingestion.
type IngestPayload struct {
	ProyectoID string `json:"proyecto_id"`
	URL        string `json:"url"`
	Actor      string `json:"actor"`
}

// TaskID derives a stable asynq task id from an idempotency key, so re-submitting the
// same work is rejected by the queue with asynq.ErrTaskIDConflict.
func TaskID(kind, key string) string {
	return uuid.NewSHA1(taskNamespace, []byte(kind+"|"+key)).String()
}

// NewForwardTask constructs the forward task.
func NewForwardTask(payload ForwardPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskWhatsAppForward, data, asynq.MaxRetry(5)), nil
}

// NewIngestTask constructs the ingest task.
func NewIngestTask(payload IngestPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMediosIngest, data, asynq.MaxRetry(3)), nil
}

func ingestKey(p IngestPayload) string {
	return strings.TrimSpace(p.ProyectoID) + "|" + strings.TrimSpace(p.URL)
}

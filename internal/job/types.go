// Package job defines ingestion job kinds, the result envelope, and the facade that runs jobs.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/internal/apperrors"
)

// Kind identifies the data store an ingestion job extracts from.
type Kind string

const (
	KindMongoDB    Kind = "mongodb"
	KindMySQL      Kind = "mysql"
	KindPostgreSQL Kind = "postgresql"
)

// Kinds returns every supported job kind in a fixed order.
func Kinds() []Kind {
	return []Kind{KindMongoDB, KindMySQL, KindPostgreSQL}
}

// ParseKind converts a user-supplied name into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", apperrors.Validation("kind", fmt.Sprintf("unsupported job kind %q", s))
}

// EnvPrefix returns the prefix of the connection variables passed to the job container.
func (k Kind) EnvPrefix() string {
	switch k {
	case KindMongoDB:
		return "MONGO_"
	case KindMySQL:
		return "MYSQL_"
	case KindPostgreSQL:
		return "POSTGRES_"
	}
	return ""
}

// DefaultImage returns the image reference built for this kind.
func (k Kind) DefaultImage() string {
	return "pharmavida-ingesta-" + string(k) + ":latest"
}

// Spec describes one ingestion run. It is built per call and never mutated.
type Spec struct {
	Kind        Kind
	Image       string
	Environment map[string]string
}

// Outcome is the terminal state of a container that ran to completion.
type Outcome struct {
	ExitCode   int
	Logs       string
	FinishedAt time.Time
}

// Envelope statuses
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the uniform result of every ingestion run.
// Exactly one of Payload and Error is set, selected by Status.
type Envelope struct {
	Status          string         `json:"status"`
	Kind            Kind           `json:"job_kind"`
	Payload         any            `json:"payload,omitempty"`
	Error           string         `json:"error,omitempty"`
	ErrorKind       apperrors.Kind `json:"error_kind,omitempty"`
	Logs            string         `json:"logs,omitempty"`
	ExitCode        *int           `json:"exit_code,omitempty"`
	RunID           string         `json:"run_id,omitempty"`
	DurationSeconds float64        `json:"duration_seconds,omitempty"`
}

// nullPayload keeps a decoded JSON null visible in the envelope despite omitempty.
var nullPayload = json.RawMessage("null")

// Success builds a success envelope. A nil payload, which is what a job printing
// null decodes to, is serialized as "payload": null.
func Success(kind Kind, payload any) *Envelope {
	if payload == nil {
		payload = nullPayload
	}
	return &Envelope{Status: StatusSuccess, Kind: kind, Payload: payload}
}

// Failure builds an error envelope, copying diagnostics from a classified error.
func Failure(kind Kind, err error) *Envelope {
	if err == nil {
		err = errors.New("unknown failure")
	}
	env := &Envelope{
		Status:    StatusError,
		Kind:      kind,
		Error:     err.Error(),
		ErrorKind: apperrors.KindOf(err),
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		env.Logs = appErr.Logs
		env.ExitCode = appErr.ExitCode
	}
	return env
}

// OK reports whether the run succeeded.
func (e *Envelope) OK() bool {
	return e.Status == StatusSuccess
}

// Runner executes a Spec and always returns an envelope.
type Runner interface {
	Run(ctx context.Context, spec Spec) *Envelope
}

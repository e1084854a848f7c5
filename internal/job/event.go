package job

import (
	"github.com/FabricioLanche/PharmaVida-Ingesta-v3/pkg/cloudevent"
	"github.com/google/uuid"
)

// EventTypeRunCompleted is published once per finished run, successful or not.
const EventTypeRunCompleted = "pharmavida.ingesta.run.completed"

// EventSource identifies the gateway as the producer of run events.
const EventSource = "ingesta-gateway"

// BuildRunCompletedEvent wraps an envelope in a CloudEvent whose subject is the job kind.
func BuildRunCompletedEvent(env *Envelope) *cloudevent.CloudEvent {
	data := map[string]any{
		"runId":           env.RunID,
		"kind":            string(env.Kind),
		"status":          env.Status,
		"durationSeconds": env.DurationSeconds,
	}
	if env.OK() {
		data["payload"] = env.Payload
	} else {
		data["error"] = env.Error
		data["errorKind"] = string(env.ErrorKind)
		if env.ExitCode != nil {
			data["exitCode"] = *env.ExitCode
		}
	}
	return cloudevent.New(EventTypeRunCompleted, EventSource, string(env.Kind), uuid.NewString(), data)
}

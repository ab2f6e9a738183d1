package messaging

import (
	"errors"

	"github.com/nats-io/nats.go"
)

const notificationsStream = "NOTIFICATIONS"

// SubjectAssignments carries assignment events from the API server to notify-worker.
const SubjectAssignments = "volunteerhub.notify.assignment"

// EnsureStreams creates (or validates) the notifications stream covering
// volunteerhub.notify.>.
func EnsureStreams(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(notificationsStream); err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			if _, addErr := js.AddStream(&nats.StreamConfig{
				Name:      notificationsStream,
				Subjects:  []string{"volunteerhub.notify.>"},
				Retention: nats.LimitsPolicy,
				Storage:   nats.FileStorage,
				Replicas:  1,
			}); addErr != nil {
				return addErr
			}
		} else {
			return err
		}
	}
	return nil
}

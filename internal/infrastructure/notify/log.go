package notify

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/clinicore/ehr-api/internal/core/ports"
)

// LogNotifier writes notifications to the log instead of sending them.
// Used in development when no SMTP host is configured; the code or token
// appears in the log so the flow can be exercised end to end.
type LogNotifier struct {
	log zerolog.Logger
}

func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (l *LogNotifier) Send(_ context.Context, n ports.Notification) error {
	ev := l.log.Info().
		Str("kind", string(n.Kind)).
		Str("email", n.Email)
	switch n.Kind {
	case ports.NotifyVerification:
		ev = ev.Str("code", n.Code)
	case ports.NotifyApproval:
		ev = ev.Str("token", n.Token)
	case ports.NotifyRejection:
		ev = ev.Str("reason", n.Reason)
	}
	ev.Msg("notification (log delivery)")
	return nil
}

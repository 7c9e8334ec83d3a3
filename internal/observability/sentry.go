package observability

import (
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry is a no-op without a DSN. Events never carry credential
// cookies or Authorization headers.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
		BeforeSend:       scrubCredentials,
	})
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

func scrubCredentials(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event == nil || event.Request == nil {
		return event
	}

	event.Request.Cookies = ""
	for name := range event.Request.Headers {
		switch http.CanonicalHeaderKey(name) {
		case "Cookie", "Authorization", "Set-Cookie":
			delete(event.Request.Headers, name)
		}
	}
	return event
}

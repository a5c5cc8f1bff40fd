package audit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/platinummonkey/stockroom/pkg/auth"
	"github.com/platinummonkey/stockroom/pkg/contextkeys"
	"github.com/platinummonkey/stockroom/pkg/httputil"
)

// Recorder builds entries and submits them to a Dispatcher
type Recorder struct {
	dispatcher *Dispatcher
	trustProxy bool
	now        func() time.Time
}

// NewRecorder creates a recorder. trustProxy controls whether X-Forwarded-For
// is used for the recorded IP address.
func NewRecorder(dispatcher *Dispatcher, trustProxy bool) *Recorder {
	return &Recorder{dispatcher: dispatcher, trustProxy: trustProxy, now: time.Now}
}

// Record appends one entry, best effort. An empty actorID or ip is stored as null.
func (rec *Recorder) Record(ctx context.Context, actorID, action, endpoint, method string, metadata map[string]interface{}, ip string) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	rec.dispatcher.Submit(&Entry{
		UserID:    optional(actorID),
		Action:    action,
		Endpoint:  endpoint,
		Method:    method,
		Metadata:  metadata,
		IPAddress: optional(ip),
		Timestamp: rec.now().UTC(),
	})
}

// RecordRequest records action for r, taking the actor from the resolved identity
func (rec *Recorder) RecordRequest(r *http.Request, action string, metadata map[string]interface{}) {
	var actorID string
	if identity := auth.IdentityFromContext(r.Context()); identity != nil {
		actorID = identity.UserID()
	}
	rec.RecordActor(r, actorID, action, metadata)
}

// RecordActor records action for r on behalf of actorID. The login callback
// uses it before any identity is attached to the request.
func (rec *Recorder) RecordActor(r *http.Request, actorID, action string, metadata map[string]interface{}) {
	rec.Record(r.Context(), actorID, action, r.URL.Path, r.Method, metadata, httputil.ClientIP(r, rec.trustProxy))
}

// Audited wraps a mutating handler so that a 2xx response produces exactly one
// entry for action. Metadata comes from Annotate calls made by the handler.
func (rec *Recorder) Audited(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			notes := &annotations{values: map[string]interface{}{}}
			ctx := context.WithValue(r.Context(), contextkeys.AuditAnnotationsKey, notes)
			r = r.WithContext(ctx)

			recorder := httputil.NewStatusRecorder(w)
			next.ServeHTTP(recorder, r)

			if recorder.Status < 200 || recorder.Status > 299 {
				return
			}
			rec.RecordRequest(r, action, notes.snapshot())
		})
	}
}

type annotations struct {
	mu     sync.Mutex
	values map[string]interface{}
}

func (a *annotations) snapshot() map[string]interface{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]interface{}, len(a.values))
	for k, v := range a.values {
		out[k] = v
	}
	return out
}

// Annotate adds key to the metadata of the entry the enclosing Audited wrapper
// will record. Outside an audited request it does nothing.
func Annotate(ctx context.Context, key string, value interface{}) {
	notes, ok := ctx.Value(contextkeys.AuditAnnotationsKey).(*annotations)
	if !ok {
		return
	}
	notes.mu.Lock()
	notes.values[key] = value
	notes.mu.Unlock()
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/config"
	"github.com/AbdelilahChahbouni/Issues-Tracker/internal/events"
)

const (
	defaultWebhookTimeout = 5 * time.Second
	defaultWebhookQueue   = 256
	webhookRetryInterval  = 100 * time.Millisecond
	webhookRetryMaxDelay  = 5 * time.Second
)

// statusError is a non-2xx answer from a webhook endpoint.
type statusError struct {
	status int
	body   string
}

func (e statusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.status, e.body)
}

// WebhookRelay posts events to configured URLs from a background worker.
// Publish only enqueues; a full queue drops the event.
type WebhookRelay struct {
	hooks  []config.WebhookConfig
	client *http.Client
	log    *zap.SugaredLogger
	queue  chan events.Event
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewWebhookRelay returns nil when no hook is enabled.
func NewWebhookRelay(hooks []config.WebhookConfig, log *zap.SugaredLogger) *WebhookRelay {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	var active []config.WebhookConfig
	for _, hook := range hooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		active = append(active, hook)
	}
	if len(active) == 0 {
		return nil
	}
	r := &WebhookRelay{
		hooks:  active,
		client: &http.Client{Timeout: defaultWebhookTimeout},
		log:    log,
		queue:  make(chan events.Event, defaultWebhookQueue),
		done:   make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *WebhookRelay) Publish(_ context.Context, evt events.Event) error {
	select {
	case <-r.done:
		return fmt.Errorf("webhook relay closed")
	default:
	}
	select {
	case r.queue <- evt:
		return nil
	default:
		return fmt.Errorf("webhook queue full, %s dropped", evt.Type)
	}
}

// Close stops accepting events and waits for queued deliveries.
func (r *WebhookRelay) Close() error {
	r.once.Do(func() { close(r.done) })
	r.wg.Wait()
	return nil
}

func (r *WebhookRelay) run() {
	defer r.wg.Done()
	for {
		select {
		case evt := <-r.queue:
			r.dispatch(evt)
		case <-r.done:
			for {
				select {
				case evt := <-r.queue:
					r.dispatch(evt)
				default:
					return
				}
			}
		}
	}
}

func (r *WebhookRelay) dispatch(evt events.Event) {
	for _, hook := range r.hooks {
		if !newEventFilter(hook.Events).match(string(evt.Type)) {
			continue
		}
		if err := r.deliver(hook, evt); err != nil {
			r.log.Warnw("webhook delivery failed", "url", hook.URL, "event", evt.Type, "error", err)
		}
	}
}

// deliver posts evt, retrying transport failures and 5xx answers up to
// hook.Retries more times. The delivery id is stable across attempts.
func (r *WebhookRelay) deliver(hook config.WebhookConfig, evt events.Event) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = webhookRetryInterval
	bo.MaxInterval = webhookRetryMaxDelay
	delivery := uuid.NewString()
	return backoff.Retry(func() error {
		err := r.post(context.Background(), hook, delivery, evt)
		var se statusError
		if errors.As(err, &se) && se.status < http.StatusInternalServerError {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithMaxRetries(bo, uint64(max(hook.Retries, 0))))
}

func (r *WebhookRelay) post(ctx context.Context, hook config.WebhookConfig, delivery string, evt events.Event) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	client := r.client
	if hook.TimeoutSeconds > 0 {
		client = &http.Client{Timeout: time.Duration(hook.TimeoutSeconds) * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-IssueTracker-Event", string(evt.Type))
	req.Header.Set("X-IssueTracker-Delivery", delivery)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-IssueTracker-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return statusError{status: res.StatusCode, body: strings.TrimSpace(string(body))}
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(types []string) eventFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if key := strings.TrimSpace(t); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(t string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[t]
	return ok
}

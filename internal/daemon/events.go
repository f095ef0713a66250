package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
	ferrors "git.home.luguber.info/inful/sitebuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/sitebuilder/internal/logfields"
)

// Build event kinds, appended to the configured event prefix to form the subject.
const (
	EventCompleted = "completed"
	EventFailed    = "failed"
)

// BuildEvent announces the end of a build.
type BuildEvent struct {
	Kind       string    `json:"kind"`
	JobID      string    `json:"job_id"`
	BuildID    string    `json:"build_id,omitempty"`
	Triggers   []Trigger `json:"triggers"`
	Outcome    string    `json:"outcome"`
	DurationMS int64     `json:"duration_ms"`
	Routes     []string  `json:"routes,omitempty"`
	Failed     []string  `json:"failed,omitempty"`
	Commit     string    `json:"commit,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventPublisher delivers build events.
type EventPublisher interface {
	PublishBuildEvent(ctx context.Context, ev BuildEvent) error
}

// ContentChange is the part of a CMS publish webhook the daemon reads.
type ContentChange struct {
	EntryID string
	Type    string
	Kind    string
}

type contentWebhook struct {
	Sys struct {
		ID          string `json:"id"`
		Type        string `json:"type"`
		ContentType struct {
			Sys struct {
				ID string `json:"id"`
			} `json:"sys"`
		} `json:"contentType"`
	} `json:"sys"`
}

// natsConn is the subset of *nats.Conn the bridge uses.
type natsConn interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	Drain() error
	IsConnected() bool
}

// NATSBridge subscribes to content-published messages and publishes build events.
type NATSBridge struct {
	conn    natsConn
	subject string
	prefix  string
	sub     *nats.Subscription
}

// ConnectNATS dials the configured server. The connection reconnects forever.
func ConnectNATS(cfg *config.DaemonConfig) (*NATSBridge, error) {
	conn, err := nats.Connect(cfg.NATSURL,
		nats.Name("sitebuilder"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			slog.Info("NATS reconnected", logfields.URL(c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, ferrors.NetworkError("failed to connect to NATS").
			WithCause(err).WithContext("url", cfg.NATSURL).Build()
	}
	slog.Info("NATS connected", logfields.URL(cfg.NATSURL), slog.String("subject", cfg.Subject))
	return newNATSBridge(conn, cfg.Subject, cfg.EventPrefix), nil
}

func newNATSBridge(conn natsConn, subject, prefix string) *NATSBridge {
	return &NATSBridge{conn: conn, subject: subject, prefix: prefix}
}

// Subscribe calls onChange for every message on the content subject.
// Payloads that are not CMS webhooks still count as a change.
func (b *NATSBridge) Subscribe(onChange func(ContentChange)) error {
	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		onChange(decodeContentChange(msg.Data))
	})
	if err != nil {
		return ferrors.NetworkError("failed to subscribe to content subject").
			WithCause(err).WithContext("subject", b.subject).Build()
	}
	b.sub = sub
	return nil
}

// PublishBuildEvent publishes ev on "<prefix>.<kind>".
func (b *NATSBridge) PublishBuildEvent(_ context.Context, ev BuildEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal build event: %w", err)
	}
	subject := b.prefix + "." + ev.Kind
	if err := b.conn.Publish(subject, data); err != nil {
		return ferrors.NetworkError("failed to publish build event").
			WithCause(err).WithContext("subject", subject).Build()
	}
	slog.Debug("Published build event", slog.String("subject", subject), logfields.BuildID(ev.BuildID))
	return nil
}

// Connected reports whether the connection is currently up.
func (b *NATSBridge) Connected() bool {
	return b.conn.IsConnected()
}

// Close drains the subscription and closes the connection.
func (b *NATSBridge) Close() error {
	return b.conn.Drain()
}

func decodeContentChange(data []byte) ContentChange {
	var hook contentWebhook
	if err := json.Unmarshal(data, &hook); err != nil {
		return ContentChange{}
	}
	return ContentChange{
		EntryID: hook.Sys.ID,
		Type:    hook.Sys.Type,
		Kind:    hook.Sys.ContentType.Sys.ID,
	}
}

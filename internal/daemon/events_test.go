package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	published []published
	handlers  map[string]nats.MsgHandler
	subErr    error
	drained   bool
	connected bool
}

func (c *fakeConn) Publish(subj string, data []byte) error {
	c.published = append(c.published, published{subject: subj, data: data})
	return nil
}

func (c *fakeConn) Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error) {
	if c.subErr != nil {
		return nil, c.subErr
	}
	if c.handlers == nil {
		c.handlers = map[string]nats.MsgHandler{}
	}
	c.handlers[subj] = cb
	return nil, nil
}

func (c *fakeConn) Drain() error      { c.drained = true; return nil }
func (c *fakeConn) IsConnected() bool { return c.connected }

func TestNATSBridgeDeliversContentChanges(t *testing.T) {
	conn := &fakeConn{connected: true}
	b := newNATSBridge(conn, "sitebuilder.content.published", "sitebuilder.build")

	var got []ContentChange
	require.NoError(t, b.Subscribe(func(c ContentChange) { got = append(got, c) }))

	cb := conn.handlers["sitebuilder.content.published"]
	require.NotNil(t, cb)
	cb(&nats.Msg{Data: []byte(`{"sys":{"id":"e1","type":"Entry","contentType":{"sys":{"id":"teamMember"}}}}`)})
	cb(&nats.Msg{Data: []byte(`not json`)})

	require.Len(t, got, 2)
	assert.Equal(t, ContentChange{EntryID: "e1", Type: "Entry", Kind: "teamMember"}, got[0])
	assert.Equal(t, ContentChange{}, got[1])

	assert.True(t, b.Connected())
	require.NoError(t, b.Close())
	assert.True(t, conn.drained)
}

func TestNATSBridgeSubscribeFailure(t *testing.T) {
	b := newNATSBridge(&fakeConn{subErr: errors.New("no permission")}, "s", "p")
	require.Error(t, b.Subscribe(func(ContentChange) {}))
}

func TestNATSBridgePublishesOnKindSubject(t *testing.T) {
	conn := &fakeConn{}
	b := newNATSBridge(conn, "s", "sitebuilder.build")

	require.NoError(t, b.PublishBuildEvent(context.Background(), BuildEvent{Kind: EventFailed, BuildID: "b1", Error: "x"}))

	require.Len(t, conn.published, 1)
	assert.Equal(t, "sitebuilder.build.failed", conn.published[0].subject)
	var ev BuildEvent
	require.NoError(t, json.Unmarshal(conn.published[0].data, &ev))
	assert.Equal(t, "b1", ev.BuildID)
}

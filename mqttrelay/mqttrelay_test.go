package mqttrelay

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sercom "github.com/miniPCB/SerCom2"
)

type recorder struct {
	mu       sync.Mutex
	topics   []string
	messages []Message
	failSeq  uint64
}

func (r *recorder) Publish(topic string, payload []byte) error {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return err
	}
	if m.Seq == r.failSeq {
		return errors.New("broker unavailable")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.messages = append(r.messages, m)
	return nil
}

func TestNewMessage(t *testing.T) {
	j := sercom.NewJournal()
	ev := j.Event(sercom.CategoryReceived, "Received: PING", "PING")
	ok := j.Exchange(sercom.Exchange{Command: "AT", Response: "OK", Elapsed: 250 * time.Millisecond})
	bad := j.Exchange(sercom.Exchange{Command: "ATI", Err: sercom.ErrNotConnected})

	m := NewMessage(ev, "s1")
	assert.Equal(t, "event", m.Kind)
	assert.Equal(t, "received", m.Category)
	assert.Equal(t, "Received: PING", m.Event)
	assert.Equal(t, "PING", m.Payload)
	assert.Equal(t, "s1", m.Session)
	assert.NotEmpty(t, m.ID)
	assert.Nil(t, m.Response)

	m = NewMessage(ok, "s1")
	assert.Equal(t, "exchange", m.Kind)
	assert.Equal(t, "AT", m.Command)
	require.NotNil(t, m.Response)
	assert.Equal(t, "OK", *m.Response)
	require.NotNil(t, m.Time)
	assert.InDelta(t, 0.25, *m.Time, 1e-9)
	assert.Equal(t, ok.Timestamp(), m.Timestamp)

	m = NewMessage(bad, "")
	assert.Equal(t, "not connected", m.Error)
	assert.Equal(t, "", *m.Response)
}

func TestForwarder_PublishesUntilClosed(t *testing.T) {
	j := sercom.NewJournal()
	sub, cancel := j.Subscribe(16)
	defer cancel()

	rec := &recorder{}
	fwd := NewForwarder(rec, "bench/log", zerolog.Nop())
	fwd.Session = func() string { return "abc" }

	j.Event(sercom.CategoryInfo, "Connected to /dev/ttyUSB0 at 9600 baud", "")
	j.Exchange(sercom.Exchange{Command: "AT", Response: "OK"})
	j.Close()

	n, err := fwd.Run(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"bench/log", "bench/log"}, rec.topics)
	assert.Equal(t, uint64(1), rec.messages[0].Seq)
	assert.Equal(t, "abc", rec.messages[1].Session)
	assert.Equal(t, "AT", rec.messages[1].Command)
}

func TestForwarder_SkipsFailedPublish(t *testing.T) {
	entries := make(chan sercom.Entry, 3)
	entries <- sercom.Entry{Seq: 1, Kind: sercom.KindEvent, Description: "a"}
	entries <- sercom.Entry{Seq: 2, Kind: sercom.KindEvent, Description: "b"}
	entries <- sercom.Entry{Seq: 3, Kind: sercom.KindEvent, Description: "c"}
	close(entries)

	rec := &recorder{failSeq: 2}
	n, err := NewForwarder(rec, "t", zerolog.Nop()).Run(context.Background(), entries)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, rec.messages, 2)
	assert.Equal(t, "a", rec.messages[0].Event)
	assert.Equal(t, "c", rec.messages[1].Event)
}

func TestForwarder_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	entries := make(chan sercom.Entry)
	done := make(chan error, 1)
	go func() {
		_, err := NewForwarder(&recorder{}, "t", zerolog.Nop()).Run(ctx, entries)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("forwarder did not stop")
	}
}

func TestNewClient_GivesUpAfterTimeout(t *testing.T) {
	// A broker that accepts TCP connections and hangs up before CONNACK.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	var attempts atomic.Int32
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			attempts.Add(1)
			conn.Close()
		}
	}()

	origTimeout, origRetry := connectTimeout, connectRetryInterval
	connectTimeout, connectRetryInterval = 300*time.Millisecond, 20*time.Millisecond
	t.Cleanup(func() { connectTimeout, connectRetryInterval = origTimeout, origRetry })

	start := time.Now()
	_, err = NewClient("tcp://"+ln.Addr().String(), "sercom-test")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Positive(t, attempts.Load())

	// Once NewClient has returned, the client must stop dialing the broker.
	time.Sleep(100 * time.Millisecond)
	settled := attempts.Load()
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, settled, attempts.Load())
}

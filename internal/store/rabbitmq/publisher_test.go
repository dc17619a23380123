package rabbitmq

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
	"github.com/suPer8Hu/pairchat/internal/presence"
)

func TestStatusChangeCodec(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	body, err := EncodeStatusChange(presence.StatusChange{UserID: "alice", Status: presence.StatusOnline, At: at})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	ev, err := DecodeStatusChange(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.UserID != "alice" || ev.Status != presence.StatusOnline || !ev.At.Equal(at) {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestDecodeStatusChange_Rejects(t *testing.T) {
	for _, body := range []string{
		`{`,
		`{"status":"online"}`,
		`{"user_id":"alice","status":"away"}`,
	} {
		if _, err := DecodeStatusChange([]byte(body)); err == nil {
			t.Fatalf("expected error for %s", body)
		} else if body != `{` && !errors.Is(err, ErrBadEvent) {
			t.Fatalf("expected ErrBadEvent for %s, got %v", body, err)
		}
	}
}

func TestRetryCount(t *testing.T) {
	cases := []struct {
		headers amqp.Table
		want    int
	}{
		{nil, 0},
		{amqp.Table{"x-retry-count": int32(2)}, 2},
		{amqp.Table{"x-retry-count": int64(3)}, 3},
		{amqp.Table{"x-retry-count": "4"}, 4},
		{amqp.Table{"x-retry-count": "junk"}, 0},
	}
	for _, tc := range cases {
		if got := RetryCount(amqp.Delivery{Headers: tc.headers}); got != tc.want {
			t.Fatalf("RetryCount(%v) = %d, want %d", tc.headers, got, tc.want)
		}
	}
}

type fakeChannel struct {
	closed    bool
	published [][]byte
	failWith  error
}

func (f *fakeChannel) PublishWithContext(_ context.Context, _, _ string, _, _ bool, msg amqp.Publishing) error {
	if f.closed {
		return amqp.ErrClosed
	}
	if f.failWith != nil {
		return f.failWith
	}
	f.published = append(f.published, msg.Body)
	return nil
}

func (f *fakeChannel) IsClosed() bool { return f.closed }

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// newFakePublisher hands out a fresh fakeChannel per dial; dialErr, when set, fails the dial.
func newFakePublisher(t *testing.T) (*Publisher, *[]*fakeChannel, *error) {
	t.Helper()
	var chans []*fakeChannel
	var dialErr error
	p := &Publisher{queue: "presence_events"}
	p.dial = func() (io.Closer, channel, error) {
		if dialErr != nil {
			return nil, nil, dialErr
		}
		ch := &fakeChannel{}
		chans = append(chans, ch)
		return nopCloser{}, ch, nil
	}
	require.NoError(t, p.reconnectLocked())
	return p, &chans, &dialErr
}

func TestPublisher_ReconnectsAfterBrokerRestart(t *testing.T) {
	p, chans, dialErr := newFakePublisher(t)
	ctx := context.Background()
	ev := presence.StatusChange{UserID: "alice", Status: presence.StatusOnline, At: time.Now().UTC()}

	require.NoError(t, p.OnStatusChange(ctx, ev))
	require.Len(t, *chans, 1)
	require.Len(t, (*chans)[0].published, 1)

	// broker goes away
	(*chans)[0].closed = true
	*dialErr = errors.New("connection refused")
	require.Error(t, p.OnStatusChange(ctx, ev))

	// broker is back
	*dialErr = nil
	require.NoError(t, p.OnStatusChange(ctx, ev))
	last := (*chans)[len(*chans)-1]
	require.Len(t, last.published, 1)

	require.NoError(t, p.Close())
	require.True(t, last.closed)
}

func TestPublisher_RetriesOnceWhenChannelClosesMidPublish(t *testing.T) {
	p, chans, _ := newFakePublisher(t)
	(*chans)[0].failWith = amqp.ErrClosed

	ev := presence.StatusChange{UserID: "bob", Status: presence.StatusOffline, At: time.Now().UTC()}
	require.NoError(t, p.OnStatusChange(context.Background(), ev))
	require.Len(t, *chans, 2)
	require.Len(t, (*chans)[1].published, 1)
}

// Package live delivers record-update notifications from the remote backend
// over a WebSocket, for consumption by the conflict detector. The feed is an
// observation channel only; queue correctness never depends on it.
package live

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fieldsync/fieldsync.go/pkg/logger"
	"github.com/fieldsync/fieldsync.go/pkg/models"
)

const (
	defaultRedialInterval = 5 * time.Second
	updateBuffer          = 64
)

// Feed subscribes to a WebSocket endpoint emitting JSON-encoded
// models.RecordUpdate frames. A broken connection is redialed on an
// interval until the feed is closed; updates missed while disconnected are
// gone, which is acceptable for a heuristic conflict signal.
type Feed struct {
	url            string
	dialer         *websocket.Dialer
	redialInterval time.Duration
	logger         logger.Logger

	updates chan models.RecordUpdate
	closeCh chan struct{}
	doneCh  chan struct{}
}

func NewFeed(url string, lg logger.Logger) *Feed {
	if lg == nil {
		lg = logger.Nop{}
	}
	return &Feed{
		url:            url,
		dialer:         websocket.DefaultDialer,
		redialInterval: defaultRedialInterval,
		logger:         lg,
		updates:        make(chan models.RecordUpdate, updateBuffer),
		closeCh:        make(chan struct{}),
		doneCh:         make(chan struct{}),
	}
}

// WithRedialInterval sets the pause between reconnection attempts.
func (f *Feed) WithRedialInterval(d time.Duration) *Feed {
	f.redialInterval = d
	return f
}

// Updates is the stream of observed record updates. It is closed when the
// feed shuts down.
func (f *Feed) Updates() <-chan models.RecordUpdate {
	return f.updates
}

// Start begins reading in the background until Close is called.
func (f *Feed) Start() {
	go f.loop()
}

// Close stops the feed and waits for the reader to exit.
func (f *Feed) Close() {
	close(f.closeCh)
	<-f.doneCh
}

func (f *Feed) loop() {
	defer close(f.doneCh)
	defer close(f.updates)

	for {
		select {
		case <-f.closeCh:
			return
		default:
		}

		conn, _, err := f.dialer.DialContext(context.Background(), f.url, nil)
		if err != nil {
			f.logger.Debug("live feed dial failed", "url", f.url, "error", err)
			select {
			case <-f.closeCh:
				return
			case <-time.After(f.redialInterval):
				continue
			}
		}

		f.read(conn)
	}
}

// read pumps frames from one connection until it breaks or the feed closes.
func (f *Feed) read(conn *websocket.Conn) {
	defer conn.Close()

	// Unblock ReadMessage when the feed is closed mid-read.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-f.closeCh:
			_ = conn.Close()
		case <-stop:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			f.logger.Debug("live feed connection lost", "error", err)
			return
		}

		var update models.RecordUpdate
		if err := json.Unmarshal(raw, &update); err != nil {
			f.logger.Warn("live feed dropped undecodable frame", "error", err)
			continue
		}

		select {
		case f.updates <- update:
		case <-f.closeCh:
			return
		default:
			// A full buffer means the consumer stalled; dropping the oldest
			// style backpressure is not worth it for a heuristic signal.
			f.logger.Warn("live feed dropped update, consumer not keeping up",
				"collection", update.Collection, "record_id", update.RecordID)
		}
	}
}

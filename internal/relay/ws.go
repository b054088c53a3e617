package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Klingon-tech/lashd/pkg/nostr"
)

// RejectedError is an OK message with accepted=false.
type RejectedError struct {
	Relay   string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("relay %s rejected event: %s", e.Relay, e.Message)
}

// ErrNoVerdict is returned when the relay closed without an OK message.
var ErrNoVerdict = errors.New("relay closed without OK")

// WSTransport publishes over a fresh WebSocket connection per attempt:
// it sends ["EVENT", ev] and waits for ["OK", id, accepted, message].
// Rejections prefixed "duplicate:" count as accepted.
type WSTransport struct {
	Dialer *websocket.Dialer
}

// NewWSTransport returns a transport using the default gorilla dialer.
func NewWSTransport() *WSTransport {
	d := *websocket.DefaultDialer
	d.HandshakeTimeout = 10 * time.Second
	return &WSTransport{Dialer: &d}
}

// Publish implements Transport.
func (t *WSTransport) Publish(ctx context.Context, relay string, ev *nostr.Event) error {
	conn, _, err := t.Dialer.DialContext(ctx, relay, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", relay, err)
	}
	defer conn.Close()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(dl)
		_ = conn.SetReadDeadline(dl)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	raw, err := ev.Marshal()
	if err != nil {
		return err
	}
	msg, err := json.Marshal([]json.RawMessage{json.RawMessage(`"EVENT"`), raw})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		return fmt.Errorf("send to %s: %w", relay, err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return fmt.Errorf("%s: %w", relay, ErrNoVerdict)
			}
			return fmt.Errorf("read from %s: %w", relay, err)
		}
		done, err := verdict(relay, ev.ID, data)
		if done {
			return err
		}
	}
}

// verdict interprets one relay message. done is false for messages that
// do not answer the event.
func verdict(relay, eventID string, data []byte) (done bool, err error) {
	var msg []json.RawMessage
	if json.Unmarshal(data, &msg) != nil || len(msg) == 0 {
		return false, nil
	}
	var label string
	if json.Unmarshal(msg[0], &label) != nil || label != "OK" || len(msg) < 3 {
		return false, nil
	}
	var (
		id       string
		accepted bool
		reason   string
	)
	if json.Unmarshal(msg[1], &id) != nil || id != eventID {
		return false, nil
	}
	if json.Unmarshal(msg[2], &accepted) != nil {
		return false, nil
	}
	if len(msg) > 3 {
		_ = json.Unmarshal(msg[3], &reason)
	}
	if accepted || strings.HasPrefix(reason, "duplicate:") {
		return true, nil
	}
	return true, &RejectedError{Relay: relay, Message: reason}
}

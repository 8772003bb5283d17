package ws

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/claude-repo-chat/backend/internal/bridge"
	"github.com/claude-repo-chat/backend/internal/model"
)

// Every frame sent by the client comes back byte for byte and in order,
// including ANSI escape sequences and invalid UTF-8.
func TestWebSocketBidirectionalCommunicationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30

	properties := gopter.NewProperties(parameters)

	_, url := newTestServer(t, runnerFunc(func(ctx context.Context, conn bridge.Conn, _ model.Descriptor, _ string) (*model.Session, error) {
		for {
			f, err := conn.Receive(ctx)
			if err != nil {
				return nil, nil
			}
			if err := conn.SendBinary(ctx, f.Data); err != nil {
				return nil, nil
			}
		}
	}), HandlerConfig{AllowedOrigins: []string{"*"}})

	payloads := gen.SliceOfN(8, gen.SliceOf(gen.UInt8()).SuchThat(func(b []byte) bool {
		return len(b) > 0
	}))

	properties.Property("binary frames round trip in order", prop.ForAll(
		func(frames [][]byte) bool {
			c, _, err := websocket.DefaultDialer.Dial(url, nil)
			if err != nil {
				t.Logf("dial failed: %v", err)
				return false
			}
			defer c.Close()

			for _, f := range frames {
				if err := c.WriteMessage(websocket.BinaryMessage, f); err != nil {
					return false
				}
			}
			for _, want := range frames {
				c.SetReadDeadline(time.Now().Add(2 * time.Second))
				_, got, err := c.ReadMessage()
				if err != nil || !bytes.Equal(got, want) {
					return false
				}
			}
			return true
		},
		payloads,
	))

	properties.TestingRun(t)
}

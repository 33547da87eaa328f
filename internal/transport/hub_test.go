package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Naser58164/praxis-medius/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type wireFrame struct {
	Type    string           `json:"type"`
	ID      string           `json:"id"`
	Success bool             `json:"success"`
	Code    string           `json:"code"`
	Event   domain.EventName `json:"event"`
	Seq     uint64           `json:"seq"`
	Data    json.RawMessage  `json:"data"`
}

func dial(t *testing.T, srv *httptest.Server, query url.Values) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query.Encode()
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil 读取帧直到满足条件
func readUntil(t *testing.T, conn *websocket.Conn, match func(wireFrame) bool) wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f wireFrame
		require.NoError(t, conn.ReadJSON(&f))
		if match(f) {
			return f
		}
	}
}

func ackFor(id string) func(wireFrame) bool {
	return func(f wireFrame) bool { return f.Type == FrameAck && f.ID == id }
}

func newTestServer(t *testing.T) (*testEnv, *httptest.Server) {
	t.Helper()
	env := newTestEnv(t)
	mux := http.NewServeMux()
	mux.Handle("/ws", NewHub(env.dispatcher, HubOptions{}, zap.NewNop()))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return env, srv
}

func TestHub_HandshakeRequiresIdentity(t *testing.T) {
	_, srv := newTestServer(t)
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?role=examiner"

	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.DefaultDialer.Dial(u+"&userId=a&role=janitor", nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHub_JoinCommandAndEvents(t *testing.T) {
	env, srv := newTestServer(t)

	examiner := dial(t, srv, url.Values{"userId": {"instructor-1"}, "role": {"examiner"}})
	require.NoError(t, examiner.WriteJSON(Command{
		ID:      "c1",
		Type:    CmdJoin,
		Payload: json.RawMessage(`{"joinCode":"` + strings.ToLower(env.sess.JoinCode()) + `"}`),
	}))
	ack := readUntil(t, examiner, ackFor("c1"))
	require.True(t, ack.Success)

	var joined struct {
		Token    string `json:"token"`
		Snapshot struct {
			SessionID string          `json:"sessionId"`
			Seq       uint64          `json:"seq"`
			Scenario  json.RawMessage `json:"scenario"`
		} `json:"snapshot"`
	}
	require.NoError(t, json.Unmarshal(ack.Data, &joined))
	assert.NotEmpty(t, joined.Token)
	assert.Equal(t, env.sess.ID(), joined.Snapshot.SessionID)
	assert.NotEmpty(t, joined.Snapshot.Scenario)

	// 考生握手时自动 join
	examinee := dial(t, srv, url.Values{"userId": {"student-1"}, "role": {"examinee"}, "session": {env.sess.ID()}})
	autoJoin := readUntil(t, examinee, func(f wireFrame) bool { return f.Type == FrameAck })
	require.True(t, autoJoin.Success)
	readUntil(t, examiner, func(f wireFrame) bool { return f.Event == domain.EventParticipantJoined })

	require.NoError(t, examiner.WriteJSON(Command{ID: "c2", Type: CmdStart}))
	require.True(t, readUntil(t, examiner, ackFor("c2")).Success)
	started := readUntil(t, examinee, func(f wireFrame) bool { return f.Event == domain.EventSimulationStarted })
	assert.Greater(t, started.Seq, joined.Snapshot.Seq)

	require.NoError(t, examinee.WriteJSON(Command{ID: "c3", Type: CmdStart}))
	denied := readUntil(t, examinee, ackFor("c3"))
	assert.False(t, denied.Success)
	assert.Equal(t, "AUTHORIZATION", denied.Code)

	require.NoError(t, examinee.WriteMessage(websocket.TextMessage, []byte("not json")))
	bad := readUntil(t, examinee, func(f wireFrame) bool { return f.Type == FrameAck && !f.Success })
	assert.Equal(t, "VALIDATION", bad.Code)
}

func TestHub_DisconnectReleasesRole(t *testing.T) {
	env, srv := newTestServer(t)

	examiner := dial(t, srv, url.Values{"userId": {"instructor-1"}, "role": {"examiner"}, "session": {env.sess.JoinCode()}})
	require.True(t, readUntil(t, examiner, func(f wireFrame) bool { return f.Type == FrameAck }).Success)

	examinee := dial(t, srv, url.Values{"userId": {"student-1"}, "role": {"examinee"}, "session": {env.sess.JoinCode()}})
	require.True(t, readUntil(t, examinee, func(f wireFrame) bool { return f.Type == FrameAck }).Success)

	require.NoError(t, examinee.Close())
	left := readUntil(t, examiner, func(f wireFrame) bool { return f.Event == domain.EventParticipantLeft })
	assert.Equal(t, domain.EventParticipantLeft, left.Event)

	assert.Eventually(t, func() bool {
		for _, r := range env.sess.Summary().Connected {
			if r == domain.RoleExaminee {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

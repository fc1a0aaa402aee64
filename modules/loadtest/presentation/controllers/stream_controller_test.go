package controllers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/unhackeddev/nfury/modules/loadtest/stream"
)

type wsFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dialMetrics(t *testing.T, e *env) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws/metrics"
	conn, res, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if res != nil {
		_ = res.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame wsFrame
	require.NoError(t, json.Unmarshal(raw, &frame), string(raw))
	return frame
}

func TestStreamController_WelcomesNewSubscribers(t *testing.T) {
	e := newEnv(t)
	conn := dialMetrics(t, e)

	frame := readFrame(t, conn)
	require.Equal(t, stream.EventConnected, frame.Event)
	var welcome stream.Welcome
	require.NoError(t, json.Unmarshal(frame.Data, &welcome))
	require.NotEmpty(t, welcome.SubscriberID)
}

func TestStreamController_DeliversRunEvents(t *testing.T) {
	e := newEnv(t)
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer target.Close()

	conn := dialMetrics(t, e)
	require.Equal(t, stream.EventConnected, readFrame(t, conn).Event)

	status, raw := e.request(t, http.MethodPost, "/api/load/start", map[string]any{
		"url":      target.URL,
		"users":    2,
		"requests": 20,
	})
	require.Equal(t, http.StatusOK, status, string(raw))
	var started runResponse
	decodeBody(t, raw, &started)

	var sawMetric bool
	for {
		frame := readFrame(t, conn)
		if frame.Event == stream.EventMetricReceived {
			var sample stream.Sample
			require.NoError(t, json.Unmarshal(frame.Data, &sample))
			require.Equal(t, started.Token, sample.RunToken)
			sawMetric = true
			continue
		}
		if frame.Event == stream.EventTestCompleted {
			var result stream.Result
			require.NoError(t, json.Unmarshal(frame.Data, &result))
			require.Equal(t, started.Token, result.RunToken)
			require.Equal(t, int64(20), result.TotalRequests)
			break
		}
	}
	require.True(t, sawMetric, "expected at least one MetricReceived frame")

	waitForRun(t, e, started.Token)
}

package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		defer conn.Close()

		for {
			data, op, err := wsutil.ReadClientData(conn)
			if err != nil {
				return
			}
			if err := wsutil.WriteServerMessage(conn, op, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws://" + strings.TrimPrefix(srv.URL, "http://")
}

func TestClient_EchoInOrder(t *testing.T) {
	srv := echoServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan map[string]any, 10)
	client, err := Connect(ctx, ClientConfig{
		URL:         wsURL(srv),
		DialTimeout: time.Second,
		OnText: Json(func(x map[string]any) error {
			received <- x
			return nil
		}),
	})
	require.NoError(t, err)
	require.NotNil(t, client)

	require.NoError(t, client.WriteText([]byte(`{"n":1}`)))
	require.NoError(t, client.WriteText([]byte(`{"n":2}`)))

	for _, want := range []float64{1, 2} {
		select {
		case got := <-received:
			require.Equal(t, want, got["n"])
		case <-ctx.Done():
			t.Fatal("timeout waiting for echo")
		}
	}

	closeCtx, closeCancel := context.WithTimeout(ctx, time.Second)
	defer closeCancel()
	_ = client.Close(closeCtx)

	select {
	case <-client.Done():
	case <-ctx.Done():
		t.Fatal("client not done after close")
	}
	require.ErrorIs(t, client.WriteText([]byte("late")), ErrClosed)
}

func TestClient_DialFailure(t *testing.T) {
	_, err := Connect(context.Background(), ClientConfig{
		URL:         "ws://127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
	})
	require.Error(t, err)
}

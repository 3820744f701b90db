package webchat

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"botkit/pkg/config"
	"botkit/pkg/schema"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func startChannel(t *testing.T, cfg config.WebchatConfig, process func(context.Context, *Channel, *schema.Activity) error) (*Channel, *httptest.Server) {
	t.Helper()

	c := New(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, func(ctx context.Context, activity *schema.Activity) error {
			return process(ctx, c, activity)
		})
	}()

	require.Eventually(t, func() bool {
		_, _, ok := c.running()
		return ok
	}, time.Second, 5*time.Millisecond)

	srv := httptest.NewServer(c)
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})

	return c, srv
}

func dial(t *testing.T, srv *httptest.Server, query string, header http.Header) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })

	return ws
}

func readActivity(t *testing.T, ws *websocket.Conn) schema.Activity {
	t.Helper()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var activity schema.Activity
	require.NoError(t, ws.ReadJSON(&activity))
	return activity
}

func echo(ctx context.Context, c *Channel, activity *schema.Activity) error {
	if !activity.IsMessage() {
		return nil
	}
	_, err := c.SendActivities(ctx, nil, []*schema.Activity{activity.CreateReply("echo: " + activity.Text)})
	return err
}

func TestPath(t *testing.T) {
	if got := New(config.WebchatConfig{}, nil).Path(); got != defaultPath {
		t.Fatalf("Path() = %q, want %q", got, defaultPath)
	}
	if got := New(config.WebchatConfig{Path: "chat"}, nil).Path(); got != "/chat" {
		t.Fatalf("Path() = %q, want %q", got, "/chat")
	}
}

func TestServeHTTPBeforeRun(t *testing.T) {
	c := New(config.WebchatConfig{}, nil)

	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/webchat", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	received := make(chan *schema.Activity, 4)
	_, srv := startChannel(t, config.WebchatConfig{}, func(ctx context.Context, c *Channel, activity *schema.Activity) error {
		received <- activity
		return echo(ctx, c, activity)
	})

	ws := dial(t, srv, "conversation=conv-1&user=user-1&name=Ada", nil)

	joined := <-received
	require.Equal(t, schema.ActivityConversationUpdate, joined.Type)
	require.Equal(t, "conv-1", joined.Conversation.ID)
	require.Equal(t, "user-1", joined.From.ID)
	require.Equal(t, "Ada", joined.From.Name)

	require.NoError(t, ws.WriteJSON(map[string]string{"text": " hello ", "channelId": "spoofed"}))

	inbound := <-received
	require.Equal(t, schema.ActivityMessage, inbound.Type)
	require.Equal(t, "hello", inbound.Text)
	require.Equal(t, "webchat", inbound.ChannelID)
	require.NotEmpty(t, inbound.ID)

	reply := readActivity(t, ws)
	require.Equal(t, schema.ActivityMessage, reply.Type)
	require.Equal(t, "echo: hello", reply.Text)
	require.Equal(t, inbound.ID, reply.ReplyToID)
	require.Equal(t, "user-1", reply.Recipient.ID)
	require.NotEmpty(t, reply.ID)
}

func TestProcessingErrorIsSentBack(t *testing.T) {
	_, srv := startChannel(t, config.WebchatConfig{}, func(_ context.Context, _ *Channel, activity *schema.Activity) error {
		if activity.IsMessage() {
			return errors.New("responder unavailable")
		}
		return nil
	})

	ws := dial(t, srv, "conversation=conv-2", nil)
	require.NoError(t, ws.WriteJSON(map[string]string{"text": "hi"}))

	reply := readActivity(t, ws)
	require.Equal(t, "responder unavailable", reply.Text)
}

func TestInvalidPayload(t *testing.T) {
	_, srv := startChannel(t, config.WebchatConfig{}, func(context.Context, *Channel, *schema.Activity) error { return nil })

	ws := dial(t, srv, "conversation=conv-3", nil)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("{not json")))

	reply := readActivity(t, ws)
	require.Equal(t, schema.ActivityEvent, reply.Type)
	require.Equal(t, "error", reply.ChannelData["name"])
}

func TestUpdateAndDeleteReachClient(t *testing.T) {
	joined := make(chan struct{}, 1)
	c, srv := startChannel(t, config.WebchatConfig{}, func(_ context.Context, _ *Channel, activity *schema.Activity) error {
		if activity.Type == schema.ActivityConversationUpdate {
			joined <- struct{}{}
		}
		return nil
	})

	ws := dial(t, srv, "conversation=conv-4", nil)
	<-joined

	ctx := context.Background()
	res, err := c.UpdateActivity(ctx, nil, &schema.Activity{ID: "a1", Text: "edited", Conversation: schema.ConversationAccount{ID: "conv-4"}})
	require.NoError(t, err)
	require.Equal(t, "a1", res.ID)

	updated := readActivity(t, ws)
	require.Equal(t, schema.ActivityMessageUpdate, updated.Type)
	require.Equal(t, "edited", updated.Text)

	require.NoError(t, c.DeleteActivity(ctx, nil, &schema.ConversationReference{ActivityID: "a1", Conversation: schema.ConversationAccount{ID: "conv-4"}}))

	deleted := readActivity(t, ws)
	require.Equal(t, schema.ActivityMessageDelete, deleted.Type)
	require.Equal(t, "a1", deleted.ID)
}

func TestSendToUnknownConversation(t *testing.T) {
	c := New(config.WebchatConfig{}, nil)

	_, err := c.SendActivities(context.Background(), nil, []*schema.Activity{{
		Type:         schema.ActivityMessage,
		Text:         "hi",
		Conversation: schema.ConversationAccount{ID: "missing"},
	}})
	require.Error(t, err)
}

func TestAllowedOrigins(t *testing.T) {
	_, srv := startChannel(t, config.WebchatConfig{AllowedOrigins: []string{"https://ok.example"}}, func(context.Context, *Channel, *schema.Activity) error { return nil })

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	dial(t, srv, "", http.Header{"Origin": []string{"https://ok.example"}})
}

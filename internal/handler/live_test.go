package handler_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/poketrade/internal/auth"
	"github.com/sakif/poketrade/internal/model"
	"github.com/sakif/poketrade/internal/realtime"
)

type frame struct {
	Type  string          `json:"type"`
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

func dial(t *testing.T, api *testAPI, path, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	srv := api.serve(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	header := http.Header{}
	header.Set("Cookie", (&http.Cookie{Name: auth.CookieName, Value: token}).String())

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestLiveHandler_Chat(t *testing.T) {
	f, chat := newChat(t)
	path := "/api/chats/" + chat.ID + "/messages"

	rr := f.api.do(t, http.MethodPost, path, f.ash.Token, map[string]string{"text": "Pikachu for Staryu?"})
	require.Equal(t, http.StatusCreated, rr.Code)

	conn, _, err := dial(t, f.api, "/api/chats/"+chat.ID+"/live", f.misty.Token)
	require.NoError(t, err)

	first := readFrame(t, conn)
	assert.Equal(t, realtime.TypeSnapshot, first.Type)
	assert.Equal(t, realtime.ChatTopic(chat.ID), first.Topic)
	var history []model.Message
	require.NoError(t, json.Unmarshal(first.Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "Pikachu for Staryu?", history[0].Text)

	rr = f.api.do(t, http.MethodPost, path, f.ash.Token, map[string]string{"text": "Deal?"})
	require.Equal(t, http.StatusCreated, rr.Code)

	next := readFrame(t, conn)
	assert.Equal(t, realtime.TypeMessage, next.Type)
	var msg model.Message
	require.NoError(t, json.Unmarshal(next.Data, &msg))
	assert.Equal(t, "Deal?", msg.Text)
	assert.Equal(t, f.ash.User.ID, msg.SenderID)
}

func TestLiveHandler_Notifications(t *testing.T) {
	api := newTestAPI(t)
	ash := api.signUp(t, "Ash")
	brock := api.signUp(t, "Brock")

	conn, _, err := dial(t, api, "/api/live", brock.Token)
	require.NoError(t, err)

	first := readFrame(t, conn)
	assert.Equal(t, realtime.TypeSnapshot, first.Type)
	assert.JSONEq(t, `[]`, string(first.Data))

	rr := api.do(t, http.MethodPost, "/api/friends/"+brock.User.ID, ash.Token, nil)
	require.Equal(t, http.StatusCreated, rr.Code)

	next := readFrame(t, conn)
	assert.Equal(t, realtime.TypeNotification, next.Type)
	assert.Equal(t, realtime.UserTopic(brock.User.ID), next.Topic)
	var n model.Notification
	require.NoError(t, json.Unmarshal(next.Data, &n))
	assert.Equal(t, model.FriendRequest, n.Type)
	assert.Equal(t, ash.User.ID, n.SenderID)
}

func TestLiveHandler_RefusedBeforeUpgrade(t *testing.T) {
	f, chat := newChat(t)
	brock := f.api.signUp(t, "Brock")

	_, resp, err := dial(t, f.api, "/api/chats/"+chat.ID+"/live", brock.Token)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, resp, err = dial(t, f.api, "/api/live", "")
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLiveHandler_Shutdown(t *testing.T) {
	api := newTestAPI(t)
	ash := api.signUp(t, "Ash")
	conn, _, err := dial(t, api, "/api/live", ash.Token)
	require.NoError(t, err)
	readFrame(t, conn)

	api.live.Shutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}

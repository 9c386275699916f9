package handler_test

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/poketrade/internal/model"
)

func newChat(t *testing.T) (*tradeFixture, model.Chat) {
	t.Helper()
	f := newTradeFixture(t)
	f.propose(t)
	resp := f.accept(t)
	require.NotNil(t, resp.Chat)
	return f, *resp.Chat
}

func TestChatHandler_SendAndHistory(t *testing.T) {
	f, chat := newChat(t)
	path := "/api/chats/" + chat.ID + "/messages"

	for i := 1; i <= 5; i++ {
		from := f.ash
		if i%2 == 0 {
			from = f.misty
		}
		rr := f.api.do(t, http.MethodPost, path, from.Token, map[string]string{"text": fmt.Sprintf("  message %d ", i)})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		msg := decode[model.Message](t, rr)
		assert.Equal(t, fmt.Sprintf("message %d", i), msg.Text)
		assert.Equal(t, from.User.ID, msg.SenderID)
	}

	rr := f.api.do(t, http.MethodGet, path+"?limit=2", f.ash.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	page := decode[model.MessagePage](t, rr)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "message 4", page.Messages[0].Text, "the newest page comes first, oldest message first")
	assert.Equal(t, "message 5", page.Messages[1].Text)
	assert.True(t, page.HasMore)

	var texts []string
	for page.HasMore {
		rr = f.api.do(t, http.MethodGet, path+"?limit=2&before="+page.Cursor, f.misty.Token, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		page = decode[model.MessagePage](t, rr)
		for _, m := range page.Messages {
			texts = append(texts, m.Text)
		}
	}
	assert.ElementsMatch(t, []string{"message 1", "message 2", "message 3"}, texts)

	// Each message leaves the other participant a notification.
	rr = f.api.do(t, http.MethodGet, "/api/notifications?unread=true", f.ash.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var pings int
	for _, n := range decode[[]model.Notification](t, rr) {
		if n.Type == model.MessageNotification {
			pings++
		}
	}
	assert.Equal(t, 2, pings)
}

func TestChatHandler_Rejects(t *testing.T) {
	f, chat := newChat(t)
	brock := f.api.signUp(t, "Brock")
	path := "/api/chats/" + chat.ID + "/messages"

	rr := f.api.do(t, http.MethodPost, path, f.ash.Token, map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "text", errorOf(t, rr).Field)

	rr = f.api.do(t, http.MethodPost, path, f.ash.Token, map[string]string{"text": strings.Repeat("a", 2001)})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.api.do(t, http.MethodPost, path, brock.Token, map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	rr = f.api.do(t, http.MethodGet, path, brock.Token, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = f.api.do(t, http.MethodGet, "/api/chats/missing/messages", f.ash.Token, nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = f.api.do(t, http.MethodGet, path+"?limit=x", f.ash.Token, nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

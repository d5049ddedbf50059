package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/darasa/apps/api/echo"
	"github.com/trezcool/darasa/core/notification"
	"github.com/trezcool/darasa/core/realtime"
	"github.com/trezcool/darasa/core/user"
	testutil "github.com/trezcool/darasa/tests"
)

func fanout(t *testing.T, e env, typ notification.Type, title string, recipients ...user.User) []notification.Notification {
	t.Helper()
	ids := make([]string, 0, len(recipients))
	for _, usr := range recipients {
		ids = append(ids, usr.ID)
	}
	notifs, err := e.notifSvc.Fanout(context.Background(), notification.Event{
		Type:         typ,
		RecipientIDs: ids,
		Title:        title,
		Message:      title + "!",
	})
	require.NoError(t, err)
	return notifs
}

func Test_notificationApi_list(t *testing.T) {
	e := setup(t)

	student := testutil.CreateUser(t, e.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, e.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true)
	token := e.getToken(t, student)

	first := fanout(t, e, notification.TypeSystem, "Welcome", student, other)[0]
	second := fanout(t, e, notification.TypeEnrollment, "Enrolled", student)[0]
	third := fanout(t, e, notification.TypeSystem, "Maintenance", student)[0]

	rec := e.do(http.MethodPost, "/api/notifications/"+second.ID+"/read", token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var read notification.Notification
	unmarshal(t, rec, &read)
	assert.True(t, read.IsRead)
	assert.NotNil(t, read.ReadAt)

	ids := func(path string) []string {
		rec := e.do(http.MethodGet, path, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var notifs []notification.Notification
		unmarshal(t, rec, &notifs)
		out := make([]string, 0, len(notifs))
		for _, n := range notifs {
			assert.Equal(t, student.ID, n.UserID)
			out = append(out, n.ID)
		}
		return out
	}

	tests := []struct {
		name string
		path string
		want []string
	}{
		{name: "newest first", path: "/api/notifications", want: []string{third.ID, second.ID, first.ID}},
		{name: "unread only", path: "/api/notifications?unread=true", want: []string{third.ID, first.ID}},
		{name: "by type", path: "/api/notifications?type=system", want: []string{third.ID, first.ID}},
		{name: "unknown type", path: "/api/notifications?type=lol", want: []string{}},
		{name: "paginated", path: "/api/notifications?limit=1&offset=1", want: []string{second.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(tt.path))
		})
	}
}

func Test_notificationApi_readAndDelete(t *testing.T) {
	e := setup(t)

	student := testutil.CreateUser(t, e.usrRepo, "Hero", "hero", "hero@test.cd", "", []string{user.RoleStudent}, true)
	other := testutil.CreateUser(t, e.usrRepo, "Other", "other", "other@test.cd", "", []string{user.RoleStudent}, true)
	token := e.getToken(t, student)

	notifs := fanout(t, e, notification.TypeSystem, "One", student)
	notifs = append(notifs, fanout(t, e, notification.TypeSystem, "Two", student)...)
	notifs = append(notifs, fanout(t, e, notification.TypeSystem, "Three", student)...)
	theirs := fanout(t, e, notification.TypeSystem, "Theirs", other)[0]

	tab := testutil.NewConn(student.ID)
	e.hub.Register(tab)

	unread := func() int {
		var resp echoapi.CountResponse
		unmarshal(t, e.do(http.MethodGet, "/api/notifications/unread-count", token), &resp)
		return resp.Count
	}
	require.Equal(t, 3, unread())

	runHTTPTests(t, e, []httpTest{
		{
			name: "someone else's", method: http.MethodPost, path: "/api/notifications/" + theirs.ID + "/read", token: token,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "this notification is not yours"}),
		},
		{
			name: "unknown", method: http.MethodPost, path: "/api/notifications/nope/read", token: token,
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "notification not found"}),
		},
		{name: "cannot delete someone else's", method: http.MethodDelete, path: "/api/notifications/" + theirs.ID, token: token, wantCode: http.StatusForbidden},
		{name: "mark read", method: http.MethodPost, path: "/api/notifications/" + notifs[0].ID + "/read", token: token},
		{name: "mark read again", method: http.MethodPost, path: "/api/notifications/" + notifs[0].ID + "/read", token: token},
		{name: "delete unread", method: http.MethodDelete, path: "/api/notifications/" + notifs[1].ID, token: token, wantCode: http.StatusNoContent},
		{name: "deleted", method: http.MethodDelete, path: "/api/notifications/" + notifs[1].ID, token: token, wantCode: http.StatusNotFound},
	})
	assert.Equal(t, 1, unread())

	badges := tab.Events(realtime.EventNotificationUnread)
	require.Len(t, badges, 2, "one badge refresh per actual change")

	rec := e.do(http.MethodPost, "/api/notifications/read-all", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp echoapi.CountResponse
	unmarshal(t, rec, &resp)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 0, unread())

	rec = e.do(http.MethodPost, "/api/notifications/read-all", token)
	unmarshal(t, rec, &resp)
	assert.Equal(t, 0, resp.Count, "nothing left to read")
	assert.Len(t, tab.Events(realtime.EventNotificationUnread), 3)
}

func Test_notificationApi_delivery(t *testing.T) {
	e := setup(t)

	online := testutil.CreateUser(t, e.usrRepo, "Online", "online", "online@test.cd", "", []string{user.RoleStudent}, true)
	offline := testutil.CreateUser(t, e.usrRepo, "Offline", "offline", "offline@test.cd", "", []string{user.RoleStudent}, true)
	tab := testutil.NewConn(online.ID)
	e.hub.Register(tab)

	fanout(t, e, notification.TypeSystem, "Hello", online, offline)

	pushed := tab.Events(realtime.EventNotificationCreated)
	require.Len(t, pushed, 1)
	n, ok := pushed[0].Payload.(notification.Notification)
	require.True(t, ok)
	assert.Equal(t, online.ID, n.UserID)

	sent := e.mailSvc.SentMessages()
	require.Len(t, sent, 1, "only the offline recipient is mailed")
	assert.Equal(t, offline.Email, sent[0].To[0].Address)
	assert.Equal(t, "Hello", sent[0].Subject)
}

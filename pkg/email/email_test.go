package email

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageValidate(t *testing.T) {
	msg := Message{To: []mail.Address{{Address: "stu@college.local"}}, Subject: "hi", Text: "body"}
	require.NoError(t, msg.Validate())

	require.Error(t, Message{Subject: "hi", Text: "body"}.Validate())
	require.Error(t, Message{To: msg.To, Text: "body"}.Validate())
	require.Error(t, Message{To: msg.To, Subject: "hi"}.Validate())
	require.Error(t, Message{To: []mail.Address{{Address: "nope"}}, Subject: "hi", Text: "b"}.Validate())
}

func TestConsoleSenderRecords(t *testing.T) {
	sender := NewConsoleSender(nil)
	msg := Message{To: []mail.Address{{Name: "Asha", Address: "asha@college.local"}}, Subject: "Cleared", Text: "ok"}
	require.NoError(t, sender.Send(context.Background(), msg))
	require.Len(t, sender.Sent(), 1)
	require.Equal(t, "Cleared", sender.Sent()[0].Subject)
}

func TestSendgridPrepare(t *testing.T) {
	sender := NewSendgridSender("key", mail.Address{Name: "No-Dues", Address: "no-reply@college.local"}, "NoDues")
	m := sender.prepare(Message{To: []mail.Address{{Address: "a@college.local"}}, Subject: "Status", Text: "t"})

	require.Equal(t, "no-reply@college.local", m.From.Address)
	require.Len(t, m.Personalizations, 1)
	require.Equal(t, "[NoDues] Status", m.Personalizations[0].Subject)
	require.Len(t, m.Content, 1)

	require.Error(t, NewSendgridSender("", mail.Address{Address: "x@y.z"}, "").Send(context.Background(), Message{
		To: []mail.Address{{Address: "a@college.local"}}, Subject: "s", Text: "t",
	}))
}

func TestSendgridSendPostsToAPI(t *testing.T) {
	var hits int32
	status := int32(http.StatusAccepted)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, sendgridEndpoint, r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		w.WriteHeader(int(atomic.LoadInt32(&status)))
	}))
	defer srv.Close()

	sender := NewSendgridSender("key", mail.Address{Address: "no-reply@college.local"}, "")
	sender.host = srv.URL
	msg := Message{To: []mail.Address{{Address: "a@college.local"}}, Subject: "s", Text: "t"}

	require.NoError(t, sender.Send(context.Background(), msg))
	require.EqualValues(t, 1, atomic.LoadInt32(&hits))

	atomic.StoreInt32(&status, http.StatusBadRequest)
	require.Error(t, sender.Send(context.Background(), msg))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sender.Send(ctx, msg), context.Canceled)
	require.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

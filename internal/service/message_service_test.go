package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"dmchat/internal/domain"
	"dmchat/internal/realtime"
	"dmchat/internal/repository"
	"dmchat/internal/storage"
)

type messageFixture struct {
	svc    *MessageService
	repo   *repository.MemoryMessageRepository
	users  repository.UserRepository
	pusher *recordingPusher
	store  *recordingStore
}

func newMessageFixture(t *testing.T) *messageFixture {
	t.Helper()
	clock := &steppingClock{cur: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	repo := repository.NewMemoryMessageRepositoryWithClock(clock.Now)
	users := repository.NewMemoryUserRepository()
	seedUsers(t, users,
		testUser("alice", "Alice", "Doe", "/avatars/alice.png"),
		testUser("bob", "", "", ""),
	)
	pusher := &recordingPusher{online: map[string]int{"bob": 1}}
	store := &recordingStore{}
	svc := NewMessageService(repo, users, store, pusher, nil, NewTimeFormatter(time.UTC), "/assets/user.png", nil)
	return &messageFixture{svc: svc, repo: repo, users: users, pusher: pusher, store: store}
}

func TestSend_EchoesTrimmedContentAndPushesToReceiverOnly(t *testing.T) {
	f := newMessageFixture(t)

	view, err := f.svc.Send(context.Background(), SendInput{SenderID: "alice", ReceiverID: "bob", Content: "  hello  "})
	require.NoError(t, err)
	require.Equal(t, "hello", view.Content)
	require.Nil(t, view.ImageURL)
	require.Equal(t, "09:01", view.Time)
	require.Equal(t, 1, f.repo.Len())

	require.Len(t, f.pusher.pushes, 1)
	call := f.pusher.pushes[0]
	require.Equal(t, "bob", call.userID)
	require.Equal(t, domain.EventReceiveMessage, call.event)
	payload, ok := call.payload.(domain.DeliveryPayload)
	require.True(t, ok)
	require.Equal(t, view.ID, payload.ID)
	require.Equal(t, "alice", payload.SenderID)
	require.Equal(t, "bob", payload.ReceiverID)
	require.Equal(t, "04/05/2026", payload.Date)
	require.Equal(t, "/avatars/alice.png", payload.SenderAvatar)
}

func TestSend_SenderWithoutAvatarUsesDefault(t *testing.T) {
	f := newMessageFixture(t)

	_, err := f.svc.Send(context.Background(), SendInput{SenderID: "bob", ReceiverID: "alice", Content: "hey"})
	require.NoError(t, err)
	require.Len(t, f.pusher.pushes, 1)
	require.Equal(t, "/assets/user.png", f.pusher.pushes[0].payload.(domain.DeliveryPayload).SenderAvatar)
}

func TestSend_AttachmentOnlyStoresPlaceholder(t *testing.T) {
	f := newMessageFixture(t)

	view, err := f.svc.Send(context.Background(), SendInput{
		SenderID:   "alice",
		ReceiverID: "bob",
		Content:    "   ",
		Attachment: &Attachment{Name: "cat.PNG", ContentType: "image/png", Data: pngHeader},
	})
	require.NoError(t, err)
	require.Equal(t, ImagePlaceholder, view.Content)
	require.NotNil(t, view.ImageURL)
	require.Equal(t, f.store.names[0], *view.ImageURL)

	stored, err := f.repo.ListBetween(context.Background(), "alice", "bob")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, ImagePlaceholder, stored[0].Content)
	require.True(t, stored[0].HasAttachment())
}

func TestSend_EmptyMessageRejectedWithoutPersisting(t *testing.T) {
	f := newMessageFixture(t)

	for _, in := range []SendInput{
		{SenderID: "alice", ReceiverID: "bob", Content: ""},
		{SenderID: "alice", ReceiverID: "bob", Content: " \t\n"},
		{SenderID: "alice", ReceiverID: "bob", Content: "", Attachment: &Attachment{Name: "x.png", ContentType: "image/png"}},
	} {
		_, err := f.svc.Send(context.Background(), in)
		require.ErrorIs(t, err, ErrEmptyMessage)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr))
		require.Equal(t, KindEmptyMessage, verr.Kind)
	}
	require.Equal(t, 0, f.repo.Len())
	require.Empty(t, f.pusher.pushes)
}

func TestSend_OversizedAttachmentRejected(t *testing.T) {
	f := newMessageFixture(t)

	data := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 6<<20)...)
	_, err := f.svc.Send(context.Background(), SendInput{
		SenderID:   "alice",
		ReceiverID: "bob",
		Attachment: &Attachment{Name: "big.png", ContentType: "image/png", Data: data},
	})
	require.ErrorIs(t, err, ErrAttachmentTooLarge)
	require.Equal(t, 0, f.repo.Len())
	require.Equal(t, 0, f.store.calls)
	require.Empty(t, f.pusher.pushes)
}

func TestSend_UnsupportedAttachmentType(t *testing.T) {
	f := newMessageFixture(t)

	cases := []Attachment{
		{Name: "doc.pdf", ContentType: "application/pdf", Data: []byte("%PDF-1.4 fake")},
		{Name: "fake.png", ContentType: "image/png", Data: []byte("just some text pretending")},
		{Name: "anim.webp", ContentType: "IMAGE/WEBP", Data: pngHeader},
	}
	for _, att := range cases {
		att := att
		_, err := f.svc.Send(context.Background(), SendInput{SenderID: "alice", ReceiverID: "bob", Content: "look", Attachment: &att})
		require.ErrorIs(t, err, ErrUnsupportedAttachmentType, att.Name)
	}
	require.Equal(t, 0, f.repo.Len())
	require.Equal(t, 0, f.store.calls)
}

func TestSend_AcceptsDeclaredTypeWithParams(t *testing.T) {
	f := newMessageFixture(t)

	gif := []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00\xff\xff\xff\x00\x00\x00!\xf9\x04\x01\x00\x00\x00\x00,\x00\x00\x00\x00\x01\x00\x01\x00\x00\x02\x02D\x01\x00;")
	_, err := f.svc.Send(context.Background(), SendInput{
		SenderID:   "alice",
		ReceiverID: "bob",
		Content:    "gif",
		Attachment: &Attachment{Name: "a.gif", ContentType: "Image/GIF; charset=binary", Data: gif},
	})
	require.NoError(t, err)
	require.Equal(t, 1, f.store.calls)
}

func TestSend_InvalidReceiver(t *testing.T) {
	f := newMessageFixture(t)

	for _, receiver := range []string{"", "alice", "ghost"} {
		_, err := f.svc.Send(context.Background(), SendInput{SenderID: "alice", ReceiverID: receiver, Content: "hi"})
		require.ErrorIs(t, err, ErrInvalidReceiver, "receiver %q", receiver)
	}
	require.Equal(t, 0, f.repo.Len())
}

func TestSend_IdentityMissing(t *testing.T) {
	f := newMessageFixture(t)

	_, err := f.svc.Send(context.Background(), SendInput{SenderID: " ", ReceiverID: "bob", Content: "hi"})
	require.ErrorIs(t, err, ErrIdentityMissing)
	require.Equal(t, "Not authenticated", NewSendResult(domain.MessageView{}, err).Error)
}

func TestSend_RateLimited(t *testing.T) {
	f := newMessageFixture(t)
	f.svc.limiter = denyAllLimiter{}

	_, err := f.svc.Send(context.Background(), SendInput{SenderID: "alice", ReceiverID: "bob", Content: "spam"})
	require.ErrorIs(t, err, ErrSendRateLimited)
	require.Equal(t, 0, f.repo.Len())
	require.Empty(t, f.pusher.pushes)
}

func TestSend_StorageFailureDoesNotPersist(t *testing.T) {
	f := newMessageFixture(t)
	f.store.err = errors.New("disk full")

	_, err := f.svc.Send(context.Background(), SendInput{
		SenderID:   "alice",
		ReceiverID: "bob",
		Attachment: &Attachment{Name: "cat.png", ContentType: "image/png", Data: pngHeader},
	})
	require.Error(t, err)
	require.Equal(t, 0, f.repo.Len())
	require.Empty(t, f.pusher.pushes)

	f.svc.attachments = nil
	_, err = f.svc.Send(context.Background(), SendInput{
		SenderID:   "alice",
		ReceiverID: "bob",
		Attachment: &Attachment{Name: "cat.png", ContentType: "image/png", Data: pngHeader},
	})
	require.ErrorIs(t, err, storage.ErrStorageNotConfigured)
}

func TestSend_PersistenceFailureBecomesGenericResult(t *testing.T) {
	f := newMessageFixture(t)
	f.svc.repo = failingMessageRepo{}

	view, err := f.svc.Send(context.Background(), SendInput{SenderID: "alice", ReceiverID: "bob", Content: "hi"})
	require.ErrorIs(t, err, repository.ErrPersistence)
	require.Empty(t, f.pusher.pushes)

	res := NewSendResult(view, err)
	require.False(t, res.Success)
	require.Nil(t, res.Message)
	require.Equal(t, sendFailedReason, res.Error)
}

func TestSend_PersistenceFailureLogsOrphanedAttachment(t *testing.T) {
	f := newMessageFixture(t)
	core, logs := observer.New(zap.ErrorLevel)
	f.svc.logger = zap.New(core)
	f.svc.repo = failingMessageRepo{}

	_, err := f.svc.Send(context.Background(), SendInput{
		SenderID:   "alice",
		ReceiverID: "bob",
		Attachment: &Attachment{Name: "cat.png", ContentType: "image/png", Data: pngHeader},
	})
	require.ErrorIs(t, err, repository.ErrPersistence)
	require.Len(t, f.store.names, 1)

	orphaned := logs.FilterMessage("orphaned attachment").All()
	require.Len(t, orphaned, 1)
	require.Equal(t, f.store.names[0], orphaned[0].ContextMap()["attachment_ref"])
}

func TestNewSendResult(t *testing.T) {
	ok := NewSendResult(domain.MessageView{ID: 7, Content: "hi"}, nil)
	require.True(t, ok.Success)
	require.Equal(t, int64(7), ok.Message.ID)

	rejected := NewSendResult(domain.MessageView{}, newValidationError(KindAttachmentTooLarge, "Image must not exceed 5MB"))
	require.False(t, rejected.Success)
	require.Equal(t, "Image must not exceed 5MB", rejected.Error)
}

func TestHistory_MarksReadAndFlagsOwnMessages(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	_, err := f.svc.Send(ctx, SendInput{SenderID: "bob", ReceiverID: "alice", Content: "first"})
	require.NoError(t, err)
	before, err := f.repo.CountUnread(ctx, "bob")
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, SendInput{SenderID: "alice", ReceiverID: "bob", Content: "hello"})
	require.NoError(t, err)
	after, err := f.repo.CountUnread(ctx, "bob")
	require.NoError(t, err)
	require.Equal(t, before+1, after)

	history, err := f.svc.History(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.True(t, history[0].IsOwn)
	lastEntry := history[len(history)-1]
	require.Equal(t, "hello", lastEntry.Content)
	require.False(t, lastEntry.IsOwn)
	require.Equal(t, "alice", lastEntry.SenderID)

	unread, err := f.svc.UnreadTotal(ctx, "bob")
	require.NoError(t, err)
	require.Zero(t, unread)

	// alice todavía no leyó "first".
	unread, err = f.svc.UnreadTotal(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, int64(1), unread)
}

func TestHistory_EdgeCases(t *testing.T) {
	f := newMessageFixture(t)

	_, err := f.svc.History(context.Background(), "", "bob")
	require.ErrorIs(t, err, ErrIdentityMissing)

	entries, err := f.svc.History(context.Background(), "alice", " ")
	require.NoError(t, err)
	require.Empty(t, entries)

	f.svc.repo = failingMessageRepo{}
	_, err = f.svc.History(context.Background(), "alice", "bob")
	require.ErrorIs(t, err, repository.ErrPersistence)
}

func TestSend_ReceiverOfflineStillRetrievable(t *testing.T) {
	f := newMessageFixture(t)
	hub := realtime.NewHub(nil)
	defer hub.Close()
	f.svc.pusher = hub

	_, err := f.svc.Send(context.Background(), SendInput{SenderID: "alice", ReceiverID: "bob", Content: "are you there?"})
	require.NoError(t, err)

	history, err := f.svc.History(context.Background(), "bob", "alice")
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.Equal(t, "are you there?", history[0].Content)
}

func TestDelete_OnlySenderCanHide(t *testing.T) {
	f := newMessageFixture(t)
	ctx := context.Background()

	view, err := f.svc.Send(ctx, SendInput{SenderID: "alice", ReceiverID: "bob", Content: "oops"})
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Delete(ctx, "bob", view.ID), repository.ErrNotFound)
	require.ErrorIs(t, f.svc.Delete(ctx, "", view.ID), ErrIdentityMissing)
	require.ErrorIs(t, f.svc.Delete(ctx, "alice", 0), repository.ErrNotFound)
	require.NoError(t, f.svc.Delete(ctx, "alice", view.ID))

	history, err := f.svc.History(ctx, "bob", "alice")
	require.NoError(t, err)
	require.Empty(t, history)
	unread, err := f.svc.UnreadTotal(ctx, "bob")
	require.NoError(t, err)
	require.Zero(t, unread)
	require.Equal(t, 1, f.repo.Len())
}

func TestSignalTyping(t *testing.T) {
	f := newMessageFixture(t)

	n, err := f.svc.SignalTyping("alice", "bob")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, [][2]string{{"alice", "bob"}}, f.pusher.typing)

	_, err = f.svc.SignalTyping("alice", "alice")
	require.ErrorIs(t, err, ErrInvalidReceiver)
	_, err = f.svc.SignalTyping("", "bob")
	require.ErrorIs(t, err, ErrIdentityMissing)
	require.Len(t, f.pusher.typing, 1)
}

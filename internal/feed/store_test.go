package feed_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pawnest/companion/internal/api"
	"github.com/pawnest/companion/internal/feed"
	"github.com/pawnest/companion/internal/model"
	"github.com/pawnest/companion/internal/store"
	"github.com/pawnest/companion/tests/testutil"
)

// fakeIdentity is a mutable identity provider for tests.
type fakeIdentity struct {
	mu    sync.Mutex
	user  *model.User
	token string
}

func (f *fakeIdentity) CurrentUser() *model.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.user
}

func (f *fakeIdentity) Token(userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token == "" {
		return "", errors.New("no token stored")
	}
	return f.token, nil
}

func (f *fakeIdentity) setUser(u *model.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.user = u
}

func sitter(id string) *model.User {
	return &model.User{ID: id, Name: "Sam", Role: model.RoleSitter}
}

func owner(id string) *model.User {
	return &model.User{ID: id, Name: "Olive", Role: model.RoleOwner}
}

// newOfflineStore builds a feed store whose identity has no credential,
// so every operation stays on the local path.
func newOfflineStore(t *testing.T, provider *fakeIdentity) *feed.Store {
	t.Helper()
	kv := testutil.NewTestStore(t)
	client := api.NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	s := feed.NewStore(kv, client, provider, zap.NewNop(), feed.DefaultDebounce)
	t.Cleanup(s.Close)
	return s
}

// newRemoteStore builds a feed store backed by the given test server.
func newRemoteStore(t *testing.T, provider *fakeIdentity, serverURL string) *feed.Store {
	t.Helper()
	kv := testutil.NewTestStore(t)
	client := api.NewClient(serverURL, time.Second)
	s := feed.NewStore(kv, client, provider, zap.NewNop(), feed.DefaultDebounce)
	t.Cleanup(s.Close)
	return s
}

// flakyKV wraps a real KV and fails writes on demand.
type flakyKV struct {
	inner store.KV

	mu      sync.Mutex
	failSet bool
}

func (f *flakyKV) setFail(v bool) {
	f.mu.Lock()
	f.failSet = v
	f.mu.Unlock()
}

func (f *flakyKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return f.inner.Get(ctx, key)
}

func (f *flakyKV) Set(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	failing := f.failSet
	f.mu.Unlock()
	if failing {
		return errors.New("disk full")
	}
	return f.inner.Set(ctx, key, value)
}

func (f *flakyKV) Delete(ctx context.Context, key string) error {
	return f.inner.Delete(ctx, key)
}

// waitForPush receives one subscriber broadcast or fails the test.
func waitForPush(t *testing.T, ch <-chan []model.Notification) []model.Notification {
	t.Helper()
	select {
	case list := <-ch:
		return list
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscriber broadcast")
		return nil
	}
}

func TestAppendListRoundTrip(t *testing.T) {
	s := newOfflineStore(t, &fakeIdentity{user: sitter("U1")})
	ctx := context.Background()

	input := model.NotificationInput{
		Type:    model.TypeBooking,
		Title:   "Booking confirmed",
		Message: "Your stay with Max is confirmed",
		Action:  "View booking",
		Data:    map[string]any{"status": model.BookingConfirmed},
	}
	created := s.Append(ctx, input)

	require.NotEmpty(t, created.ID)
	require.NotEmpty(t, created.Time)
	require.False(t, created.IsRead)

	list := s.List(ctx)
	require.Len(t, list, 1)

	got := list[0]
	require.Equal(t, input.Type, got.Type)
	require.Equal(t, input.Title, got.Title)
	require.Equal(t, input.Message, got.Message)
	require.Equal(t, input.Action, got.Action)
	require.Equal(t, input.Data, got.Data)
	require.Empty(t, got.UserID)
	require.False(t, got.IsRead)
}

func TestAppendOrderingNewestFirst(t *testing.T) {
	s := newOfflineStore(t, &fakeIdentity{user: sitter("U1")})
	ctx := context.Background()

	a := s.Append(ctx, model.NotificationInput{Type: model.TypeMessage, Title: "a"})
	b := s.Append(ctx, model.NotificationInput{Type: model.TypeMessage, Title: "b"})

	list := s.List(ctx)
	require.Len(t, list, 2)
	require.Equal(t, b.ID, list[0].ID)
	require.Equal(t, a.ID, list[1].ID)
}

func TestAppendIDsUnique(t *testing.T) {
	s := newOfflineStore(t, &fakeIdentity{user: sitter("U1")})
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 25; i++ {
		n := s.Append(ctx, model.NotificationInput{Type: model.TypeSystem, Title: "t"})
		require.False(t, seen[n.ID], "duplicate id %s", n.ID)
		seen[n.ID] = true
	}
}

func TestMarkAllReadIdempotent(t *testing.T) {
	s := newOfflineStore(t, &fakeIdentity{user: sitter("U1")})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		s.Append(ctx, model.NotificationInput{Type: model.TypeMessage, Title: "m"})
	}

	s.MarkAllRead(ctx)
	first := s.List(ctx)

	s.MarkAllRead(ctx)
	second := s.List(ctx)

	require.Equal(t, first, second)
	for _, n := range second {
		require.True(t, n.IsRead)
	}
	require.Zero(t, s.UnreadCount(ctx))
}

func TestMarkReadSingle(t *testing.T) {
	s := newOfflineStore(t, &fakeIdentity{user: sitter("U1")})
	ctx := context.Background()

	a := s.Append(ctx, model.NotificationInput{Type: model.TypeMessage, Title: "a"})
	s.Append(ctx, model.NotificationInput{Type: model.TypeMessage, Title: "b"})

	s.MarkRead(ctx, a.ID)

	list := s.List(ctx)
	require.Len(t, list, 2)
	for _, n := range list {
		require.Equal(t, n.ID == a.ID, n.IsRead)
	}
	require.Equal(t, 1, s.UnreadCount(ctx))

	// Marking an absent id is a no-op.
	s.MarkRead(ctx, "nope")
	require.Equal(t, 1, s.UnreadCount(ctx))
}

func TestTargetedNotificationVisibility(t *testing.T) {
	provider := &fakeIdentity{user: sitter("U1")}
	s := newOfflineStore(t, provider)
	ctx := context.Background()

	s.AppendFor(ctx, model.NotificationInput{
		Type:  model.TypeReview,
		Title: "New review",
	}, "U1")

	require.Len(t, s.List(ctx), 1)

	// Any other identity must not see it, regardless of role.
	provider.setUser(sitter("U2"))
	require.Empty(t, s.List(ctx))

	provider.setUser(owner("U3"))
	require.Empty(t, s.List(ctx))
}

func TestFilterFailsOpenWithoutIdentity(t *testing.T) {
	provider := &fakeIdentity{user: sitter("U1")}
	s := newOfflineStore(t, provider)
	ctx := context.Background()

	s.AppendFor(ctx, model.NotificationInput{
		Type:  model.TypeMessage,
		Title: "private",
	}, "U1")

	provider.setUser(nil)
	require.Len(t, s.List(ctx), 1)
}

func TestListDebouncesRemoteFetch(t *testing.T) {
	var fetches int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		fetches++
		mu.Unlock()
		w.Write([]byte(`{"success":true,"notifications":[]}`))
	}))
	defer srv.Close()

	provider := &fakeIdentity{user: sitter("U1"), token: "tok"}
	s := newRemoteStore(t, provider, srv.URL)
	ctx := context.Background()

	s.List(ctx)
	s.List(ctx)

	mu.Lock()
	require.Equal(t, 1, fetches)
	mu.Unlock()

	// Refresh resets the debounce window and forces another attempt.
	s.Refresh(ctx)

	mu.Lock()
	require.Equal(t, 2, fetches)
	mu.Unlock()
}

func TestDeletePreservesOrder(t *testing.T) {
	s := newOfflineStore(t, &fakeIdentity{user: sitter("U1")})
	ctx := context.Background()

	a := s.Append(ctx, model.NotificationInput{Type: model.TypeMessage, Title: "a"})
	b := s.Append(ctx, model.NotificationInput{Type: model.TypeMessage, Title: "b"})
	c := s.Append(ctx, model.NotificationInput{Type: model.TypeMessage, Title: "c"})

	s.Delete(ctx, b.ID)

	list := s.List(ctx)
	require.Len(t, list, 2)
	require.Equal(t, c.ID, list[0].ID)
	require.Equal(t, a.ID, list[1].ID)
}

func TestDeleteAbsentIDStillBroadcasts(t *testing.T) {
	s := newOfflineStore(t, &fakeIdentity{user: sitter("U1")})
	ctx := context.Background()

	a := s.Append(ctx, model.NotificationInput{Type: model.TypeMessage, Title: "a"})

	pushes := make(chan []model.Notification, 4)
	unsubscribe := s.Subscribe(func(list []model.Notification) {
		pushes <- list
	})
	defer unsubscribe()

	s.Delete(ctx, "not-there")

	got := waitForPush(t, pushes)
	require.Len(t, got, 1)
	require.Equal(t, a.ID, got[0].ID)
}

func TestRemoteFeedReplacesLocalList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"success": true,
			"notifications": [
				{"id": 7, "type": "booking", "title": "X", "message": "Y", "created_at": "t0"}
			]
		}`))
	}))
	defer srv.Close()

	provider := &fakeIdentity{user: sitter("U1"), token: "tok"}
	s := newRemoteStore(t, provider, srv.URL)
	ctx := context.Background()

	// A local-only entry that the remote replace must discard.
	s.Append(ctx, model.NotificationInput{Type: model.TypeSystem, Title: "local-only"})

	list := s.Refresh(ctx)
	require.Len(t, list, 1)

	got := list[0]
	require.Equal(t, "7", got.ID)
	require.Equal(t, model.TypeBooking, got.Type)
	require.Equal(t, "X", got.Title)
	require.Equal(t, "Y", got.Message)
	require.Equal(t, "t0", got.Time)
	require.False(t, got.IsRead)
	require.Nil(t, got.Data)

	// The replacement is durable: a debounced follow-up read serves the
	// persisted list, not the discarded local entry.
	again := s.List(ctx)
	require.Equal(t, list, again)
}

func TestEmptyRemoteFeedFallsBackToLocal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"notifications":[]}`))
	}))
	defer srv.Close()

	provider := &fakeIdentity{user: sitter("U1"), token: "tok"}
	s := newRemoteStore(t, provider, srv.URL)
	ctx := context.Background()

	local := s.Append(ctx, model.NotificationInput{Type: model.TypeMessage, Title: "kept"})

	list := s.Refresh(ctx)
	require.Len(t, list, 1)
	require.Equal(t, local.ID, list[0].ID)
}

func TestClearAllBroadcastsEmptyFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	provider := &fakeIdentity{user: sitter("U1"), token: "tok"}
	s := newRemoteStore(t, provider, srv.URL)
	ctx := context.Background()

	s.Append(ctx, model.NotificationInput{Type: model.TypeMessage, Title: "m"})

	pushes := make(chan []model.Notification, 4)
	unsubscribe := s.Subscribe(func(list []model.Notification) {
		pushes <- list
	})
	defer unsubscribe()

	s.ClearAll(ctx)
	require.Empty(t, waitForPush(t, pushes))

	// With the remote failing, the list stays empty and never errors.
	require.Empty(t, s.Refresh(ctx))
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	s := newOfflineStore(t, &fakeIdentity{user: sitter("U1")})
	ctx := context.Background()

	var calls1, calls2 int
	var mu sync.Mutex
	done := make(chan struct{}, 8)

	unsub1 := s.Subscribe(func([]model.Notification) {
		mu.Lock()
		calls1++
		mu.Unlock()
		done <- struct{}{}
	})
	unsub2 := s.Subscribe(func([]model.Notification) {
		mu.Lock()
		calls2++
		mu.Unlock()
		done <- struct{}{}
	})

	s.Append(ctx, model.NotificationInput{Type: model.TypeMessage, Title: "a"})
	<-done
	<-done

	unsub1()
	unsub1() // second call is a no-op

	s.Append(ctx, model.NotificationInput{Type: model.TypeMessage, Title: "b"})
	<-done

	mu.Lock()
	require.Equal(t, 1, calls1)
	require.Equal(t, 2, calls2)
	mu.Unlock()

	unsub2()
}

func TestBroadcastsArriveInMutationOrder(t *testing.T) {
	s := newOfflineStore(t, &fakeIdentity{user: sitter("U1")})
	ctx := context.Background()

	var mu sync.Mutex
	var last []model.Notification
	calls := 0
	done := make(chan struct{}, 4)

	unsubscribe := s.Subscribe(func(list []model.Notification) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			// Stall the first delivery; a racy fan-out would let the
			// second one overtake it.
			time.Sleep(300 * time.Millisecond)
		}
		mu.Lock()
		last = append([]model.Notification(nil), list...)
		mu.Unlock()
		done <- struct{}{}
	})
	defer unsubscribe()

	n := s.Append(ctx, model.NotificationInput{Type: model.TypeMessage, Title: "a"})
	s.Delete(ctx, n.ID)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for deliveries")
		}
	}

	// The last delivery must reflect the last mutation: the empty
	// post-delete list, not the stalled append snapshot.
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 2, calls)
	require.Empty(t, last)
}

func TestMutationSkipsBroadcastWhenPersistFails(t *testing.T) {
	kv := &flakyKV{inner: testutil.NewTestStore(t)}
	client := api.NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	s := feed.NewStore(kv, client, &fakeIdentity{user: sitter("U1")}, zap.NewNop(), feed.DefaultDebounce)
	t.Cleanup(s.Close)
	ctx := context.Background()

	n := s.Append(ctx, model.NotificationInput{Type: model.TypeMessage, Title: "kept"})

	pushes := make(chan []model.Notification, 4)
	unsubscribe := s.Subscribe(func(list []model.Notification) {
		pushes <- list
	})
	defer unsubscribe()

	kv.setFail(true)
	s.Delete(ctx, n.ID)

	select {
	case <-pushes:
		t.Fatal("subscribers were shown state that was never persisted")
	case <-time.After(200 * time.Millisecond):
	}

	// The canonical list still holds the record the failed delete
	// tried to drop.
	kv.setFail(false)
	list := s.List(ctx)
	require.Len(t, list, 1)
	require.Equal(t, n.ID, list[0].ID)
}

func TestMarkReadNotifiesRemoteBestEffort(t *testing.T) {
	markCalls := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			markCalls <- r.URL.Path
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write([]byte(`{"success":true,"notifications":[]}`))
	}))
	defer srv.Close()

	provider := &fakeIdentity{user: sitter("U1"), token: "tok"}
	s := newRemoteStore(t, provider, srv.URL)
	ctx := context.Background()

	n := s.Append(ctx, model.NotificationInput{Type: model.TypeMessage, Title: "m"})
	s.MarkRead(ctx, n.ID)

	select {
	case path := <-markCalls:
		require.Equal(t, "/api/notifications/"+n.ID+"/read", path)
	case <-time.After(2 * time.Second):
		t.Fatal("remote mark-read was never attempted")
	}

	// Local state updated regardless of what the remote said.
	list := s.List(ctx)
	require.True(t, list[0].IsRead)
}

package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pawnest/companion/internal/api"
	"github.com/pawnest/companion/internal/identity"
	"github.com/pawnest/companion/internal/model"
	"github.com/pawnest/companion/internal/store"
)

// DefaultDebounce is the minimum gap between remote fetch attempts.
// It is a rate limit, not a cache: a debounced call falls back to the
// local list instead of reusing a prior remote result.
const DefaultDebounce = 3 * time.Second

// remoteTimeout bounds the fire-and-forget read-marking calls, which
// run detached from the caller's context.
const remoteTimeout = 15 * time.Second

// Subscriber receives the full identity-filtered notification list
// after every feed mutation.
type Subscriber func([]model.Notification)

type subscription struct {
	fn Subscriber
}

// Store owns the canonical notification list. Every operation follows
// the same cycle: load the full unfiltered list from the durable
// store (preferring the remote feed when not debounced), apply the
// mutation, persist, then push the identity-filtered view to all
// subscribers. Public methods never fail: remote, storage, and
// identity problems are logged and degrade to safe defaults.
type Store struct {
	kv       store.KV
	client   *api.Client
	identity identity.Provider
	logger   *zap.Logger
	debounce time.Duration

	// mu serializes every read-modify-write cycle so that two
	// concurrent mutations cannot interleave their load and persist
	// steps and silently drop one of the writes.
	mu        sync.Mutex
	lastFetch time.Time

	subMu   sync.Mutex
	subs    []*subscription
	pending []delivery

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// delivery is one queued broadcast: the subscriber snapshot taken at
// mutation time plus the filtered list to hand them.
type delivery struct {
	subs []*subscription
	list []model.Notification
}

// NewStore creates the feed store. A debounce of zero or less selects
// DefaultDebounce.
func NewStore(
	kv store.KV,
	client *api.Client,
	provider identity.Provider,
	logger *zap.Logger,
	debounce time.Duration,
) *Store {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	s := &Store{
		kv:       kv,
		client:   client,
		identity: provider,
		logger:   logger,
		debounce: debounce,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go s.deliverLoop()
	return s
}

// Subscribe registers fn to receive the filtered notification list on
// every future mutation. The returned function removes exactly this
// registration; calling it more than once is a no-op. Subscribing the
// same callback twice yields two independent registrations.
func (s *Store) Subscribe(fn Subscriber) (unsubscribe func()) {
	sub := &subscription{fn: fn}

	s.subMu.Lock()
	s.subs = append(s.subs, sub)
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			for i, cur := range s.subs {
				if cur == sub {
					s.subs = append(s.subs[:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Close drops all subscriber registrations and stops the delivery
// goroutine. Called at process teardown; the durable list is left
// as-is.
func (s *Store) Close() {
	s.subMu.Lock()
	s.subs = nil
	s.pending = nil
	s.subMu.Unlock()
	s.closeOnce.Do(func() { close(s.done) })
}

// List returns the identity-filtered notification list. It attempts a
// remote fetch first; a non-empty remote feed fully replaces the
// local list. A debounced, unauthenticated, failed, or empty fetch
// falls back to the durable store.
func (s *Store) List(ctx context.Context) []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(ctx)
}

// Refresh is List with the debounce window reset, forcing a remote
// attempt regardless of recency.
func (s *Store) Refresh(ctx context.Context) []model.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFetch = time.Time{}
	return s.listLocked(ctx)
}

func (s *Store) listLocked(ctx context.Context) []model.Notification {
	if remote, ok := s.fetchRemote(ctx); ok && len(remote) > 0 {
		if s.persist(ctx, remote) {
			filtered := s.filtered(remote)
			s.broadcast(filtered)
			return filtered
		}
		// Persist failed; the canonical list is unchanged, so fall
		// through to the local view.
	}
	return s.filtered(s.load(ctx))
}

// Append creates a notification visible to everyone the filter
// admits, prepends it to the canonical list, and returns the created
// record. The remote feed is never consulted.
func (s *Store) Append(ctx context.Context, input model.NotificationInput) model.Notification {
	return s.append(ctx, input, "")
}

// AppendFor is Append targeted at a single recipient: the record is
// private to userID regardless of type or role.
func (s *Store) AppendFor(ctx context.Context, input model.NotificationInput, userID string) model.Notification {
	return s.append(ctx, input, userID)
}

func (s *Store) append(ctx context.Context, input model.NotificationInput, userID string) model.Notification {
	n := model.Notification{
		ID:      uuid.NewString(),
		Type:    input.Type,
		Title:   input.Title,
		Message: input.Message,
		Time:    time.Now().UTC().Format(time.RFC3339),
		IsRead:  false,
		Action:  input.Action,
		Data:    input.Data,
		UserID:  userID,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list := append([]model.Notification{n}, s.load(ctx)...)
	if s.persist(ctx, list) {
		s.broadcast(s.filtered(list))
	}

	return n
}

// MarkRead marks the notification with the given id as read. The
// remote feed is notified best-effort; the local update happens
// unconditionally and is authoritative for the UI.
func (s *Store) MarkRead(ctx context.Context, id string) {
	s.notifyRemote("mark read", func(ctx context.Context, token string) error {
		return s.client.MarkRead(ctx, token, id)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.load(ctx)
	for i := range list {
		if list[i].ID == id {
			list[i].IsRead = true
			break
		}
	}
	if s.persist(ctx, list) {
		s.broadcast(s.filtered(list))
	}
}

// MarkAllRead marks every notification as read, remote best-effort,
// local unconditional.
func (s *Store) MarkAllRead(ctx context.Context) {
	s.notifyRemote("mark all read", func(ctx context.Context, token string) error {
		return s.client.MarkAllRead(ctx, token)
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.load(ctx)
	for i := range list {
		list[i].IsRead = true
	}
	if s.persist(ctx, list) {
		s.broadcast(s.filtered(list))
	}
}

// Delete removes the notification with the given id, preserving the
// relative order of the rest. Deleting an absent id is a no-op that
// still broadcasts the unchanged filtered list.
func (s *Store) Delete(ctx context.Context, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.load(ctx)
	kept := list[:0]
	for _, n := range list {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	if s.persist(ctx, kept) {
		s.broadcast(s.filtered(kept))
	}
}

// UnreadCount returns the number of unread notifications in the
// filtered list. It runs the full List contract, including a
// potential remote fetch.
func (s *Store) UnreadCount(ctx context.Context) int {
	count := 0
	for _, n := range s.List(ctx) {
		if !n.IsRead {
			count++
		}
	}
	return count
}

// ClearAll erases the canonical list entirely and broadcasts the
// empty feed.
func (s *Store) ClearAll(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.kv.Delete(ctx, store.KeyNotifications); err != nil {
		s.logger.Error("clearing notification list", zap.Error(err))
		return
	}
	s.broadcast([]model.Notification{})
}

// fetchRemote attempts a single remote feed fetch. The boolean is
// true only when the endpoint was contacted and answered success;
// debounced, unauthenticated, and failed attempts all report false so
// the caller falls back to the local list. Only an actual attempt
// advances the debounce clock.
func (s *Store) fetchRemote(ctx context.Context) ([]model.Notification, bool) {
	if time.Since(s.lastFetch) < s.debounce {
		return nil, false
	}

	user := s.identity.CurrentUser()
	if user == nil {
		return nil, false
	}

	token, err := s.identity.Token(user.ID)
	if err != nil {
		s.logger.Debug("no credential for remote fetch",
			zap.String("user_id", user.ID), zap.Error(err))
		return nil, false
	}

	s.lastFetch = time.Now()

	resp, err := s.client.FetchNotifications(ctx, token)
	if err != nil {
		s.logger.Warn("remote feed fetch failed", zap.Error(err))
		return nil, false
	}
	if !resp.Success {
		s.logger.Warn("remote feed reported failure")
		return nil, false
	}

	list := make([]model.Notification, 0, len(resp.Notifications))
	for _, rn := range resp.Notifications {
		list = append(list, fromRemote(rn))
	}
	return list, true
}

// fromRemote maps a wire record into the canonical shape. The server
// timestamp is kept verbatim; read state is the presence of read_at.
func fromRemote(rn api.RemoteNotification) model.Notification {
	return model.Notification{
		ID:      string(rn.ID),
		Type:    model.NotificationType(rn.Type),
		Title:   rn.Title,
		Message: rn.Message,
		Time:    rn.CreatedAt,
		IsRead:  rn.ReadAt != nil,
		Data:    rn.Data,
	}
}

// notifyRemote runs a best-effort remote mutation on its own
// goroutine. Failures are logged and never retried or surfaced.
func (s *Store) notifyRemote(op string, call func(ctx context.Context, token string) error) {
	user := s.identity.CurrentUser()
	if user == nil {
		return
	}
	token, err := s.identity.Token(user.ID)
	if err != nil {
		return
	}

	logger := s.logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
		defer cancel()
		if err := call(ctx, token); err != nil {
			logger.Warn("remote "+op+" failed", zap.Error(err))
		}
	}()
}

// load reads the canonical list from the durable store. Any failure
// is logged and degrades to an empty list.
func (s *Store) load(ctx context.Context) []model.Notification {
	raw, ok, err := s.kv.Get(ctx, store.KeyNotifications)
	if err != nil {
		s.logger.Error("loading notification list", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}

	var list []model.Notification
	if err := json.Unmarshal(raw, &list); err != nil {
		s.logger.Error("decoding notification list", zap.Error(err))
		return nil
	}
	return list
}

// persist writes the canonical list back. A failed write is logged
// and dropped; the return value lets List avoid advertising a replace
// that never landed.
func (s *Store) persist(ctx context.Context, list []model.Notification) bool {
	raw, err := json.Marshal(list)
	if err != nil {
		s.logger.Error("encoding notification list", zap.Error(err))
		return false
	}
	if err := s.kv.Set(ctx, store.KeyNotifications, raw); err != nil {
		s.logger.Error("persisting notification list", zap.Error(err))
		return false
	}
	return true
}

// filtered computes the externally-visible view of list for the
// current identity.
func (s *Store) filtered(list []model.Notification) []model.Notification {
	return Visible(s.identity.CurrentUser(), list)
}

// broadcast queues the filtered list for delivery to the subscribers
// registered at this moment. Deliveries drain FIFO on one long-lived
// goroutine, so subscribers observe mutations in the order they
// happened and a slow subscriber delays later deliveries but never
// the mutation that triggered them.
func (s *Store) broadcast(list []model.Notification) {
	s.subMu.Lock()
	if len(s.subs) == 0 {
		s.subMu.Unlock()
		return
	}
	subs := make([]*subscription, len(s.subs))
	copy(subs, s.subs)
	s.pending = append(s.pending, delivery{subs: subs, list: list})
	s.subMu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// deliverLoop drains queued broadcasts in order, walking each
// delivery's subscriber snapshot in registration order.
func (s *Store) deliverLoop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		for {
			s.subMu.Lock()
			if len(s.pending) == 0 {
				s.subMu.Unlock()
				break
			}
			d := s.pending[0]
			s.pending = s.pending[1:]
			s.subMu.Unlock()

			for _, sub := range d.subs {
				sub.fn(d.list)
			}
		}
	}
}

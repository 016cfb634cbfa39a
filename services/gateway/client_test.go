package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/chatline/protocol"
	"github.com/tech-arch1tect/chatline/services/logging"
	"github.com/tech-arch1tect/chatline/services/token"
	e2etesting "github.com/tech-arch1tect/chatline/testing"
	"github.com/tech-arch1tect/chatline/testutils"
	"golang.org/x/sync/errgroup"
)

type fixture struct {
	backend *e2etesting.Backend
	tokens  *token.Authority
	client  *Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	backend := e2etesting.NewBackend(t)
	user := testutils.TestUsers.ValidUser
	backend.CreateUser(user.Username, user.Email, user.Password)
	backend.AddRoom("r1", protocol.Message{ID: "m0", RoomID: "r1", Timestamp: 100})

	tokens := token.New(nil, logging.NewNop())
	return &fixture{
		backend: backend,
		tokens:  tokens,
		client:  New(backend.ClientConfig(), tokens, logging.NewNop()),
	}
}

func (f *fixture) login(t *testing.T) string {
	t.Helper()

	var out struct {
		AccessToken string `json:"access_token"`
	}
	user := testutils.TestUsers.ValidUser
	err := f.client.Post(context.Background(), "/login", map[string]string{
		"email":    user.Email,
		"password": user.Password,
	}, &out)
	require.NoError(t, err)
	require.NotEmpty(t, out.AccessToken)

	f.tokens.SetToken(out.AccessToken)
	return out.AccessToken
}

// expire swaps in a token whose exp has passed while keeping the refresh
// cookie from login.
func (f *fixture) expire(t *testing.T) {
	f.tokens.SetToken(testutils.MintToken(t, "1", time.Now().Add(-time.Second)))
}

func roomQuery(room string) url.Values {
	return url.Values{"room_id": {room}}
}

func TestClient_RequestPhase(t *testing.T) {
	f := newFixture(t)
	access := f.login(t)

	var user protocol.User
	require.NoError(t, f.client.Get(context.Background(), "/user", nil, &user))
	assert.Equal(t, protocol.ID("1"), user.ID)
	assert.Equal(t, "testuser", user.Username)

	logins := f.backend.RequestsTo("/login")
	require.Len(t, logins, 1)
	assert.Empty(t, logins[0].Authorization)
	assert.NotEmpty(t, logins[0].RequestID)

	users := f.backend.RequestsTo("/user")
	require.Len(t, users, 1)
	assert.Equal(t, "Bearer "+access, users[0].Authorization)
}

func TestClient_RequiresAuth(t *testing.T) {
	f := newFixture(t)

	assert.True(t, f.client.RequiresAuth("/user"))
	assert.True(t, f.client.RequiresAuth("/messages?room_id=1"))
	assert.True(t, f.client.RequiresAuth("/servers/3/channels"))
	assert.False(t, f.client.RequiresAuth("/login"))
	assert.False(t, f.client.RequiresAuth("/refresh_token"))
}

func TestClient_ExpiredTokenRefreshesAndReplays(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.expire(t)

	var page []protocol.Message
	err := f.client.Get(context.Background(), "/messages", roomQuery("r1"), &page)

	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, protocol.ID("m0"), page[0].ID)
	assert.Equal(t, 1, f.backend.RefreshCalls())
	assert.True(t, f.tokens.IsValid())

	requests := f.backend.RequestsTo("/messages")
	require.Len(t, requests, 1, "the expired token must never reach the backend")
	assert.Equal(t, "Bearer "+f.tokens.Token(), requests[0].Authorization)
}

func TestClient_ServerRejectionRefreshesAndReplays(t *testing.T) {
	f := newFixture(t)
	stale := f.login(t)
	f.backend.Issuer().Revoke(stale)

	err := f.client.Get(context.Background(), "/messages", roomQuery("r1"), nil)

	require.NoError(t, err)
	assert.Equal(t, 1, f.backend.RefreshCalls())
	assert.NotEqual(t, stale, f.tokens.Token())

	requests := f.backend.RequestsTo("/messages")
	require.Len(t, requests, 2)
	assert.Equal(t, "Bearer "+stale, requests[0].Authorization)
	assert.Equal(t, "Bearer "+f.tokens.Token(), requests[1].Authorization)
}

func TestClient_SingleFlightRefresh(t *testing.T) {
	f := newFixture(t)
	stale := f.login(t)
	f.backend.Issuer().Revoke(stale)

	const callers = 10
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < callers; i++ {
		g.Go(func() error {
			return f.client.Get(ctx, "/messages", roomQuery("r1"), nil)
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, f.backend.RefreshCalls())

	fresh := "Bearer " + f.tokens.Token()
	succeeded := 0
	for _, r := range f.backend.RequestsTo("/messages") {
		if r.Authorization == fresh {
			succeeded++
		}
	}
	assert.Equal(t, callers, succeeded)
}

func TestClient_QueuedRequestsReplayInOrder(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.expire(t)
	for _, room := range []string{"A", "B", "C"} {
		f.backend.AddRoom(protocol.ID(room))
	}

	release := f.backend.HoldRefresh()
	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error { return f.client.Get(ctx, "/messages", roomQuery("A"), nil) })
	require.Eventually(t, func() bool { return f.backend.RefreshCalls() == 1 }, 2*time.Second, time.Millisecond)

	g.Go(func() error { return f.client.Get(ctx, "/messages", roomQuery("B"), nil) })
	require.Eventually(t, func() bool { return f.client.QueuedRequests() == 1 }, 2*time.Second, time.Millisecond)

	g.Go(func() error { return f.client.Get(ctx, "/messages", roomQuery("C"), nil) })
	require.Eventually(t, func() bool { return f.client.QueuedRequests() == 2 }, 2*time.Second, time.Millisecond)

	assert.Empty(t, f.backend.RequestsTo("/messages"), "nothing is sent while the refresh is pending")

	release()
	require.NoError(t, g.Wait())

	var order []string
	for _, r := range f.backend.RequestsTo("/messages") {
		assert.Equal(t, "Bearer "+f.tokens.Token(), r.Authorization)
		order = append(order, r.Query)
	}
	assert.Equal(t, []string{"room_id=A", "room_id=B", "room_id=C"}, order)
	assert.Equal(t, 1, f.backend.RefreshCalls())
}

func TestClient_RefreshFailureForcesLogout(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.expire(t)
	f.backend.FailRefresh(true)

	var logouts atomic.Int32
	f.client.OnForcedLogout(func() { logouts.Add(1) })

	release := f.backend.HoldRefresh()
	g := new(errgroup.Group)
	errs := make([]error, 3)
	for i := range errs {
		i := i
		g.Go(func() error {
			errs[i] = f.client.Get(context.Background(), "/messages", roomQuery("r1"), nil)
			return nil
		})
	}
	require.Eventually(t, func() bool {
		return f.backend.RefreshCalls() == 1 && f.client.QueuedRequests() == 2
	}, 2*time.Second, time.Millisecond)
	release()
	require.NoError(t, g.Wait())

	for _, err := range errs {
		assert.ErrorIs(t, err, ErrRefreshFailed)
	}
	assert.Equal(t, int32(1), logouts.Load())
	assert.Equal(t, 1, f.backend.RefreshCalls())
	assert.Empty(t, f.backend.RequestsTo("/messages"))
}

func TestClient_AbandonedWaiterIsNotReplayed(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.expire(t)
	f.backend.AddRoom("B")

	release := f.backend.HoldRefresh()
	leaderDone := make(chan error, 1)
	go func() {
		leaderDone <- f.client.Get(context.Background(), "/messages", roomQuery("r1"), nil)
	}()
	require.Eventually(t, func() bool { return f.backend.RefreshCalls() == 1 }, 2*time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	waiterDone := make(chan error, 1)
	go func() {
		waiterDone <- f.client.Get(ctx, "/messages", roomQuery("B"), nil)
	}()
	require.Eventually(t, func() bool { return f.client.QueuedRequests() == 1 }, 2*time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-waiterDone, context.Canceled)

	release()
	require.NoError(t, <-leaderDone)

	requests := f.backend.RequestsTo("/messages")
	require.Len(t, requests, 1)
	assert.Equal(t, "room_id=r1", requests[0].Query)
}

func TestClient_LeaderReturnsBeforeQueuedReplays(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.expire(t)
	f.backend.AddRoom("slow")

	releaseRefresh := f.backend.HoldRefresh()
	releaseSlow := f.backend.HoldRoom("slow")
	defer releaseSlow()

	leaderDone := make(chan error, 1)
	go func() {
		leaderDone <- f.client.Get(context.Background(), "/messages", roomQuery("r1"), nil)
	}()
	require.Eventually(t, func() bool { return f.backend.RefreshCalls() == 1 }, 2*time.Second, time.Millisecond)

	waiterDone := make(chan error, 1)
	go func() {
		waiterDone <- f.client.Get(context.Background(), "/messages", roomQuery("slow"), nil)
	}()
	require.Eventually(t, func() bool { return f.client.QueuedRequests() == 1 }, 2*time.Second, time.Millisecond)

	releaseRefresh()
	select {
	case err := <-leaderDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("leader blocked behind a queued replay")
	}

	require.Eventually(t, func() bool { return len(f.backend.RequestsTo("/messages")) == 2 }, 2*time.Second, time.Millisecond)
	select {
	case <-waiterDone:
		t.Fatal("queued replay settled while its request was held")
	default:
	}

	releaseSlow()
	require.NoError(t, <-waiterDone)
}

func TestClient_CancelledReplayReleasesNextWaiter(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.expire(t)
	f.backend.AddRoom("slow")
	f.backend.AddRoom("C")

	releaseRefresh := f.backend.HoldRefresh()
	releaseSlow := f.backend.HoldRoom("slow")
	defer releaseSlow()

	g := new(errgroup.Group)
	g.Go(func() error { return f.client.Get(context.Background(), "/messages", roomQuery("r1"), nil) })
	require.Eventually(t, func() bool { return f.backend.RefreshCalls() == 1 }, 2*time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	slowDone := make(chan error, 1)
	go func() {
		slowDone <- f.client.Get(ctx, "/messages", roomQuery("slow"), nil)
	}()
	require.Eventually(t, func() bool { return f.client.QueuedRequests() == 1 }, 2*time.Second, time.Millisecond)

	g.Go(func() error { return f.client.Get(context.Background(), "/messages", roomQuery("C"), nil) })
	require.Eventually(t, func() bool { return f.client.QueuedRequests() == 2 }, 2*time.Second, time.Millisecond)

	releaseRefresh()
	require.Eventually(t, func() bool { return len(f.backend.RequestsTo("/messages")) == 2 }, 2*time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-slowDone, context.Canceled)
	require.NoError(t, g.Wait())

	var order []string
	for _, r := range f.backend.RequestsTo("/messages") {
		order = append(order, r.Query)
	}
	assert.Equal(t, []string{"room_id=r1", "room_id=slow", "room_id=C"}, order)
}

func TestClient_AccessToken(t *testing.T) {
	f := newFixture(t)
	current := f.login(t)

	token, err := f.client.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, current, token)
	assert.Equal(t, 0, f.backend.RefreshCalls())

	f.expire(t)
	token, err = f.client.AccessToken(context.Background())

	require.NoError(t, err)
	assert.Equal(t, f.tokens.Token(), token)
	assert.True(t, f.tokens.IsValid())
	assert.Equal(t, 1, f.backend.RefreshCalls())
}

func TestClient_Refresh(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.expire(t)

	token, err := f.client.Refresh(context.Background())

	require.NoError(t, err)
	assert.Equal(t, f.tokens.Token(), token)
	assert.True(t, f.tokens.IsValid())
}

func TestClient_RefreshWithoutSessionCookie(t *testing.T) {
	f := newFixture(t)

	var logouts atomic.Int32
	f.client.OnForcedLogout(func() { logouts.Add(1) })

	_, err := f.client.Refresh(context.Background())

	assert.ErrorIs(t, err, ErrRefreshFailed)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), logouts.Load())
}

func TestClient_ErrorCategories(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	t.Run("not found", func(t *testing.T) {
		err := f.client.Get(context.Background(), "/messages", roomQuery("missing"), nil)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.Status)
		assert.Equal(t, "ROOM_NOT_FOUND", apiErr.Code)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Equal(t, "Chat room does not exist", UserMessage(err))
	})

	t.Run("bad request", func(t *testing.T) {
		err := f.client.Get(context.Background(), "/messages", url.Values{"room_id": {"r1"}, "limit": {"x"}}, nil)
		assert.ErrorIs(t, err, ErrBadRequest)
	})

	t.Run("401 on a public route is not refreshed", func(t *testing.T) {
		err := f.client.Post(context.Background(), "/login", map[string]string{
			"email":    testutils.TestUsers.ValidUser.Email,
			"password": "wrong",
		}, nil)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "LOGIN_FAILED", apiErr.Code)
		assert.ErrorIs(t, err, ErrUnauthorized)
		assert.Equal(t, 0, f.backend.RefreshCalls())
	})

	t.Run("missing CSRF pair is forbidden", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPost, f.backend.URL()+"/login", nil)
		require.NoError(t, err)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestClient_Connectivity(t *testing.T) {
	cfg := testutils.GetTestConfig()
	cfg.API.Domain = "127.0.0.1:1"
	tokens := token.New(nil, nil)
	tokens.SetToken(testutils.MintToken(t, "1", time.Now().Add(time.Hour)))
	client := New(cfg, tokens, logging.NewNop())

	err := client.Get(context.Background(), "/user", nil, nil)

	assert.ErrorIs(t, err, ErrConnectivity)
	assert.Equal(t, "Network error, please check your connection", UserMessage(err))
}

func TestClient_ContextCancelled(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := f.client.Get(ctx, "/user", nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrConnectivity)
}

func ExampleUserMessage() {
	err := fmt.Errorf("add friend: %w", &APIError{Status: 409, Code: "FRIEND_EXISTS"})
	fmt.Println(UserMessage(err))
	// Output: Already friends
}

package gateway

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// waiter is a caller parked behind an in-flight refresh. The caller replays
// its own request once the refresh outcome arrives, so nothing is decoded
// into its output after it has returned.
type waiter struct {
	ctx      context.Context
	ready    chan error
	finished chan struct{}
}

func newWaiter(ctx context.Context) *waiter {
	return &waiter{ctx: ctx, ready: make(chan error, 1), finished: make(chan struct{})}
}

// wait blocks until the refresh settles, then runs replay on the caller's
// goroutine. The next waiter is not released until replay returns.
func (w *waiter) wait(ctx context.Context, replay func() error) error {
	select {
	case err := <-w.ready:
		defer close(w.finished)
		if err != nil || replay == nil {
			return err
		}
		return replay()
	case <-ctx.Done():
		return ctx.Err()
	}
}

type role int

const (
	roleLeader role = iota
	roleWaiter
	roleReplay
)

// join decides how a caller takes part in recovery. The first caller leads
// the refresh, callers arriving while it runs queue up, and callers whose
// rejected token has already been replaced just replay.
func (c *Client) join(ctx context.Context, rejected string, replayable bool) (*waiter, role) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.refreshing {
		w := newWaiter(ctx)
		c.waiters = append(c.waiters, w)
		c.logger.Debug("request queued behind token refresh", zap.Int("queued", len(c.waiters)))
		return w, roleWaiter
	}

	if current := c.tokens.Token(); replayable && current != rejected && !c.tokens.MustRefresh() {
		return nil, roleReplay
	}

	c.refreshing = true
	return nil, roleLeader
}

// release ends the refresh attempt and hands back the queue in arrival order.
func (c *Client) release() []*waiter {
	c.mu.Lock()
	defer c.mu.Unlock()

	waiters := c.waiters
	c.waiters = nil
	c.refreshing = false
	return waiters
}

// QueuedRequests is the number of callers waiting on the current refresh.
func (c *Client) QueuedRequests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}

func (c *Client) recoverUnauthorized(ctx context.Context, req Request, out any, rejected string) error {
	w, r := c.join(ctx, rejected, true)
	switch r {
	case roleWaiter:
		return w.wait(ctx, func() error { return c.send(ctx, req, out) })
	case roleReplay:
		return c.send(ctx, req, out)
	}

	var result error
	if err := c.lead(ctx, func() { result = c.send(ctx, req, out) }); err != nil {
		return err
	}
	return result
}

// Refresh obtains a new access token through the same single-flight path
// used for 401 recovery.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	w, r := c.join(ctx, "", false)
	if r == roleWaiter {
		if err := w.wait(ctx, nil); err != nil {
			return "", err
		}
		return c.tokens.Token(), nil
	}

	if err := c.lead(ctx, nil); err != nil {
		return "", err
	}
	return c.tokens.Token(), nil
}

// AccessToken returns a usable access token, refreshing through the
// single-flight path first when the held one is missing or expired.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if !c.tokens.MustRefresh() {
		return c.tokens.Token(), nil
	}
	c.logger.Debug("access token expired, refreshing before use")
	return c.Refresh(ctx)
}

// lead performs the refresh call and settles the queue. On success the
// leader's own request is replayed first and the queued callers are then
// released in arrival order without holding up the leader.
func (c *Client) lead(ctx context.Context, replayOwn func()) error {
	c.logger.Info("refreshing access token")

	err := c.requestToken(context.WithoutCancel(ctx))
	waiters := c.release()

	if err != nil {
		c.logger.Warn("access token refresh failed",
			zap.Error(err),
			zap.Int("queued", len(waiters)))
		c.dispatch(waiters, err)
		c.forceLogout()
		return err
	}

	c.logger.Info("access token refreshed", zap.Int("replaying", len(waiters)))
	if replayOwn != nil {
		replayOwn()
	}
	if len(waiters) > 0 {
		go c.dispatch(waiters, nil)
	}
	return nil
}

// dispatch hands the refresh outcome to each waiter in turn. After a
// successful refresh a waiter must finish its replay, or give up, before the
// next one is released.
func (c *Client) dispatch(waiters []*waiter, err error) {
	for _, w := range waiters {
		w.ready <- err
		if err != nil {
			continue
		}
		select {
		case <-w.finished:
		case <-w.ctx.Done():
		}
	}
}

func (c *Client) requestToken(ctx context.Context) error {
	var data struct {
		AccessToken string `json:"access_token"`
	}

	err := c.roundTrip(ctx, Request{Method: http.MethodPost, Path: c.cfg.RefreshPath}, &data, "")
	if err == nil && data.AccessToken == "" {
		err = fmt.Errorf("%w: no access_token in refresh response", ErrInvalidResponse)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	c.tokens.SetToken(data.AccessToken)
	return nil
}

func (c *Client) forceLogout() {
	c.mu.Lock()
	hooks := append([]func(){}, c.logoutHooks...)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}

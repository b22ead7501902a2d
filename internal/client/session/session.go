// Package session keeps a client logged in. It holds the current token pair,
// rotates it before and after the access token lapses, and makes sure that
// concurrent callers share a single rotation.
//
// State transitions:
//
//	Unauthenticated -> Authenticating -> Authenticated
//	Authenticated   -> Refreshing     -> Authenticated | Expired
//	any             -> Unauthenticated (Logout)
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/wadai/internal/client/client"
	"github.com/dmitrijs2005/wadai/internal/client/models"
	"github.com/dmitrijs2005/wadai/internal/logging"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNotAuthenticated = errors.New("not logged in")
	ErrSessionExpired   = errors.New("session expired, log in again")
)

const (
	DefaultRefreshInterval = 10 * time.Minute
	DefaultRefreshTimeout  = 10 * time.Second
)

// Backend is the part of the API the session drives.
type Backend interface {
	Register(ctx context.Context, req client.RegisterRequest) (*client.AuthResult, error)
	Login(ctx context.Context, email, password string) (*client.AuthResult, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

type Options struct {
	// RefreshInterval is the proactive rotation period. Zero disables it.
	RefreshInterval time.Duration
	// RefreshTimeout bounds a single rotation call.
	RefreshTimeout time.Duration
	Logger         logging.Logger
}

type Session struct {
	backend Backend
	store   TokenStore
	opts    Options
	logger  logging.Logger
	now     func() time.Time

	group singleflight.Group

	mu         sync.Mutex
	state      State
	tokens     *models.TokenPair
	generation uint64

	tickerCancel context.CancelFunc
	tickerDone   chan struct{}
}

func New(backend Backend, store TokenStore, opts Options) *Session {
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Session{
		backend: backend,
		store:   store,
		opts:    opts,
		logger:  opts.Logger.With("module", "session"),
		now:     time.Now,
		state:   StateUnauthenticated,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AccessToken returns the current access token.
func (s *Session) AccessToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens == nil {
		if s.state == StateExpired {
			return "", ErrSessionExpired
		}
		return "", ErrNotAuthenticated
	}
	return s.tokens.AccessToken, nil
}

func (s *Session) authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens != nil
}

// Login authenticates with email and password and starts the session.
func (s *Session) Login(ctx context.Context, email, password string) (*models.User, error) {
	return s.authenticate(ctx, func(ctx context.Context) (*client.AuthResult, error) {
		return s.backend.Login(ctx, email, password)
	})
}

// Register creates an account and starts a session for it.
func (s *Session) Register(ctx context.Context, req client.RegisterRequest) (*models.User, error) {
	return s.authenticate(ctx, func(ctx context.Context) (*client.AuthResult, error) {
		return s.backend.Register(ctx, req)
	})
}

func (s *Session) authenticate(ctx context.Context, call func(context.Context) (*client.AuthResult, error)) (*models.User, error) {
	s.mu.Lock()
	prev := s.state
	s.state = StateAuthenticating
	s.mu.Unlock()

	res, err := call(ctx)
	if err != nil {
		s.mu.Lock()
		if s.state == StateAuthenticating {
			s.state = prev
			if s.tokens == nil {
				s.state = StateUnauthenticated
			}
		}
		s.mu.Unlock()
		return nil, err
	}

	s.establish(ctx, res.Tokens)
	return res.User, nil
}

// Restore resumes a session persisted by an earlier run. It reports false
// when there is nothing usable in the store.
func (s *Session) Restore(ctx context.Context) (bool, error) {
	pair, err := s.store.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load session: %w", err)
	}
	if pair.Empty() {
		return false, nil
	}
	if !pair.RefreshExpiresAt.IsZero() && !s.now().Before(pair.RefreshExpiresAt) {
		if err := s.store.Clear(ctx); err != nil {
			s.logger.Warn(ctx, "clear stale session", "error", err)
		}
		return false, nil
	}

	s.establish(ctx, pair)
	return true, nil
}

// establish installs pair, persists it and (re)starts the proactive timer.
func (s *Session) establish(ctx context.Context, pair *models.TokenPair) {
	s.stopTicker()

	s.mu.Lock()
	s.generation++
	s.tokens = pair
	s.state = StateAuthenticated
	if s.opts.RefreshInterval > 0 {
		tickCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		s.tickerCancel, s.tickerDone = cancel, done
		go s.runTicker(tickCtx, done)
	}
	s.mu.Unlock()

	if err := s.store.Save(ctx, pair); err != nil {
		s.logger.Warn(ctx, "persist session", "error", err)
	}
}

func (s *Session) runTicker(ctx context.Context, done chan struct{}) {
	defer close(done)

	t := time.NewTicker(s.opts.RefreshInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.refresh(ctx, ""); err != nil && ctx.Err() == nil {
				s.logger.Warn(ctx, "proactive refresh failed", "error", err)
			}
		}
	}
}

// stopTicker cancels the proactive timer and waits for it to exit. Callers
// must not hold mu.
func (s *Session) stopTicker() {
	s.mu.Lock()
	cancel, done := s.tickerCancel, s.tickerDone
	s.tickerCancel, s.tickerDone = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Do runs call with the current access token. If the server rejects the
// token, Do waits for a rotation (shared with any concurrent caller) and
// retries exactly once.
func (s *Session) Do(ctx context.Context, call func(ctx context.Context, accessToken string) error) error {
	token, err := s.AccessToken()
	if err != nil {
		return err
	}

	err = call(ctx, token)
	if !errors.Is(err, client.ErrUnauthorized) {
		return err
	}

	fresh, err := s.refresh(ctx, token)
	if err != nil {
		return err
	}

	return call(ctx, fresh)
}

// Refresh forces a rotation now.
func (s *Session) Refresh(ctx context.Context) error {
	_, err := s.refresh(ctx, "")
	return err
}

// refresh returns a usable access token. failedAccess is the token the
// caller saw rejected; when it has already been replaced the replacement is
// returned without another rotation. An empty failedAccess always rotates.
func (s *Session) refresh(ctx context.Context, failedAccess string) (string, error) {
	s.mu.Lock()
	if s.tokens == nil {
		expired := s.state == StateExpired
		s.mu.Unlock()
		if expired {
			return "", ErrSessionExpired
		}
		return "", ErrNotAuthenticated
	}
	if failedAccess != "" && s.tokens.AccessToken != failedAccess {
		token := s.tokens.AccessToken
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	ch := s.group.DoChan("rotate", func() (any, error) {
		return s.rotate(failedAccess)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// rotate performs one refresh call. It runs detached from any caller's
// context so an abandoned waiter cannot cancel a rotation others wait on.
// The stale check is repeated here because a flight that finished between
// refresh's check and DoChan has already replaced failedAccess.
func (s *Session) rotate(failedAccess string) (string, error) {
	s.mu.Lock()
	if s.tokens == nil {
		s.mu.Unlock()
		return "", ErrNotAuthenticated
	}
	if failedAccess != "" && s.tokens.AccessToken != failedAccess {
		token := s.tokens.AccessToken
		s.mu.Unlock()
		return token, nil
	}
	gen := s.generation
	refreshToken := s.tokens.RefreshToken
	s.state = StateRefreshing
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RefreshTimeout)
	defer cancel()

	pair, err := s.backend.Refresh(ctx, refreshToken)
	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)

	s.mu.Lock()
	if gen != s.generation {
		// logged out (or logged in again) while the call was in flight
		s.mu.Unlock()
		if err == nil {
			s.discard(pair)
		}
		return "", ErrNotAuthenticated
	}

	if err != nil {
		if errors.Is(err, client.ErrSessionInvalid) || timedOut {
			s.expireLocked()
			s.mu.Unlock()
			s.logger.Info(ctx, "session expired", "error", err)
			if cerr := s.store.Clear(context.Background()); cerr != nil {
				s.logger.Warn(ctx, "clear session store", "error", cerr)
			}
			return "", fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}

		// outage: keep the session, the caller decides whether to retry
		s.state = StateAuthenticated
		s.mu.Unlock()
		return "", err
	}

	s.tokens = pair
	s.state = StateAuthenticated
	s.mu.Unlock()

	if err := s.store.Save(context.Background(), pair); err != nil {
		s.logger.Warn(context.Background(), "persist session", "error", err)
	}
	return pair.AccessToken, nil
}

// expireLocked drops the credentials and stops the timer without waiting
// for it, since rotate may be running on the timer goroutine.
func (s *Session) expireLocked() {
	s.generation++
	s.tokens = nil
	s.state = StateExpired
	if s.tickerCancel != nil {
		s.tickerCancel()
	}
}

// discard revokes a pair nobody will use.
func (s *Session) discard(pair *models.TokenPair) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RefreshTimeout)
	defer cancel()
	if err := s.backend.Logout(ctx, pair.RefreshToken); err != nil {
		s.logger.Warn(ctx, "revoke orphaned refresh token", "error", err)
	}
}

// Logout stops the timer, revokes the refresh token on a best-effort basis
// and clears local state whatever the server says.
func (s *Session) Logout(ctx context.Context) error {
	s.stopTicker()

	s.mu.Lock()
	var refreshToken string
	if s.tokens != nil {
		refreshToken = s.tokens.RefreshToken
	}
	s.generation++
	s.tokens = nil
	s.state = StateUnauthenticated
	s.mu.Unlock()

	if refreshToken != "" {
		if err := s.backend.Logout(ctx, refreshToken); err != nil {
			s.logger.Warn(ctx, "server logout failed", "error", err)
		}
	}

	return s.store.Clear(ctx)
}

// Close stops background work. The stored session survives for Restore.
func (s *Session) Close() {
	s.stopTicker()
}

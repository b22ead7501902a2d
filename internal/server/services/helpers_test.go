package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/wadai/internal/cryptox"
	"github.com/dmitrijs2005/wadai/internal/logging"
	"github.com/dmitrijs2005/wadai/internal/server/auth"
	"github.com/dmitrijs2005/wadai/internal/server/models"
	"github.com/dmitrijs2005/wadai/internal/server/ratelimit"
	"github.com/dmitrijs2005/wadai/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
)

var testHasherParams = cryptox.Params{Memory: 1024, Time: 1, Threads: 1, SaltLen: 16, KeyLen: 32}

type sentMail struct {
	kind     string
	to       string
	username string
	secret   string
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *captureNotifier) SendVerification(_ context.Context, to, username, secret string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{kind: "verify", to: to, username: username, secret: secret})
	return n.err
}

func (n *captureNotifier) SendPasswordReset(_ context.Context, to, username, secret string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentMail{kind: "reset", to: to, username: username, secret: secret})
	return n.err
}

func (n *captureNotifier) last(t *testing.T, kind string) sentMail {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		if n.sent[i].kind == kind {
			return n.sent[i]
		}
	}
	t.Fatalf("no %s mail sent", kind)
	return sentMail{}
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type testEnv struct {
	rm           *repomanager.MemoryRepositoryManager
	tokens       *TokenService
	verification *VerificationService
	users        *UserService
	notifier     *captureNotifier
	verifier     *auth.TokenVerifier
}

func newTestEnv(t *testing.T, limiter ratelimit.Limiter) *testEnv {
	t.Helper()

	secret := []byte("test-secret-key-for-signing-tokens")
	rm := repomanager.NewMemoryRepositoryManager()
	logger := logging.Nop()

	tokens := NewTokenService(rm, auth.NewTokenIssuer(secret, "wadai", 15*time.Minute), 7*24*time.Hour, logger)
	verification := NewVerificationService(rm, 24*time.Hour)
	notifier := &captureNotifier{}
	users := NewUserService(rm, tokens, verification, cryptox.NewPasswordHasher(testHasherParams), notifier, limiter, logger)

	return &testEnv{
		rm:           rm,
		tokens:       tokens,
		verification: verification,
		users:        users,
		notifier:     notifier,
		verifier:     auth.NewTokenVerifier(secret, "wadai"),
	}
}

func (e *testEnv) register(t *testing.T, username, email, password string) (*models.User, *TokenPair) {
	t.Helper()
	user, pair, err := e.users.Register(context.Background(), RegisterInput{
		Username: username,
		Email:    email,
		Password: password,
	})
	require.NoError(t, err)
	return user, pair
}

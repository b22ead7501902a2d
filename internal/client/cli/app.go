package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/dmitrijs2005/wadai/internal/client/client"
	"github.com/dmitrijs2005/wadai/internal/client/config"
	"github.com/dmitrijs2005/wadai/internal/client/models"
	"github.com/dmitrijs2005/wadai/internal/client/session"
	"github.com/dmitrijs2005/wadai/internal/filex"
	"github.com/dmitrijs2005/wadai/internal/logging"
	"google.golang.org/grpc"
)

// sessionManager is the part of *session.Session the commands use.
type sessionManager interface {
	State() session.State
	Login(ctx context.Context, email, password string) (*models.User, error)
	Register(ctx context.Context, req client.RegisterRequest) (*models.User, error)
	Restore(ctx context.Context) (bool, error)
	Do(ctx context.Context, call func(ctx context.Context, accessToken string) error) error
	Logout(ctx context.Context) error
	Close()
}

type pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	config   *config.Config
	api      client.Client
	session  sessionManager
	pinger   pinger
	closers  []func() error
	userName string
	reader   *bufio.Reader
	out      io.Writer
}

// NewApp opens the local session file and connects the API clients. Nothing
// is sent to the server until the first command.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	path, err := filex.EnsureParentDir(c.DatabasePath)
	if err != nil {
		return nil, err
	}

	db, err := client.InitDatabase(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open session database: %w", err)
	}

	api := client.NewHTTPClient(c.ServerURL, &http.Client{Timeout: c.RequestTimeout})

	sess := session.New(api, session.NewMetadataStore(db), session.Options{
		RefreshInterval: c.RefreshInterval,
		RefreshTimeout:  c.RefreshTimeout,
		Logger:          logging.NewJSONLogger(os.Stderr, "warn"),
	})

	rpc, err := client.NewGRPCClient(c.GRPCAddr, grpc.WithUnaryInterceptor(sess.UnaryClientInterceptor()))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect %s: %w", c.GRPCAddr, err)
	}

	return &App{
		config:  c,
		api:     api,
		session: sess,
		pinger:  rpc,
		closers: []func() error{rpc.Close, db.Close},
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
	}, nil
}

// Run restores a saved session, if any, and serves the REPL until exit.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	fmt.Fprintln(a.out, "Welcome to wadai CLI (type 'help' for commands)")
	a.restore(ctx)

	runREPL(ctx, a, a.getStatus, a.reader)
}

func (a *App) restore(ctx context.Context) {
	ok, err := a.session.Restore(ctx)
	if err != nil {
		fmt.Fprintln(a.out, "Could not restore the previous session:", err)
		return
	}
	if !ok {
		return
	}

	// the profile only decorates the prompt
	_ = a.withSession(ctx, func(ctx context.Context, token string) error {
		u, err := a.api.Me(ctx, token)
		if err == nil {
			a.userName = u.Username
		}
		return err
	})
	fmt.Fprintln(a.out, "Session restored.")
}

// Close stops the session timer and releases connections. The session
// itself stays on disk.
func (a *App) Close() {
	if a.session != nil {
		a.session.Close()
	}
	for _, c := range a.closers {
		_ = c()
	}
}

func (a *App) isLoggedIn() bool {
	switch a.session.State() {
	case session.StateAuthenticated, session.StateRefreshing:
		return true
	}
	return false
}

func (a *App) getStatus() string {
	switch {
	case a.isLoggedIn() && a.userName != "":
		return "(" + a.userName + ")"
	case a.isLoggedIn():
		return "(logged in)"
	case a.session.State() == session.StateExpired:
		return "(expired)"
	}
	return ""
}

// withSession runs call with the current access token and forgets the user
// name once the session is gone.
func (a *App) withSession(ctx context.Context, call func(ctx context.Context, token string) error) error {
	err := a.session.Do(ctx, call)
	if errors.Is(err, session.ErrSessionExpired) || errors.Is(err, session.ErrNotAuthenticated) {
		a.userName = ""
	}
	return err
}

// describe turns API errors into something a person can act on.
func describe(err error) string {
	switch {
	case errors.Is(err, client.ErrInvalidCredentials):
		return "wrong email or password"
	case errors.Is(err, client.ErrRateLimited):
		return "too many attempts, try again later"
	case errors.Is(err, client.ErrUnavailable):
		return "server unavailable, try again later"
	case errors.Is(err, session.ErrSessionExpired):
		return "your session has expired, please log in again"
	case errors.Is(err, session.ErrNotAuthenticated):
		return "you are not logged in"
	case errors.Is(err, client.ErrVerificationExpired):
		return "the link has expired, request a new one"
	case errors.Is(err, client.ErrVerificationInvalid):
		return "the link is not valid"
	}
	return err.Error()
}

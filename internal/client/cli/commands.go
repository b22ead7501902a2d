package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/wadai/internal/client/client"
	"github.com/dmitrijs2005/wadai/internal/common"
)

// getSimpleText, getRequiredText and getPassword are swapped in tests.
var (
	getSimpleText   = GetSimpleText
	getRequiredText = GetRequiredText
	getPassword     = GetPassword
)

// readSecret reads a password and returns it as a string, wiping the
// terminal buffer.
func (a *App) readSecret(prompt string) (string, error) {
	pw, err := getPassword(prompt, a.out)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(pw)
	return string(pw), nil
}

// Register prompts for the account details, creates the account and logs
// straight in.
func (a *App) Register(ctx context.Context) error {
	username, err := getRequiredText(a.reader, "Username", a.out)
	if err != nil {
		return err
	}
	email, err := getRequiredText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	displayName, err := getSimpleText(a.reader, "Display name (optional)", a.out)
	if err != nil {
		return err
	}
	password, err := a.readSecret("Password")
	if err != nil {
		return err
	}

	u, err := a.session.Register(ctx, client.RegisterRequest{
		Username:    username,
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return err
	}

	a.userName = u.Username
	fmt.Fprintf(a.out, "Welcome, %s! A verification link was sent to %s.\n", u.Username, u.Email)
	return nil
}

// Login prompts for credentials and starts a session.
func (a *App) Login(ctx context.Context) error {
	email, err := getRequiredText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	password, err := a.readSecret("Password")
	if err != nil {
		return err
	}

	u, err := a.session.Login(ctx, email, password)
	if err != nil {
		return err
	}

	a.userName = u.Username
	fmt.Fprintf(a.out, "Logged in as %s.\n", u.Username)
	return nil
}

// Me prints the profile of the logged-in user.
func (a *App) Me(ctx context.Context) error {
	return a.withSession(ctx, func(ctx context.Context, token string) error {
		u, err := a.api.Me(ctx, token)
		if err != nil {
			return err
		}
		a.userName = u.Username

		verified := "no"
		if u.EmailVerified {
			verified = "yes"
		}
		fmt.Fprintf(a.out, "ID:        %s\nUsername:  %s\nEmail:     %s\nVerified:  %s\n", u.ID, u.Username, u.Email, verified)
		if u.DisplayName != "" {
			fmt.Fprintf(a.out, "Name:      %s\n", u.DisplayName)
		}
		return nil
	})
}

// Logout revokes this device's refresh token and forgets the session.
func (a *App) Logout(ctx context.Context) error {
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	a.userName = ""
	fmt.Fprintln(a.out, "Logged out.")
	return nil
}

// LogoutAll revokes every session of the user, this one included.
func (a *App) LogoutAll(ctx context.Context) error {
	err := a.withSession(ctx, func(ctx context.Context, token string) error {
		return a.api.LogoutAll(ctx, token)
	})
	if err != nil {
		return err
	}
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	a.userName = ""
	fmt.Fprintln(a.out, "All sessions revoked.")
	return nil
}

func (a *App) Status(context.Context) error {
	state := a.session.State()
	if a.userName != "" {
		fmt.Fprintf(a.out, "%s as %s\n", state, a.userName)
		return nil
	}
	fmt.Fprintln(a.out, state)
	return nil
}

// Ping checks that the server answers its health check.
func (a *App) Ping(ctx context.Context) error {
	if err := a.pinger.Ping(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Server is up.")
	return nil
}

// Verify confirms an email address with the token from the verification
// email.
func (a *App) Verify(ctx context.Context, secret string) error {
	msg, err := a.api.VerifyEmail(ctx, secret)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, msg)
	return nil
}

// Resend asks for a new verification email.
func (a *App) Resend(ctx context.Context) error {
	return a.withSession(ctx, func(ctx context.Context, token string) error {
		msg, err := a.api.ResendVerification(ctx, token)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, msg)
		return nil
	})
}

// ChangePassword replaces the password of the logged-in user.
func (a *App) ChangePassword(ctx context.Context) error {
	current, err := a.readSecret("Current password")
	if err != nil {
		return err
	}
	next, err := a.readSecret("New password")
	if err != nil {
		return err
	}

	err = a.withSession(ctx, func(ctx context.Context, token string) error {
		return a.api.ChangePassword(ctx, token, current, next)
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password changed.")
	return nil
}

// ChangeEmail moves the account to a new address, which then needs
// verifying again.
func (a *App) ChangeEmail(ctx context.Context) error {
	email, err := getRequiredText(a.reader, "New email", a.out)
	if err != nil {
		return err
	}

	return a.withSession(ctx, func(ctx context.Context, token string) error {
		u, err := a.api.ChangeEmail(ctx, token, email)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Email changed to %s. Check your inbox for the verification link.\n", u.Email)
		return nil
	})
}

// ForgotPassword requests a reset email. The answer is the same whether or
// not the address has an account.
func (a *App) ForgotPassword(ctx context.Context) error {
	email, err := getRequiredText(a.reader, "Email", a.out)
	if err != nil {
		return err
	}
	if err := a.api.RequestPasswordReset(ctx, email); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "If the address is registered, a reset link is on its way.")
	return nil
}

// ResetPassword sets a new password with the token from the reset email.
// Every session of the account is revoked by the server.
func (a *App) ResetPassword(ctx context.Context, secret string) error {
	password, err := a.readSecret("New password")
	if err != nil {
		return err
	}
	if err := a.api.ResetPassword(ctx, secret, password); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password updated. Log in with the new password.")
	return nil
}

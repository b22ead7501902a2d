package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL drives. *App satisfies it.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Me(ctx context.Context) error
	Logout(ctx context.Context) error
	LogoutAll(ctx context.Context) error
	Status(ctx context.Context) error
	Ping(ctx context.Context) error
	Verify(ctx context.Context, secret string) error
	Resend(ctx context.Context) error
	ChangePassword(ctx context.Context) error
	ChangeEmail(ctx context.Context) error
	ForgotPassword(ctx context.Context) error
	ResetPassword(ctx context.Context, secret string) error
}

// runREPL reads commands line by line from reader and dispatches them to a
// until EOF, "exit" or "quit".
//
//	Always:
//	  help, status, ping, verify <token>, forgot, reset <token>, exit | quit
//	Not logged in:
//	  register, login
//	Logged in:
//	  me, resend, passwd, email, logout, logout-all
//
// A failing command prints its error and the loop goes on.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("wadai %s> ", statusFn()))

		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: me, resend, passwd, email, logout, logout-all, status, ping, verify <token>, exit")
			} else {
				printlnFn("Available commands: register, login, verify <token>, forgot, reset <token>, status, ping, exit")
			}

		case "register":
			cmdErr = a.Register(ctx)
		case "login":
			cmdErr = a.Login(ctx)
		case "me":
			cmdErr = a.Me(ctx)
		case "logout":
			cmdErr = a.Logout(ctx)
		case "logout-all":
			cmdErr = a.LogoutAll(ctx)
		case "status":
			cmdErr = a.Status(ctx)
		case "ping":
			cmdErr = a.Ping(ctx)
		case "resend":
			cmdErr = a.Resend(ctx)
		case "passwd":
			cmdErr = a.ChangePassword(ctx)
		case "email":
			cmdErr = a.ChangeEmail(ctx)
		case "forgot":
			cmdErr = a.ForgotPassword(ctx)

		case "verify":
			if len(args) == 0 {
				printlnFn("Usage: verify <token>")
				continue
			}
			cmdErr = a.Verify(ctx, args[0])

		case "reset":
			if len(args) == 0 {
				printlnFn("Usage: reset <token>")
				continue
			}
			cmdErr = a.ResetPassword(ctx, args[0])

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("Error:", describe(cmdErr))
		}
	}
}

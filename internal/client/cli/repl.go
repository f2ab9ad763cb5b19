package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Add(ctx context.Context) error
	List(ctx context.Context, filter string) error
	Show(ctx context.Context, id string) error
	Retry(ctx context.Context, id string) error
	Sync(ctx context.Context) error
	Status(ctx context.Context) error
}

const (
	helpLoggedOut = "Available commands: login, status, exit"
	helpLoggedIn  = "Available commands: add, (l)ist [pending|syncing|synced|failed|YYYY-MM-DD], show <id>, retry <id>, sync, status, logout, exit"
)

// runREPL reads commands line by line and dispatches them to a. It returns
// on EOF or when the user types "exit" or "quit".
//
// Command errors are printed and the loop goes on. Commands share reader
// with the REPL so that their prompts consume the following lines.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("fieldlog %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		err = nil
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}

		case "login":
			err = a.Login(ctx)

		case "status":
			err = a.Status(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		case "add", "logout", "l", "list", "show", "retry", "sync":
			if !a.isLoggedIn() {
				printlnFn("Please login first")
				continue
			}
			err = dispatch(ctx, a, cmd, args)

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("error:", err)
		}
	}
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string) error {
	switch cmd {
	case "add":
		return a.Add(ctx)
	case "logout":
		return a.Logout(ctx)
	case "l", "list":
		filter := ""
		if len(args) > 0 {
			filter = args[0]
		}
		return a.List(ctx, filter)
	case "show", "retry":
		if len(args) == 0 {
			printlnFn(fmt.Sprintf("Usage: %s <id>", cmd))
			return nil
		}
		if cmd == "show" {
			return a.Show(ctx, args[0])
		}
		return a.Retry(ctx, args[0])
	case "sync":
		return a.Sync(ctx)
	}
	return nil
}

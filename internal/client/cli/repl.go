package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL needs. App satisfies it; tests
// provide a stub.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	List(ctx context.Context) error
	Show(ctx context.Context, args []string) error
	AddPerson(ctx context.Context) error
	AddGroup(ctx context.Context) error
	Delete(ctx context.Context, args []string) error
	Sync(ctx context.Context) error
	Settings(ctx context.Context) error
	Backup(ctx context.Context) error
}

// runREPL reads commands from scanner and dispatches them to a until EOF,
// "exit" or "quit". Command errors are printed and the loop goes on.
//
//	Not logged in: help, register, login, exit
//	Logged in:     help, list, show, add, addgroup, delete, settings,
//	               sync, backup, logout, exit
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("pl %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		if cmd == "exit" || cmd == "quit" {
			printlnFn("Bye!")
			return
		}
		if cmd == "help" {
			if a.isLoggedIn() {
				printlnFn("Available commands: (l)ist, show, add, addgroup, delete, settings, sync, backup, logout, exit")
			} else {
				printlnFn("Available commands: register, login, exit")
			}
			continue
		}

		var err error
		switch {
		case cmd == "register":
			err = a.Register(ctx)
		case cmd == "login":
			err = a.Login(ctx)
		case !a.isLoggedIn() && isSessionCommand(cmd):
			printlnFn("Please login first")
			continue
		case cmd == "l" || cmd == "list":
			err = a.List(ctx)
		case cmd == "show":
			err = a.Show(ctx, args)
		case cmd == "add":
			err = a.AddPerson(ctx)
		case cmd == "addgroup":
			err = a.AddGroup(ctx)
		case cmd == "delete":
			err = a.Delete(ctx, args)
		case cmd == "settings":
			err = a.Settings(ctx)
		case cmd == "sync":
			err = a.Sync(ctx)
		case cmd == "backup":
			err = a.Backup(ctx)
		case cmd == "logout":
			err = a.Logout(ctx)
		default:
			printlnFn("Unknown command:", cmd)
			continue
		}

		if err != nil {
			printlnFn("Error:", userMessage(err))
		}
	}
}

func isSessionCommand(cmd string) bool {
	switch cmd {
	case "l", "list", "show", "add", "addgroup", "delete", "settings", "sync", "backup", "logout":
		return true
	}
	return false
}

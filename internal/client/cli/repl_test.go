package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExec struct {
	loggedIn bool

	calls []string
	args  [][]string
	err   error
}

func (f *fakeExec) record(name string) error {
	f.calls = append(f.calls, name)
	return f.err
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }
func (f *fakeExec) Register(ctx context.Context) error {
	return f.record("register")
}
func (f *fakeExec) Login(ctx context.Context) error {
	f.loggedIn = true
	return f.record("login")
}
func (f *fakeExec) Logout(ctx context.Context) error {
	f.loggedIn = false
	return f.record("logout")
}
func (f *fakeExec) List(ctx context.Context) error { return f.record("list") }
func (f *fakeExec) Show(ctx context.Context, args []string) error {
	f.args = append(f.args, args)
	return f.record("show")
}
func (f *fakeExec) AddPerson(ctx context.Context) error { return f.record("add") }
func (f *fakeExec) AddGroup(ctx context.Context) error { return f.record("addgroup") }
func (f *fakeExec) Delete(ctx context.Context, args []string) error {
	f.args = append(f.args, args)
	return f.record("delete")
}
func (f *fakeExec) Sync(ctx context.Context) error { return f.record("sync") }
func (f *fakeExec) Settings(ctx context.Context) error { return f.record("settings") }
func (f *fakeExec) Backup(ctx context.Context) error { return f.record("backup") }

func capturePrints(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, strings.TrimSpace(fmt.Sprintln(a...)))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func TestRunREPL_LoginFlowAndCommands(t *testing.T) {
	capturePrints(t)

	input := strings.NewReader(strings.Join([]string{
		"list",
		"help",
		"login",
		"help",
		"add",
		"addgroup",
		"l",
		"show abc",
		"delete a b",
		"settings",
		"sync",
		"backup",
		"foobar",
		"logout",
		"exit",
		"list",
	}, "\n"))

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "status" }, bufio.NewScanner(input))

	assert.Equal(t, []string{
		"login", "add", "addgroup", "list", "show", "delete", "settings", "sync", "backup", "logout",
	}, exec.calls)
	assert.Equal(t, [][]string{{"abc"}, {"a", "b"}}, exec.args)
}

func TestRunREPL_RequiresLogin(t *testing.T) {
	lines := capturePrints(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "" }, bufio.NewScanner(strings.NewReader("sync\nquit\n")))

	assert.Empty(t, exec.calls)
	assert.Contains(t, *lines, "Please login first")
	assert.Contains(t, *lines, "Bye!")
}

func TestRunREPL_PrintsErrors(t *testing.T) {
	lines := capturePrints(t)

	exec := &fakeExec{loggedIn: true, err: errors.New("disk full")}
	runREPL(context.Background(), exec, func() string { return "" }, bufio.NewScanner(strings.NewReader("sync\n")))

	require.Equal(t, []string{"sync"}, exec.calls)
	assert.Contains(t, *lines, "Error: disk full")
}

func TestRunREPL_StopsOnCancelledContext(t *testing.T) {
	capturePrints(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &fakeExec{loggedIn: true}
	runREPL(ctx, exec, func() string { return "" }, bufio.NewScanner(strings.NewReader("sync\n")))
	assert.Empty(t, exec.calls)
}

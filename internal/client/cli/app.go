package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dmitrijs2005/praylist/internal/client/cache"
	"github.com/dmitrijs2005/praylist/internal/client/client"
	"github.com/dmitrijs2005/praylist/internal/client/codec"
	"github.com/dmitrijs2005/praylist/internal/client/config"
	"github.com/dmitrijs2005/praylist/internal/client/keys"
	"github.com/dmitrijs2005/praylist/internal/client/mutation"
	"github.com/dmitrijs2005/praylist/internal/client/repositories"
	"github.com/dmitrijs2005/praylist/internal/client/services"
	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/logging"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

// onlineCheckInterval is how often the watcher pings the server.
const onlineCheckInterval = 5 * time.Second

type App struct {
	config  *config.Config
	auth    services.AuthService
	records services.RecordService
	log     logging.Logger
	reader  *bufio.Reader
	out     io.Writer
	closeFn func() error

	mu   sync.Mutex
	mode Mode
}

// NewApp opens the local cache and builds the client stack from c.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	log := logging.New(c.LogFormat, os.Stderr, c.Debug)

	repos, err := repositories.Open(ctx, c.CacheDriver, c.CachePath)
	if err != nil {
		return nil, fmt.Errorf("error opening local cache: %w", err)
	}

	session := keys.NewSession(repos.Metadata, log)
	cd, err := codec.New(session, codec.DefaultMemoSize)
	if err != nil {
		_ = repos.Close()
		return nil, err
	}

	api := client.NewHTTPClient(c.ServerURL, c.RequestTimeout, session, log)
	ch := cache.New(repos.Metadata, repos.Records, api, log)
	engine := mutation.NewEngine(mutation.Options{MaxAttempts: c.MaxAttempts, RetryDelay: c.RetryDelay}, log)

	a := &App{
		config:  c,
		auth:    services.NewAuthService(api, session, ch, cd, log),
		records: services.NewRecordService(api, ch, cd, repos.Metadata, engine, log),
		log:     log,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		closeFn: repos.Close,
	}
	a.auth.OnNotice(func(msg string) { fmt.Fprintln(a.out, msg) })
	return a, nil
}

// Run restores the previous session if there is one and serves the REPL
// until the user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	defer func() {
		if a.closeFn != nil {
			_ = a.closeFn()
		}
	}()

	fmt.Fprintln(a.out, "praylist (type 'help' for commands)")

	if err := a.auth.Restore(ctx); err == nil {
		fmt.Fprintf(a.out, "Signed in as %s\n", a.auth.Account())
		if err := a.records.Sync(ctx); err != nil {
			a.log.Warn(ctx, "initial sync failed", "error", err)
		}
	} else if !errors.Is(err, common.ErrNotInitialised) {
		a.log.Warn(ctx, "could not restore session", "error", err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.StartOnlineStatusWatcher(watchCtx, onlineCheckInterval)

	runREPL(ctx, a, a.status, bufio.NewScanner(a.reader))
}

func (a *App) isLoggedIn() bool {
	return a.auth.Account() != ""
}

func (a *App) setMode(ctx context.Context, mode Mode) {
	a.mu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.mu.Unlock()
	if changed {
		a.log.Info(ctx, "connectivity changed", "mode", string(mode))
	}
}

func (a *App) status() string {
	a.mu.Lock()
	mode := a.mode
	a.mu.Unlock()

	s := ""
	if acc := a.auth.Account(); acc != "" {
		s = acc + " "
	}
	s += string(mode)
	if s != "" {
		s = fmt.Sprintf("(%s)", s)
	}
	return s
}

// StartOnlineStatusWatcher pings the server every interval and records the
// result as the current Mode.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	check := func() {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := a.auth.Ping(pingCtx); err != nil {
			a.setMode(ctx, ModeOffline)
			return
		}
		a.setMode(ctx, ModeOnline)
	}

	check()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			check()
		case <-ctx.Done():
			return
		}
	}
}

// userMessage is what the REPL prints for err.
func userMessage(err error) string {
	var se *common.SessionExpiredError
	if errors.As(err, &se) {
		return services.SessionExpiredNotice
	}
	var ve *common.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	var swe *common.SecondaryWriteError
	if errors.As(err, &swe) {
		return "The records were deleted, but some groups could not be updated. Run sync and try again."
	}
	if errors.Is(err, common.ErrVersionConflict) {
		return "Someone else changed this record at the same time. Your change was not saved."
	}
	var re *common.RequestError
	if errors.As(err, &re) {
		return re.Message
	}
	return err.Error()
}

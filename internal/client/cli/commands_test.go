package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/praylist/internal/client/models"
	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readerFromLines(lines ...string) *bufio.Reader {
	if len(lines) == 0 || lines[len(lines)-1] != "" {
		lines = append(lines, "")
	}
	return bufio.NewReader(strings.NewReader(strings.Join(lines, "\n")))
}

type fakeAuth struct {
	account   string
	password  []byte
	loginErr  error
	pingErr   error
	loggedOut bool
}

func (f *fakeAuth) Register(_ context.Context, password []byte) (string, error) {
	f.password = append([]byte(nil), password...)
	f.account = "acc-1"
	return f.account, nil
}
func (f *fakeAuth) Login(_ context.Context, account string, password []byte) error {
	f.password = append([]byte(nil), password...)
	if f.loginErr != nil {
		return f.loginErr
	}
	f.account = account
	return nil
}
func (f *fakeAuth) Restore(context.Context) error { return common.ErrNotInitialised }
func (f *fakeAuth) Logout(context.Context) error {
	f.loggedOut = true
	f.account = ""
	return nil
}
func (f *fakeAuth) Ping(context.Context) error { return f.pingErr }
func (f *fakeAuth) Account() string { return f.account }
func (f *fakeAuth) OnNotice(func(string)) {}

type fakeRecords struct {
	records  []models.Record
	saved    []models.Record
	deleted  []string
	settings map[string]any
	synced   int
	saveErr  error
}

func (f *fakeRecords) Sync(context.Context) error { f.synced++; return nil }
func (f *fakeRecords) List(context.Context) ([]models.Record, error) {
	return append([]models.Record(nil), f.records...), nil
}
func (f *fakeRecords) Get(_ context.Context, id string) (models.Record, error) {
	for _, r := range f.records {
		if r.ID == id {
			return r, nil
		}
	}
	return models.Record{}, common.ErrorNotFound
}
func (f *fakeRecords) Save(_ context.Context, records ...models.Record) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	f.saved = append(f.saved, records...)
	return nil
}
func (f *fakeRecords) Delete(_ context.Context, ids ...string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}
func (f *fakeRecords) Metadata(context.Context) (models.Metadata, error) {
	return models.Metadata{Version: 1, Settings: f.settings}, nil
}
func (f *fakeRecords) SaveSettings(_ context.Context, settings map[string]any) error {
	if f.settings == nil {
		f.settings = map[string]any{}
	}
	for k, v := range settings {
		f.settings[k] = v
	}
	return nil
}
func (f *fakeRecords) Backup(context.Context) (string, error) { return "backups/acc-1.json", nil }

func newTestApp(r *bufio.Reader) (*App, *fakeAuth, *fakeRecords, *bytes.Buffer) {
	auth := &fakeAuth{}
	recs := &fakeRecords{}
	out := &bytes.Buffer{}
	return &App{auth: auth, records: recs, reader: r, out: out, log: logging.Discard()}, auth, recs, out
}

func stubPassword(t *testing.T, pw string) {
	t.Helper()
	orig := getPassword
	getPassword = func(io.Writer) ([]byte, error) { return []byte(pw), nil }
	t.Cleanup(func() { getPassword = orig })
}

func TestRegister_PrintsAccount(t *testing.T) {
	stubPassword(t, "pw")
	app, auth, _, out := newTestApp(readerFromLines())

	require.NoError(t, app.Register(context.Background()))
	assert.Equal(t, []byte("pw"), auth.password)
	assert.Contains(t, out.String(), "Account created: acc-1")
}

func TestLogin_SyncsAfterSuccess(t *testing.T) {
	stubPassword(t, "pw")
	app, auth, recs, _ := newTestApp(readerFromLines("acc-9"))

	require.NoError(t, app.Login(context.Background()))
	assert.Equal(t, "acc-9", auth.account)
	assert.Equal(t, 1, recs.synced)
	assert.True(t, app.isLoggedIn())
}

func TestLogin_Failure(t *testing.T) {
	stubPassword(t, "bad")
	app, auth, recs, _ := newTestApp(readerFromLines("acc-9"))
	auth.loginErr = common.ErrorUnauthorized

	err := app.Login(context.Background())
	require.ErrorIs(t, err, common.ErrorUnauthorized)
	assert.Zero(t, recs.synced)
}

func TestAddPerson(t *testing.T) {
	app, _, recs, _ := newTestApp(readerFromLines(
		"Ann",            // name
		"neighbour",      // description
		"family, church", // tags
		"line one",       // notes
		"",
	))

	require.NoError(t, app.AddPerson(context.Background()))
	require.Len(t, recs.saved, 1)
	p := recs.saved[0]
	assert.Equal(t, "Ann", p.Name)
	assert.Equal(t, models.RecordTypePerson, p.Type)
	assert.Equal(t, "neighbour", p.Description)
	assert.Equal(t, []string{"family", "church"}, p.Tags)
	assert.Equal(t, "line one", p.Notes)
	assert.NotEmpty(t, p.ID)
}

func TestAddPerson_EmptyNameIsValidationError(t *testing.T) {
	app, _, recs, _ := newTestApp(readerFromLines("", "", "", ""))

	err := app.AddPerson(context.Background())
	require.ErrorIs(t, err, common.ErrValidation)
	assert.Empty(t, recs.saved)
}

func TestAddGroup(t *testing.T) {
	app, _, recs, _ := newTestApp(readerFromLines("Friends", "a,b"))

	require.NoError(t, app.AddGroup(context.Background()))
	require.Len(t, recs.saved, 1)
	assert.Equal(t, models.RecordTypeGroup, recs.saved[0].Type)
	assert.Equal(t, []string{"a", "b"}, recs.saved[0].Members)
}

func TestList_SortsPeopleThenGroups(t *testing.T) {
	app, _, recs, out := newTestApp(readerFromLines())
	recs.records = []models.Record{
		{ID: "g", Type: models.RecordTypeGroup, Name: "Friends", Members: []string{"1", "2"}},
		{ID: "2", Type: models.RecordTypePerson, Name: "bob", Archived: true},
		{ID: "1", Type: models.RecordTypePerson, Name: "Ann", Tags: []string{"family"}},
	}

	require.NoError(t, app.List(context.Background()))
	assert.Equal(t, "1  person  Ann [family]\n2  person  bob (archived)\ng  group   Friends (2 members)\n", out.String())
}

func TestShow_ResolvesMemberNames(t *testing.T) {
	app, _, recs, out := newTestApp(readerFromLines())
	recs.records = []models.Record{
		{ID: "g", Type: models.RecordTypeGroup, Name: "Friends", Version: 3, Members: []string{"1", "gone"}},
		{ID: "1", Type: models.RecordTypePerson, Name: "Ann"},
	}

	require.NoError(t, app.Show(context.Background(), []string{"g"}))
	assert.Equal(t, "Friends (group, version 3)\n  - Ann\n  - gone\n", out.String())
}

func TestDelete_PromptsWhenNoArgs(t *testing.T) {
	app, _, recs, _ := newTestApp(readerFromLines("x, y"))

	require.NoError(t, app.Delete(context.Background(), nil))
	assert.Equal(t, []string{"x", "y"}, recs.deleted)
}

func TestSettings(t *testing.T) {
	app, _, recs, out := newTestApp(readerFromLines("theme=dark", "lang=en", ""))

	require.NoError(t, app.Settings(context.Background()))
	assert.Equal(t, map[string]any{"theme": "dark", "lang": "en"}, recs.settings)
	assert.True(t, strings.HasSuffix(out.String(), "lang=en\ntheme=dark\n"))
}

func TestSettings_Malformed(t *testing.T) {
	app, _, recs, _ := newTestApp(readerFromLines("nonsense", ""))

	err := app.Settings(context.Background())
	require.ErrorIs(t, err, models.ErrIncorrectSetting)
	assert.Nil(t, recs.settings)
}

func TestLogout(t *testing.T) {
	app, auth, _, _ := newTestApp(readerFromLines())
	auth.account = "acc-1"

	require.NoError(t, app.Logout(context.Background()))
	assert.True(t, auth.loggedOut)
	assert.False(t, app.isLoggedIn())
}

func TestOnlineStatusWatcher(t *testing.T) {
	app, auth, _, _ := newTestApp(readerFromLines())
	auth.pingErr = errors.New("down")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	app.StartOnlineStatusWatcher(ctx, time.Millisecond)

	assert.Equal(t, "(offline)", app.status())
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&common.RequestError{Op: "put", Message: common.UserFacingRequestMessage, Err: errors.New("x")}, common.UserFacingRequestMessage},
		{&common.SessionExpiredError{Account: "a"}, "Your session has expired. Please sign in again."},
		{&common.SecondaryWriteError{Op: "delete", Err: errors.New("x")}, "The records were deleted, but some groups could not be updated. Run sync and try again."},
		{errors.Join(common.ErrVersionConflict, errors.New("x")), "Someone else changed this record at the same time. Your change was not saved."},
		{errors.New("plain"), "plain"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, userMessage(tt.err))
	}
}

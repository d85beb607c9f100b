package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/dmitrijs2005/praylist/internal/client/models"
	"github.com/dmitrijs2005/praylist/internal/common"
	"github.com/dmitrijs2005/praylist/internal/cryptox"
	"github.com/dmitrijs2005/praylist/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func byID(records []models.Record) map[string]models.Record {
	out := make(map[string]models.Record, len(records))
	for _, r := range records {
		out[r.ID] = r
	}
	return out
}

func TestSave_NewRecordsGetVersionOne(t *testing.T) {
	h := signedIn(t)
	ctx := context.Background()

	ann := models.NewPerson("Ann")
	ann.Tags = []string{"family"}
	grp := models.NewGroup("Friends", ann.ID)

	require.NoError(t, h.records.Save(ctx, ann, grp))

	list, err := h.records.List(ctx)
	require.NoError(t, err)
	got := byID(list)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1), got[ann.ID].Version)
	assert.Equal(t, []string{"family"}, got[ann.ID].Tags)
	assert.Equal(t, []string{ann.ID}, got[grp.ID].Members)

	stored := h.remote.items[ann.ID]
	assert.Equal(t, int64(1), stored.Version)
	assert.Equal(t, "person", stored.Type)
	assert.NotContains(t, stored.Cipher, "Ann")
}

func TestSave_UpdateBumpsVersion(t *testing.T) {
	h := signedIn(t)
	ctx := context.Background()

	ann := models.NewPerson("Ann")
	require.NoError(t, h.records.Save(ctx, ann))

	got, err := h.records.Get(ctx, ann.ID)
	require.NoError(t, err)
	got.Notes = "pray for exams"
	require.NoError(t, h.records.Save(ctx, got))

	got, err = h.records.Get(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, "pray for exams", got.Notes)
	assert.Equal(t, int64(2), h.remote.items[ann.ID].Version)
}

func TestSave_MergesConcurrentEdit(t *testing.T) {
	h := signedIn(t)
	ctx := context.Background()

	ann := models.NewPerson("Ann")
	ann.Tags = []string{"family"}
	require.NoError(t, h.records.Save(ctx, ann))

	// the phone edits the description and adds a tag
	theirs := ann
	theirs.Version = 2
	theirs.Description = "from phone"
	theirs.Tags = []string{"family", "church"}
	h.remote.writeFromOtherDevice(t, h.key, theirs)

	// this device still sees version 1
	yours, err := h.records.Get(ctx, ann.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), yours.Version)
	yours.Name = "Ann B."
	yours.Tags = []string{"family", "work"}

	require.NoError(t, h.records.Save(ctx, yours))

	got, err := h.records.Get(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, "Ann B.", got.Name)
	assert.Equal(t, "from phone", got.Description)
	assert.Equal(t, []string{"family", "church", "work"}, got.Tags)

	require.Len(t, h.remote.puts, 3)
	assert.Len(t, h.remote.puts[2], 1)
}

func TestSave_StaleReadMergesAgainstWhatWasRead(t *testing.T) {
	a := signedIn(t)
	ctx := context.Background()

	p1, p2 := models.NewPerson("P1"), models.NewPerson("P2")
	g := models.NewGroup("Family", p1.ID, p2.ID)
	require.NoError(t, a.records.Save(ctx, p1, p2, g))

	// the phone drops p1 from the group
	b := a.otherDevice(t)
	require.NoError(t, b.records.Sync(ctx))
	bg, err := b.records.Get(ctx, g.ID)
	require.NoError(t, err)
	bg.Members = []string{p2.ID}
	require.NoError(t, b.records.Save(ctx, bg))

	ag, err := a.records.Get(ctx, g.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), ag.Version)

	// an unrelated save refreshes this device's cache past the read
	p3 := models.NewPerson("P3")
	require.NoError(t, a.records.Save(ctx, p3))
	cached, err := a.records.Get(ctx, g.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), cached.Version)

	ag.Members = append(ag.Members, p3.ID)
	require.NoError(t, a.records.Save(ctx, ag))

	got, err := a.records.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{p2.ID, p3.ID}, got.Members)
	assert.Equal(t, int64(3), got.Version)

	require.NoError(t, b.records.Sync(ctx))
	seen, err := b.records.Get(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, got.Members, seen.Members)
}

func TestSave_CacheHoldsTheSentCiphertext(t *testing.T) {
	h := signedIn(t)
	ctx := context.Background()
	slot := h.records.(*recordService).records

	ann := models.NewPerson("Ann")
	ann.Version = 1
	require.NoError(t, slot.Apply(ctx, []models.Record{ann}))
	require.NoError(t, slot.Save(ctx, []models.Record{ann}))

	cached, err := h.cache.Items(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	require.Len(t, h.remote.puts, 1)
	require.Len(t, h.remote.puts[0], 1)

	sent := h.remote.puts[0][0]
	assert.Equal(t, sent.IV, cached[0].IV)
	assert.Equal(t, sent.Cipher, cached[0].Cipher)

	// the handoff is used once; a repeat save seals afresh
	var be *common.BatchError
	require.ErrorAs(t, slot.Save(ctx, []models.Record{ann}), &be)
	assert.Equal(t, []string{ann.ID}, be.ConflictIDs())
	require.Len(t, h.remote.puts, 2)
	assert.NotEqual(t, sent.IV, h.remote.puts[1][0].IV)
}

func TestSave_ValidationRejectsBeforeSending(t *testing.T) {
	h := signedIn(t)

	err := h.records.Save(context.Background(), models.Record{ID: "x", Type: models.RecordTypePerson})
	require.ErrorIs(t, err, common.ErrValidation)
	assert.Empty(t, h.remote.puts)
}

func TestSave_FailureRollsBackCache(t *testing.T) {
	h := signedIn(t)
	ctx := context.Background()

	ann := models.NewPerson("Ann")
	require.NoError(t, h.records.Save(ctx, ann))

	unavailable := errors.New("server down")
	h.remote.putErr = unavailable

	edited := ann
	edited.Name = "Anna"
	err := h.records.Save(ctx, edited)
	require.ErrorIs(t, err, unavailable)

	got, err := h.records.Get(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Name)
	assert.Equal(t, int64(1), got.Version)
}

func TestDelete_RemovesFromEveryGroup(t *testing.T) {
	h := signedIn(t)
	ctx := context.Background()

	a := models.NewPerson("A")
	b := models.NewPerson("B")
	g1 := models.NewGroup("G1", a.ID, b.ID)
	g2 := models.NewGroup("G2", a.ID)
	g3 := models.NewGroup("G3", b.ID)
	require.NoError(t, h.records.Save(ctx, a, b, g1, g2, g3))

	require.NoError(t, h.records.Delete(ctx, a.ID))

	_, onServer := h.remote.items[a.ID]
	assert.False(t, onServer)

	list, err := h.records.List(ctx)
	require.NoError(t, err)
	got := byID(list)
	assert.NotContains(t, got, a.ID)
	assert.Equal(t, []string{b.ID}, got[g1.ID].Members)
	assert.Empty(t, got[g2.ID].Members)
	assert.Equal(t, int64(2), got[g1.ID].Version)
	assert.Equal(t, int64(1), got[g3.ID].Version)
}

func TestDelete_GroupUpdateFailureKeepsDeletion(t *testing.T) {
	h := signedIn(t)
	ctx := context.Background()

	a := models.NewPerson("A")
	g := models.NewGroup("G", a.ID)
	require.NoError(t, h.records.Save(ctx, a, g))

	h.remote.rejectPut = func(wire.Item) bool { return true }
	err := h.records.Delete(ctx, a.ID)

	var swe *common.SecondaryWriteError
	require.True(t, errors.As(err, &swe))
	_, onServer := h.remote.items[a.ID]
	assert.False(t, onServer)

	_, err = h.records.Get(ctx, a.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSync_PicksUpOtherDevices(t *testing.T) {
	h := signedIn(t)
	ctx := context.Background()

	ann := models.NewPerson("Ann")
	require.NoError(t, h.records.Save(ctx, ann))

	bob := models.NewPerson("Bob")
	bob.Version = 1
	h.remote.writeFromOtherDevice(t, h.key, bob)

	require.NoError(t, h.records.Sync(ctx))

	list, err := h.records.List(ctx)
	require.NoError(t, err)
	got := byID(list)
	assert.Equal(t, "Ann", got[ann.ID].Name)
	assert.Equal(t, "Bob", got[bob.ID].Name)
}

func TestList_SkipsUndecryptable(t *testing.T) {
	h := signedIn(t)
	ctx := context.Background()

	ann := models.NewPerson("Ann")
	require.NoError(t, h.records.Save(ctx, ann))

	foreign := models.NewPerson("Mallory")
	foreign.Version = 1
	h.remote.writeFromOtherDevice(t, cryptox.DeriveKey([]byte("other"), []byte("salt"), 1), foreign)
	require.NoError(t, h.records.Sync(ctx))

	list, err := h.records.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ann.ID, list[0].ID)
}

func TestSaveSettings_EncryptsAndVersions(t *testing.T) {
	h := signedIn(t)
	ctx := context.Background()

	require.NoError(t, h.records.SaveSettings(ctx, map[string]any{"theme": "dark"}))

	m, err := h.records.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), m.Version)
	assert.Equal(t, "dark", m.Settings["theme"])

	assert.True(t, cryptox.LooksLikeEnvelope(h.remote.metadata))
	assert.False(t, strings.Contains(string(h.remote.metadata), "dark"))
}

func TestSaveSettings_MergesConcurrentChange(t *testing.T) {
	h := signedIn(t)
	ctx := context.Background()

	require.NoError(t, h.records.SaveSettings(ctx, map[string]any{"theme": "dark"}))

	// another device adds a setting
	env, err := cryptox.EncryptObject(h.key, map[string]any{"theme": "dark", "lang": "en"})
	require.NoError(t, err)
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, h.remote.SetMetadata(ctx, raw, 2))

	require.NoError(t, h.records.SaveSettings(ctx, map[string]any{"theme": "light"}))

	m, err := h.records.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.Version)
	assert.Equal(t, map[string]any{"theme": "light", "lang": "en"}, m.Settings)
}

func TestMetadata_LegacyPlaintext(t *testing.T) {
	h := signedIn(t)
	h.remote.metadata = []byte(`{"theme":"dark"}`)
	h.remote.metadataVersion = 4

	m, err := h.records.Metadata(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), m.Version)
	assert.Equal(t, "dark", m.Settings["theme"])
}

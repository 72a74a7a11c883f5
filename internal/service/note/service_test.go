package note

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/practice-local/internal/hooks"
	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/internal/repository/sqlite"
	"github.com/jwalitptl/practice-local/internal/schema"
	"github.com/jwalitptl/practice-local/pkg/errors"
	"github.com/jwalitptl/practice-local/pkg/validator"
)

func setup(t *testing.T) *Service {
	t.Helper()
	ctx := context.Background()

	// every write is one minute after the previous one
	tick := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}

	db, err := sqlite.Open(ctx, sqlite.Config{Path: filepath.Join(t.TempDir(), "practice.db")}, sqlite.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mgr, err := schema.NewManager(schema.Versions(hooks.Defaults{}), nil, nil)
	require.NoError(t, err)
	_, err = mgr.Upgrade(ctx, db)
	require.NoError(t, err)

	return NewService(sqlite.NewNoteRepository(db), validator.New(), nil)
}

func ptr[T any](v T) *T { return &v }

func TestCreate_ShapeByType(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)
	pid := ptr(int64(1))

	_, err := svc.Create(ctx, &model.CreateNoteRequest{PatientID: pid, Type: model.NoteTypeGeneral})
	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"content"}, verr.FieldNames())

	_, err = svc.Create(ctx, &model.CreateNoteRequest{PatientID: pid, Type: model.NoteTypeSOAP, Content: "stray"})
	assert.ErrorIs(t, err, errors.ValidationErr)

	soap, err := svc.Create(ctx, &model.CreateNoteRequest{PatientID: pid, Type: model.NoteTypeSOAP, Plan: "follow up", Content: "stray"})
	require.NoError(t, err)
	assert.Equal(t, "follow up", soap.Plan)
	assert.Empty(t, soap.Content, "content of the other shape is dropped")

	_, err = svc.Create(ctx, &model.CreateNoteRequest{Type: "diary", Content: "x"})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"type"}, verr.FieldNames())
}

func TestUpdate_SwitchingTypeClearsOtherShape(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)

	n, err := svc.Create(ctx, &model.CreateNoteRequest{PatientID: ptr(int64(1)), Type: model.NoteTypeGeneral, Content: "free text"})
	require.NoError(t, err)

	_, err = svc.Update(ctx, n.ID, &model.UpdateNoteRequest{Type: ptr(model.NoteTypeSOAP)})
	assert.ErrorIs(t, err, errors.ValidationErr, "soap without sections is rejected")

	updated, err := svc.Update(ctx, n.ID, &model.UpdateNoteRequest{Type: ptr(model.NoteTypeSOAP), Subjective: ptr("feels better")})
	require.NoError(t, err)
	assert.Equal(t, model.NoteTypeSOAP, updated.Type)
	assert.Equal(t, "feels better", updated.Subjective)
	assert.Empty(t, updated.Content)

	back, err := svc.Update(ctx, n.ID, &model.UpdateNoteRequest{Type: ptr(model.NoteTypeAssessment), Content: ptr("summary")})
	require.NoError(t, err)
	assert.Empty(t, back.Subjective)
	assert.Equal(t, "summary", back.Content)
	assert.True(t, back.CreatedAt.Equal(n.CreatedAt.Time))
	assert.True(t, back.UpdatedAt.After(n.UpdatedAt.Time))
}

func TestUpdate_DropsOtherShapeFieldsFromPatch(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)

	general, err := svc.Create(ctx, &model.CreateNoteRequest{Type: model.NoteTypeGeneral, Content: "c"})
	require.NoError(t, err)
	updated, err := svc.Update(ctx, general.ID, &model.UpdateNoteRequest{Subjective: ptr("s"), Plan: ptr("p")})
	require.NoError(t, err)
	assert.Equal(t, "c", updated.Content)
	assert.Empty(t, updated.Subjective)
	assert.Empty(t, updated.Plan)

	soap, err := svc.Create(ctx, &model.CreateNoteRequest{Type: model.NoteTypeSOAP, Plan: "p"})
	require.NoError(t, err)
	updated, err = svc.Update(ctx, soap.ID, &model.UpdateNoteRequest{Content: ptr("stray")})
	require.NoError(t, err)
	assert.Equal(t, "p", updated.Plan)
	assert.Empty(t, updated.Content)

	stored, err := svc.FetchPersonal(ctx)
	require.NoError(t, err)
	for _, n := range stored {
		if n.Type == model.NoteTypeSOAP {
			assert.Empty(t, n.Content)
		} else {
			assert.Empty(t, n.Subjective+n.Objective+n.Assessment+n.Plan)
		}
	}
}

func TestFetch_PinnedFirstThenNewest(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)
	pid := int64(7)

	var ids []int64
	for i, title := range []string{"first", "second", "third"} {
		n, err := svc.Create(ctx, &model.CreateNoteRequest{PatientID: &pid, Type: model.NoteTypeGeneral, Title: title, Content: "c", Pinned: i == 0})
		require.NoError(t, err)
		ids = append(ids, n.ID)
	}
	_, err := svc.Create(ctx, &model.CreateNoteRequest{Type: model.NoteTypeGeneral, Content: "personal"})
	require.NoError(t, err)

	notes, err := svc.FetchForPatient(ctx, pid)
	require.NoError(t, err)
	var titles []string
	for _, n := range notes {
		titles = append(titles, n.Title)
	}
	assert.Equal(t, []string{"first", "third", "second"}, titles)

	toggled, err := svc.TogglePin(ctx, ids[0])
	require.NoError(t, err)
	assert.False(t, toggled.Pinned)

	personal, err := svc.FetchPersonal(ctx)
	require.NoError(t, err)
	require.Len(t, personal, 1)
	assert.True(t, personal[0].Personal())
}

func TestFetchForSession(t *testing.T) {
	ctx := context.Background()
	svc := setup(t)
	sid := int64(42)

	_, err := svc.Create(ctx, &model.CreateNoteRequest{PatientID: ptr(int64(1)), SessionID: &sid, Type: model.NoteTypeSOAP, Objective: "calm"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, &model.CreateNoteRequest{PatientID: ptr(int64(1)), Type: model.NoteTypeGeneral, Content: "other"})
	require.NoError(t, err)

	notes, err := svc.FetchForSession(ctx, sid)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "calm", notes[0].Objective)

	require.NoError(t, svc.Delete(ctx, notes[0].ID))
	assert.ErrorIs(t, svc.Delete(ctx, notes[0].ID), errors.NotFoundErr)
}

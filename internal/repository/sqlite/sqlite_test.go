package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/practice-local/internal/hooks"
	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/internal/schema"
	"github.com/jwalitptl/practice-local/pkg/errors"
	"github.com/jwalitptl/practice-local/pkg/logger"
	"github.com/jwalitptl/practice-local/pkg/metrics"
)

var testDefaults = hooks.Defaults{AppointmentPrice: 90}

// clock is a settable time source for the timestamp hooks.
type clock struct{ t time.Time }

func (c *clock) Now() time.Time { return c.t }

func openTestDB(t *testing.T, path string, opts ...Option) *DB {
	t.Helper()
	if path == "" {
		path = filepath.Join(t.TempDir(), "practice.db")
	}
	d, err := Open(context.Background(), Config{Path: path, Defaults: testDefaults}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func upgrade(t *testing.T, d *DB, versions []schema.Version) int {
	t.Helper()
	mgr, err := schema.NewManager(versions, logger.Nop(), nil)
	require.NoError(t, err)
	v, err := mgr.Upgrade(context.Background(), d)
	require.NoError(t, err)
	return v
}

func newTestDB(t *testing.T, opts ...Option) *DB {
	t.Helper()
	d := openTestDB(t, "", opts...)
	upgrade(t, d, schema.Versions(testDefaults))
	return d
}

func TestUpgrade_IdempotentCatalog(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "practice.db")

	d := openTestDB(t, path)
	assert.Equal(t, 5, upgrade(t, d, schema.Versions(testDefaults)))
	first, err := d.Catalog(ctx)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	reopened := openTestDB(t, path)
	version, err := reopened.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, version)

	assert.Equal(t, 5, upgrade(t, reopened, schema.Versions(testDefaults)))
	second, err := reopened.Catalog(ctx)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("catalog changed on second upgrade (-first +second):\n%s", diff)
	}

	names := make([]string, 0, len(second))
	for _, obj := range second {
		names = append(names, obj.Name)
	}
	assert.Contains(t, names, "idx_patients_firstName_lastName")
	assert.Contains(t, names, "idx_notes_pinned")
	assert.Contains(t, names, "goals")
}

func TestUpgrade_DropsUndeclaredIndexes(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t, "")

	versions := []schema.Version{
		{Number: 1, Collections: []schema.Collection{{Name: "things", Indexes: []schema.Index{{Fields: []string{"a"}}, {Fields: []string{"b"}}}}}},
		{Number: 2, Collections: []schema.Collection{{Name: "things", Indexes: []schema.Index{{Fields: []string{"a"}}}}}},
	}
	upgrade(t, d, versions)

	catalog, err := d.Catalog(ctx)
	require.NoError(t, err)
	var indexes []string
	for _, obj := range catalog {
		if obj.Type == "index" {
			indexes = append(indexes, obj.Name)
		}
	}
	assert.Equal(t, []string{"idx_things_a"}, indexes)
}

type brokenTransform struct{}

func (brokenTransform) FromVersion() int { return 5 }
func (brokenTransform) ToVersion() int   { return 6 }
func (brokenTransform) Apply(ctx context.Context, tx schema.Tx) error {
	if _, err := tx.Collection(hooks.Patients).Insert(ctx, model.JSONMap{"lastName": "Ghost"}); err != nil {
		return err
	}
	if err := tx.EnsureCollection(ctx, schema.Collection{Name: "extra"}); err != nil {
		return err
	}
	return fmt.Errorf("disk on fire")
}

func TestUpgrade_FailedVersionIsRolledBack(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)

	versions := append(schema.Versions(testDefaults), schema.Version{Number: 6, Upgrade: brokenTransform{}})
	mgr, err := schema.NewManager(versions, logger.Nop(), nil)
	require.NoError(t, err)

	version, err := mgr.Upgrade(ctx, d)
	require.Error(t, err)
	assert.Equal(t, 5, version)

	var merr *errors.MigrationError
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, 5, merr.From)
	assert.Equal(t, 6, merr.To)

	stored, err := d.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stored)

	n, err := d.Collection(hooks.Patients).All().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	catalog, err := d.Catalog(ctx)
	require.NoError(t, err)
	for _, obj := range catalog {
		assert.NotEqual(t, "extra", obj.Name)
	}
}

func TestUpgrade_LegacyDocuments(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t, "")
	upgrade(t, d, schema.Versions(testDefaults)[:1])

	raw := []struct{ table, doc string }{
		{"patients", `{"firstName":"Ada","lastName":"Lovelace","createdAt":1704067200000,"updatedAt":1704067200000,"notes":"Allergic to penicillin"}`},
		{"appointments", `{"patientId":1,"date":1704103200000,"duration":50,"status":"scheduled","createdAt":"2024-01-01"}`},
		{"notes", `{"patientId":1,"type":"general","content":"old","createdAt":"2024-01-02T09:00:00"}`},
	}
	for _, r := range raw {
		_, err := d.db.ExecContext(ctx, "INSERT INTO "+r.table+" (doc) VALUES (?)", r.doc)
		require.NoError(t, err)
	}

	assert.Equal(t, 5, upgrade(t, d, schema.Versions(testDefaults)))

	patient, err := NewPatientRepository(d).Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.PatientStatusActive, patient.Status)
	assert.Equal(t, []string{}, patient.Tags)
	assert.Equal(t, "2024-01-01T00:00:00.000Z", patient.CreatedAt.String())

	rawPatient, err := d.Collection(hooks.Patients).Get(ctx, 1)
	require.NoError(t, err)
	assert.NotContains(t, rawPatient, "notes")

	appt, err := NewAppointmentRepository(d).Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-01T10:00:00.000Z", appt.Date.String())
	require.NotNil(t, appt.Price)
	assert.Equal(t, 90.0, *appt.Price)
	require.NotNil(t, appt.PaymentInfo)
	assert.False(t, appt.PaymentInfo.IsPaid)

	pid := int64(1)
	notes, err := NewNoteRepository(d).List(ctx, &model.NoteFilters{PatientID: &pid})
	require.NoError(t, err)
	require.Len(t, notes, 2)

	var migrated *model.Note
	for _, n := range notes {
		assert.False(t, n.Pinned)
		if n.Title == schema.MigratedNotesTitle {
			migrated = n
		}
	}
	require.NotNil(t, migrated)
	assert.Equal(t, model.NoteTypeGeneral, migrated.Type)
	assert.Equal(t, "Allergic to penicillin", migrated.Content)
	assert.Equal(t, patient.CreatedAt, migrated.CreatedAt)
}

func TestCollection_AddStampsAndDefaults(t *testing.T) {
	ctx := context.Background()
	clk := &clock{t: time.Date(2026, 5, 4, 8, 0, 0, 987654321, time.UTC)}
	d := newTestDB(t, WithClock(clk.Now))
	appts := d.Collection(hooks.Appointments)

	created, err := appts.Add(ctx, model.JSONMap{"patientId": 1, "date": "2026-05-05T09:00:00.000Z", "duration": 50})
	require.NoError(t, err)
	id := created["id"].(int64)

	stored, err := appts.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "2026-05-04T08:00:00.987Z", stored["createdAt"])
	assert.Equal(t, stored["createdAt"], stored["updatedAt"])
	assert.Equal(t, 90.0, stored["price"])
	assert.Equal(t, map[string]interface{}{"isPaid": false}, stored["paymentInfo"])
	assert.Equal(t, "scheduled", stored["status"])
	assert.Equal(t, false, stored["reminderSent"])

	clk.t = clk.t.Add(time.Hour)
	updated, err := appts.Update(ctx, id, model.JSONMap{"notes": "bring forms", "createdAt": "1999-01-01T00:00:00.000Z", "duration": nil})
	require.NoError(t, err)
	assert.Equal(t, "2026-05-04T08:00:00.987Z", updated["createdAt"], "createdAt is immutable")
	assert.Equal(t, "2026-05-04T09:00:00.987Z", updated["updatedAt"])
	assert.Equal(t, "bring forms", updated["notes"])
	assert.NotContains(t, updated, "duration")

	reread, err := appts.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, updated, reread)
}

func TestCollection_NotFound(t *testing.T) {
	ctx := context.Background()
	c := newTestDB(t).Collection(hooks.Patients)

	_, err := c.Get(ctx, 42)
	assert.ErrorIs(t, err, errors.NotFoundErr)

	_, err = c.Update(ctx, 42, model.JSONMap{"firstName": "x"})
	assert.ErrorIs(t, err, errors.NotFoundErr)

	assert.ErrorIs(t, c.Delete(ctx, 42), errors.NotFoundErr)
}

func TestCollection_RejectsBadIdentifiers(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)

	_, err := d.Collection("patients; DROP TABLE notes").Get(ctx, 1)
	assert.Error(t, err)

	_, err = d.Collection(hooks.Patients).Where("x') OR 1=1 --").Equals(1).Find(ctx)
	assert.Error(t, err)
}

func TestQuery_Operators(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	appts := d.Collection(hooks.Appointments)

	dates := []string{"2026-01-01T09:00:00.000Z", "2026-01-02T09:00:00.000Z", "2026-01-03T09:00:00.000Z"}
	for i, date := range dates {
		_, err := appts.Add(ctx, model.JSONMap{"patientId": i + 1, "date": date, "duration": 50})
		require.NoError(t, err)
	}

	between, err := appts.Where("date").Between(dates[0], dates[2]).Find(ctx)
	require.NoError(t, err)
	assert.Len(t, between, 2, "upper bound is exclusive")

	above, err := appts.Where("date").Above(dates[0]).OrderBy("date").Reverse().Find(ctx)
	require.NoError(t, err)
	require.Len(t, above, 2)
	assert.Equal(t, dates[2], above[0]["date"])

	below, err := appts.Where("date").Below(dates[1]).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, below)

	limited, err := appts.All().OrderBy("date").Limit(1).Find(ctx)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, dates[0], limited[0]["date"])

	n, err := appts.Where("patientId").Equals(2).Delete(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	total, err := appts.All().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
}

func TestAppointments_ListByPatientIDsIsOneQuery(t *testing.T) {
	ctx := context.Background()
	m := metrics.New("test", nil)
	d := newTestDB(t, WithMetrics(m))
	repo := NewAppointmentRepository(d)

	for _, pid := range []int64{1, 2, 3} {
		for i := 0; i < 2; i++ {
			err := repo.Create(ctx, &model.Appointment{PatientID: pid, Date: model.NewTime(time.Date(2026, 2, 1+i, 9, 0, 0, 0, time.UTC)), Duration: 50})
			require.NoError(t, err)
		}
	}

	anyOf := m.DatabaseOperations.WithLabelValues(hooks.Appointments, "anyof", "success")

	got, err := repo.ListByPatientIDs(ctx, []int64{1, 3})
	require.NoError(t, err)
	assert.Len(t, got, 4)
	assert.Equal(t, 1.0, testutil.ToFloat64(anyOf))

	empty, err := repo.ListByPatientIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.Equal(t, 1.0, testutil.ToFloat64(anyOf), "empty set never reaches the engine")
}

func TestAppointments_SetStatus(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	repo := NewAppointmentRepository(d)

	var ids []int64
	for i := 0; i < 3; i++ {
		a := &model.Appointment{PatientID: 1, Date: model.NewTime(time.Date(2026, 2, 1, 9+i, 0, 0, 0, time.UTC)), Duration: 30}
		require.NoError(t, repo.Create(ctx, a))
		ids = append(ids, a.ID)
	}

	n, err := repo.SetStatus(ctx, ids[:2], model.AppointmentStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.SetStatus(ctx, nil, model.AppointmentStatusCompleted)
	require.NoError(t, err)
	assert.Zero(t, n)

	completed, err := repo.List(ctx, &model.AppointmentFilters{Status: model.AppointmentStatusCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, 2)

	scheduled, err := repo.List(ctx, &model.AppointmentFilters{PatientID: 1, Status: model.AppointmentStatusScheduled})
	require.NoError(t, err)
	require.Len(t, scheduled, 1)
	assert.Equal(t, ids[2], scheduled[0].ID)
}

func TestAppointments_DateRoundTrip(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	repo := NewAppointmentRepository(d)

	when := time.Date(2026, 7, 8, 14, 30, 15, 250_000_000, time.FixedZone("CEST", 2*60*60))
	a := &model.Appointment{PatientID: 7, Date: model.NewTime(when), Duration: 45}
	require.NoError(t, repo.Create(ctx, a))

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Date.Equal(when))

	raw, err := d.Collection(hooks.Appointments).Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "2026-07-08T12:30:15.250Z", raw["date"])
}

func TestPatients_ListHidesArchived(t *testing.T) {
	ctx := context.Background()
	repo := NewPatientRepository(newTestDB(t))

	active := &model.Patient{FirstName: "Ada", LastName: "Lovelace"}
	archived := &model.Patient{FirstName: "Old", LastName: "Timer", Status: model.PatientStatusArchived}
	require.NoError(t, repo.Create(ctx, active))
	require.NoError(t, repo.Create(ctx, archived))
	assert.Equal(t, model.PatientStatusActive, active.Status)
	assert.Equal(t, []string{}, active.Tags)

	visible, err := repo.List(ctx, &model.PatientFilters{})
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, active.ID, visible[0].ID)

	all, err := repo.List(ctx, &model.PatientFilters{ShowArchived: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	email := "ada@example.com"
	updated, err := repo.Update(ctx, active.ID, &model.UpdatePatientRequest{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, email, updated.Email)
	assert.Equal(t, "Lovelace", updated.LastName)
}

func TestNotes_PersonalAndSession(t *testing.T) {
	ctx := context.Background()
	repo := NewNoteRepository(newTestDB(t))

	pid, sid := int64(3), int64(11)
	require.NoError(t, repo.Create(ctx, &model.Note{Type: model.NoteTypeGeneral, Content: "mine"}))
	require.NoError(t, repo.Create(ctx, &model.Note{PatientID: &pid, SessionID: &sid, Type: model.NoteTypeSOAP, Subjective: "s"}))

	personal, err := repo.List(ctx, &model.NoteFilters{Personal: true})
	require.NoError(t, err)
	require.Len(t, personal, 1)
	assert.True(t, personal[0].Personal())

	session, err := repo.ListBySession(ctx, sid)
	require.NoError(t, err)
	require.Len(t, session, 1)
	assert.Equal(t, "s", session[0].Subjective)

	all, err := repo.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestDocuments_StoredInGoals(t *testing.T) {
	ctx := context.Background()
	d := newTestDB(t)
	repo := NewDocumentRepository(d)

	doc := &model.Document{PatientID: 4, Kind: model.DocumentKindFile, Type: "consent", Title: "Consent", FileName: "c.pdf", FileData: []byte("%PDF")}
	require.NoError(t, repo.Create(ctx, doc))
	assert.Zero(t, doc.Progress)
	assert.False(t, doc.Pinned)

	got, err := repo.ListByPatient(ctx, 4)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []byte("%PDF"), got[0].FileData)

	n, err := d.Collection(hooks.Goals).All().Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

package state

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/practice-local/internal/model"
	"github.com/jwalitptl/practice-local/pkg/errors"
	"github.com/jwalitptl/practice-local/pkg/metrics"
)

var (
	testNow   = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	timeEqual = cmp.Comparer(func(a, b model.Time) bool { return a.Equal(b.Time) })
)

func fixedClock() time.Time { return testNow }

// fakePatients is an in-memory PatientService. fail, when set, is returned by
// every write; during runs while a write is in flight.
type fakePatients struct {
	patients []model.Patient
	fail     error
	during   func()
}

func (f *fakePatients) FetchPatients(_ context.Context, showArchived bool) ([]model.PatientWithAppointments, error) {
	out := []model.PatientWithAppointments{}
	for _, p := range f.patients {
		if showArchived || p.Status != model.PatientStatusArchived {
			out = append(out, model.PatientWithAppointments{Patient: p})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastName < out[j].LastName })
	return out, nil
}

func (f *fakePatients) GetPatient(_ context.Context, id int64) (*model.Patient, error) {
	for i := range f.patients {
		if f.patients[i].ID == id {
			p := f.patients[i]
			return &p, nil
		}
	}
	return nil, errors.NewNotFound("patient", nil)
}

func (f *fakePatients) write() error {
	if f.during != nil {
		f.during()
	}
	return f.fail
}

func (f *fakePatients) CreatePatient(_ context.Context, req *model.CreatePatientRequest) (*model.Patient, error) {
	if err := f.write(); err != nil {
		return nil, err
	}
	p := model.Patient{Base: model.Base{ID: int64(len(f.patients) + 1)}, FirstName: req.FirstName, LastName: req.LastName,
		Status: model.PatientStatusActive, Tags: req.Tags}
	f.patients = append(f.patients, p)
	return &p, nil
}

func (f *fakePatients) UpdatePatient(ctx context.Context, id int64, req *model.UpdatePatientRequest) (*model.Patient, error) {
	if err := f.write(); err != nil {
		return nil, err
	}
	for i := range f.patients {
		if f.patients[i].ID == id {
			f.patients[i] = req.Apply(f.patients[i])
		}
	}
	return f.GetPatient(ctx, id)
}

func (f *fakePatients) DeletePatient(_ context.Context, id int64) error {
	if err := f.write(); err != nil {
		return err
	}
	for i := range f.patients {
		if f.patients[i].ID == id {
			f.patients = append(f.patients[:i], f.patients[i+1:]...)
			return nil
		}
	}
	return errors.NewNotFound("patient", nil)
}

func (f *fakePatients) ArchivePatient(ctx context.Context, id int64) (*model.Patient, error) {
	status := model.PatientStatusArchived
	return f.UpdatePatient(ctx, id, &model.UpdatePatientRequest{Status: &status})
}

func (f *fakePatients) RestorePatient(ctx context.Context, id int64) (*model.Patient, error) {
	status := model.PatientStatusActive
	return f.UpdatePatient(ctx, id, &model.UpdatePatientRequest{Status: &status})
}

func seedPatients() *fakePatients {
	return &fakePatients{patients: []model.Patient{
		{Base: model.Base{ID: 1}, FirstName: "Ada", LastName: "Lovelace", Status: model.PatientStatusActive, Tags: []string{"anxiety", "weekly"}},
		{Base: model.Base{ID: 2}, FirstName: "Alan", LastName: "Turing", Status: model.PatientStatusActive, Tags: []string{"weekly"}},
		{Base: model.Base{ID: 3}, FirstName: "Grace", LastName: "Hopper", Status: model.PatientStatusArchived, Tags: []string{}},
	}}
}

func lastNames(list []model.PatientWithAppointments) []string {
	out := make([]string, 0, len(list))
	for _, p := range list {
		out = append(out, p.LastName)
	}
	return out
}

func TestPatientStore_FailedArchiveRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	m := metrics.New("test", nil)
	svc := seedPatients()
	store := NewPatientStore(svc, Options{Metrics: m, Now: fixedClock})

	assert.True(t, store.Stale())
	require.NoError(t, store.Fetch(ctx, false))
	assert.False(t, store.Stale())
	before := store.Patients()

	var during []string
	svc.fail = errors.New("disk full")
	svc.during = func() {
		during = lastNames(store.Patients())
		assert.True(t, store.Loading())
	}

	_, err := store.Archive(ctx, 1)
	require.Error(t, err)

	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, "Failed to archive patient", actionErr.Message)
	assert.ErrorIs(t, err, svc.fail)
	assert.Equal(t, "Failed to archive patient", store.Error())
	assert.False(t, store.Loading())

	assert.Equal(t, []string{"Turing"}, during, "archived patient leaves the list before the write settles")
	if diff := cmp.Diff(before, store.Patients(), timeEqual); diff != "" {
		t.Fatalf("cache not restored (-before +after):\n%s", diff)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreMutations.WithLabelValues("patients", "archive", "error")))
}

func TestPatientStore_FailedUpdateRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	svc := seedPatients()
	store := NewPatientStore(svc, Options{Now: fixedClock})
	require.NoError(t, store.Fetch(ctx, false))
	before := store.Patients()

	var during []model.PatientWithAppointments
	svc.fail = errors.New("disk full")
	svc.during = func() { during = store.Patients() }

	first, tags := "Augusta", []string{"monthly"}
	_, err := store.Update(ctx, 1, &model.UpdatePatientRequest{FirstName: &first, Tags: &tags})
	require.Error(t, err)
	assert.Equal(t, "Failed to update patient", store.Error())

	require.Len(t, during, 2)
	assert.Equal(t, "Augusta", during[0].FirstName, "the patch is visible while the write runs")
	assert.Equal(t, []string{"monthly"}, during[0].Tags)

	if diff := cmp.Diff(before, store.Patients(), timeEqual); diff != "" {
		t.Fatalf("cache not restored (-before +after):\n%s", diff)
	}
	assert.Equal(t, "Ada", svc.patients[0].FirstName)
}

func TestPatientStore_FailedDeleteRestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	svc := seedPatients()
	store := NewPatientStore(svc, Options{Now: fixedClock})
	require.NoError(t, store.Fetch(ctx, true))
	before := store.Patients()

	svc.fail = errors.NewNotFound("patient", nil)
	err := store.Delete(ctx, 2)
	assert.ErrorIs(t, err, errors.NotFoundErr)
	assert.Equal(t, "Could not delete patient: record not found", store.Error())
	if diff := cmp.Diff(before, store.Patients(), timeEqual); diff != "" {
		t.Fatalf("cache not restored (-before +after):\n%s", diff)
	}

	svc.fail = nil
	require.NoError(t, store.Delete(ctx, 2))
	assert.Empty(t, store.Error())
	assert.Equal(t, []string{"Hopper", "Lovelace"}, lastNames(store.Patients()))
}

func TestPatientStore_SuccessfulMutations(t *testing.T) {
	ctx := context.Background()
	svc := seedPatients()
	store := NewPatientStore(svc, Options{Now: fixedClock})
	require.NoError(t, store.Fetch(ctx, false))

	added, err := store.Add(ctx, &model.CreatePatientRequest{FirstName: "Barbara", LastName: "Liskov"})
	require.NoError(t, err)
	assert.NotZero(t, added.ID)
	assert.Equal(t, []string{"Liskov", "Lovelace", "Turing"}, lastNames(store.Patients()))

	email := "ada@example.com"
	updated, err := store.Update(ctx, 1, &model.UpdatePatientRequest{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, email, updated.Email)

	_, err = store.Archive(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Liskov", "Lovelace"}, lastNames(store.Patients()))

	restored, err := store.Restore(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, model.PatientStatusActive, restored.Status)
	assert.Equal(t, []string{"Hopper", "Liskov", "Lovelace"}, lastNames(store.Patients()))
	assert.True(t, store.Stale(), "restored patient has no appointment summary yet")

	require.NoError(t, store.Refresh(ctx))
	assert.False(t, store.Stale())
}

func TestPatientStore_NotifiesPersistedChanges(t *testing.T) {
	ctx := context.Background()
	svc := seedPatients()
	store := NewPatientStore(svc, Options{Now: fixedClock})
	require.NoError(t, store.Fetch(ctx, true))

	var changes []PatientChange
	store.OnChange(func(c PatientChange) { changes = append(changes, c) })

	_, err := store.Archive(ctx, 1)
	require.NoError(t, err)
	_, err = store.Restore(ctx, 1)
	require.NoError(t, err)

	svc.fail = errors.New("locked")
	assert.Error(t, store.Delete(ctx, 2))
	svc.fail = nil
	require.NoError(t, store.Delete(ctx, 2))

	assert.Equal(t, []PatientChange{
		{Op: PatientArchived, ID: 1},
		{Op: PatientRestored, ID: 1},
		{Op: PatientDeleted, ID: 2},
	}, changes)
}

func TestAppointmentStore_ForgetPatient(t *testing.T) {
	svc := &fakeAppointments{appointments: []model.Appointment{
		appt(1, testNow.Add(time.Hour)),
		appt(2, testNow.Add(2*time.Hour), func(a *model.Appointment) { a.PatientID = 2 }),
	}}
	store := newAppointmentStore(t, svc, AppointmentStoreConfig{})
	require.Len(t, store.ByPatient(1), 1)

	store.ForgetPatient(1)
	assert.Empty(t, store.ByPatient(1))
	assert.Equal(t, []int64{2}, ids(store.Upcoming()))
}

func TestPatientStore_SearchAndTagCounts(t *testing.T) {
	ctx := context.Background()
	store := NewPatientStore(seedPatients(), Options{Now: fixedClock})
	require.NoError(t, store.Fetch(ctx, true))

	assert.Equal(t, []string{"Lovelace", "Turing"}, lastNames(store.Search("WEEKLY")))
	assert.Len(t, store.Search(""), 3)

	want := []TagCount{{Tag: "weekly", Count: 2}, {Tag: "anxiety", Count: 1}}
	assert.Equal(t, want, store.TagCounts())

	tags := []string{"weekly", "couples"}
	_, err := store.Update(ctx, 3, &model.UpdatePatientRequest{Tags: &tags})
	require.NoError(t, err)
	assert.Equal(t, []TagCount{{Tag: "weekly", Count: 3}, {Tag: "anxiety", Count: 1}, {Tag: "couples", Count: 1}}, store.TagCounts())
}

// fakeAppointments is an in-memory AppointmentService that returns its list
// unsorted so the store's own ordering is exercised.
type fakeAppointments struct {
	appointments []model.Appointment
	fetches      int
	fail         error
}

func (f *fakeAppointments) Fetch(context.Context, *model.AppointmentFilters) ([]model.Appointment, error) {
	f.fetches++
	return append([]model.Appointment(nil), f.appointments...), nil
}

func (f *fakeAppointments) find(id int64) (*model.Appointment, error) {
	for i := range f.appointments {
		if f.appointments[i].ID == id {
			return &f.appointments[i], nil
		}
	}
	return nil, errors.NewNotFound("appointment", nil)
}

func (f *fakeAppointments) Get(_ context.Context, id int64) (*model.Appointment, error) {
	a, err := f.find(id)
	if err != nil {
		return nil, err
	}
	out := *a
	return &out, nil
}

func (f *fakeAppointments) Create(_ context.Context, req *model.CreateAppointmentRequest) (*model.Appointment, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	a := model.Appointment{Base: model.Base{ID: int64(len(f.appointments) + 100)}, PatientID: req.PatientID,
		Date: model.NewTime(req.Date), Duration: req.Duration, Status: model.AppointmentStatusScheduled}
	f.appointments = append(f.appointments, a)
	return &a, nil
}

func (f *fakeAppointments) Update(ctx context.Context, id int64, req *model.UpdateAppointmentRequest) (*model.Appointment, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	a, err := f.find(id)
	if err != nil {
		return nil, err
	}
	if req.Status != nil {
		a.Status = *req.Status
	}
	if req.ReminderSent != nil {
		a.ReminderSent = *req.ReminderSent
	}
	if req.PaymentInfo != nil {
		a.PaymentInfo = req.PaymentInfo
	}
	return f.Get(ctx, id)
}

func (f *fakeAppointments) Delete(_ context.Context, id int64) error {
	if f.fail != nil {
		return f.fail
	}
	for i := range f.appointments {
		if f.appointments[i].ID == id {
			f.appointments = append(f.appointments[:i], f.appointments[i+1:]...)
			return nil
		}
	}
	return errors.NewNotFound("appointment", nil)
}

func (f *fakeAppointments) Cancel(ctx context.Context, id int64, _ string) (*model.Appointment, error) {
	status := model.AppointmentStatusCancelled
	return f.Update(ctx, id, &model.UpdateAppointmentRequest{Status: &status})
}

func (f *fakeAppointments) Reschedule(ctx context.Context, id int64, date time.Time) (*model.Appointment, error) {
	old, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	next, err := f.Create(ctx, &model.CreateAppointmentRequest{PatientID: old.PatientID, Date: date, Duration: old.Duration})
	if err != nil {
		return nil, err
	}
	status := model.AppointmentStatusRescheduled
	if _, err := f.Update(ctx, id, &model.UpdateAppointmentRequest{Status: &status}); err != nil {
		return nil, err
	}
	return next, nil
}

func (f *fakeAppointments) MarkReminderSent(ctx context.Context, id int64) (*model.Appointment, error) {
	sent := true
	return f.Update(ctx, id, &model.UpdateAppointmentRequest{ReminderSent: &sent})
}

func (f *fakeAppointments) MarkPaid(ctx context.Context, id int64, method, notes string) (*model.Appointment, error) {
	return f.Update(ctx, id, &model.UpdateAppointmentRequest{PaymentInfo: &model.PaymentInfo{IsPaid: true, PaymentMethod: method, Notes: notes}})
}

func appt(id int64, at time.Time, mutate ...func(*model.Appointment)) model.Appointment {
	a := model.Appointment{Base: model.Base{ID: id}, PatientID: 1, Date: model.NewTime(at), Duration: 50, Status: model.AppointmentStatusScheduled}
	for _, fn := range mutate {
		fn(&a)
	}
	return a
}

func ids(list []model.Appointment) []int64 {
	out := make([]int64, 0, len(list))
	for _, a := range list {
		out = append(out, a.ID)
	}
	return out
}

func newAppointmentStore(t *testing.T, svc *fakeAppointments, cfg AppointmentStoreConfig) *AppointmentStore {
	t.Helper()
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	store := NewAppointmentStore(svc, cfg, Options{Now: fixedClock})
	require.NoError(t, store.Fetch(context.Background()))
	return store
}

func TestAppointmentStore_NeedingReminderWindow(t *testing.T) {
	sent := func(a *model.Appointment) { a.ReminderSent = true }
	cancelled := func(a *model.Appointment) { a.Status = model.AppointmentStatusCancelled }

	svc := &fakeAppointments{appointments: []model.Appointment{
		appt(1, testNow.Add(48*time.Hour+time.Minute)),
		appt(2, testNow.Add(47*time.Hour+59*time.Minute)),
		appt(3, testNow.Add(2*time.Hour), sent),
		appt(4, testNow.Add(-time.Hour)),
		appt(5, testNow.Add(3*time.Hour), cancelled),
		appt(6, testNow.Add(48*time.Hour)),
		appt(7, testNow),
	}}
	store := newAppointmentStore(t, svc, AppointmentStoreConfig{})

	assert.Equal(t, []int64{2, 6}, ids(store.NeedingReminder()))

	_, err := store.MarkReminderSent(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{6}, ids(store.NeedingReminder()))
}

func TestAppointmentStore_TimeSelectorsKeepMemoBounded(t *testing.T) {
	svc := &fakeAppointments{}
	for i := 0; i < 20; i++ {
		svc.appointments = append(svc.appointments, appt(int64(i), testNow.Add(time.Duration(i)*time.Hour)))
	}
	tick := testNow
	store := NewAppointmentStore(svc, AppointmentStoreConfig{Location: time.UTC, UpcomingLimit: 3}, Options{Now: func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}})
	require.NoError(t, store.Fetch(context.Background()))

	for i := 0; i < 5000; i++ {
		store.Upcoming()
		store.NeedingReminder()
		store.Today()
	}
	assert.LessOrEqual(t, store.memo.ItemCount(), 1)

	// a clock that moved past the first appointments is still honoured
	tick = testNow.Add(5*time.Hour + 30*time.Minute)
	assert.Equal(t, []int64{6, 7, 8}, ids(store.Upcoming()))
	assert.Equal(t, int64(6), store.NeedingReminder()[0].ID)
}

func TestAppointmentStore_TodayUsesLocalMidnight(t *testing.T) {
	day := time.Date(testNow.Year(), testNow.Month(), testNow.Day(), 0, 0, 0, 0, time.UTC)
	svc := &fakeAppointments{appointments: []model.Appointment{
		appt(1, day.Add(18*time.Hour)),
		appt(2, day.Add(-time.Minute)),
		appt(3, day),
		appt(4, day.Add(24*time.Hour)),
		appt(5, day.Add(9*time.Hour)),
	}}
	store := newAppointmentStore(t, svc, AppointmentStoreConfig{})
	assert.Equal(t, []int64{3, 5, 1}, ids(store.Today()))

	// 10:00 UTC is still the previous evening at UTC-11.
	samoa := time.FixedZone("SST", -11*60*60)
	local := newAppointmentStore(t, svc, AppointmentStoreConfig{Location: samoa})
	assert.Equal(t, []int64{2, 3, 5}, ids(local.Today()))
}

func TestAppointmentStore_UpcomingIsCapped(t *testing.T) {
	svc := &fakeAppointments{}
	for i := 5; i >= 0; i-- {
		svc.appointments = append(svc.appointments, appt(int64(i), testNow.Add(time.Duration(i)*time.Hour)))
	}
	store := newAppointmentStore(t, svc, AppointmentStoreConfig{UpcomingLimit: 3})

	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5}, ids(store.Appointments()))
	assert.Equal(t, []int64{1, 2, 3}, ids(store.Upcoming()), "an appointment exactly at now is not upcoming")
}

func TestAppointmentStore_MutationsRefetchAndNotify(t *testing.T) {
	ctx := context.Background()
	svc := &fakeAppointments{appointments: []model.Appointment{appt(1, testNow.Add(time.Hour))}}
	store := newAppointmentStore(t, svc, AppointmentStoreConfig{})

	var changes int
	store.OnChange(func() { changes++ })

	created, err := store.Add(ctx, &model.CreateAppointmentRequest{PatientID: 2, Date: testNow.Add(-time.Hour), Duration: 50})
	require.NoError(t, err)
	assert.Equal(t, []int64{created.ID, 1}, ids(store.Appointments()))
	assert.Equal(t, []int64{created.ID}, ids(store.ByPatient(2)))

	_, err = store.Reschedule(ctx, 1, testNow.Add(72*time.Hour))
	require.NoError(t, err)
	assert.Len(t, store.Appointments(), 3)

	require.NoError(t, store.Delete(ctx, created.ID))
	assert.Equal(t, 3, changes)
	assert.Equal(t, 4, svc.fetches)

	svc.fail = errors.New("locked")
	_, err = store.Cancel(ctx, 1, "")
	assert.Error(t, err)
	assert.Equal(t, "Failed to cancel appointment", store.Error())
	assert.Equal(t, 3, changes, "failed writes do not notify")
	assert.Equal(t, 4, svc.fetches, "failed writes do not refetch")
}

func TestAppointmentStore_UnpaidAndRevenue(t *testing.T) {
	ctx := context.Background()
	price := func(p float64) func(*model.Appointment) {
		return func(a *model.Appointment) {
			a.Price = &p
			a.Status = model.AppointmentStatusCompleted
		}
	}
	svc := &fakeAppointments{appointments: []model.Appointment{
		appt(1, testNow.Add(-48*time.Hour), price(90)),
		appt(2, testNow.Add(-24*time.Hour), price(120)),
		appt(3, testNow.Add(24*time.Hour)),
	}}
	store := newAppointmentStore(t, svc, AppointmentStoreConfig{})
	assert.Equal(t, []int64{1, 2}, ids(store.Unpaid()))

	_, err := store.MarkPaid(ctx, 2, "card", "")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(store.Unpaid()))

	from, to := testNow.Add(-72*time.Hour), testNow
	assert.Equal(t, 120.0, store.RevenueBetween(from, to))
	assert.Equal(t, []int64{1, 2}, ids(store.Between(from, to)))
}

func TestActionError_Unwraps(t *testing.T) {
	cause := errors.NewValidation(errors.FieldError{Field: "firstName", Rule: "required", Message: "is required"})
	err := error(&ActionError{Message: fmt.Sprintf("Could not add patient: please check %s", "firstName"), Err: cause})

	assert.ErrorIs(t, err, errors.ValidationErr)
	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"firstName"}, verr.FieldNames())
}

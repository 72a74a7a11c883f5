package schema

import "github.com/jwalitptl/practice-local/internal/hooks"

func idx(fields ...string) Index { return Index{Fields: fields} }

var (
	patientsV1 = Collection{Name: hooks.Patients, Indexes: []Index{
		idx("lastName"), idx("email"), idx("phone"), idx("firstName", "lastName"),
	}}
	patientsV3 = Collection{Name: hooks.Patients, Indexes: []Index{
		idx("lastName"), idx("email"), idx("phone"), idx("status"), idx("firstName", "lastName"),
	}}
	appointmentsV1 = Collection{Name: hooks.Appointments, Indexes: []Index{
		idx("patientId"), idx("date"), idx("status"),
	}}
	notesV1 = Collection{Name: hooks.Notes, Indexes: []Index{
		idx("patientId"), idx("sessionId"), idx("type"), idx("createdAt"),
	}}
	notesV5 = Collection{Name: hooks.Notes, Indexes: []Index{
		idx("patientId"), idx("sessionId"), idx("type"), idx("pinned"), idx("createdAt"),
	}}
	goalsV1 = Collection{Name: hooks.Goals, Indexes: []Index{
		idx("patientId"), idx("status"), idx("targetDate"), idx("createdAt"),
	}}
)

// Versions is the ordered schema history. defaults supplies the values the
// default-injection transforms write into existing records.
func Versions(defaults hooks.Defaults) []Version {
	return []Version{
		{
			Number:      1,
			Collections: []Collection{patientsV1, appointmentsV1, notesV1, goalsV1},
		},
		{
			Number:      2,
			Collections: []Collection{patientsV1, appointmentsV1, notesV1, goalsV1},
			Upgrade:     isoDates{},
		},
		{
			Number:      3,
			Collections: []Collection{patientsV3, appointmentsV1, notesV1, goalsV1},
			Upgrade:     patientDefaults{},
		},
		{
			Number:      4,
			Collections: []Collection{patientsV3, appointmentsV1, notesV1, goalsV1},
			Upgrade:     appointmentDefaults{price: defaults.AppointmentPrice},
		},
		{
			Number:      5,
			Collections: []Collection{patientsV3, appointmentsV1, notesV5, goalsV1},
			Upgrade:     patientNotesToRecords{},
		},
	}
}

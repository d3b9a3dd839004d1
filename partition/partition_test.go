package partition

import (
	"errors"
	"testing"

	"github.com/SanteonNL/ehealth-ingest/lib/payload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var employeeSpec = Spec{
	Groups: []Group{
		{Name: "employee", Fields: []Field{{Path: "party.email", As: "email", Shared: true}}},
		{Name: "party", Fields: []Field{{Path: "party", As: Whole}}},
		{Name: "documents", Fields: []Field{{Path: "party.documents", As: Whole}}},
		{Name: "phones", Fields: []Field{{Path: "party.phones", As: Whole}}},
		{Name: "specialities", Fields: []Field{{Path: "doctor.specialities", As: Whole}}},
		{Name: "educations", Fields: []Field{{Path: "doctor.educations", As: Whole}}},
	},
	Remainder: "employee",
	Dropped:   []string{"doctor.science_degree"},
}

const employee = `{
	"uuid":"e-1",
	"position":"P1",
	"status":"APPROVED",
	"party":{
		"first_name":"Petro",
		"email":"petro@example.com",
		"documents":[{"type":"PASSPORT","number":"AA1"}],
		"phones":[{"type":"MOBILE","number":"+380501234567"}]
	},
	"doctor":{
		"specialities":[{"speciality":"THERAPIST"}],
		"educations":[{"degree":"MASTER"}],
		"science_degree":{"degree":"PHD"}
	}
}`

func TestPartition(t *testing.T) {
	t.Run("employee", func(t *testing.T) {
		record := payload.MustDecode(employee)

		groups, err := Partition(record, employeeSpec)

		require.NoError(t, err)
		require.Len(t, groups, 6)
		assertJSON(t, `{"uuid":"e-1","position":"P1","status":"APPROVED","email":"petro@example.com"}`, groups["employee"])
		assertJSON(t, `{"first_name":"Petro","email":"petro@example.com"}`, groups["party"])
		assertJSON(t, `[{"type":"PASSPORT","number":"AA1"}]`, groups["documents"])
		assertJSON(t, `[{"type":"MOBILE","number":"+380501234567"}]`, groups["phones"])
		assertJSON(t, `[{"speciality":"THERAPIST"}]`, groups["specialities"])
		assertJSON(t, `[{"degree":"MASTER"}]`, groups["educations"])
	})
	t.Run("missing optional paths are absent", func(t *testing.T) {
		groups, err := Partition(payload.MustDecode(`{"uuid":"e-1","party":{"first_name":"Petro"}}`), employeeSpec)

		require.NoError(t, err)
		assertJSON(t, `{"uuid":"e-1"}`, groups["employee"])
		assertJSON(t, `{"first_name":"Petro"}`, groups["party"])
		assert.NotContains(t, groups, "documents")
		assert.NotContains(t, groups, "specialities")
	})
	t.Run("object groups are present even when empty", func(t *testing.T) {
		spec := Spec{Groups: []Group{{Name: "contact", Fields: []Field{{Path: "email"}}}}, Remainder: "base"}

		groups, err := Partition(payload.MustDecode(`{"uuid":"1"}`), spec)

		require.NoError(t, err)
		assertJSON(t, `{}`, groups["contact"])
		assertJSON(t, `{"uuid":"1"}`, groups["base"])
	})
	t.Run("undeclared fields without remainder", func(t *testing.T) {
		spec := Spec{Groups: []Group{{Name: "base", Fields: []Field{{Path: "uuid"}}}}}

		_, err := Partition(payload.MustDecode(`{"uuid":"1","status":"ACTIVE","legal_entity":{}}`), spec)

		var undeclared *UndeclaredFieldsError
		require.True(t, errors.As(err, &undeclared))
		assert.Equal(t, []string{"status", "legal_entity"}, undeclared.Fields)
		assert.EqualError(t, err, "undeclared fields: status, legal_entity")
	})
	t.Run("ancestors emptied by claims are not leftovers", func(t *testing.T) {
		spec := Spec{Groups: []Group{
			{Name: "base", Fields: []Field{{Path: "uuid"}}},
			{Name: "address", Fields: []Field{{Path: "location.address.street"}, {Path: "location.address.zip"}}},
		}}

		groups, err := Partition(payload.MustDecode(`{"uuid":"1","location":{"address":{"street":"Main","zip":"01001"}}}`), spec)

		require.NoError(t, err)
		assertJSON(t, `{"street":"Main","zip":"01001"}`, groups["address"])
	})
	t.Run("dropped ancestor keeps claimed descendants", func(t *testing.T) {
		spec := Spec{
			Groups:    []Group{{Name: "declaration", Fields: []Field{{Path: "employee.uuid", As: "employee_id"}}}},
			Remainder: "declaration",
			Dropped:   []string{"employee", "request_id"},
		}

		groups, err := Partition(payload.MustDecode(`{"uuid":"d-1","request_id":"r","employee":{"uuid":"42","position":"P1"}}`), spec)

		require.NoError(t, err)
		assertJSON(t, `{"uuid":"d-1","employee_id":"42"}`, groups["declaration"])
	})
	t.Run("remainder collision", func(t *testing.T) {
		spec := Spec{Groups: []Group{{Name: "base", Fields: []Field{{Path: "legal_entity.id", As: "id"}}}}, Remainder: "base"}

		_, err := Partition(payload.MustDecode(`{"id":"1","legal_entity":{"id":"2"}}`), spec)

		require.EqualError(t, err, "group base: field id collides with a claimed field")
	})
	t.Run("not an object", func(t *testing.T) {
		_, err := Partition(payload.MustDecode(`[1]`), employeeSpec)

		require.EqualError(t, err, "can't partition a array, expected object")
	})
}

func TestMerge(t *testing.T) {
	specs := map[string]Spec{
		"employee": employeeSpec,
		"nested claims": {
			Groups: []Group{
				{Name: "base", Fields: []Field{{Path: "uuid"}, {Path: "status"}}},
				{Name: "address", Fields: []Field{{Path: "location.address.street"}, {Path: "location.geo", As: "coordinates"}}},
				{Name: "owner", Fields: []Field{{Path: "owner.email", Shared: true}}},
			},
			Remainder: "rest",
		},
		"remainder only": {Remainder: "all"},
		"dropped ancestor": {
			Groups: []Group{
				{Name: "declaration", Fields: []Field{{Path: "employee.uuid", As: "employee_id"}, {Path: "location.geo.lat", Shared: true}}},
			},
			Remainder: "declaration",
			Dropped:   []string{"employee", "location.geo"},
		},
	}
	records := []string{
		employee,
		`{"uuid":"1","status":"ACTIVE","location":{"address":{"street":"Main","zip":"01001"},"geo":{"lat":50.45,"lng":30.52}},"owner":{"email":"o@example.com","name":"O"}}`,
		`{"uuid":"2","location":{},"extra":[1,2,{"a":null}]}`,
		`{}`,
	}
	for name, spec := range specs {
		require.NoError(t, spec.Validate(), name)
		for _, raw := range records {
			record := payload.MustDecode(raw)
			expected := record
			for _, dropped := range spec.Dropped {
				expected = expected.Delete(payload.ParsePath(dropped))
			}

			groups, err := Partition(record, spec)
			require.NoError(t, err, name)
			merged, err := Merge(groups, spec)
			require.NoError(t, err, name)

			if !payload.Equal(expected, merged) {
				actual, _ := merged.MarshalJSON()
				want, _ := expected.MarshalJSON()
				t.Errorf("%s: merge(partition(R)) != R minus dropped\nwant: %s\ngot:  %s", name, want, actual)
			}
		}
	}
}

func TestSpec_Validate(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		assert.NoError(t, employeeSpec.Validate())
		assert.True(t, Spec{}.IsZero())
		assert.False(t, employeeSpec.IsZero())
	})
	t.Run("invalid", func(t *testing.T) {
		spec := Spec{
			Groups: []Group{
				{Name: "a", Fields: []Field{{Path: "x"}, {Path: "y.x"}, {Path: "phones.*.number"}}},
				{Name: "b", Fields: []Field{{Path: "x"}, {Path: "z", As: Whole}}},
				{Name: "a"},
				{Fields: []Field{{Path: "q"}}},
			},
			Dropped: []string{"d", ""},
		}

		err := spec.Validate()

		require.Error(t, err)
		for _, expected := range []string{
			`dropped "": path is empty`,
			"group a: name x is used more than once",
			`group a, field "phones.*.number": wildcards are not supported`,
			"group b: x is claimed more than once",
			"group b: a whole-value field must be the only field",
			"group a: declared twice",
			"group without name",
		} {
			assert.ErrorContains(t, err, expected)
		}
	})
	t.Run("dropped path claimed by a group", func(t *testing.T) {
		err := Spec{Groups: []Group{{Name: "a", Fields: []Field{{Path: "x"}}}}, Dropped: []string{"x"}}.Validate()

		assert.EqualError(t, err, "group a: x is claimed more than once")
	})
}

func assertJSON(t *testing.T, expected string, actual payload.Value) {
	t.Helper()
	data, err := actual.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, expected, string(data))
}

package resolve

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/SanteonNL/ehealth-ingest/lib/payload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestResolver_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("two records referencing the same division", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		lookup := NewMockLookup(ctrl)
		lookup.EXPECT().LookupMany(gomock.Any(), "division", []string{"div-1"}).
			Return(map[string]string{"div-1": "local-7"}, nil).Times(1)
		records := []payload.Value{
			payload.MustDecode(`{"uuid":"a","division":"div-1"}`),
			payload.MustDecode(`{"uuid":"b","division":"div-1"}`),
		}

		result, err := New(lookup).Resolve(ctx, records, []ForeignKey{{Path: "division", Target: "division"}})

		require.NoError(t, err)
		require.Len(t, result.Records, 2)
		for _, record := range result.Records {
			division, _ := record.Lookup("division")
			assert.Equal(t, "local-7", division.Text())
		}
		assert.Empty(t, result.Failures)
		local, ok := result.References.Get("division", "div-1")
		assert.True(t, ok)
		assert.Equal(t, "local-7", local)
		assert.Equal(t, map[string][]string{"division": {"div-1"}}, result.Index)
	})
	t.Run("one lookup per target type regardless of batch size", func(t *testing.T) {
		const recordCount = 250
		lookup := &countingLookup{local: func(target, id string) string { return target + "/" + id }}
		var records []payload.Value
		for i := 0; i < recordCount; i++ {
			records = append(records, payload.MustDecode(fmt.Sprintf(
				`{"legal_entity_id":"le-%d","division_id":"d-%d","employee_id":"e-%d","party":{"legal_entity_id":"le-0"}}`, i%7, i%13, i)))
		}
		keys := []ForeignKey{
			{Path: "legal_entity_id", Target: "legal_entity"},
			{Path: "party.legal_entity_id", Target: "legal_entity"},
			{Path: "division_id", Target: "division"},
			{Path: "employee_id", Target: "employee"},
		}

		result, err := New(lookup).Resolve(ctx, records, keys)

		require.NoError(t, err)
		assert.Equal(t, map[string]int{"legal_entity": 1, "division": 1, "employee": 1}, lookup.calls)
		assert.Len(t, lookup.requested["legal_entity"], 7)
		assert.Len(t, lookup.requested["division"], 13)
		assert.Len(t, lookup.requested["employee"], recordCount)
		assert.Empty(t, result.Failures)
		division, _ := result.Records[20].Lookup("division_id")
		assert.Equal(t, "division/d-7", division.Text())
	})
	t.Run("wildcard paths", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		lookup := NewMockLookup(ctrl)
		lookup.EXPECT().LookupMany(gomock.Any(), "division", []string{"d-1", "d-2"}).
			Return(map[string]string{"d-1": "10", "d-2": "20"}, nil)
		records := []payload.Value{payload.MustDecode(`{"divisions":[{"id":"d-1"},{"id":null},{"id":"d-2"},{}]}`)}

		result, err := New(lookup).Resolve(ctx, records, []ForeignKey{{Path: "divisions.*.id", Target: "division"}})

		require.NoError(t, err)
		data, _ := result.Records[0].MarshalJSON()
		assert.JSONEq(t, `{"divisions":[{"id":"10"},{"id":null},{"id":"20"},{}]}`, string(data))
	})
	t.Run("unresolved identifiers are reported per record and field", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		lookup := NewMockLookup(ctrl)
		lookup.EXPECT().LookupMany(gomock.Any(), "division", []string{"d-1", "d-2"}).
			Return(map[string]string{"d-1": "10"}, nil)
		records := []payload.Value{
			payload.MustDecode(`{"division_id":"d-1"}`),
			payload.MustDecode(`{"division_id":"d-2"}`),
			payload.MustDecode(`{"other":"x"}`),
		}

		result, err := New(lookup).Resolve(ctx, records, []ForeignKey{{Path: "division_id", Target: "division"}})

		require.NoError(t, err)
		require.Equal(t, []Failure{{Index: 1, Path: "division_id", Target: "division", ExternalID: "d-2"}}, result.Failures)
		unresolved, _ := result.Records[1].Lookup("division_id")
		assert.True(t, unresolved.IsNull())
		assert.True(t, payload.Equal(records[2], result.Records[2]))
		assert.Equal(t, "[1] division_id: division d-2 not found", result.Failures[0].String())
	})
	t.Run("optional foreign keys are coerced to null", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		lookup := NewMockLookup(ctrl)
		lookup.EXPECT().LookupMany(gomock.Any(), "medical_program", []string{"mp-1"}).Return(map[string]string{}, nil)

		result, err := New(lookup).Resolve(ctx, []payload.Value{payload.MustDecode(`{"medical_program_id":"mp-1"}`)},
			[]ForeignKey{{Path: "medical_program_id", Target: "medical_program", Optional: true}})

		require.NoError(t, err)
		assert.Empty(t, result.Failures)
		value, _ := result.Records[0].Lookup("medical_program_id")
		assert.True(t, value.IsNull())
	})
	t.Run("no identifiers, no lookups", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		lookup := NewMockLookup(ctrl)

		result, err := New(lookup).Resolve(ctx, []payload.Value{payload.MustDecode(`{"division_id":null}`)},
			[]ForeignKey{{Path: "division_id", Target: "division"}})

		require.NoError(t, err)
		assert.Empty(t, result.References)
		assert.Empty(t, result.Failures)
	})
	t.Run("lookup failure aborts the batch", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		lookup := NewMockLookup(ctrl)
		lookup.EXPECT().LookupMany(gomock.Any(), "division", gomock.Any()).Return(nil, errors.New("connection refused"))

		result, err := New(lookup).Resolve(ctx, []payload.Value{payload.MustDecode(`{"division_id":"d-1"}`)},
			[]ForeignKey{{Path: "division_id", Target: "division"}})

		assert.Nil(t, result)
		var unavailable *UnavailableError
		require.True(t, errors.As(err, &unavailable))
		assert.Equal(t, "division", unavailable.Target)
		assert.EqualError(t, err, "lookup of division references failed: connection refused")
	})
	t.Run("ignores identifiers the lookup was not asked for", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		lookup := NewMockLookup(ctrl)
		lookup.EXPECT().LookupMany(gomock.Any(), "division", []string{"d-1"}).
			Return(map[string]string{"d-1": "1", "d-9": "9"}, nil)

		result, err := New(lookup).Resolve(ctx, []payload.Value{payload.MustDecode(`{"division_id":"d-1"}`)},
			[]ForeignKey{{Path: "division_id", Target: "division"}})

		require.NoError(t, err)
		assert.Len(t, result.References, 1)
	})
}

func TestCollect(t *testing.T) {
	records := []payload.Value{
		payload.MustDecode(`{"a":"2","b":{"c":"1"},"n":1}`),
		payload.MustDecode(`{"a":"1","b":null,"n":"1"}`),
		payload.MustDecode(`{"a":{"nested":"object"}}`),
	}

	result := Collect(records, []ForeignKey{
		{Path: "a", Target: "x"},
		{Path: "b.c", Target: "x"},
		{Path: "n", Target: "y"},
	})

	assert.Equal(t, map[string][]string{"x": {"1", "2"}, "y": {"1"}}, result)
}

type countingLookup struct {
	calls     map[string]int
	requested map[string][]string
	local     func(target, id string) string
}

func (c *countingLookup) LookupMany(_ context.Context, target string, externalIDs []string) (map[string]string, error) {
	if c.calls == nil {
		c.calls = map[string]int{}
		c.requested = map[string][]string{}
	}
	c.calls[target]++
	c.requested[target] = append(c.requested[target], externalIDs...)
	result := map[string]string{}
	for _, id := range externalIDs {
		result[id] = c.local(target, id)
	}
	return result, nil
}

func TestUnresolvedError(t *testing.T) {
	err := &UnresolvedError{Failures: []Failure{
		{Index: 0, Path: "division_id", Target: "division", ExternalID: "d-1"},
		{Index: 3, Path: "party.legal_entity_id", Target: "legal_entity", ExternalID: "le-9"},
	}}

	assert.EqualError(t, err, "2 unresolved reference(s): [0] division_id: division d-1 not found, [3] party.legal_entity_id: legal_entity le-9 not found")
}

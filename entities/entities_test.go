package entities

import (
	"context"
	"testing"

	"github.com/SanteonNL/ehealth-ingest/ingest"
	"github.com/SanteonNL/ehealth-ingest/lib/payload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// acceptAll is a dictionary provider that knows every value, except those starting with "UNKNOWN".
type acceptAll struct{}

func (acceptAll) Contains(_ context.Context, _ string, value string) (bool, error) {
	return len(value) < 7 || value[:7] != "UNKNOWN", nil
}

// prefixLookup resolves every identifier to "local-<id>".
type prefixLookup struct {
	calls []string
}

func (p *prefixLookup) LookupMany(_ context.Context, target string, externalIDs []string) (map[string]string, error) {
	p.calls = append(p.calls, target)
	result := map[string]string{}
	for _, id := range externalIDs {
		result[id] = "local-" + id
	}
	return result, nil
}

func newPipeline(t *testing.T) (*ingest.Pipeline, *prefixLookup) {
	t.Helper()
	definitions, err := Load()
	require.NoError(t, err)
	registry, err := ingest.NewRegistry(definitions...)
	require.NoError(t, err)
	lookup := &prefixLookup{}
	pipeline, err := ingest.New(registry, lookup, ingest.WithDictionaries(acceptAll{}))
	require.NoError(t, err)
	return pipeline, lookup
}

func TestLoad(t *testing.T) {
	definitions, err := Load()

	require.NoError(t, err)
	var names []string
	for _, definition := range definitions {
		names = append(names, definition.Name)
	}
	assert.Equal(t, []string{"contract", "declaration", "division", "employee", "legal_entity", "medical_program", "party"}, names)
}

func TestEmployee(t *testing.T) {
	pipeline, lookup := newPipeline(t)
	raw := payload.MustDecode(`[{
		"id":"7c3da506-804d-4550-8993-bf17f9ee0402",
		"legal_entity_id":"d290f1ee-6c54-4b01-90e6-d701748f0851",
		"division_id":"b075f148-7f93-4fc2-b2ec-2d81b19a9b7b",
		"position":"P1",
		"employee_type":"DOCTOR",
		"status":"APPROVED",
		"start_date":"2017-03-02",
		"inserted_at":"2017-03-02T10:45:16.000Z",
		"party":{
			"id":"b075f148-7f93-4fc2-b2ec-2d81b19a9b00",
			"first_name":"Петро",
			"last_name":"Іванов",
			"birth_date":"1991-08-19",
			"gender":"MALE",
			"email":"petro@example.com",
			"documents":[{"type":"PASSPORT","number":"120518"}],
			"phones":[{"type":"MOBILE","number":"+380503410870"}]
		},
		"doctor":{
			"educations":[{"degree":"MASTER","institution_name":"Академія"}],
			"specialities":[{"speciality":"THERAPIST","level":"FIRST"}],
			"science_degree":{"degree":"PHD"}
		},
		"division":{"id":"b075f148-7f93-4fc2-b2ec-2d81b19a9b7b","name":"Бориспільське відділення"},
		"legal_entity":{"id":"d290f1ee-6c54-4b01-90e6-d701748f0851","name":"Клініка"}
	}]`)

	result, err := pipeline.Ingest(context.Background(), "employee", raw, ingest.Options{List: true, Policy: ingest.Strict})

	require.NoError(t, err)
	assert.Equal(t, []string{"division", "legal_entity"}, lookup.calls)
	require.Len(t, result.Records, 1)
	groups := result.Records[0].Groups
	assert.ElementsMatch(t, []string{"employee", "party", "documents", "phones", "specialities", "educations"}, keys(groups))
	employee := groups["employee"]
	assert.Equal(t, "local-d290f1ee-6c54-4b01-90e6-d701748f0851", text(employee, "legal_entity_uuid"))
	assert.Equal(t, "local-b075f148-7f93-4fc2-b2ec-2d81b19a9b7b", text(employee, "division_uuid"))
	assert.Equal(t, "petro@example.com", text(employee, "email"))
	assert.Equal(t, "2017-03-02T10:45:16.000Z", text(employee, "ehealth_inserted_at"))
	assert.False(t, employee.Has("division"))
	assert.False(t, employee.Has("doctor"))
	assert.Equal(t, "b075f148-7f93-4fc2-b2ec-2d81b19a9b00", text(groups["party"], "uuid"))
	assert.False(t, groups["party"].Has("documents"))
	assert.Equal(t, 1, groups["documents"].Len())
}

func TestDeclaration(t *testing.T) {
	pipeline, lookup := newPipeline(t)
	raw := payload.MustDecode(`[
		{
			"id":"0f1a1b5e-1f2e-4d5c-9b9a-123456789abc","declaration_number":"0000-12H4-245D","status":"active",
			"start_date":"2017-03-02","end_date":"2027-03-02","signed_at":"2017-03-02T10:00:00Z",
			"person":{"id":"1f1a1b5e-1f2e-4d5c-9b9a-123456789abc","first_name":"Олена"},
			"employee":{"id":"emp-1","position":"P2"},
			"division":{"id":"div-1"},
			"legal_entity":{"id":"le-1"}
		},
		{
			"id":"2f1a1b5e-1f2e-4d5c-9b9a-123456789abc","declaration_number":"0000-12H4-245E","status":"terminated","reason":"moved",
			"start_date":"2017-03-02","end_date":"2027-03-02","signed_at":"yesterday",
			"person":{"id":"3f1a1b5e-1f2e-4d5c-9b9a-123456789abc"},
			"employee":{"id":"emp-1"},
			"division":{"id":"div-2"},
			"legal_entity":{"id":"le-1"}
		}
	]`)

	result, err := pipeline.Ingest(context.Background(), "declaration", raw, ingest.Options{List: true, Policy: ingest.BestEffort})

	require.NoError(t, err)
	assert.Equal(t, []string{"division", "employee", "legal_entity"}, lookup.calls)
	assert.Equal(t, map[string][]string{"division": {"div-1", "div-2"}, "employee": {"emp-1"}, "legal_entity": {"le-1"}}, result.Index)
	// the malformed signed_at of the second declaration is pruned
	require.Len(t, result.Records, 2)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "signed_at", result.Failures[0].Path)
	declaration := result.Records[1].Groups["declaration"]
	assert.Equal(t, "local-emp-1", text(declaration, "employee_id"))
	assert.Equal(t, "local-div-2", text(declaration, "division_id"))
	assert.False(t, declaration.Has("signed_at"))
	assert.False(t, declaration.Has("employee"))
	assert.Equal(t, "3f1a1b5e-1f2e-4d5c-9b9a-123456789abc", text(result.Records[1].Groups["person"], "uuid"))
}

func TestDivision_UnknownDictionaryValue(t *testing.T) {
	pipeline, _ := newPipeline(t)

	_, err := pipeline.Ingest(context.Background(), "division", payload.MustDecode(`{
		"id":"b075f148-7f93-4fc2-b2ec-2d81b19a9b7b",
		"legal_entity_id":"d290f1ee-6c54-4b01-90e6-d701748f0851",
		"name":"Бориспільське відділення",
		"type":"CLINIC",
		"status":"ACTIVE",
		"addresses":[{"type":"RESIDENCE","settlement_id":"adaa4abf-f530-461c-bcbf-a0ac210d955b","zip":"02090"}],
		"phones":[{"type":"UNKNOWN_TYPE","number":"+380503410870"}]
	}`), ingest.Options{Policy: ingest.Strict})

	require.ErrorContains(t, err, "phones.0.type: dictionary")
}

func keys(groups map[string]payload.Value) []string {
	var result []string
	for key := range groups {
		result = append(result, key)
	}
	return result
}

func text(v payload.Value, key string) string {
	value, _ := v.Lookup(key)
	return value.Text()
}

package fhir

import (
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/user/emrchat/internal/errors"
)

func str(p *string) string {
	if p == nil {
		return "<nil>"
	}
	return *p
}

func TestNormalizePatient_Name(t *testing.T) {
	tests := []struct {
		name     string
		resource string
		want     string
	}{
		{
			name:     "no name list",
			resource: `{"resourceType":"Patient","id":"p1"}`,
			want:     "Unknown",
		},
		{
			name:     "text wins over parts",
			resource: `{"resourceType":"Patient","name":[{"text":"Dr. Sara Ali","given":["Sara"],"family":"Ali"}]}`,
			want:     "Dr. Sara Ali",
		},
		{
			name:     "given then family",
			resource: `{"resourceType":"Patient","name":[{"given":["Ahmed","Saleh"],"family":"Al-Harbi"}]}`,
			want:     "Ahmed Saleh Al-Harbi",
		},
		{
			name:     "family only",
			resource: `{"resourceType":"Patient","name":[{"family":"Al-Harbi"}]}`,
			want:     "Al-Harbi",
		},
		{
			name:     "empty name entry",
			resource: `{"resourceType":"Patient","name":[{}]}`,
			want:     "Unknown",
		},
		{
			name:     "name is not a list",
			resource: `{"resourceType":"Patient","name":"Ahmed"}`,
			want:     "Unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Normalize(KindPatient, json.RawMessage(tt.resource))
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if got := rec.(Patient).Name; got != tt.want {
				t.Errorf("name = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizePatient_Fields(t *testing.T) {
	raw := `{
		"resourceType": "Patient",
		"id": "pat-1",
		"active": true,
		"gender": "male",
		"birthDate": "1980-02-03",
		"identifier": [
			{"system": "http://nphies.sa/identifier/mrn", "value": "MRN-OLD"},
			{"system": "http://nphies.sa/identifier/nationalid", "value": "1012345678"},
			{"system": "http://nphies.sa/identifier/mrn", "value": "MRN-001"},
			{"value": "no-system"}
		],
		"telecom": [
			{"system": "email", "value": "a@example.com"},
			{"system": "phone", "value": "+966500000001"},
			{"system": "phone", "value": "+966500000002"}
		],
		"maritalStatus": {"coding": [{"code": "M", "display": "Married"}]},
		"extension": [
			{"url": "http://example.org/other", "valueString": "x"},
			{"url": "http://nphies.sa/extension/citizenship", "extension": [
				{"url": "code", "valueCodeableConcept": {"coding": [{"code": "SA"}]}}
			]}
		],
		"address": [{"country": "SA"}, {"country": "AE"}]
	}`

	rec, err := Normalize(KindPatient, json.RawMessage(raw))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	p := rec.(Patient)

	checks := map[string][2]string{
		"id":            {str(p.ID), "pat-1"},
		"mrn":           {str(p.MRN), "MRN-001"},
		"nationalId":    {str(p.NationalID), "1012345678"},
		"iqama":         {str(p.Iqama), "<nil>"},
		"phone":         {str(p.Phone), "+966500000001"},
		"email":         {str(p.Email), "a@example.com"},
		"maritalStatus": {str(p.MaritalStatus), "Married"},
		"citizenship":   {str(p.Citizenship), "SA"},
		"country":       {str(p.Country), "SA"},
		"birthDate":     {str(p.BirthDate), "1980-02-03"},
	}
	for field, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s = %q, want %q", field, c[0], c[1])
		}
	}
	if p.Active == nil || !*p.Active {
		t.Errorf("active = %v, want true", p.Active)
	}
}

func TestNormalize_MissingFieldsAreNull(t *testing.T) {
	rec, err := Normalize(KindCondition, json.RawMessage(`{"resourceType":"Condition","id":"c1","code":"not-an-object"}`))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"id":"c1","code":null,"clinicalStatus":null,"onsetDateTime":null,"recordedDate":null}`
	if string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}
}

func TestNormalize_ConceptFallbacks(t *testing.T) {
	cond, _ := Normalize(KindCondition, json.RawMessage(`{"code":{"coding":[{"code":"44054006"}],"text":"Diabetes"},"clinicalStatus":{"coding":[{"code":"active"}]}}`))
	if got := str(cond.(Condition).Code); got != "Diabetes" {
		t.Errorf("condition code = %q, want text fallback", got)
	}
	if got := str(cond.(Condition).ClinicalStatus); got != "active" {
		t.Errorf("clinicalStatus = %q", got)
	}

	med, _ := Normalize(KindMedication, json.RawMessage(`{"medicationCodeableConcept":{"coding":[{"display":"Metformin 500mg"}]},"dosageInstruction":[{"text":"twice daily"}]}`))
	m := med.(Medication)
	if str(m.Medication) != "Metformin 500mg" || str(m.Dosage) != "twice daily" {
		t.Errorf("unexpected medication %+v", m)
	}

	allergy, _ := Normalize(KindAllergy, json.RawMessage(`{"code":{"text":"Penicillin"},"criticality":"high","type":"allergy"}`))
	if got := str(allergy.(Allergy).Substance); got != "Penicillin" {
		t.Errorf("substance = %q", got)
	}
}

func TestNormalizeObservation_Value(t *testing.T) {
	tests := []struct {
		name     string
		resource string
		want     string
	}{
		{"value and unit", `{"valueQuantity":{"value":7.2,"unit":"%"}}`, "7.2 %"},
		{"integer literal kept", `{"valueQuantity":{"value":120,"unit":"mmHg"}}`, "120 mmHg"},
		{"missing unit", `{"valueQuantity":{"value":98}}`, "98 "},
		{"no quantity", `{"valueString":"positive"}`, "<nil>"},
		{"quantity without value", `{"valueQuantity":{"unit":"mg"}}`, "<nil>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Normalize(KindObservation, json.RawMessage(tt.resource))
			if err != nil {
				t.Fatalf("Normalize failed: %v", err)
			}
			if got := str(rec.(Observation).Value); got != tt.want {
				t.Errorf("value = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeEncounter(t *testing.T) {
	rec, err := Normalize(KindEncounter, json.RawMessage(`{
		"id": "e1",
		"status": "finished",
		"type": [{"text": "Outpatient visit"}],
		"period": {"start": "2024-03-01T09:00:00Z"},
		"serviceProvider": {"display": "King Fahad Hospital"}
	}`))
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	e := rec.(Encounter)
	if str(e.Type) != "Outpatient visit" || str(e.ServiceProvider) != "King Fahad Hospital" {
		t.Errorf("unexpected encounter %+v", e)
	}
	if e.Period == nil || str(e.Period.Start) != "2024-03-01T09:00:00Z" || e.Period.End != nil {
		t.Errorf("unexpected period %+v", e.Period)
	}
}

func TestNormalizeBundle(t *testing.T) {
	t.Run("no entry", func(t *testing.T) {
		res, err := NormalizeBundle(KindPatient, json.RawMessage(`{"resourceType":"Bundle","total":3}`))
		if err != nil {
			t.Fatalf("NormalizeBundle failed: %v", err)
		}
		data, _ := json.Marshal(res)
		if string(data) != `{"total":0,"results":[]}` {
			t.Errorf("got %s", data)
		}
	})

	t.Run("total falls back to result count", func(t *testing.T) {
		res, err := NormalizeBundle(KindCondition, json.RawMessage(`{"entry":[{"resource":{"resourceType":"Condition","id":"a"}},{"resource":{"resourceType":"Condition","id":"b"}}]}`))
		if err != nil {
			t.Fatalf("NormalizeBundle failed: %v", err)
		}
		if res.Total != 2 || len(res.Results) != 2 {
			t.Errorf("total=%d results=%d", res.Total, len(res.Results))
		}
	})

	t.Run("bundle total wins and outcome entries are skipped", func(t *testing.T) {
		res, err := NormalizeBundle(KindPatient, json.RawMessage(`{"total":40,"entry":[
			{"resource":{"resourceType":"Patient","id":"p1"}},
			{"resource":{"resourceType":"OperationOutcome"},"search":{"mode":"outcome"}},
			{"resource":"garbage"}
		]}`))
		if err != nil {
			t.Fatalf("NormalizeBundle failed: %v", err)
		}
		if res.Total != 40 {
			t.Errorf("total = %d, want 40", res.Total)
		}
		if len(res.Results) != 2 {
			t.Fatalf("results = %d, want 2", len(res.Results))
		}
		if res.Results[1].(Patient).Name != "Unknown" {
			t.Errorf("garbage entry should degrade, got %+v", res.Results[1])
		}
	})
}

func TestNormalize_MalformedTopLevel(t *testing.T) {
	inputs := []string{`[]`, `"text"`, `null`, `{not json`, `{"entry":{"resource":{}}}`}

	for _, in := range inputs {
		_, err := NormalizeBundle(KindPatient, json.RawMessage(in))
		var malformed *errors.MalformedResourceError
		if !stderrors.As(err, &malformed) {
			t.Errorf("input %s: expected MalformedResourceError, got %v", in, err)
		}
	}
}

package testing

import (
	"github.com/user/emrchat/internal/llm"
)

// CompletionRequestFor builds a single-turn request
func CompletionRequestFor(userMessage string) llm.CompletionRequest {
	return llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: userMessage}},
	}
}

// PatientBundle is a searchset with two patients in the shapes a Spark
// server returns: one with a precomposed name, one with given/family parts.
const PatientBundle = `{
  "resourceType": "Bundle",
  "type": "searchset",
  "total": 2,
  "entry": [
    {
      "resource": {
        "resourceType": "Patient",
        "id": "123",
        "active": true,
        "name": [{"text": "Ahmed Al-Harbi"}],
        "gender": "male",
        "birthDate": "1982-05-17",
        "identifier": [
          {"system": "http://nphies.sa/identifier/mrn", "value": "MRN-0042"},
          {"system": "http://nphies.sa/identifier/nationalid", "value": "1023456789"}
        ],
        "telecom": [{"system": "phone", "value": "+966501112233"}],
        "address": [{"city": "Jeddah", "country": "SA"}]
      }
    },
    {
      "resource": {
        "resourceType": "Patient",
        "id": "456",
        "name": [{"given": ["Fatimah"], "family": "Al-Zahrani"}],
        "gender": "female",
        "identifier": [{"system": "http://nphies.sa/identifier/iqama", "value": "2234567890"}]
      }
    }
  ]
}`

// ConditionBundle holds one active diabetes diagnosis for patient 123
const ConditionBundle = `{
  "resourceType": "Bundle",
  "type": "searchset",
  "total": 1,
  "entry": [
    {
      "resource": {
        "resourceType": "Condition",
        "id": "cond-1",
        "clinicalStatus": {"coding": [{"code": "active"}]},
        "code": {"coding": [{"system": "http://snomed.info/sct", "code": "44054006", "display": "Type 2 diabetes mellitus"}]},
        "subject": {"reference": "Patient/123"},
        "onsetDateTime": "2016-09-01"
      }
    }
  ]
}`

// ObservationBundle holds an HbA1c result for patient 123
const ObservationBundle = `{
  "resourceType": "Bundle",
  "type": "searchset",
  "entry": [
    {
      "resource": {
        "resourceType": "Observation",
        "id": "obs-1",
        "status": "final",
        "code": {"coding": [{"system": "http://loinc.org", "code": "4548-4", "display": "Hemoglobin A1c"}]},
        "valueQuantity": {"value": 7.1, "unit": "%"},
        "effectiveDateTime": "2024-02-11"
      }
    }
  ]
}`

// EmptyBundle is a searchset with no matches
const EmptyBundle = `{"resourceType": "Bundle", "type": "searchset", "total": 0}`

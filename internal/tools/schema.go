package tools

import (
	"github.com/user/emrchat/internal/llmtypes"
)

var (
	genderValues           = []string{"male", "female", "other"}
	clinicalStatusValues   = []string{"active", "recurrence", "relapse", "inactive", "remission", "resolved"}
	medicationStatusValues = []string{"active", "completed", "stopped"}
)

func stringProp(description string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
	}
}

func enumProp(description string, values []string) map[string]any {
	return map[string]any{
		"type":        "string",
		"description": description,
		"enum":        values,
	}
}

func patientIDProp() map[string]any {
	return stringProp("FHIR Patient resource ID")
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}
}

// Definition returns the function schema advertised to the model for kind.
func Definition(kind Kind) llmtypes.ToolDefinition {
	switch kind {
	case SearchPatients:
		return llmtypes.ToolDefinition{
			Name:        kind.String(),
			Description: "Search for patients by name, MRN, national ID, iqama, birth date, gender, phone or email. Leave parameters empty to list all patients.",
			Parameters: objectSchema(map[string]any{
				"name":       stringProp("Patient name to search for"),
				"mrn":        stringProp("Medical record number"),
				"nationalId": stringProp("Saudi national ID"),
				"iqama":      stringProp("Iqama (resident ID) number"),
				"birthDate":  stringProp("Birth date (YYYY-MM-DD)"),
				"gender":     enumProp("Administrative gender", genderValues),
				"phone":      stringProp("Phone number"),
				"email":      stringProp("Email address"),
			}),
		}
	case GetPatientDetails:
		return llmtypes.ToolDefinition{
			Name:        kind.String(),
			Description: "Get detailed information about a specific patient",
			Parameters: objectSchema(map[string]any{
				"patientId": patientIDProp(),
			}, "patientId"),
		}
	case GetPatientConditions:
		return llmtypes.ToolDefinition{
			Name:        kind.String(),
			Description: "Get all conditions/diagnoses for a patient",
			Parameters: objectSchema(map[string]any{
				"patientId":      patientIDProp(),
				"clinicalStatus": enumProp("Filter by clinical status", clinicalStatusValues),
			}, "patientId"),
		}
	case GetPatientMedications:
		return llmtypes.ToolDefinition{
			Name:        kind.String(),
			Description: "Get current medications for a patient",
			Parameters: objectSchema(map[string]any{
				"patientId": patientIDProp(),
				"status":    enumProp("Filter by medication request status", medicationStatusValues),
			}, "patientId"),
		}
	case GetPatientObservations:
		return llmtypes.ToolDefinition{
			Name:        kind.String(),
			Description: "Get observations (vitals, lab results) for a patient",
			Parameters: objectSchema(map[string]any{
				"patientId": patientIDProp(),
				"category":  stringProp("Category of observation (for example vital-signs or laboratory)"),
				"code":      stringProp("LOINC code for specific observation"),
				"dateFrom":  stringProp("Start date (YYYY-MM-DD)"),
				"dateTo":    stringProp("End date (YYYY-MM-DD)"),
			}, "patientId"),
		}
	case GetPatientEncounters:
		return llmtypes.ToolDefinition{
			Name:        kind.String(),
			Description: "Get encounters/visits for a patient",
			Parameters: objectSchema(map[string]any{
				"patientId": patientIDProp(),
				"type":      stringProp("Type of encounter"),
				"dateFrom":  stringProp("Start date (YYYY-MM-DD)"),
				"dateTo":    stringProp("End date (YYYY-MM-DD)"),
			}, "patientId"),
		}
	case GetPatientAllergies:
		return llmtypes.ToolDefinition{
			Name:        kind.String(),
			Description: "Get allergy and intolerance information for a patient",
			Parameters: objectSchema(map[string]any{
				"patientId": patientIDProp(),
			}, "patientId"),
		}
	}
	panic("tools: no definition for " + string(kind))
}

// Definitions returns the full tool catalog in a stable order.
func Definitions() []llmtypes.ToolDefinition {
	kinds := All()
	defs := make([]llmtypes.ToolDefinition, len(kinds))
	for i, k := range kinds {
		defs[i] = Definition(k)
	}
	return defs
}

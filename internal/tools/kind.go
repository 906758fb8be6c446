package tools

import (
	"github.com/user/emrchat/internal/errors"
)

// Kind identifies one of the record retrieval tools offered to the model.
type Kind string

const (
	SearchPatients         Kind = "search_patients"
	GetPatientDetails      Kind = "get_patient_details"
	GetPatientConditions   Kind = "get_patient_conditions"
	GetPatientMedications  Kind = "get_patient_medications"
	GetPatientObservations Kind = "get_patient_observations"
	GetPatientEncounters   Kind = "get_patient_encounters"
	GetPatientAllergies    Kind = "get_patient_allergies"
)

// All lists every tool in catalog order.
func All() []Kind {
	return []Kind{
		SearchPatients,
		GetPatientDetails,
		GetPatientConditions,
		GetPatientMedications,
		GetPatientObservations,
		GetPatientEncounters,
		GetPatientAllergies,
	}
}

// ParseKind resolves a tool name. Unknown names fail with UnknownToolError.
func ParseKind(name string) (Kind, error) {
	for _, k := range All() {
		if string(k) == name {
			return k, nil
		}
	}
	return "", errors.NewUnknownToolError(name)
}

func (k Kind) String() string {
	return string(k)
}

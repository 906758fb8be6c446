package tools

import (
	"context"

	"github.com/user/emrchat/internal/fhir"
	"github.com/user/emrchat/internal/logging"
)

// RecordStore is the record server surface the tools run against.
// *fhir.Client implements it.
type RecordStore interface {
	SearchPatients(ctx context.Context, s fhir.PatientSearch) (*fhir.BundleResult, error)
	GetPatient(ctx context.Context, id string) (*fhir.Patient, error)
	GetConditions(ctx context.Context, q fhir.ConditionQuery) ([]fhir.Condition, error)
	GetMedications(ctx context.Context, q fhir.MedicationQuery) ([]fhir.Medication, error)
	GetObservations(ctx context.Context, q fhir.ObservationQuery) ([]fhir.Observation, error)
	GetEncounters(ctx context.Context, q fhir.EncounterQuery) ([]fhir.Encounter, error)
	GetAllergies(ctx context.Context, q fhir.AllergyQuery) ([]fhir.Allergy, error)
}

// Executor runs tools against a record store. It is what a worker process
// hosts; the conversation side reaches it only through a worker.
type Executor struct {
	records RecordStore
	logger  *logging.Logger
}

// NewExecutor creates a tool executor
func NewExecutor(records RecordStore, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Executor{records: records, logger: logger}
}

// Execute decodes args for kind and runs the matching record query.
// The result is a JSON-serializable value.
func (e *Executor) Execute(ctx context.Context, kind Kind, args map[string]any) (any, error) {
	e.logger.Debug("executing tool", logging.String("tool", kind.String()))

	switch kind {
	case SearchPatients:
		q, err := decodeArgs[fhir.PatientSearch](kind, args)
		if err != nil {
			return nil, err
		}
		return e.records.SearchPatients(ctx, q)

	case GetPatientDetails:
		q, err := decodeArgs[fhir.PatientDetailsQuery](kind, args)
		if err != nil {
			return nil, err
		}
		return e.records.GetPatient(ctx, q.PatientID)

	case GetPatientConditions:
		q, err := decodeArgs[fhir.ConditionQuery](kind, args)
		if err != nil {
			return nil, err
		}
		return e.records.GetConditions(ctx, q)

	case GetPatientMedications:
		q, err := decodeArgs[fhir.MedicationQuery](kind, args)
		if err != nil {
			return nil, err
		}
		return e.records.GetMedications(ctx, q)

	case GetPatientObservations:
		q, err := decodeArgs[fhir.ObservationQuery](kind, args)
		if err != nil {
			return nil, err
		}
		return e.records.GetObservations(ctx, q)

	case GetPatientEncounters:
		q, err := decodeArgs[fhir.EncounterQuery](kind, args)
		if err != nil {
			return nil, err
		}
		return e.records.GetEncounters(ctx, q)

	case GetPatientAllergies:
		q, err := decodeArgs[fhir.AllergyQuery](kind, args)
		if err != nil {
			return nil, err
		}
		return e.records.GetAllergies(ctx, q)
	}

	_, err := ParseKind(kind.String())
	return nil, err
}

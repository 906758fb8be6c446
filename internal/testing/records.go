package testing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/user/emrchat/internal/fhir"
)

// StubRecordStore serves canned record results and counts calls. Unset
// fields answer with empty results.
type StubRecordStore struct {
	mu    sync.Mutex
	calls []string

	Patients     *fhir.BundleResult
	Patient      *fhir.Patient
	Conditions   []fhir.Condition
	Medications  []fhir.Medication
	Observations []fhir.Observation
	Encounters   []fhir.Encounter
	Allergies    []fhir.Allergy
	Err          error

	LastPatientSearch    fhir.PatientSearch
	LastObservationQuery fhir.ObservationQuery
}

// NewStubRecordStoreFromFixtures fills the store from the package fixtures
func NewStubRecordStoreFromFixtures() (*StubRecordStore, error) {
	patients, err := fhir.NormalizeBundle(fhir.KindPatient, json.RawMessage(PatientBundle))
	if err != nil {
		return nil, fmt.Errorf("patient fixture: %w", err)
	}
	conditions, err := fhir.NormalizeBundle(fhir.KindCondition, json.RawMessage(ConditionBundle))
	if err != nil {
		return nil, fmt.Errorf("condition fixture: %w", err)
	}
	observations, err := fhir.NormalizeBundle(fhir.KindObservation, json.RawMessage(ObservationBundle))
	if err != nil {
		return nil, fmt.Errorf("observation fixture: %w", err)
	}

	s := &StubRecordStore{Patients: patients}
	first := patients.Results[0].(fhir.Patient)
	s.Patient = &first
	for _, r := range conditions.Results {
		s.Conditions = append(s.Conditions, r.(fhir.Condition))
	}
	for _, r := range observations.Results {
		s.Observations = append(s.Observations, r.(fhir.Observation))
	}
	return s, nil
}

func (s *StubRecordStore) record(call string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
	return s.Err
}

// Calls returns the method names invoked so far
func (s *StubRecordStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *StubRecordStore) SearchPatients(ctx context.Context, q fhir.PatientSearch) (*fhir.BundleResult, error) {
	s.mu.Lock()
	s.LastPatientSearch = q
	s.mu.Unlock()
	if err := s.record("SearchPatients"); err != nil {
		return nil, err
	}
	if s.Patients == nil {
		return &fhir.BundleResult{Results: []fhir.Record{}}, nil
	}
	return s.Patients, nil
}

func (s *StubRecordStore) GetPatient(ctx context.Context, id string) (*fhir.Patient, error) {
	if err := s.record("GetPatient:" + id); err != nil {
		return nil, err
	}
	if s.Patient == nil {
		return &fhir.Patient{Name: "Unknown"}, nil
	}
	return s.Patient, nil
}

func (s *StubRecordStore) GetConditions(ctx context.Context, q fhir.ConditionQuery) ([]fhir.Condition, error) {
	if err := s.record("GetConditions:" + q.PatientID); err != nil {
		return nil, err
	}
	return nonNil(s.Conditions), nil
}

func (s *StubRecordStore) GetMedications(ctx context.Context, q fhir.MedicationQuery) ([]fhir.Medication, error) {
	if err := s.record("GetMedications:" + q.PatientID); err != nil {
		return nil, err
	}
	return nonNil(s.Medications), nil
}

func (s *StubRecordStore) GetObservations(ctx context.Context, q fhir.ObservationQuery) ([]fhir.Observation, error) {
	s.mu.Lock()
	s.LastObservationQuery = q
	s.mu.Unlock()
	if err := s.record("GetObservations:" + q.PatientID); err != nil {
		return nil, err
	}
	return nonNil(s.Observations), nil
}

func (s *StubRecordStore) GetEncounters(ctx context.Context, q fhir.EncounterQuery) ([]fhir.Encounter, error) {
	if err := s.record("GetEncounters:" + q.PatientID); err != nil {
		return nil, err
	}
	return nonNil(s.Encounters), nil
}

func (s *StubRecordStore) GetAllergies(ctx context.Context, q fhir.AllergyQuery) ([]fhir.Allergy, error) {
	if err := s.record("GetAllergies:" + q.PatientID); err != nil {
		return nil, err
	}
	return nonNil(s.Allergies), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

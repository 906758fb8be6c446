package fhir

import (
	"net/url"
	"strings"
)

// PatientSearch holds the optional demographic filters for a patient search.
type PatientSearch struct {
	Name       string `mapstructure:"name" json:"name,omitempty"`
	MRN        string `mapstructure:"mrn" json:"mrn,omitempty"`
	NationalID string `mapstructure:"nationalId" json:"nationalId,omitempty"`
	Iqama      string `mapstructure:"iqama" json:"iqama,omitempty"`
	BirthDate  string `mapstructure:"birthDate" json:"birthDate,omitempty"`
	Gender     string `mapstructure:"gender" json:"gender,omitempty"`
	Phone      string `mapstructure:"phone" json:"phone,omitempty"`
	Email      string `mapstructure:"email" json:"email,omitempty"`
}

type ConditionQuery struct {
	PatientID      string `mapstructure:"patientId" json:"patientId"`
	ClinicalStatus string `mapstructure:"clinicalStatus" json:"clinicalStatus,omitempty"`
}

type MedicationQuery struct {
	PatientID string `mapstructure:"patientId" json:"patientId"`
	Status    string `mapstructure:"status" json:"status,omitempty"`
}

type ObservationQuery struct {
	PatientID string `mapstructure:"patientId" json:"patientId"`
	Category  string `mapstructure:"category" json:"category,omitempty"`
	Code      string `mapstructure:"code" json:"code,omitempty"`
	DateFrom  string `mapstructure:"dateFrom" json:"dateFrom,omitempty"`
	DateTo    string `mapstructure:"dateTo" json:"dateTo,omitempty"`
}

type EncounterQuery struct {
	PatientID string `mapstructure:"patientId" json:"patientId"`
	Type      string `mapstructure:"type" json:"type,omitempty"`
	DateFrom  string `mapstructure:"dateFrom" json:"dateFrom,omitempty"`
	DateTo    string `mapstructure:"dateTo" json:"dateTo,omitempty"`
}

type AllergyQuery struct {
	PatientID string `mapstructure:"patientId" json:"patientId"`
}

// PatientDetailsQuery identifies a single patient.
type PatientDetailsQuery struct {
	PatientID string `mapstructure:"patientId" json:"patientId"`
}

// params builds the search parameters. Identifier and telecom filters share a
// single search parameter each, so a later field overwrites an earlier one.
func (s PatientSearch) params(identifierSystem string) url.Values {
	v := url.Values{}
	setIf(v, "name", s.Name)
	if s.MRN != "" {
		v.Set("identifier", identifierSystem+"mrn|"+s.MRN)
	}
	if s.NationalID != "" {
		v.Set("identifier", identifierSystem+"nationalid|"+s.NationalID)
	}
	if s.Iqama != "" {
		v.Set("identifier", identifierSystem+"iqama|"+s.Iqama)
	}
	setIf(v, "birthdate", s.BirthDate)
	setIf(v, "gender", s.Gender)
	if s.Phone != "" {
		v.Set("telecom", "phone|"+s.Phone)
	}
	if s.Email != "" {
		v.Set("telecom", "email|"+s.Email)
	}
	return v
}

func (q ConditionQuery) params() url.Values {
	v := url.Values{"patient": {q.PatientID}}
	setIf(v, "clinical-status", q.ClinicalStatus)
	return v
}

func (q MedicationQuery) params() url.Values {
	v := url.Values{"patient": {q.PatientID}}
	setIf(v, "status", q.Status)
	return v
}

func (q ObservationQuery) params() url.Values {
	v := url.Values{"patient": {q.PatientID}}
	setIf(v, "category", q.Category)
	setIf(v, "code", q.Code)
	setIf(v, "date", DateRange(q.DateFrom, q.DateTo))
	return v
}

func (q EncounterQuery) params() url.Values {
	v := url.Values{"patient": {q.PatientID}}
	setIf(v, "type", q.Type)
	setIf(v, "date", DateRange(q.DateFrom, q.DateTo))
	return v
}

func (q AllergyQuery) params() url.Values {
	return url.Values{"patient": {q.PatientID}}
}

// DateRange renders a FHIR date search value, for example "ge2024-01-01,le2024-06-30".
// It returns "" when neither bound is set.
func DateRange(from, to string) string {
	var parts []string
	if from != "" {
		parts = append(parts, "ge"+from)
	}
	if to != "" {
		parts = append(parts, "le"+to)
	}
	return strings.Join(parts, ",")
}

func setIf(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}

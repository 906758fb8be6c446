package fhir

// ResourceKind names the FHIR resource types the assistant can query.
type ResourceKind string

const (
	KindPatient     ResourceKind = "Patient"
	KindCondition   ResourceKind = "Condition"
	KindMedication  ResourceKind = "MedicationRequest"
	KindObservation ResourceKind = "Observation"
	KindEncounter   ResourceKind = "Encounter"
	KindAllergy     ResourceKind = "AllergyIntolerance"
)

// Valid reports whether k is one of the supported kinds.
func (k ResourceKind) Valid() bool {
	switch k {
	case KindPatient, KindCondition, KindMedication, KindObservation, KindEncounter, KindAllergy:
		return true
	}
	return false
}

// Record is a flattened resource ready to hand to the model.
// Absent values are nil pointers and serialize as JSON null.
type Record interface {
	Kind() ResourceKind
}

// BundleResult is a normalized search bundle.
type BundleResult struct {
	Total   int      `json:"total"`
	Results []Record `json:"results"`
}

type Patient struct {
	ID            *string `json:"id"`
	Name          string  `json:"name"`
	BirthDate     *string `json:"birthDate"`
	Gender        *string `json:"gender"`
	MRN           *string `json:"mrn"`
	NationalID    *string `json:"nationalId"`
	Iqama         *string `json:"iqama"`
	Phone         *string `json:"phone"`
	Email         *string `json:"email"`
	Active        *bool   `json:"active"`
	MaritalStatus *string `json:"maritalStatus"`
	Citizenship   *string `json:"citizenship"`
	Country       *string `json:"country"`
}

type Condition struct {
	ID             *string `json:"id"`
	Code           *string `json:"code"`
	ClinicalStatus *string `json:"clinicalStatus"`
	OnsetDateTime  *string `json:"onsetDateTime"`
	RecordedDate   *string `json:"recordedDate"`
}

type Medication struct {
	ID         *string `json:"id"`
	Medication *string `json:"medication"`
	Status     *string `json:"status"`
	Dosage     *string `json:"dosage"`
	AuthoredOn *string `json:"authoredOn"`
}

type Observation struct {
	ID                *string `json:"id"`
	Type              *string `json:"type"`
	Value             *string `json:"value"`
	EffectiveDateTime *string `json:"effectiveDateTime"`
	Status            *string `json:"status"`
}

type Period struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

type Encounter struct {
	ID              *string `json:"id"`
	Type            *string `json:"type"`
	Status          *string `json:"status"`
	Period          *Period `json:"period"`
	ServiceProvider *string `json:"serviceProvider"`
}

type Allergy struct {
	ID           *string `json:"id"`
	Substance    *string `json:"substance"`
	Criticality  *string `json:"criticality"`
	Type         *string `json:"type"`
	RecordedDate *string `json:"recordedDate"`
}

func (Patient) Kind() ResourceKind     { return KindPatient }
func (Condition) Kind() ResourceKind   { return KindCondition }
func (Medication) Kind() ResourceKind  { return KindMedication }
func (Observation) Kind() ResourceKind { return KindObservation }
func (Encounter) Kind() ResourceKind   { return KindEncounter }
func (Allergy) Kind() ResourceKind     { return KindAllergy }

package fhir

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/user/emrchat/internal/errors"
)

// Normalize flattens a single resource of the given kind.
func Normalize(kind ResourceKind, raw json.RawMessage) (Record, error) {
	n, err := decodeTopLevel(kind, raw)
	if err != nil {
		return nil, err
	}
	return normalizeResource(kind, n)
}

// NormalizeBundle flattens every entry of a search bundle. Entries whose
// resourceType names a different kind (such as OperationOutcome search
// notes) are skipped. Total is the bundle's own count when it carries one.
func NormalizeBundle(kind ResourceKind, raw json.RawMessage) (*BundleResult, error) {
	n, err := decodeTopLevel(kind, raw)
	if err != nil {
		return nil, err
	}

	results, err := bundleRecords(kind, n)
	if err != nil {
		return nil, err
	}

	total, ok := n.Get("total").Int()
	if !ok {
		total = len(results)
	}
	if len(n.Get("entry").Items()) == 0 {
		total = 0
	}

	return &BundleResult{Total: total, Results: results}, nil
}

func decodeTopLevel(kind ResourceKind, raw json.RawMessage) (node, error) {
	if !kind.Valid() {
		return node{}, errors.NewMalformedResourceError(string(kind), "unsupported resource kind", nil)
	}
	n, err := decodeNode(raw)
	if err != nil {
		return node{}, errors.NewMalformedResourceError(string(kind), "invalid JSON", err)
	}
	if !n.IsObject() {
		return node{}, errors.NewMalformedResourceError(string(kind), "payload is not a JSON object", nil)
	}
	return n, nil
}

func bundleRecords(kind ResourceKind, bundle node) ([]Record, error) {
	entries := bundle.Get("entry")
	results := []Record{}
	if !entries.Exists() {
		return results, nil
	}
	if !entries.IsArray() {
		return nil, errors.NewMalformedResourceError(string(kind), "bundle entry is not a list", nil)
	}

	for _, entry := range entries.Items() {
		resource := entry.Get("resource")
		if rt := resource.Get("resourceType").Str(); rt != nil && *rt != string(kind) {
			continue
		}
		rec, err := normalizeResource(kind, resource)
		if err != nil {
			return nil, err
		}
		results = append(results, rec)
	}
	return results, nil
}

// bundleOf is the typed form of bundleRecords used by the client.
func bundleOf[T Record](kind ResourceKind, raw json.RawMessage) ([]T, error) {
	n, err := decodeTopLevel(kind, raw)
	if err != nil {
		return nil, err
	}
	records, err := bundleRecords(kind, n)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(records))
	for _, r := range records {
		out = append(out, r.(T))
	}
	return out, nil
}

func normalizeResource(kind ResourceKind, r node) (Record, error) {
	switch kind {
	case KindPatient:
		return normalizePatient(r), nil
	case KindCondition:
		return normalizeCondition(r), nil
	case KindMedication:
		return normalizeMedication(r), nil
	case KindObservation:
		return normalizeObservation(r), nil
	case KindEncounter:
		return normalizeEncounter(r), nil
	case KindAllergy:
		return normalizeAllergy(r), nil
	}
	return nil, errors.NewMalformedResourceError(string(kind), "unsupported resource kind", nil)
}

func normalizePatient(r node) Patient {
	p := Patient{
		ID:        r.Get("id").Str(),
		Name:      patientName(r.First("name")),
		BirthDate: r.Get("birthDate").Str(),
		Gender:    r.Get("gender").Str(),
		Active:    r.Get("active").Bool(),
	}

	for _, ident := range r.Get("identifier").Items() {
		system := ident.Get("system").Str()
		if system == nil {
			continue
		}
		value := ident.Get("value").Str()
		switch {
		case strings.Contains(*system, "mrn"):
			p.MRN = value
		case strings.Contains(*system, "nationalid"):
			p.NationalID = value
		case strings.Contains(*system, "iqama"):
			p.Iqama = value
		}
	}

	telecom := r.Get("telecom")
	p.Phone = telecom.Find("system", "phone").Get("value").Str()
	p.Email = telecom.Find("system", "email").Get("value").Str()

	p.MaritalStatus = r.Get("maritalStatus").First("coding").Get("display").Str()

	for _, ext := range r.Get("extension").Items() {
		url := ext.Get("url").Str()
		if url == nil || !strings.Contains(*url, "citizenship") {
			continue
		}
		p.Citizenship = ext.First("extension").Get("valueCodeableConcept").First("coding").Get("code").Str()
		break
	}

	p.Country = r.First("address").Get("country").Str()

	return p
}

func patientName(name node) string {
	if text := name.Get("text").NonEmptyStr(); text != nil {
		return *text
	}

	parts := name.Get("given").Strings()
	if family := name.Get("family").NonEmptyStr(); family != nil {
		parts = append(parts, *family)
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, " ")
}

// conceptLabel reads coding[0].display, falling back to text.
func conceptLabel(concept node) *string {
	return coalesce(concept.First("coding").Get("display").Str(), concept.Get("text").Str())
}

func normalizeCondition(r node) Condition {
	return Condition{
		ID:             r.Get("id").Str(),
		Code:           conceptLabel(r.Get("code")),
		ClinicalStatus: r.Get("clinicalStatus").First("coding").Get("code").Str(),
		OnsetDateTime:  r.Get("onsetDateTime").Str(),
		RecordedDate:   r.Get("recordedDate").Str(),
	}
}

func normalizeMedication(r node) Medication {
	concept := r.Get("medicationCodeableConcept")
	return Medication{
		ID:         r.Get("id").Str(),
		Medication: coalesce(concept.Get("text").Str(), concept.First("coding").Get("display").Str()),
		Status:     r.Get("status").Str(),
		Dosage:     r.First("dosageInstruction").Get("text").Str(),
		AuthoredOn: r.Get("authoredOn").Str(),
	}
}

func normalizeObservation(r node) Observation {
	o := Observation{
		ID:                r.Get("id").Str(),
		Type:              conceptLabel(r.Get("code")),
		EffectiveDateTime: r.Get("effectiveDateTime").Str(),
		Status:            r.Get("status").Str(),
	}

	quantity := r.Get("valueQuantity")
	if value, ok := quantity.Get("value").Scalar(); ok {
		unit, _ := quantity.Get("unit").Scalar()
		o.Value = strptr(fmt.Sprintf("%s %s", value, unit))
	}

	return o
}

func normalizeEncounter(r node) Encounter {
	e := Encounter{
		ID:              r.Get("id").Str(),
		Type:            r.First("type").Get("text").Str(),
		Status:          r.Get("status").Str(),
		ServiceProvider: r.Path("serviceProvider", "display").Str(),
	}

	if period := r.Get("period"); period.IsObject() {
		e.Period = &Period{
			Start: period.Get("start").Str(),
			End:   period.Get("end").Str(),
		}
	}

	return e
}

func normalizeAllergy(r node) Allergy {
	return Allergy{
		ID:           r.Get("id").Str(),
		Substance:    conceptLabel(r.Get("code")),
		Criticality:  r.Get("criticality").Str(),
		Type:         r.Get("type").Str(),
		RecordedDate: r.Get("recordedDate").Str(),
	}
}

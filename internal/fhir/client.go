package fhir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/user/emrchat/internal/config"
	"github.com/user/emrchat/internal/errors"
	"github.com/user/emrchat/internal/logging"
)

const (
	contentType = "application/fhir+json"

	defaultIdentifierSystem = "http://nphies.sa/identifier/"

	// maxErrorBody bounds how much of a failed response is kept on the error.
	maxErrorBody = 4096
)

// Client queries a FHIR record server and returns normalized records.
// It never retries.
type Client struct {
	baseURL          string
	authToken        string
	identifierSystem string
	httpClient       *http.Client
	logger           *logging.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client, for tests and recorded transports.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client logger
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a record server client
func NewClient(cfg config.FHIRConfig, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	system := cfg.IdentifierSystem
	if system == "" {
		system = defaultIdentifierSystem
	}

	c := &Client{
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		authToken:        cfg.AuthToken,
		identifierSystem: system,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logging.NewNopLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the server base URL without a trailing slash
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SearchPatients searches patients by demographic and identifier filters
func (c *Client) SearchPatients(ctx context.Context, s PatientSearch) (*BundleResult, error) {
	body, err := c.get(ctx, "/Patient", s.params(c.identifierSystem))
	if err != nil {
		return nil, err
	}
	return NormalizeBundle(KindPatient, body)
}

// GetPatient fetches one patient by logical id
func (c *Client) GetPatient(ctx context.Context, id string) (*Patient, error) {
	body, err := c.get(ctx, "/Patient/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	rec, err := Normalize(KindPatient, body)
	if err != nil {
		return nil, err
	}
	p := rec.(Patient)
	return &p, nil
}

// GetConditions lists a patient's conditions
func (c *Client) GetConditions(ctx context.Context, q ConditionQuery) ([]Condition, error) {
	return search[Condition](ctx, c, KindCondition, "/Condition", q.params())
}

// GetMedications lists a patient's medication requests
func (c *Client) GetMedications(ctx context.Context, q MedicationQuery) ([]Medication, error) {
	return search[Medication](ctx, c, KindMedication, "/MedicationRequest", q.params())
}

// GetObservations lists a patient's observations
func (c *Client) GetObservations(ctx context.Context, q ObservationQuery) ([]Observation, error) {
	return search[Observation](ctx, c, KindObservation, "/Observation", q.params())
}

// GetEncounters lists a patient's encounters
func (c *Client) GetEncounters(ctx context.Context, q EncounterQuery) ([]Encounter, error) {
	return search[Encounter](ctx, c, KindEncounter, "/Encounter", q.params())
}

// GetAllergies lists a patient's allergy intolerances
func (c *Client) GetAllergies(ctx context.Context, q AllergyQuery) ([]Allergy, error) {
	return search[Allergy](ctx, c, KindAllergy, "/AllergyIntolerance", q.params())
}

func search[T Record](ctx context.Context, c *Client, kind ResourceKind, path string, params url.Values) ([]T, error) {
	body, err := c.get(ctx, path, params)
	if err != nil {
		return nil, err
	}
	return bundleOf[T](kind, body)
}

// get performs a GET and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, path string, params url.Values) (json.RawMessage, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", contentType)
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("record request failed", logging.String("path", path), logging.Error(err))
		return nil, errors.NewRecordConnectionError(path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.NewRecordConnectionError(path, fmt.Errorf("failed to read response: %w", err))
	}

	c.logger.Debug("record request",
		logging.String("path", path),
		logging.Int("status", resp.StatusCode),
		logging.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, errors.NewRecordServerError(path, resp.StatusCode, string(body))
	}

	return body, nil
}

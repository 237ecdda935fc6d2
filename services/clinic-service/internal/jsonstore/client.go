// Package jsonstore talks to a JSON-server style REST backend exposing
// /users, /patients, /staff and /appointments.
//
// The backend has no transactions or unique constraints, so uniqueness and
// the one-appointment-per-slot rule are only checked by a query before the
// write. Two concurrent creates for the same slot can both succeed here; use
// the postgres backend where that matters.
package jsonstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/model"
	"github.com/clinicdesk/clinicdesk/services/clinic-service/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	resourceUsers        = "users"
	resourcePatients     = "patients"
	resourceStaff        = "staff"
	resourceAppointments = "appointments"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// StatusError is returned for non-2xx replies other than 404.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("jsonstore: %s %s returned %d", e.Method, e.Path, e.Code)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c.baseURL == "" {
		return errors.New("jsonstore url not configured")
	}
	target := c.baseURL + "/" + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return storage.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: method, Path: "/" + path, Code: resp.StatusCode}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("jsonstore: decode %s: %w", path, err)
	}
	return nil
}

func itemPath(resource, id string) string {
	return resource + "/" + url.PathEscape(id)
}

func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, resourceUsers, url.Values{"_limit": {"1"}}, nil, &[]json.RawMessage{})
}

func (c *Client) ListAppointments(ctx context.Context, f storage.AppointmentFilter) ([]model.Appointment, error) {
	q := url.Values{}
	if f.PatientID != "" {
		q.Set("patientId", f.PatientID)
	}
	if f.StaffID != "" {
		q.Set("staffId", f.StaffID)
	}
	if f.Date != "" {
		q.Set("date", f.Date)
	}
	if f.Time != "" {
		q.Set("time", f.Time)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	if f.ActiveOnly {
		q.Set("status_ne", string(model.StatusCancelled))
	}

	var records []appointmentRecord
	if err := c.do(ctx, http.MethodGet, resourceAppointments, q, nil, &records); err != nil {
		return nil, err
	}
	// Older servers ignore unknown operators, so filters are re-applied here.
	out := make([]model.Appointment, 0, len(records))
	for _, r := range records {
		if a := r.model(); f.Match(a) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (c *Client) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	var r appointmentRecord
	if err := c.do(ctx, http.MethodGet, itemPath(resourceAppointments, id), nil, nil, &r); err != nil {
		return model.Appointment{}, err
	}
	return r.model(), nil
}

func (c *Client) CreateAppointment(ctx context.Context, appt model.Appointment) error {
	return c.do(ctx, http.MethodPost, resourceAppointments, nil, fromAppointment(appt), nil)
}

func (c *Client) SetAppointmentStatus(ctx context.Context, id string, status model.AppointmentStatus) (model.Appointment, error) {
	var r appointmentRecord
	patch := map[string]string{"status": string(status)}
	if err := c.do(ctx, http.MethodPatch, itemPath(resourceAppointments, id), nil, patch, &r); err != nil {
		return model.Appointment{}, err
	}
	return r.model(), nil
}

func (c *Client) DeleteAppointment(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, itemPath(resourceAppointments, id), nil, nil, nil)
}

func (c *Client) ListPatients(ctx context.Context, f storage.PatientFilter) ([]model.Patient, error) {
	q := url.Values{}
	if f.CPF != "" {
		q.Set("cpf", f.CPF)
	}
	var records []patientRecord
	if err := c.do(ctx, http.MethodGet, resourcePatients, q, nil, &records); err != nil {
		return nil, err
	}
	out := make([]model.Patient, 0, len(records))
	for _, r := range records {
		if f.CPF != "" && r.CPF != f.CPF {
			continue
		}
		out = append(out, r.model())
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *Client) GetPatient(ctx context.Context, id string) (model.Patient, error) {
	var r patientRecord
	if err := c.do(ctx, http.MethodGet, itemPath(resourcePatients, id), nil, nil, &r); err != nil {
		return model.Patient{}, err
	}
	return r.model(), nil
}

func (c *Client) CreatePatient(ctx context.Context, p model.Patient) error {
	return c.do(ctx, http.MethodPost, resourcePatients, nil, fromPatient(p), nil)
}

func (c *Client) UpdatePatient(ctx context.Context, p model.Patient) error {
	rec := fromPatient(p)
	patch := map[string]string{
		"name":      rec.Name,
		"birthDate": rec.BirthDate,
		"phone":     rec.Phone,
		"email":     rec.Email,
		"address":   rec.Address,
	}
	return c.do(ctx, http.MethodPatch, itemPath(resourcePatients, p.ID), nil, patch, nil)
}

func (c *Client) DeletePatient(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, itemPath(resourcePatients, id), nil, nil, nil)
}

func (c *Client) ListStaff(ctx context.Context, f storage.StaffFilter) ([]model.Staff, error) {
	q := url.Values{}
	if f.CPF != "" {
		q.Set("cpf", f.CPF)
	}
	if f.Role != "" {
		q.Set("role", string(f.Role))
	}
	var records []staffRecord
	if err := c.do(ctx, http.MethodGet, resourceStaff, q, nil, &records); err != nil {
		return nil, err
	}
	out := make([]model.Staff, 0, len(records))
	for _, r := range records {
		s := r.model()
		if (f.CPF != "" && s.CPF != f.CPF) || (f.Role != "" && s.Role != f.Role) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *Client) GetStaff(ctx context.Context, id string) (model.Staff, error) {
	var r staffRecord
	if err := c.do(ctx, http.MethodGet, itemPath(resourceStaff, id), nil, nil, &r); err != nil {
		return model.Staff{}, err
	}
	return r.model(), nil
}

func (c *Client) CreateStaff(ctx context.Context, s model.Staff) error {
	return c.do(ctx, http.MethodPost, resourceStaff, nil, fromStaff(s), nil)
}

func (c *Client) UpdateStaff(ctx context.Context, s model.Staff) error {
	rec := fromStaff(s)
	patch := map[string]string{
		"name":          rec.Name,
		"role":          rec.Role,
		"specialty":     rec.Specialty,
		"licenseNumber": rec.LicenseNumber,
		"phone":         rec.Phone,
		"email":         rec.Email,
	}
	return c.do(ctx, http.MethodPatch, itemPath(resourceStaff, s.ID), nil, patch, nil)
}

func (c *Client) DeleteStaff(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, itemPath(resourceStaff, id), nil, nil, nil)
}

// FindUserByEmail expects emails to be stored lowercased.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var records []userRecord
	if err := c.do(ctx, http.MethodGet, resourceUsers, url.Values{"email": {email}}, nil, &records); err != nil {
		return model.User{}, err
	}
	for _, r := range records {
		if strings.EqualFold(r.Email, email) {
			return r.model(), nil
		}
	}
	return model.User{}, storage.ErrNotFound
}

func (c *Client) CreateUser(ctx context.Context, u model.User) error {
	return c.do(ctx, http.MethodPost, resourceUsers, nil, fromUser(u), nil)
}

var _ storage.Backend = (*Client)(nil)

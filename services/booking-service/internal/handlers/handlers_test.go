package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/apptflow/services/booking-service/internal/storage"
)

const internalSecret = "internal"

// 2026-06-03 is a Wednesday; the clock sits the day before.
var (
	wednesday = time.Date(2026, 6, 3, 0, 0, 0, 0, time.UTC)
	testNow   = wednesday.Add(-12 * time.Hour)
)

type availStore struct {
	busy []model.Busy
}

func (s *availStore) BusinessLocation(_ context.Context, businessID string) (*time.Location, error) {
	if businessID != "biz-1" {
		return nil, storage.ErrNotFound
	}
	return time.UTC, nil
}

func (s *availStore) GetWorkingHours(_ context.Context, _ string, day time.Weekday) (model.WorkingHours, bool, error) {
	if day != time.Wednesday {
		return model.WorkingHours{}, false, nil
	}
	return model.WorkingHours{DayOfWeek: day, StartTime: "09:00", EndTime: "12:00", IsActive: true}, true, nil
}

func (s *availStore) ListBusy(context.Context, string, time.Time, time.Time) ([]model.Busy, error) {
	return s.busy, nil
}

func (s *availStore) ListBlockedSlots(context.Context, string, time.Time) ([]model.BlockedSlot, error) {
	return nil, nil
}

type fakeStore struct {
	idem     map[string]storage.IdempotencyRecord
	booked   []storage.NewBooking
	bookErr  error
	tokens   map[string]model.Appointment
	patches  []storage.AppointmentPatch
	skipped  int64
	updateFn func(storage.AppointmentPatch) (model.Appointment, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		idem: map[string]storage.IdempotencyRecord{},
		tokens: map[string]model.Appointment{
			"c-scheduled": {ID: "a1", BusinessID: "biz-1", Status: model.StatusScheduled},
			"c-confirmed": {ID: "a2", BusinessID: "biz-1", Status: model.StatusConfirmed},
			"c-completed": {ID: "a3", BusinessID: "biz-1", Status: model.StatusCompleted},
			"c-cancelled": {ID: "a4", BusinessID: "biz-1", Status: model.StatusCancelled},
		},
	}
}

func (f *fakeStore) LookupIdempotency(_ context.Context, businessID, key string) (storage.IdempotencyRecord, bool, error) {
	rec, ok := f.idem[businessID+"/"+key]
	return rec, ok, nil
}

func (f *fakeStore) Book(_ context.Context, in storage.NewBooking) (storage.BookingResult, error) {
	if f.bookErr != nil {
		return storage.BookingResult{}, f.bookErr
	}
	f.booked = append(f.booked, in)
	end := in.End
	appt := model.Appointment{
		ID:           "appt-new",
		BusinessID:   in.Customer.BusinessID,
		CustomerID:   "cust-1",
		ServiceName:  in.ServiceName,
		StartTime:    in.Start,
		EndTime:      &end,
		Status:       model.StatusScheduled,
		ConfirmToken: "confirm-new",
		CancelToken:  "cancel-new",
	}
	body, err := in.Render(appt)
	if err != nil {
		return storage.BookingResult{}, err
	}
	if in.IdempotencyKey != "" {
		f.idem[appt.BusinessID+"/"+in.IdempotencyKey] = storage.IdempotencyRecord{AppointmentID: appt.ID, StatusCode: 201, ResponsePayload: body}
	}
	return storage.BookingResult{Appointment: appt, Body: body, StatusCode: 201}, nil
}

func (f *fakeStore) transition(token string, target model.AppointmentStatus, blocked ...model.AppointmentStatus) (storage.TokenResult, error) {
	appt, ok := f.tokens[token]
	if !ok {
		return storage.TokenResult{}, storage.ErrNotFound
	}
	if appt.Status == target {
		return storage.TokenResult{Appointment: appt}, nil
	}
	for _, b := range blocked {
		if appt.Status == b {
			return storage.TokenResult{Appointment: appt}, storage.ErrStatusConflict
		}
	}
	appt.Status = target
	f.tokens[token] = appt
	return storage.TokenResult{Appointment: appt, Changed: true, JobsSkipped: f.skipped}, nil
}

func (f *fakeStore) ConfirmByToken(_ context.Context, token string) (storage.TokenResult, error) {
	return f.transition(token, model.StatusConfirmed, model.StatusCancelled, model.StatusCompleted, model.StatusNoShow)
}

func (f *fakeStore) CancelByToken(_ context.Context, token string) (storage.TokenResult, error) {
	return f.transition(token, model.StatusCancelled, model.StatusCompleted, model.StatusNoShow)
}

func (f *fakeStore) UpdateAppointment(_ context.Context, businessID, id string, patch storage.AppointmentPatch) (model.Appointment, error) {
	f.patches = append(f.patches, patch)
	if f.updateFn != nil {
		return f.updateFn(patch)
	}
	if id != "a1" || businessID != "biz-1" {
		return model.Appointment{}, storage.ErrNotFound
	}
	appt := model.Appointment{ID: id, BusinessID: businessID, Status: model.StatusScheduled, StartTime: wednesday.Add(9 * time.Hour)}
	if patch.Status != nil {
		appt.Status = *patch.Status
	}
	if patch.StartTime != nil {
		appt.StartTime = *patch.StartTime
	}
	return appt, nil
}

type fixture struct {
	handler http.Handler
	avail   *availStore
	store   *fakeStore
}

func newFixture() *fixture {
	f := &fixture{avail: &availStore{}, store: newFakeStore()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := availability.NewEngine(f.avail, func() time.Time { return testNow })
	h := NewBookingHandler(engine, f.store, logger, 30)
	h.now = func() time.Time { return testNow }
	f.handler = NewRouter(RouterConfig{Booking: h, InternalSecret: internalSecret, Logger: logger})
	return f
}

func (f *fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestSlots(t *testing.T) {
	f := newFixture()
	end := wednesday.Add(10*time.Hour + 30*time.Minute)
	f.avail.busy = []model.Busy{{Start: wednesday.Add(10 * time.Hour), End: &end}}

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?business_id=biz-1&date=2026-06-03&duration_minutes=30", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body slotsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"09:00", "09:30", "10:30", "11:00", "11:30"}
	if len(body.Slots) != len(want) {
		t.Fatalf("expected %d slots, got %+v", len(want), body.Slots)
	}
	for i, s := range body.Slots {
		if s.StartTime != want[i] {
			t.Fatalf("slot %d: expected %s, got %s", i, want[i], s.StartTime)
		}
	}
}

func TestSlots_Validation(t *testing.T) {
	f := newFixture()
	cases := []struct {
		query string
		want  int
	}{
		{"date=2026-06-03&duration_minutes=30", http.StatusBadRequest},
		{"business_id=biz-1&date=03-06-2026&duration_minutes=30", http.StatusBadRequest},
		{"business_id=biz-1&date=2026-06-03", http.StatusBadRequest},
		{"business_id=biz-1&date=2026-06-03&duration_minutes=30&interval_minutes=-5", http.StatusBadRequest},
		{"business_id=other&date=2026-06-03&duration_minutes=30", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?"+tc.query, nil))
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.query, tc.want, rec.Code)
		}
	}
}

func TestSlots_PastDateIsEmpty(t *testing.T) {
	f := newFixture()
	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?business_id=biz-1&date=2026-05-27&duration_minutes=30", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"slots":[]`) {
		t.Fatalf("expected empty slot list, got %s", rec.Body.String())
	}
}

func bookBody(timeOfDay string) string {
	return `{"business_id":"biz-1","service_name":"Haircut","date":"2026-06-03","time":"` + timeOfDay +
		`","duration_minutes":30,"customer_name":"Maria","customer_phone":"+306900000001","consent_sms":true}`
}

func TestBook_CreatesAppointment(t *testing.T) {
	f := newFixture()

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(bookBody("09:30"))))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var body bookResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.AppointmentID != "appt-new" || body.ConfirmToken != "confirm-new" || body.Status != "SCHEDULED" {
		t.Fatalf("unexpected response: %+v", body)
	}
	if len(f.store.booked) != 1 {
		t.Fatalf("expected one booking")
	}
	in := f.store.booked[0]
	if !in.Start.Equal(wednesday.Add(9*time.Hour+30*time.Minute)) || !in.End.Equal(wednesday.Add(10*time.Hour)) {
		t.Fatalf("unexpected booking range %s - %s", in.Start, in.End)
	}
	if !in.Customer.ConsentSMS || in.Customer.ConsentEmail {
		t.Fatalf("unexpected consents: %+v", in.Customer)
	}
}

func TestBook_RejectsUnavailableSlot(t *testing.T) {
	f := newFixture()
	end := wednesday.Add(10 * time.Hour)
	f.avail.busy = []model.Busy{{Start: wednesday.Add(9*time.Hour + 30*time.Minute), End: &end}}

	for _, tod := range []string{"09:30", "09:15", "12:00"} {
		rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(bookBody(tod))))
		if rec.Code != http.StatusConflict {
			t.Fatalf("%s: expected 409, got %d", tod, rec.Code)
		}
	}
	if len(f.store.booked) != 0 {
		t.Fatalf("no booking should be written")
	}
}

func TestBook_RaceLostIsConflict(t *testing.T) {
	f := newFixture()
	f.store.bookErr = storage.ErrSlotTaken

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(bookBody("09:00"))))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestBook_IdempotencyReplay(t *testing.T) {
	f := newFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(bookBody("09:00")))
	req.Header.Set("Idempotency-Key", "k1")
	first := f.do(req)
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.Code)
	}

	// The slot is now taken, but the replay returns the stored response.
	end := wednesday.Add(9*time.Hour + 30*time.Minute)
	f.avail.busy = []model.Busy{{Start: wednesday.Add(9 * time.Hour), End: &end}}
	req = httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(bookBody("09:00")))
	req.Header.Set("Idempotency-Key", "k1")
	second := f.do(req)
	if second.Code != http.StatusCreated {
		t.Fatalf("expected replayed 201, got %d", second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replay body differs: %s vs %s", first.Body.String(), second.Body.String())
	}
	if len(f.store.booked) != 1 {
		t.Fatalf("replay must not book again")
	}
}

func TestBook_Validation(t *testing.T) {
	f := newFixture()
	bodies := []string{
		`not json`,
		`{"business_id":"biz-1","date":"2026-06-03","time":"09:00","duration_minutes":30,"customer_phone":"+30"}`,
		`{"business_id":"biz-1","date":"2026-06-03","time":"09:00","duration_minutes":30,"customer_name":"Maria"}`,
		`{"business_id":"biz-1","date":"2026-06-03","time":"09:00","duration_minutes":0,"customer_name":"Maria","customer_phone":"+30"}`,
		`{"business_id":"biz-1","date":"tomorrow","time":"09:00","duration_minutes":30,"customer_name":"Maria","customer_phone":"+30"}`,
		`{"business_id":"biz-1","date":"2026-06-03","time":"9am","duration_minutes":30,"customer_name":"Maria","customer_phone":"+30"}`,
	}
	for _, b := range bodies {
		if rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(b))); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", b, rec.Code)
		}
	}
}

func TestConfirmLinks(t *testing.T) {
	f := newFixture()
	cases := []struct {
		token string
		want  int
	}{
		{"c-scheduled", http.StatusOK},
		{"c-scheduled", http.StatusOK},
		{"c-confirmed", http.StatusOK},
		{"c-completed", http.StatusConflict},
		{"c-cancelled", http.StatusConflict},
		{"missing", http.StatusNotFound},
	}
	for _, tc := range cases {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/api/appointments/confirm/"+tc.token, nil))
		if rec.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.token, tc.want, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Fatalf("expected html page, got %q", ct)
		}
	}
	if f.store.tokens["c-scheduled"].Status != model.StatusConfirmed {
		t.Fatalf("expected scheduled appointment to be confirmed")
	}
}

func TestCancelLinks(t *testing.T) {
	f := newFixture()
	f.store.skipped = 2

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel/c-confirmed", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Appointment cancelled") {
		t.Fatalf("expected cancellation page, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = f.do(httptest.NewRequest(http.MethodGet, "/api/appointments/cancel/c-confirmed", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Already cancelled") {
		t.Fatalf("expected idempotent cancel, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(httptest.NewRequest(http.MethodGet, "/api/appointments/cancel/c-completed", nil)); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if rec := f.do(httptest.NewRequest(http.MethodGet, "/api/appointments/cancel/nope", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func patchRequest(path, body, secret string) *http.Request {
	req := httptest.NewRequest(http.MethodPatch, path, strings.NewReader(body))
	if secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	return req
}

func TestUpdate(t *testing.T) {
	f := newFixture()

	if rec := f.do(patchRequest("/api/v1/appointments/a1", `{"business_id":"biz-1","status":"completed"}`, "")); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", rec.Code)
	}

	rec := f.do(patchRequest("/api/v1/appointments/a1", `{"business_id":"biz-1","status":"completed"}`, internalSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var body appointmentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "COMPLETED" {
		t.Fatalf("unexpected status %q", body.Status)
	}

	rec = f.do(patchRequest("/api/v1/appointments/a1", `{"business_id":"biz-1","start_time":"2026-06-03T11:00:00Z"}`, internalSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	last := f.store.patches[len(f.store.patches)-1]
	if last.StartTime == nil || !last.StartTime.Equal(wednesday.Add(11*time.Hour)) || last.Status != nil {
		t.Fatalf("unexpected patch: %+v", last)
	}
}

func TestUpdate_Errors(t *testing.T) {
	f := newFixture()
	cases := []struct {
		path, body string
		want       int
	}{
		{"/api/v1/appointments/a1", `{"business_id":"biz-1","status":"DONE"}`, http.StatusBadRequest},
		{"/api/v1/appointments/a1", `{"business_id":"biz-1"}`, http.StatusBadRequest},
		{"/api/v1/appointments/a1", `{"status":"COMPLETED"}`, http.StatusBadRequest},
		{"/api/v1/appointments/a1", `{"business_id":"biz-1","start_time":"2026-06-03T11:00:00Z","end_time":"2026-06-03T10:00:00Z"}`, http.StatusBadRequest},
		{"/api/v1/appointments/zzz", `{"business_id":"biz-1","status":"CANCELLED"}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		if rec := f.do(patchRequest(tc.path, tc.body, internalSecret)); rec.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.path, tc.body, tc.want, rec.Code)
		}
	}

	f.store.updateFn = func(storage.AppointmentPatch) (model.Appointment, error) {
		return model.Appointment{}, storage.ErrSlotTaken
	}
	rec := f.do(patchRequest("/api/v1/appointments/a1", `{"business_id":"biz-1","start_time":"2026-06-03T10:00:00Z"}`, internalSecret))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
}

func TestUpdate_EndOnlyPatchBeforeStoredStart(t *testing.T) {
	f := newFixture()
	f.store.updateFn = func(patch storage.AppointmentPatch) (model.Appointment, error) {
		if patch.StartTime != nil || patch.EndTime == nil {
			t.Fatalf("expected end-only patch, got %+v", patch)
		}
		return model.Appointment{}, storage.ErrInvalidRange
	}
	rec := f.do(patchRequest("/api/v1/appointments/a1", `{"business_id":"biz-1","end_time":"2026-06-03T09:00:00Z"}`, internalSecret))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "end_time must be after start_time") {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

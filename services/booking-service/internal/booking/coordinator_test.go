package booking

import (
	"context"
	"io"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/turnomed/turnomed/services/booking-service/internal/availability"
	"github.com/turnomed/turnomed/services/booking-service/internal/model"
	"github.com/turnomed/turnomed/services/booking-service/internal/notify"
	"github.com/turnomed/turnomed/services/booking-service/internal/policy"
)

// 2026-01-05 is a Monday.
var (
	testNow = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	testTue = time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	testWed = time.Date(2026, 1, 7, 0, 0, 0, 0, time.UTC)
)

type fakeRuleStore struct {
	rules []availability.Rule
}

func (s *fakeRuleStore) RulesFor(_ context.Context, _ string) ([]availability.Rule, error) {
	return s.rules, nil
}

type fakeApptStore struct {
	appts      map[string]model.Appointment
	createErr  error
	roomInUse  bool
	transition []string
}

func newFakeApptStore() *fakeApptStore {
	return &fakeApptStore{appts: map[string]model.Appointment{}}
}

func (s *fakeApptStore) ActiveSlotsOn(_ context.Context, professionalID string, day time.Time) ([]availability.TimeOfDay, error) {
	var out []availability.TimeOfDay
	for _, a := range s.appts {
		if a.ProfessionalID == professionalID && a.Day.Equal(availability.DateOnly(day)) && a.Blocking() {
			out = append(out, a.Slot)
		}
	}
	return out, nil
}

func (s *fakeApptStore) ListOn(_ context.Context, professionalID string, day time.Time) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range s.appts {
		if a.ProfessionalID == professionalID && a.Day.Equal(availability.DateOnly(day)) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeApptStore) Get(_ context.Context, id string) (model.Appointment, error) {
	a, ok := s.appts[id]
	if !ok {
		return model.Appointment{}, ErrNotFound
	}
	return a, nil
}

func (s *fakeApptStore) Create(_ context.Context, appt *model.Appointment) error {
	if s.createErr != nil {
		return s.createErr
	}
	for _, a := range s.appts {
		if a.ProfessionalID == appt.ProfessionalID && a.Day.Equal(appt.Day) && a.Slot == appt.Slot && a.Blocking() {
			return ErrSlotTaken
		}
	}
	s.appts[appt.ID] = *appt
	return nil
}

func (s *fakeApptStore) Move(_ context.Context, id string, day time.Time, slot availability.TimeOfDay) error {
	appt, ok := s.appts[id]
	if !ok {
		return ErrNotFound
	}
	day = availability.DateOnly(day)
	for otherID, a := range s.appts {
		if otherID != id && a.ProfessionalID == appt.ProfessionalID && a.Day.Equal(day) && a.Slot == slot && a.Blocking() {
			return ErrSlotTaken
		}
	}
	appt.Day = day
	appt.Slot = slot
	s.appts[id] = appt
	return nil
}

func (s *fakeApptStore) Cancel(_ context.Context, id string, reason string) (bool, error) {
	appt, ok := s.appts[id]
	if !ok {
		return false, ErrNotFound
	}
	if appt.Status != model.StatusPending && appt.Status != model.StatusConfirmed {
		return false, ErrAlreadyFinal
	}
	appt.Status = model.StatusCancelled
	appt.CancelReason = reason
	s.appts[id] = appt
	return appt.RoomID != "" && !s.roomInUse, nil
}

func (s *fakeApptStore) Transition(_ context.Context, id string, from, to model.AppointmentStatus) error {
	appt, ok := s.appts[id]
	if !ok {
		return ErrNotFound
	}
	if appt.Status != from {
		return ErrInvalidTransition
	}
	appt.Status = to
	s.appts[id] = appt
	s.transition = append(s.transition, string(to))
	return nil
}

func (s *fakeApptStore) MarkNoShow(_ context.Context, id string) error {
	appt, ok := s.appts[id]
	if !ok {
		return ErrNotFound
	}
	appt.NoShow = true
	s.appts[id] = appt
	return nil
}

func (s *fakeApptStore) Rate(_ context.Context, id string, rating int) error {
	appt, ok := s.appts[id]
	if !ok {
		return ErrNotFound
	}
	if appt.Status != model.StatusCompleted {
		return ErrInvalidTransition
	}
	appt.Rating = rating
	s.appts[id] = appt
	return nil
}

type recordingNotifier struct {
	sent []notify.Notification
	err  error
}

func (n *recordingNotifier) Send(_ context.Context, msg notify.Notification) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func newTestCoordinator(rules []availability.Rule, store *fakeApptStore, notifier notify.Port, cancelPolicy policy.CancellationPolicy) *Coordinator {
	if cancelPolicy == nil {
		cancelPolicy = policy.NewLeadTimePolicy(0)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewCoordinator(&fakeRuleStore{rules: rules}, store, cancelPolicy, notifier, logger).
		WithClock(func() time.Time { return testNow })
}

func validRequest(slot availability.TimeOfDay, day time.Time) BookRequest {
	return BookRequest{
		ProfessionalID: "prof-1",
		ServiceID:      "svc-1",
		SiteID:         "site-1",
		PatientID:      "patient-1",
		Day:            day,
		Slot:           slot,
	}
}

func TestBook_CompletedAppointmentStillBlocksSlot(t *testing.T) {
	store := newFakeApptStore()
	store.appts["a1"] = model.Appointment{
		ID:             "a1",
		ProfessionalID: "prof-1",
		ServiceID:      "svc-1",
		PatientID:      "patient-2",
		SiteID:         "site-1",
		Day:            availability.DateOnly(testWed),
		Slot:           availability.At(10, 0),
		Status:         model.StatusCompleted,
	}
	c := newTestCoordinator(nil, store, &recordingNotifier{}, nil)
	ctx := context.Background()

	// Only cancellation frees a slot; a completed appointment keeps its
	// claim, matching what the insert arbiter enforces.
	slots, err := c.Slots(ctx, "prof-1", testWed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, s := range slots {
		if s == availability.At(10, 0) {
			t.Fatal("completed appointment's slot must not be offered")
		}
	}

	if _, err := c.Book(ctx, validRequest(availability.At(10, 0), testWed)); !errors.Is(err, ErrUnavailableSlot) {
		t.Fatalf("expected ErrUnavailableSlot, got %v", err)
	}
}

func TestBook_CreatesPendingAppointment(t *testing.T) {
	store := newFakeApptStore()
	notifier := &recordingNotifier{}
	c := newTestCoordinator(nil, store, notifier, nil)

	appt, err := c.Book(context.Background(), validRequest(availability.At(10, 0), testWed))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.Status != model.StatusPending {
		t.Fatalf("expected pending status, got %s", appt.Status)
	}
	if appt.ID == "" || appt.QRCode == "" {
		t.Fatal("expected id and qr code to be assigned")
	}
	if len(notifier.sent) != 1 || notifier.sent[0].Kind != notify.KindAppointmentConfirmed {
		t.Fatalf("expected one confirmation notification, got %+v", notifier.sent)
	}
}

func TestBook_RejectsMissingFields(t *testing.T) {
	c := newTestCoordinator(nil, newFakeApptStore(), &recordingNotifier{}, nil)

	req := validRequest(availability.At(10, 0), testWed)
	req.PatientID = ""
	if _, err := c.Book(context.Background(), req); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestBook_RejectsUnavailableDates(t *testing.T) {
	c := newTestCoordinator(nil, newFakeApptStore(), &recordingNotifier{}, nil)
	ctx := context.Background()

	// Same day.
	if _, err := c.Book(ctx, validRequest(availability.At(10, 0), testNow)); !errors.Is(err, ErrUnavailableSlot) {
		t.Fatalf("expected ErrUnavailableSlot for today, got %v", err)
	}
	// Weekend.
	sat := testNow.AddDate(0, 0, 5)
	if _, err := c.Book(ctx, validRequest(availability.At(10, 0), sat)); !errors.Is(err, ErrUnavailableSlot) {
		t.Fatalf("expected ErrUnavailableSlot for Saturday, got %v", err)
	}
	// Slot outside the canonical list.
	if _, err := c.Book(ctx, validRequest(availability.At(13, 0), testWed)); !errors.Is(err, ErrUnavailableSlot) {
		t.Fatalf("expected ErrUnavailableSlot for lunch gap, got %v", err)
	}
}

func TestBook_SurfacesSlotRace(t *testing.T) {
	store := newFakeApptStore()
	store.createErr = ErrSlotTaken
	c := newTestCoordinator(nil, store, &recordingNotifier{}, nil)

	if _, err := c.Book(context.Background(), validRequest(availability.At(10, 0), testWed)); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
}

func TestBook_NotifierFailureDoesNotFailBooking(t *testing.T) {
	store := newFakeApptStore()
	notifier := &recordingNotifier{err: errors.New("broker down")}
	c := newTestCoordinator(nil, store, notifier, nil)

	if _, err := c.Book(context.Background(), validRequest(availability.At(10, 0), testWed)); err != nil {
		t.Fatalf("booking must not fail on notification errors, got %v", err)
	}
}

func TestBookCancelRoundTrip(t *testing.T) {
	store := newFakeApptStore()
	c := newTestCoordinator(nil, store, &recordingNotifier{}, nil)
	ctx := context.Background()
	slot := availability.At(10, 0)

	appt, err := c.Book(ctx, validRequest(slot, testWed))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	slots, err := c.Slots(ctx, "prof-1", testWed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if containsSlot(slots, slot) {
		t.Fatal("booked slot should disappear from availability")
	}

	if _, err := c.Cancel(ctx, appt.ID, "patient request"); err != nil {
		t.Fatalf("unexpected cancel error: %v", err)
	}

	slots, err = c.Slots(ctx, "prof-1", testWed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !containsSlot(slots, slot) {
		t.Fatal("cancelled slot should be offered again")
	}
}

func TestCancel_PolicyDenied(t *testing.T) {
	store := newFakeApptStore()
	store.appts["appt-1"] = model.Appointment{
		ID:             "appt-1",
		ProfessionalID: "prof-1",
		PatientID:      "patient-1",
		Day:            testTue,
		Slot:           availability.At(8, 0),
		Status:         model.StatusConfirmed,
	}
	c := newTestCoordinator(nil, store, &recordingNotifier{}, policy.NewLeadTimePolicy(48*time.Hour))

	_, err := c.Cancel(context.Background(), "appt-1", "too late")
	var denied *PolicyDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected PolicyDeniedError, got %v", err)
	}
	if denied.Reason == "" {
		t.Fatal("policy denial must carry a reason")
	}
}

func TestCancel_AlreadyFinal(t *testing.T) {
	store := newFakeApptStore()
	store.appts["appt-1"] = model.Appointment{
		ID:     "appt-1",
		Day:    testWed,
		Slot:   availability.At(9, 0),
		Status: model.StatusCancelled,
	}
	c := newTestCoordinator(nil, store, &recordingNotifier{}, nil)

	if _, err := c.Cancel(context.Background(), "appt-1", "again"); !errors.Is(err, ErrAlreadyFinal) {
		t.Fatalf("expected ErrAlreadyFinal, got %v", err)
	}
}

func TestCancel_ReleasesRoomAndNotifiesProfessional(t *testing.T) {
	store := newFakeApptStore()
	store.appts["appt-1"] = model.Appointment{
		ID:             "appt-1",
		ProfessionalID: "prof-1",
		PatientID:      "patient-1",
		RoomID:         "room-3",
		Day:            testWed,
		Slot:           availability.At(9, 0),
		Status:         model.StatusPending,
	}
	notifier := &recordingNotifier{}
	c := newTestCoordinator(nil, store, notifier, nil)

	if _, err := c.Cancel(context.Background(), "appt-1", "conflict"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.sent))
	}
	n := notifier.sent[0]
	if n.Kind != notify.KindAppointmentCancelled || n.UserID != "prof-1" {
		t.Fatalf("expected cancellation notification to the professional, got %+v", n)
	}
	if released, ok := n.Payload["room_released"].(bool); !ok || !released {
		t.Fatalf("expected room_released=true in payload, got %v", n.Payload["room_released"])
	}
}

func TestReschedule_PreservesIdentity(t *testing.T) {
	store := newFakeApptStore()
	c := newTestCoordinator(nil, store, &recordingNotifier{}, nil)
	ctx := context.Background()

	appt, err := c.Book(ctx, validRequest(availability.At(10, 0), testWed))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	moved, err := c.Reschedule(ctx, appt.ID, testWed, availability.At(11, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if moved.ID != appt.ID {
		t.Fatal("reschedule must preserve the appointment id")
	}

	stored := store.appts[appt.ID]
	if stored.Slot != availability.At(11, 0) {
		t.Fatalf("expected stored slot 11:00, got %s", stored.Slot)
	}
	if stored.QRCode != appt.QRCode {
		t.Fatal("reschedule must preserve the qr code")
	}
}

func TestReschedule_RejectsOccupiedSlot(t *testing.T) {
	store := newFakeApptStore()
	c := newTestCoordinator(nil, store, &recordingNotifier{}, nil)
	ctx := context.Background()

	first, err := c.Book(ctx, validRequest(availability.At(10, 0), testWed))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second := validRequest(availability.At(10, 30), testWed)
	booked, err := c.Book(ctx, second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The target slot belongs to the first appointment, so availability
	// recomputation already rejects it.
	if _, err := c.Reschedule(ctx, booked.ID, testWed, first.Slot); !errors.Is(err, ErrUnavailableSlot) {
		t.Fatalf("expected ErrUnavailableSlot, got %v", err)
	}
}

func TestStatusTransitions(t *testing.T) {
	store := newFakeApptStore()
	c := newTestCoordinator(nil, store, &recordingNotifier{}, nil)
	ctx := context.Background()

	appt, err := c.Book(ctx, validRequest(availability.At(10, 0), testWed))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Out of order: cannot start before confirming.
	if err := c.Start(ctx, appt.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if err := c.Confirm(ctx, appt.ID); err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if err := c.Start(ctx, appt.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := c.Complete(ctx, appt.ID); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	if err := c.Rate(ctx, appt.ID, 6); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for rating 6, got %v", err)
	}
	if err := c.Rate(ctx, appt.ID, 5); err != nil {
		t.Fatalf("rate failed: %v", err)
	}
	if store.appts[appt.ID].Rating != 5 {
		t.Fatalf("expected rating 5, got %d", store.appts[appt.ID].Rating)
	}
}

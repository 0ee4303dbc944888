package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Domenick1991/tourbooking/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockBookingRepository struct {
	mock.Mock
}

func (m *MockBookingRepository) Create(ctx context.Context, booking *domain.Booking) error {
	args := m.Called(ctx, booking)
	return args.Error(0)
}

func (m *MockBookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) List(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) TransitionStatus(ctx context.Context, id string, expected, next domain.BookingStatus) (*domain.Booking, error) {
	args := m.Called(ctx, id, expected, next)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Booking), args.Error(1)
}

func (m *MockBookingRepository) SumConfirmedSlots(ctx context.Context, packageID string) (int, error) {
	args := m.Called(ctx, packageID)
	return args.Int(0), args.Error(1)
}

type MockInventory struct {
	mock.Mock
}

func (m *MockInventory) GetPackage(ctx context.Context, id string) (*domain.Package, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Package), args.Error(1)
}

func (m *MockInventory) Reserve(ctx context.Context, packageID string, quantity int) (domain.Availability, error) {
	args := m.Called(ctx, packageID, quantity)
	return args.Get(0).(domain.Availability), args.Error(1)
}

func (m *MockInventory) Release(ctx context.Context, packageID string, quantity int) (domain.Availability, error) {
	args := m.Called(ctx, packageID, quantity)
	return args.Get(0).(domain.Availability), args.Error(1)
}

func (m *MockInventory) Deactivate(ctx context.Context, packageID string) error {
	args := m.Called(ctx, packageID)
	return args.Error(0)
}

func (m *MockInventory) Remove(ctx context.Context, packageID string) error {
	args := m.Called(ctx, packageID)
	return args.Error(0)
}

func (m *MockInventory) InvalidateAvailability(ctx context.Context, packageID string) {
	m.Called(ctx, packageID)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Emit(ctx context.Context, input domain.NotificationInput) (*domain.Notification, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Notification), args.Error(1)
}

type MockDecisionLock struct {
	mock.Mock
}

func (m *MockDecisionLock) AcquireDecisionLock(ctx context.Context, bookingID string, ttl time.Duration) (string, bool, error) {
	args := m.Called(ctx, bookingID, ttl)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockDecisionLock) ReleaseDecisionLock(ctx context.Context, bookingID, token string) error {
	args := m.Called(ctx, bookingID, token)
	return args.Error(0)
}

type MockAgencyRepository struct {
	mock.Mock
}

func (m *MockAgencyRepository) IsActive(ctx context.Context, agencyID string) (bool, error) {
	args := m.Called(ctx, agencyID)
	return args.Bool(0), args.Error(1)
}

// passthroughTx runs the unit of work without a store transaction, so the
// engine's own compensation is what the tests observe.
type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// recordingTx remembers what the unit of work returned; a store
// transaction rolls back on any error.
type recordingTx struct {
	calls int
	err   error
}

func (r *recordingTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.calls++
	r.err = fn(ctx)
	return r.err
}

type fixture struct {
	bookings  *MockBookingRepository
	inventory *MockInventory
	notifier  *MockNotifier
	service   *BookingService
}

func newFixture(opts ...BookingServiceOption) *fixture {
	f := &fixture{
		bookings:  &MockBookingRepository{},
		inventory: &MockInventory{},
		notifier:  &MockNotifier{},
	}
	f.service = NewBookingService(f.bookings, f.inventory, f.notifier, passthroughTx{}, opts...)
	return f
}

func (f *fixture) assertExpectations(t *testing.T) {
	f.bookings.AssertExpectations(t)
	f.inventory.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func pendingBooking() *domain.Booking {
	return &domain.Booking{
		ID:             "b1",
		TravelerID:     "t1",
		PackageID:      "p1",
		AgencyID:       "a1",
		SlotsRequested: 2,
		Status:         domain.BookingStatusPending,
	}
}

func withStatus(b *domain.Booking, status domain.BookingStatus) *domain.Booking {
	c := *b
	c.Status = status
	return &c
}

func activePackage(available int) *domain.Package {
	return &domain.Package{
		ID:             "p1",
		AgencyID:       "a1",
		Title:          "Everest view trek",
		MaxSlots:       5,
		AvailableSlots: available,
		Status:         domain.PackageStatusActive,
	}
}

func TestBookingService_RequestBooking_Success(t *testing.T) {
	agencies := &MockAgencyRepository{}
	f := newFixture(WithAgencies(agencies))

	f.inventory.On("GetPackage", mock.Anything, "p1").Return(activePackage(5), nil).Once()
	agencies.On("IsActive", mock.Anything, "a1").Return(true, nil).Once()
	f.bookings.On("Create", mock.Anything, mock.AnythingOfType("*domain.Booking")).Return(nil).Once()
	f.notifier.On("Emit", mock.Anything, mock.MatchedBy(func(in domain.NotificationInput) bool {
		return in.Kind == domain.NotificationBookingRequested &&
			in.Recipient == domain.Agency("a1") &&
			in.Sender == domain.Traveler("t1")
	})).Return(&domain.Notification{}, nil).Once()

	b, err := f.service.RequestBooking(context.Background(), domain.Traveler("t1"), RequestBookingInput{PackageID: "p1", Slots: 2})

	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, domain.BookingStatusPending, b.Status)
	assert.Equal(t, "a1", b.AgencyID)
	assert.Equal(t, 2, b.SlotsRequested)
	f.inventory.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
	agencies.AssertExpectations(t)
}

func TestBookingService_RequestBooking_Refusals(t *testing.T) {
	ctx := context.Background()

	t.Run("Agency caller", func(t *testing.T) {
		f := newFixture()
		_, err := f.service.RequestBooking(ctx, domain.Agency("a1"), RequestBookingInput{PackageID: "p1", Slots: 1})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("Zero slots", func(t *testing.T) {
		f := newFixture()
		_, err := f.service.RequestBooking(ctx, domain.Traveler("t1"), RequestBookingInput{PackageID: "p1", Slots: 0})
		assert.ErrorIs(t, err, domain.ErrInvalidQuantity)
	})

	t.Run("Unknown package", func(t *testing.T) {
		f := newFixture()
		f.inventory.On("GetPackage", mock.Anything, "p1").Return(nil, domain.ErrPackageNotFound).Once()
		_, err := f.service.RequestBooking(ctx, domain.Traveler("t1"), RequestBookingInput{PackageID: "p1", Slots: 1})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Inactive package", func(t *testing.T) {
		f := newFixture()
		pkg := activePackage(5)
		pkg.Status = domain.PackageStatusInactive
		f.inventory.On("GetPackage", mock.Anything, "p1").Return(pkg, nil).Once()
		_, err := f.service.RequestBooking(ctx, domain.Traveler("t1"), RequestBookingInput{PackageID: "p1", Slots: 1})
		assert.ErrorIs(t, err, domain.ErrPackageInactive)
	})

	t.Run("Inactive agency", func(t *testing.T) {
		agencies := &MockAgencyRepository{}
		f := newFixture(WithAgencies(agencies))
		f.inventory.On("GetPackage", mock.Anything, "p1").Return(activePackage(5), nil).Once()
		agencies.On("IsActive", mock.Anything, "a1").Return(false, nil).Once()
		_, err := f.service.RequestBooking(ctx, domain.Traveler("t1"), RequestBookingInput{PackageID: "p1", Slots: 1})
		assert.ErrorIs(t, err, domain.ErrPackageInactive)
	})

	t.Run("Clearly impossible", func(t *testing.T) {
		f := newFixture()
		f.inventory.On("GetPackage", mock.Anything, "p1").Return(activePackage(1), nil).Once()
		_, err := f.service.RequestBooking(ctx, domain.Traveler("t1"), RequestBookingInput{PackageID: "p1", Slots: 6})
		assert.ErrorIs(t, err, domain.ErrInsufficientCapacity)
		f.bookings.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestBookingService_RequestBooking_NotificationFailureIsSwallowed(t *testing.T) {
	f := newFixture()

	f.inventory.On("GetPackage", mock.Anything, "p1").Return(activePackage(5), nil).Once()
	f.bookings.On("Create", mock.Anything, mock.AnythingOfType("*domain.Booking")).Return(nil).Once()
	f.notifier.On("Emit", mock.Anything, mock.Anything).
		Return(nil, domain.StorageError("create notification", errors.New("connection reset"))).Once()

	b, err := f.service.RequestBooking(context.Background(), domain.Traveler("t1"), RequestBookingInput{PackageID: "p1", Slots: 1})

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusPending, b.Status)
	f.assertExpectations(t)
}

func TestBookingService_Accept_Success(t *testing.T) {
	f := newFixture()
	current := pendingBooking()

	f.bookings.On("GetByID", mock.Anything, "b1").Return(current, nil).Once()
	f.inventory.On("Reserve", mock.Anything, "p1", 2).Return(domain.Availability{PackageID: "p1", MaxSlots: 5, AvailableSlots: 3}, nil).Once()
	f.bookings.On("TransitionStatus", mock.Anything, "b1", domain.BookingStatusPending, domain.BookingStatusConfirmed).
		Return(withStatus(current, domain.BookingStatusConfirmed), nil).Once()
	f.inventory.On("InvalidateAvailability", mock.Anything, "p1").Return().Once()
	f.notifier.On("Emit", mock.Anything, mock.MatchedBy(func(in domain.NotificationInput) bool {
		return in.Kind == domain.NotificationBookingConfirmed && in.Recipient == domain.Traveler("t1")
	})).Return(&domain.Notification{}, nil).Once()

	b, err := f.service.DecideBooking(context.Background(), domain.Agency("a1"), "b1", domain.DecisionAccept)

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, b.Status)
	f.assertExpectations(t)
}

func TestBookingService_Accept_InsufficientCapacityLeavesPending(t *testing.T) {
	f := newFixture()

	f.bookings.On("GetByID", mock.Anything, "b1").Return(pendingBooking(), nil).Once()
	f.inventory.On("Reserve", mock.Anything, "p1", 2).Return(domain.Availability{}, domain.ErrInsufficientCapacity).Once()

	b, err := f.service.DecideBooking(context.Background(), domain.Agency("a1"), "b1", domain.DecisionAccept)

	assert.Nil(t, b)
	assert.ErrorIs(t, err, domain.ErrInsufficientCapacity)
	f.bookings.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)
}

func TestBookingService_Accept_LostCASReleasesCapacity(t *testing.T) {
	f := newFixture()

	f.bookings.On("GetByID", mock.Anything, "b1").Return(pendingBooking(), nil).Once()
	f.inventory.On("Reserve", mock.Anything, "p1", 2).Return(domain.Availability{}, nil).Once()
	f.bookings.On("TransitionStatus", mock.Anything, "b1", domain.BookingStatusPending, domain.BookingStatusConfirmed).
		Return(nil, domain.ErrConflict).Once()
	f.inventory.On("Release", mock.Anything, "p1", 2).Return(domain.Availability{}, nil).Once()

	_, err := f.service.DecideBooking(context.Background(), domain.Agency("a1"), "b1", domain.DecisionAccept)

	assert.ErrorIs(t, err, domain.ErrConflict)
	f.assertExpectations(t)
	f.notifier.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)
}

func TestBookingService_Accept_CompensationFailureIsReported(t *testing.T) {
	f := newFixture()
	storeDown := domain.StorageError("release slots", errors.New("timeout"))

	f.bookings.On("GetByID", mock.Anything, "b1").Return(pendingBooking(), nil).Once()
	f.inventory.On("Reserve", mock.Anything, "p1", 2).Return(domain.Availability{}, nil).Once()
	f.bookings.On("TransitionStatus", mock.Anything, "b1", domain.BookingStatusPending, domain.BookingStatusConfirmed).
		Return(nil, domain.ErrConflict).Once()
	f.inventory.On("Release", mock.Anything, "p1", 2).Return(domain.Availability{}, storeDown).Once()

	_, err := f.service.DecideBooking(context.Background(), domain.Agency("a1"), "b1", domain.DecisionAccept)

	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.ErrorIs(t, err, domain.ErrStorageFailure)
}

func TestBookingService_Accept_StoreFailureLeftToRollback(t *testing.T) {
	tx := &recordingTx{}
	f := newFixture()
	f.service.tx = tx
	storeDown := domain.StorageError("transition booking status", errors.New("conn reset"))

	f.bookings.On("GetByID", mock.Anything, "b1").Return(pendingBooking(), nil).Once()
	f.inventory.On("Reserve", mock.Anything, "p1", 2).Return(domain.Availability{}, nil).Once()
	f.bookings.On("TransitionStatus", mock.Anything, "b1", domain.BookingStatusPending, domain.BookingStatusConfirmed).
		Return(nil, storeDown).Once()

	_, err := f.service.DecideBooking(context.Background(), domain.Agency("a1"), "b1", domain.DecisionAccept)

	assert.ErrorIs(t, err, domain.ErrStorageFailure)
	assert.ErrorIs(t, tx.err, domain.ErrStorageFailure)
	f.inventory.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	f.inventory.AssertNotCalled(t, "InvalidateAvailability", mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)
}

func TestBookingService_Decide_Refusals(t *testing.T) {
	ctx := context.Background()

	t.Run("Traveler caller", func(t *testing.T) {
		f := newFixture()
		_, err := f.service.DecideBooking(ctx, domain.Traveler("t1"), "b1", domain.DecisionAccept)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("Other agency", func(t *testing.T) {
		f := newFixture()
		f.bookings.On("GetByID", mock.Anything, "b1").Return(pendingBooking(), nil).Once()
		_, err := f.service.DecideBooking(ctx, domain.Agency("a2"), "b1", domain.DecisionReject)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("Already confirmed", func(t *testing.T) {
		f := newFixture()
		f.bookings.On("GetByID", mock.Anything, "b1").Return(withStatus(pendingBooking(), domain.BookingStatusConfirmed), nil).Once()
		_, err := f.service.DecideBooking(ctx, domain.Agency("a1"), "b1", domain.DecisionAccept)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		f.inventory.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Unknown booking", func(t *testing.T) {
		f := newFixture()
		f.bookings.On("GetByID", mock.Anything, "b1").Return(nil, domain.ErrBookingNotFound).Once()
		_, err := f.service.DecideBooking(ctx, domain.Agency("a1"), "b1", domain.DecisionAccept)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Unknown decision", func(t *testing.T) {
		f := newFixture()
		_, err := f.service.DecideBooking(ctx, domain.Agency("a1"), "b1", domain.Decision("maybe"))
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestBookingService_Reject_DoesNotTouchCapacity(t *testing.T) {
	f := newFixture()
	current := pendingBooking()

	f.bookings.On("GetByID", mock.Anything, "b1").Return(current, nil).Once()
	f.bookings.On("TransitionStatus", mock.Anything, "b1", domain.BookingStatusPending, domain.BookingStatusCancelled).
		Return(withStatus(current, domain.BookingStatusCancelled), nil).Once()
	f.notifier.On("Emit", mock.Anything, mock.MatchedBy(func(in domain.NotificationInput) bool {
		return in.Kind == domain.NotificationBookingRejected
	})).Return(&domain.Notification{}, nil).Once()

	b, err := f.service.DecideBooking(context.Background(), domain.Agency("a1"), "b1", domain.DecisionReject)

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, b.Status)
	f.inventory.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything)
	f.inventory.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestBookingService_Decide_LockHeldIsConflict(t *testing.T) {
	locks := &MockDecisionLock{}
	f := newFixture(WithDecisionLock(locks, time.Second))

	f.bookings.On("GetByID", mock.Anything, "b1").Return(pendingBooking(), nil).Once()
	locks.On("AcquireDecisionLock", mock.Anything, "b1", time.Second).Return("", false, nil).Once()

	_, err := f.service.DecideBooking(context.Background(), domain.Agency("a1"), "b1", domain.DecisionAccept)

	assert.ErrorIs(t, err, domain.ErrConflict)
	f.inventory.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything)
	locks.AssertExpectations(t)
}

func TestBookingService_Decide_LockReleasedAfterDecision(t *testing.T) {
	locks := &MockDecisionLock{}
	f := newFixture(WithDecisionLock(locks, time.Second))
	current := pendingBooking()

	f.bookings.On("GetByID", mock.Anything, "b1").Return(current, nil).Once()
	locks.On("AcquireDecisionLock", mock.Anything, "b1", time.Second).Return("token-1", true, nil).Once()
	f.bookings.On("TransitionStatus", mock.Anything, "b1", domain.BookingStatusPending, domain.BookingStatusCancelled).
		Return(withStatus(current, domain.BookingStatusCancelled), nil).Once()
	f.notifier.On("Emit", mock.Anything, mock.Anything).Return(&domain.Notification{}, nil).Once()
	locks.On("ReleaseDecisionLock", mock.Anything, "b1", "token-1").Return(nil).Once()

	_, err := f.service.DecideBooking(context.Background(), domain.Agency("a1"), "b1", domain.DecisionReject)

	require.NoError(t, err)
	locks.AssertExpectations(t)
}

func TestBookingService_Decide_LockStoreDownFallsBackToCAS(t *testing.T) {
	locks := &MockDecisionLock{}
	f := newFixture(WithDecisionLock(locks, time.Second))
	current := pendingBooking()

	f.bookings.On("GetByID", mock.Anything, "b1").Return(current, nil).Once()
	locks.On("AcquireDecisionLock", mock.Anything, "b1", time.Second).Return("", false, errors.New("redis: connection refused")).Once()
	f.bookings.On("TransitionStatus", mock.Anything, "b1", domain.BookingStatusPending, domain.BookingStatusCancelled).
		Return(withStatus(current, domain.BookingStatusCancelled), nil).Once()
	f.notifier.On("Emit", mock.Anything, mock.Anything).Return(&domain.Notification{}, nil).Once()

	_, err := f.service.DecideBooking(context.Background(), domain.Agency("a1"), "b1", domain.DecisionReject)

	require.NoError(t, err)
	locks.AssertNotCalled(t, "ReleaseDecisionLock", mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_Cancel_Pending(t *testing.T) {
	f := newFixture()
	current := pendingBooking()

	f.bookings.On("GetByID", mock.Anything, "b1").Return(current, nil).Once()
	f.bookings.On("TransitionStatus", mock.Anything, "b1", domain.BookingStatusPending, domain.BookingStatusCancelled).
		Return(withStatus(current, domain.BookingStatusCancelled), nil).Once()
	f.notifier.On("Emit", mock.Anything, mock.MatchedBy(func(in domain.NotificationInput) bool {
		return in.Kind == domain.NotificationBookingCancelled && in.Recipient == domain.Agency("a1")
	})).Return(&domain.Notification{}, nil).Once()

	b, err := f.service.CancelBooking(context.Background(), domain.Traveler("t1"), "b1")

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, b.Status)
	f.inventory.AssertNotCalled(t, "Release", mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestBookingService_Cancel_ConfirmedByAgency(t *testing.T) {
	f := newFixture()
	current := withStatus(pendingBooking(), domain.BookingStatusConfirmed)

	f.bookings.On("GetByID", mock.Anything, "b1").Return(current, nil).Once()
	f.inventory.On("Release", mock.Anything, "p1", 2).Return(domain.Availability{}, nil).Once()
	f.bookings.On("TransitionStatus", mock.Anything, "b1", domain.BookingStatusConfirmed, domain.BookingStatusCancelled).
		Return(withStatus(current, domain.BookingStatusCancelled), nil).Once()
	f.inventory.On("InvalidateAvailability", mock.Anything, "p1").Return().Once()
	f.notifier.On("Emit", mock.Anything, mock.MatchedBy(func(in domain.NotificationInput) bool {
		return in.Kind == domain.NotificationBookingCancelled && in.Recipient == domain.Traveler("t1")
	})).Return(&domain.Notification{}, nil).Once()

	b, err := f.service.CancelBooking(context.Background(), domain.Agency("a1"), "b1")

	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCancelled, b.Status)
	f.assertExpectations(t)
}

func TestBookingService_Cancel_LostCASReservesAgain(t *testing.T) {
	f := newFixture()
	current := withStatus(pendingBooking(), domain.BookingStatusConfirmed)

	f.bookings.On("GetByID", mock.Anything, "b1").Return(current, nil).Once()
	f.inventory.On("Release", mock.Anything, "p1", 2).Return(domain.Availability{}, nil).Once()
	f.bookings.On("TransitionStatus", mock.Anything, "b1", domain.BookingStatusConfirmed, domain.BookingStatusCancelled).
		Return(nil, domain.ErrConflict).Once()
	f.inventory.On("Reserve", mock.Anything, "p1", 2).Return(domain.Availability{}, nil).Once()

	_, err := f.service.CancelBooking(context.Background(), domain.Traveler("t1"), "b1")

	assert.ErrorIs(t, err, domain.ErrConflict)
	f.assertExpectations(t)
	f.inventory.AssertNotCalled(t, "InvalidateAvailability", mock.Anything, mock.Anything)
}

func TestBookingService_Cancel_StoreFailureLeftToRollback(t *testing.T) {
	f := newFixture()
	current := withStatus(pendingBooking(), domain.BookingStatusConfirmed)

	f.bookings.On("GetByID", mock.Anything, "b1").Return(current, nil).Once()
	f.inventory.On("Release", mock.Anything, "p1", 2).Return(domain.Availability{}, nil).Once()
	f.bookings.On("TransitionStatus", mock.Anything, "b1", domain.BookingStatusConfirmed, domain.BookingStatusCancelled).
		Return(nil, domain.StorageError("transition booking status", errors.New("conn reset"))).Once()

	_, err := f.service.CancelBooking(context.Background(), domain.Traveler("t1"), "b1")

	assert.ErrorIs(t, err, domain.ErrStorageFailure)
	f.inventory.AssertNotCalled(t, "Reserve", mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_Cancel_OverflowAfterConcurrentCancelIsConflict(t *testing.T) {
	f := newFixture()
	current := withStatus(pendingBooking(), domain.BookingStatusConfirmed)

	f.bookings.On("GetByID", mock.Anything, "b1").Return(current, nil).Once()
	f.inventory.On("Release", mock.Anything, "p1", 2).Return(domain.Availability{}, domain.ErrCapacityOverflow).Once()
	f.bookings.On("GetByID", mock.Anything, "b1").Return(withStatus(current, domain.BookingStatusCancelled), nil).Once()

	_, err := f.service.CancelBooking(context.Background(), domain.Traveler("t1"), "b1")

	assert.ErrorIs(t, err, domain.ErrConflict)
	f.bookings.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestBookingService_Cancel_Refusals(t *testing.T) {
	ctx := context.Background()

	t.Run("Stranger", func(t *testing.T) {
		f := newFixture()
		f.bookings.On("GetByID", mock.Anything, "b1").Return(pendingBooking(), nil).Once()
		_, err := f.service.CancelBooking(ctx, domain.Traveler("t2"), "b1")
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("Already cancelled", func(t *testing.T) {
		f := newFixture()
		f.bookings.On("GetByID", mock.Anything, "b1").Return(withStatus(pendingBooking(), domain.BookingStatusCancelled), nil).Once()
		_, err := f.service.CancelBooking(ctx, domain.Traveler("t1"), "b1")
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})

	t.Run("Store failure aborts", func(t *testing.T) {
		f := newFixture()
		f.bookings.On("GetByID", mock.Anything, "b1").Return(withStatus(pendingBooking(), domain.BookingStatusConfirmed), nil).Once()
		f.inventory.On("Release", mock.Anything, "p1", 2).
			Return(domain.Availability{}, domain.StorageError("release slots", errors.New("broken pipe"))).Once()
		_, err := f.service.CancelBooking(ctx, domain.Traveler("t1"), "b1")
		assert.ErrorIs(t, err, domain.ErrStorageFailure)
		f.bookings.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestBookingService_GetBooking_OnlyParties(t *testing.T) {
	f := newFixture()
	f.bookings.On("GetByID", mock.Anything, "b1").Return(pendingBooking(), nil)

	b, err := f.service.GetBooking(context.Background(), domain.Agency("a1"), "b1")
	require.NoError(t, err)
	assert.Equal(t, "b1", b.ID)

	_, err = f.service.GetBooking(context.Background(), domain.Agency("a9"), "b1")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestBookingService_ListBookings_ScopedToCaller(t *testing.T) {
	f := newFixture()

	f.bookings.On("List", mock.Anything, domain.BookingFilter{TravelerID: "t1", PackageID: "p1"}).
		Return([]domain.Booking{*pendingBooking()}, nil).Once()
	f.bookings.On("List", mock.Anything, domain.BookingFilter{AgencyID: "a1", TravelerID: "t9"}).
		Return([]domain.Booking{}, nil).Once()

	list, err := f.service.ListBookings(context.Background(), domain.Traveler("t1"), domain.BookingFilter{TravelerID: "t9", PackageID: "p1"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = f.service.ListBookings(context.Background(), domain.Agency("a1"), domain.BookingFilter{AgencyID: "a9", TravelerID: "t9"})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = f.service.ListBookings(context.Background(), domain.Traveler("t1"), domain.BookingFilter{Status: "LOST"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	f.bookings.AssertExpectations(t)
}

func TestBookingService_WithdrawPackage_RefusedWithConfirmed(t *testing.T) {
	tx := &recordingTx{}
	f := newFixture()
	f.service.tx = tx

	f.inventory.On("GetPackage", mock.Anything, "p1").Return(activePackage(3), nil).Once()
	f.inventory.On("Deactivate", mock.Anything, "p1").Return(nil).Once()
	f.bookings.On("SumConfirmedSlots", mock.Anything, "p1").Return(2, nil).Once()

	err := f.service.WithdrawPackage(context.Background(), domain.Agency("a1"), "p1")

	assert.ErrorIs(t, err, domain.ErrPackageInUse)
	assert.Equal(t, 1, tx.calls)
	assert.ErrorIs(t, tx.err, domain.ErrPackageInUse)
	f.bookings.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.inventory.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)
}

func TestBookingService_WithdrawPackage_RemoveRefusedRollsBack(t *testing.T) {
	tx := &recordingTx{}
	f := newFixture()
	f.service.tx = tx
	pending := pendingBooking()

	f.inventory.On("GetPackage", mock.Anything, "p1").Return(activePackage(5), nil).Once()
	f.inventory.On("Deactivate", mock.Anything, "p1").Return(nil).Once()
	f.bookings.On("SumConfirmedSlots", mock.Anything, "p1").Return(0, nil).Once()
	f.bookings.On("List", mock.Anything, domain.BookingFilter{PackageID: "p1", Status: domain.BookingStatusPending}).
		Return([]domain.Booking{*pending}, nil).Once()
	f.bookings.On("TransitionStatus", mock.Anything, "b1", domain.BookingStatusPending, domain.BookingStatusCancelled).
		Return(withStatus(pending, domain.BookingStatusCancelled), nil).Once()
	f.inventory.On("Remove", mock.Anything, "p1").Return(domain.ErrPackageInUse).Once()

	err := f.service.WithdrawPackage(context.Background(), domain.Agency("a1"), "p1")

	assert.ErrorIs(t, err, domain.ErrPackageInUse)
	assert.ErrorIs(t, tx.err, domain.ErrPackageInUse)
	f.inventory.AssertNotCalled(t, "InvalidateAvailability", mock.Anything, mock.Anything)
	f.notifier.AssertNotCalled(t, "Emit", mock.Anything, mock.Anything)
}

func TestBookingService_WithdrawPackage_CancelsPending(t *testing.T) {
	f := newFixture()
	pending := pendingBooking()

	f.inventory.On("GetPackage", mock.Anything, "p1").Return(activePackage(5), nil).Once()
	f.inventory.On("Deactivate", mock.Anything, "p1").Return(nil).Once()
	f.bookings.On("SumConfirmedSlots", mock.Anything, "p1").Return(0, nil).Once()
	f.bookings.On("List", mock.Anything, domain.BookingFilter{PackageID: "p1", Status: domain.BookingStatusPending}).
		Return([]domain.Booking{*pending}, nil).Once()
	f.bookings.On("TransitionStatus", mock.Anything, "b1", domain.BookingStatusPending, domain.BookingStatusCancelled).
		Return(withStatus(pending, domain.BookingStatusCancelled), nil).Once()
	f.inventory.On("Remove", mock.Anything, "p1").Return(nil).Once()
	f.inventory.On("InvalidateAvailability", mock.Anything, "p1").Return().Once()
	f.notifier.On("Emit", mock.Anything, mock.MatchedBy(func(in domain.NotificationInput) bool {
		return in.Kind == domain.NotificationBookingCancelled && in.Recipient == domain.Traveler("t1")
	})).Return(&domain.Notification{}, nil).Once()

	err := f.service.WithdrawPackage(context.Background(), domain.Agency("a1"), "p1")

	require.NoError(t, err)
	f.assertExpectations(t)
}

func TestBookingService_WithdrawPackage_OtherAgency(t *testing.T) {
	f := newFixture()
	f.inventory.On("GetPackage", mock.Anything, "p1").Return(activePackage(5), nil).Once()

	err := f.service.WithdrawPackage(context.Background(), domain.Agency("a2"), "p1")

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

type slowInventory struct {
	MockInventory
}

func (s *slowInventory) GetPackage(ctx context.Context, id string) (*domain.Package, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestBookingService_OperationTimeoutIsStorageFailure(t *testing.T) {
	service := NewBookingService(&MockBookingRepository{}, &slowInventory{}, &MockNotifier{}, passthroughTx{},
		WithOperationTimeout(20*time.Millisecond))

	_, err := service.RequestBooking(context.Background(), domain.Traveler("t1"), RequestBookingInput{PackageID: "p1", Slots: 1})

	assert.ErrorIs(t, err, domain.ErrStorageFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"FitTrack/internal/conf"
	"FitTrack/internal/data"
	"FitTrack/internal/model"
	pkgerrors "FitTrack/pkg/errors"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// MockWorkoutRepo is a mock implementation of WorkoutRepo for testing.
type MockWorkoutRepo struct {
	mock.Mock
}

func (m *MockWorkoutRepo) CreateWorkout(ctx context.Context, w *data.Workout) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

func (m *MockWorkoutRepo) GetWorkout(ctx context.Context, id int64) (*data.Workout, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*data.Workout), args.Error(1)
}

func (m *MockWorkoutRepo) ListWorkouts(ctx context.Context, limit, offset int) ([]*data.Workout, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*data.Workout), args.Error(1)
}

func (m *MockWorkoutRepo) ListWorkoutsByUser(ctx context.Context, userID int64) ([]*data.Workout, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*data.Workout), args.Error(1)
}

func (m *MockWorkoutRepo) UpdateWorkout(ctx context.Context, w *data.Workout, previousUserID int64) error {
	args := m.Called(ctx, w, previousUserID)
	return args.Error(0)
}

func (m *MockWorkoutRepo) DeleteWorkout(ctx context.Context, w *data.Workout) error {
	args := m.Called(ctx, w)
	return args.Error(0)
}

// MockDependencyChecker is a mock implementation of DependencyChecker for testing.
type MockDependencyChecker struct {
	mock.Mock
}

func (m *MockDependencyChecker) CheckExists(ctx context.Context, dependency string, id int64) model.Outcome {
	args := m.Called(ctx, dependency, id)
	return args.Get(0).(model.Outcome)
}

func (m *MockDependencyChecker) Fetch(ctx context.Context, dependency string, id int64) model.Outcome {
	args := m.Called(ctx, dependency, id)
	return args.Get(0).(model.Outcome)
}

// MockPublisher is a mock implementation of data.EventPublisher for testing.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, ev model.Event) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

func newTestWorkoutUsecase() (*WorkoutUsecase, *MockWorkoutRepo, *MockDependencyChecker, *MockPublisher) {
	repo := new(MockWorkoutRepo)
	deps := new(MockDependencyChecker)
	pub := new(MockPublisher)
	uc := NewWorkoutUsecase(repo, deps, pub, &conf.Workouts{OwnerDependency: "users"}, log.DefaultLogger)
	return uc, repo, deps, pub
}

func validInput(userID int64) *WorkoutInput {
	d, _ := data.ParseDate("2025-12-30")
	calories := int32(250)
	notes := "Easy run"
	return &WorkoutInput{
		UserID:          userID,
		WorkoutType:     "Run",
		DurationMinutes: 30,
		Calories:        &calories,
		WorkoutDate:     d,
		Notes:           &notes,
	}
}

func storedWorkout(id, userID int64) *data.Workout {
	w := &data.Workout{ID: id}
	validInput(userID).applyTo(w)
	return w
}

func ok(dep string) model.Outcome {
	return model.Outcome{Kind: model.OutcomeSuccess, Dependency: dep, StatusCode: 200}
}

func notFoundErr() error {
	return fmt.Errorf("get workout: %w", pkgerrors.ClassifyDBError(gorm.ErrRecordNotFound))
}

func routingKey(key string) interface{} {
	return mock.MatchedBy(func(ev model.Event) bool { return ev.RoutingKey == key })
}

func TestCreateWorkout_Success(t *testing.T) {
	uc, repo, deps, pub := newTestWorkoutUsecase()
	ctx := context.Background()

	deps.On("CheckExists", ctx, "users", int64(1)).Return(ok("users"))
	repo.On("CreateWorkout", ctx, mock.AnythingOfType("*data.Workout")).
		Run(func(args mock.Arguments) { args.Get(1).(*data.Workout).ID = 42 }).
		Return(nil)
	pub.On("Publish", ctx, mock.MatchedBy(func(ev model.Event) bool {
		return ev.RoutingKey == model.EventWorkoutCreated &&
			ev.Payload["workout_id"] == int64(42) &&
			ev.Payload["workout_date"] == "2025-12-30"
	})).Return(nil)

	w, err := uc.CreateWorkout(ctx, validInput(1))
	require.NoError(t, err)
	assert.Equal(t, int64(42), w.ID)
	assert.Equal(t, "Run", w.WorkoutType)

	deps.AssertExpectations(t)
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestCreateWorkout_OwnerCheckFailures(t *testing.T) {
	tests := []struct {
		name       string
		outcome    model.Outcome
		wantCode   int
		wantReason string
		wantInMsg  string
	}{
		{
			name:       "user not found",
			outcome:    model.Outcome{Kind: model.OutcomeNotFound, Dependency: "users", StatusCode: 404},
			wantCode:   404,
			wantReason: ReasonEntityNotFound,
			wantInMsg:  "not found",
		},
		{
			name:       "transport failure",
			outcome:    model.Outcome{Kind: model.OutcomeUnavailable, Dependency: "users", Reason: model.ReasonTransport, Detail: "connection refused"},
			wantCode:   503,
			wantReason: ReasonDependencyUnavailable,
			wantInMsg:  "unavailable",
		},
		{
			name:       "downstream error",
			outcome:    model.Outcome{Kind: model.OutcomeUnavailable, Dependency: "users", Reason: model.ReasonDownstreamError, StatusCode: 500},
			wantCode:   503,
			wantReason: ReasonDependencyUnavailable,
			wantInMsg:  "unavailable",
		},
		{
			name:       "circuit open",
			outcome:    model.Outcome{Kind: model.OutcomeUnavailable, Dependency: "users", Reason: model.ReasonCircuitOpen},
			wantCode:   503,
			wantReason: ReasonCircuitOpen,
			wantInMsg:  "circuit open",
		},
		{
			name:       "client error",
			outcome:    model.Outcome{Kind: model.OutcomeError, Dependency: "users", Detail: "build request: bad url"},
			wantCode:   503,
			wantReason: ReasonDependencyUnavailable,
			wantInMsg:  "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc, repo, deps, pub := newTestWorkoutUsecase()
			ctx := context.Background()
			deps.On("CheckExists", ctx, "users", int64(999)).Return(tt.outcome)

			w, err := uc.CreateWorkout(ctx, validInput(999))
			assert.Nil(t, w)
			require.Error(t, err)

			se := kerrors.FromError(err)
			assert.Equal(t, tt.wantCode, int(se.Code))
			assert.Equal(t, tt.wantReason, se.Reason)
			assert.Contains(t, strings.ToLower(se.Message), tt.wantInMsg)
			assert.Equal(t, "users", se.Metadata["dependency"])

			repo.AssertNotCalled(t, "CreateWorkout", mock.Anything, mock.Anything)
			pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateWorkout_PublishFailureKeepsWrite(t *testing.T) {
	uc, repo, deps, pub := newTestWorkoutUsecase()
	ctx := context.Background()

	deps.On("CheckExists", ctx, "users", int64(1)).Return(ok("users"))
	repo.On("CreateWorkout", ctx, mock.Anything).Return(nil)
	pub.On("Publish", ctx, routingKey(model.EventWorkoutCreated)).
		Return(fmt.Errorf("%w: connection refused", data.ErrBrokerDeliveryFailed))

	w, err := uc.CreateWorkout(ctx, validInput(1))
	require.NoError(t, err)
	assert.NotNil(t, w)
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestCreateWorkout_Persistence(t *testing.T) {
	tests := []struct {
		name       string
		repoErr    error
		wantCode   int
		wantReason string
	}{
		{"duplicate", pkgerrors.ClassifyDBError(gorm.ErrDuplicatedKey), 409, ReasonWorkoutConflict},
		{"connection lost", pkgerrors.ClassifyDBError(errors.New("dial tcp 10.0.0.1:3306: connection refused")), 500, ReasonDatabaseError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc, repo, deps, pub := newTestWorkoutUsecase()
			ctx := context.Background()

			deps.On("CheckExists", ctx, "users", int64(1)).Return(ok("users"))
			repo.On("CreateWorkout", ctx, mock.Anything).Return(fmt.Errorf("create workout: %w", tt.repoErr))

			_, err := uc.CreateWorkout(ctx, validInput(1))
			se := kerrors.FromError(err)
			assert.Equal(t, tt.wantCode, int(se.Code))
			assert.Equal(t, tt.wantReason, se.Reason)
			assert.NotContains(t, strings.ToLower(se.Message), "unavailable")
			pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateWorkout_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *WorkoutInput)
	}{
		{"missing user", func(in *WorkoutInput) { in.UserID = 0 }},
		{"short type", func(in *WorkoutInput) { in.WorkoutType = "R" }},
		{"long type", func(in *WorkoutInput) { in.WorkoutType = strings.Repeat("x", 101) }},
		{"zero duration", func(in *WorkoutInput) { in.DurationMinutes = 0 }},
		{"too long", func(in *WorkoutInput) { in.DurationMinutes = 1001 }},
		{"negative calories", func(in *WorkoutInput) { c := int32(-1); in.Calories = &c }},
		{"missing date", func(in *WorkoutInput) { in.WorkoutDate = data.Date{} }},
		{"long notes", func(in *WorkoutInput) { n := strings.Repeat("n", 501); in.Notes = &n }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc, _, deps, _ := newTestWorkoutUsecase()
			in := validInput(1)
			tt.mutate(in)

			_, err := uc.CreateWorkout(context.Background(), in)
			assert.Equal(t, ReasonInvalidArgument, kerrors.Reason(err))
			assert.Equal(t, 400, kerrors.Code(err))
			deps.AssertNotCalled(t, "CheckExists", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestGetWorkout(t *testing.T) {
	uc, repo, _, _ := newTestWorkoutUsecase()
	ctx := context.Background()

	repo.On("GetWorkout", ctx, int64(5)).Return(storedWorkout(5, 1), nil)
	repo.On("GetWorkout", ctx, int64(404)).Return(nil, notFoundErr())

	w, err := uc.GetWorkout(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(5), w.ID)

	_, err = uc.GetWorkout(ctx, 404)
	assert.Equal(t, ReasonWorkoutNotFound, kerrors.Reason(err))
	assert.Equal(t, 404, kerrors.Code(err))
}

func TestListWorkouts(t *testing.T) {
	uc, repo, _, _ := newTestWorkoutUsecase()
	ctx := context.Background()

	repo.On("ListWorkouts", ctx, DefaultListLimit, 0).Return([]*data.Workout{storedWorkout(1, 1)}, nil)
	repo.On("ListWorkouts", ctx, 5, 10).Return([]*data.Workout{}, nil)

	got, err := uc.ListWorkouts(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = uc.ListWorkouts(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = uc.ListWorkouts(ctx, MaxListLimit+1, 0)
	assert.Equal(t, ReasonInvalidArgument, kerrors.Reason(err))
	_, err = uc.ListWorkouts(ctx, 10, -1)
	assert.Equal(t, ReasonInvalidArgument, kerrors.Reason(err))

	repo.AssertExpectations(t)
}

func TestReplaceWorkout_SameOwnerSkipsCheck(t *testing.T) {
	uc, repo, deps, pub := newTestWorkoutUsecase()
	ctx := context.Background()

	repo.On("GetWorkout", ctx, int64(5)).Return(storedWorkout(5, 1), nil)
	repo.On("UpdateWorkout", ctx, mock.AnythingOfType("*data.Workout"), int64(1)).Return(nil)
	pub.On("Publish", ctx, routingKey(model.EventWorkoutUpdated)).Return(nil)

	in := validInput(1)
	in.WorkoutType = "Swim"
	in.Notes = nil

	w, err := uc.ReplaceWorkout(ctx, 5, in)
	require.NoError(t, err)
	assert.Equal(t, "Swim", w.WorkoutType)
	assert.Nil(t, w.Notes)

	deps.AssertNotCalled(t, "CheckExists", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestReplaceWorkout_NewOwnerIsChecked(t *testing.T) {
	t.Run("new owner exists", func(t *testing.T) {
		uc, repo, deps, pub := newTestWorkoutUsecase()
		ctx := context.Background()

		repo.On("GetWorkout", ctx, int64(5)).Return(storedWorkout(5, 1), nil)
		deps.On("CheckExists", ctx, "users", int64(2)).Return(ok("users"))
		repo.On("UpdateWorkout", ctx, mock.MatchedBy(func(w *data.Workout) bool { return w.UserID == 2 }), int64(1)).Return(nil)
		pub.On("Publish", ctx, routingKey(model.EventWorkoutUpdated)).Return(nil)

		w, err := uc.ReplaceWorkout(ctx, 5, validInput(2))
		require.NoError(t, err)
		assert.Equal(t, int64(2), w.UserID)
		deps.AssertExpectations(t)
	})

	t.Run("new owner missing", func(t *testing.T) {
		uc, repo, deps, _ := newTestWorkoutUsecase()
		ctx := context.Background()

		repo.On("GetWorkout", ctx, int64(5)).Return(storedWorkout(5, 1), nil)
		deps.On("CheckExists", ctx, "users", int64(3)).
			Return(model.Outcome{Kind: model.OutcomeNotFound, Dependency: "users", StatusCode: 404})

		_, err := uc.ReplaceWorkout(ctx, 5, validInput(3))
		assert.Equal(t, ReasonEntityNotFound, kerrors.Reason(err))
		repo.AssertNotCalled(t, "UpdateWorkout", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestReplaceWorkout_Missing(t *testing.T) {
	uc, repo, deps, _ := newTestWorkoutUsecase()
	ctx := context.Background()

	repo.On("GetWorkout", ctx, int64(404)).Return(nil, notFoundErr())

	_, err := uc.ReplaceWorkout(ctx, 404, validInput(1))
	assert.Equal(t, ReasonWorkoutNotFound, kerrors.Reason(err))
	deps.AssertNotCalled(t, "CheckExists", mock.Anything, mock.Anything, mock.Anything)
}

func TestPatchWorkout(t *testing.T) {
	uc, repo, deps, pub := newTestWorkoutUsecase()
	ctx := context.Background()

	repo.On("GetWorkout", ctx, int64(5)).Return(storedWorkout(5, 1), nil)
	repo.On("UpdateWorkout", ctx, mock.AnythingOfType("*data.Workout"), int64(1)).Return(nil)
	pub.On("Publish", ctx, routingKey(model.EventWorkoutUpdated)).Return(nil)

	minutes := int32(45)
	w, err := uc.PatchWorkout(ctx, 5, &WorkoutPatch{DurationMinutes: &minutes})
	require.NoError(t, err)

	assert.Equal(t, int32(45), w.DurationMinutes)
	assert.Equal(t, "Run", w.WorkoutType, "unset fields are kept")
	require.NotNil(t, w.Notes)
	assert.Equal(t, "Easy run", *w.Notes)
	deps.AssertNotCalled(t, "CheckExists", mock.Anything, mock.Anything, mock.Anything)
}

func TestPatchWorkout_InvalidMergedValue(t *testing.T) {
	uc, repo, _, _ := newTestWorkoutUsecase()
	ctx := context.Background()

	repo.On("GetWorkout", ctx, int64(5)).Return(storedWorkout(5, 1), nil)

	minutes := int32(0)
	_, err := uc.PatchWorkout(ctx, 5, &WorkoutPatch{DurationMinutes: &minutes})
	assert.Equal(t, ReasonInvalidArgument, kerrors.Reason(err))
	repo.AssertNotCalled(t, "UpdateWorkout", mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteWorkout(t *testing.T) {
	uc, repo, _, pub := newTestWorkoutUsecase()
	ctx := context.Background()

	stored := storedWorkout(5, 1)
	repo.On("GetWorkout", ctx, int64(5)).Return(stored, nil)
	repo.On("DeleteWorkout", ctx, stored).Return(nil)
	pub.On("Publish", ctx, mock.MatchedBy(func(ev model.Event) bool {
		return ev.RoutingKey == model.EventWorkoutDeleted && ev.Payload["user_id"] == int64(1)
	})).Return(nil)

	require.NoError(t, uc.DeleteWorkout(ctx, 5))
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestDeleteWorkout_Missing(t *testing.T) {
	uc, repo, _, pub := newTestWorkoutUsecase()
	ctx := context.Background()

	repo.On("GetWorkout", ctx, int64(404)).Return(nil, notFoundErr())

	err := uc.DeleteWorkout(ctx, 404)
	assert.Equal(t, 404, kerrors.Code(err))
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

package service

import (
	"context"
	"strconv"

	"FitTrack/internal/biz"
	"FitTrack/internal/data"
	"FitTrack/pkg/breaker"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
)

// Operation names reported to middleware.
const (
	OperationHealth        = "/fittrack.workouts/Health"
	OperationWelcome       = "/fittrack.workouts/Welcome"
	OperationCreateWorkout = "/fittrack.workouts/CreateWorkout"
	OperationListWorkouts  = "/fittrack.workouts/ListWorkouts"
	OperationGetWorkout    = "/fittrack.workouts/GetWorkout"
	OperationReplace       = "/fittrack.workouts/ReplaceWorkout"
	OperationPatch         = "/fittrack.workouts/PatchWorkout"
	OperationDelete        = "/fittrack.workouts/DeleteWorkout"
	OperationSummary       = "/fittrack.workouts/GetSummary"
	OperationDependencies  = "/fittrack.workouts/ListDependencies"
)

const welcomeMessage = "Welcome to the Fitness Tracker Workouts Service"

// WorkoutService exposes the workout usecases over HTTP.
type WorkoutService struct {
	workouts *biz.WorkoutUsecase
	summary  *biz.SummaryUsecase
	breakers *breaker.Registry
	logger   *log.Helper
}

// NewWorkoutService creates a WorkoutService.
func NewWorkoutService(workouts *biz.WorkoutUsecase, summary *biz.SummaryUsecase, breakers *breaker.Registry, logger log.Logger) *WorkoutService {
	return &WorkoutService{
		workouts: workouts,
		summary:  summary,
		breakers: breakers,
		logger:   log.NewHelper(logger),
	}
}

// workoutBody is the JSON body of POST, PUT and PATCH. Pointers tell absent
// fields apart from zero values.
type workoutBody struct {
	UserID          *int64     `json:"user_id"`
	WorkoutType     *string    `json:"workout_type"`
	DurationMinutes *int32     `json:"duration_minutes"`
	Calories        *int32     `json:"calories"`
	WorkoutDate     *data.Date `json:"workout_date"`
	Notes           *string    `json:"notes"`
}

func (b *workoutBody) input() (*biz.WorkoutInput, error) {
	switch {
	case b.UserID == nil:
		return nil, missingField("user_id")
	case b.WorkoutType == nil:
		return nil, missingField("workout_type")
	case b.DurationMinutes == nil:
		return nil, missingField("duration_minutes")
	case b.WorkoutDate == nil:
		return nil, missingField("workout_date")
	}
	return &biz.WorkoutInput{
		UserID:          *b.UserID,
		WorkoutType:     *b.WorkoutType,
		DurationMinutes: *b.DurationMinutes,
		Calories:        b.Calories,
		WorkoutDate:     *b.WorkoutDate,
		Notes:           b.Notes,
	}, nil
}

func (b *workoutBody) patch() *biz.WorkoutPatch {
	return &biz.WorkoutPatch{
		WorkoutType:     b.WorkoutType,
		DurationMinutes: b.DurationMinutes,
		Calories:        b.Calories,
		WorkoutDate:     b.WorkoutDate,
		Notes:           b.Notes,
	}
}

type workoutIDRequest struct {
	ID   int64
	Body workoutBody
}

type listRequest struct {
	Limit  int
	Offset int
}

// RegisterHTTP mounts every route on srv.
func (s *WorkoutService) RegisterHTTP(srv *http.Server) {
	r := srv.Route("/")
	r.GET("/health", s.health)
	r.GET("/", s.welcome)
	r.POST("/workouts", s.createWorkout)
	r.GET("/workouts", s.listWorkouts)
	r.GET("/workouts/{id}", s.getWorkout)
	r.PUT("/workouts/{id}", s.replaceWorkout)
	r.PATCH("/workouts/{id}", s.patchWorkout)
	r.DELETE("/workouts/{id}", s.deleteWorkout)
	r.GET("/summary/{id}", s.getSummary)
	r.GET("/dependencies", s.listDependencies)
}

// handle runs fn behind the server middleware chain and encodes its result.
func handle(ctx http.Context, operation string, code int, req interface{}, fn func(context.Context, interface{}) (interface{}, error)) error {
	http.SetOperation(ctx, operation)
	out, err := ctx.Middleware(fn)(ctx, req)
	if err != nil {
		return err
	}
	if code == 204 {
		ctx.Response().WriteHeader(code)
		return nil
	}
	return ctx.Result(code, out)
}

func (s *WorkoutService) health(ctx http.Context) error {
	return handle(ctx, OperationHealth, 200, nil, func(context.Context, interface{}) (interface{}, error) {
		return map[string]string{"status": "ok"}, nil
	})
}

func (s *WorkoutService) welcome(ctx http.Context) error {
	return handle(ctx, OperationWelcome, 200, nil, func(context.Context, interface{}) (interface{}, error) {
		return map[string]string{"message": welcomeMessage}, nil
	})
}

func (s *WorkoutService) createWorkout(ctx http.Context) error {
	var body workoutBody
	if err := ctx.Bind(&body); err != nil {
		return err
	}
	return handle(ctx, OperationCreateWorkout, 201, &body, func(ctx context.Context, req interface{}) (interface{}, error) {
		in, err := req.(*workoutBody).input()
		if err != nil {
			return nil, err
		}
		s.logger.Debugw("msg", "CreateWorkout called", "user_id", in.UserID, "workout_type", in.WorkoutType)
		return s.workouts.CreateWorkout(ctx, in)
	})
}

func (s *WorkoutService) listWorkouts(ctx http.Context) error {
	var req listRequest
	var err error
	if req.Limit, err = queryInt(ctx, "limit"); err != nil {
		return err
	}
	if req.Offset, err = queryInt(ctx, "offset"); err != nil {
		return err
	}
	return handle(ctx, OperationListWorkouts, 200, &req, func(ctx context.Context, r interface{}) (interface{}, error) {
		lr := r.(*listRequest)
		return s.workouts.ListWorkouts(ctx, lr.Limit, lr.Offset)
	})
}

func (s *WorkoutService) getWorkout(ctx http.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	return handle(ctx, OperationGetWorkout, 200, &workoutIDRequest{ID: id}, func(ctx context.Context, r interface{}) (interface{}, error) {
		return s.workouts.GetWorkout(ctx, r.(*workoutIDRequest).ID)
	})
}

func (s *WorkoutService) replaceWorkout(ctx http.Context) error {
	req, err := bindIDRequest(ctx)
	if err != nil {
		return err
	}
	return handle(ctx, OperationReplace, 200, req, func(ctx context.Context, r interface{}) (interface{}, error) {
		wr := r.(*workoutIDRequest)
		in, err := wr.Body.input()
		if err != nil {
			return nil, err
		}
		return s.workouts.ReplaceWorkout(ctx, wr.ID, in)
	})
}

func (s *WorkoutService) patchWorkout(ctx http.Context) error {
	req, err := bindIDRequest(ctx)
	if err != nil {
		return err
	}
	return handle(ctx, OperationPatch, 200, req, func(ctx context.Context, r interface{}) (interface{}, error) {
		wr := r.(*workoutIDRequest)
		return s.workouts.PatchWorkout(ctx, wr.ID, wr.Body.patch())
	})
}

func (s *WorkoutService) deleteWorkout(ctx http.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	return handle(ctx, OperationDelete, 204, &workoutIDRequest{ID: id}, func(ctx context.Context, r interface{}) (interface{}, error) {
		return nil, s.workouts.DeleteWorkout(ctx, r.(*workoutIDRequest).ID)
	})
}

func (s *WorkoutService) getSummary(ctx http.Context) error {
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	return handle(ctx, OperationSummary, 200, &workoutIDRequest{ID: id}, func(ctx context.Context, r interface{}) (interface{}, error) {
		id := r.(*workoutIDRequest).ID
		s.logger.Debugw("msg", "GetSummary called", "user_id", id)
		return s.summary.Aggregate(ctx, id)
	})
}

func (s *WorkoutService) listDependencies(ctx http.Context) error {
	return handle(ctx, OperationDependencies, 200, nil, func(context.Context, interface{}) (interface{}, error) {
		return map[string]interface{}{"dependencies": s.breakers.Snapshots()}, nil
	})
}

func bindIDRequest(ctx http.Context) (*workoutIDRequest, error) {
	id, err := pathID(ctx)
	if err != nil {
		return nil, err
	}
	req := &workoutIDRequest{ID: id}
	if err := ctx.Bind(&req.Body); err != nil {
		return nil, err
	}
	return req, nil
}

func pathID(ctx http.Context) (int64, error) {
	raw := ctx.Vars().Get("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.BadRequest(biz.ReasonInvalidArgument, "id must be a positive integer, got "+strconv.Quote(raw))
	}
	return id, nil
}

func queryInt(ctx http.Context, name string) (int, error) {
	raw := ctx.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.BadRequest(biz.ReasonInvalidArgument, name+" must be an integer")
	}
	return v, nil
}

func missingField(name string) error {
	return errors.BadRequest(biz.ReasonInvalidArgument, name+" is required")
}

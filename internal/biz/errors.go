package biz

import (
	"fmt"
	"strconv"

	"FitTrack/internal/model"
	pkgerrors "FitTrack/pkg/errors"

	"github.com/go-kratos/kratos/v2/errors"
)

// Error reasons carried in the Kratos error body.
const (
	ReasonEntityNotFound        = "ENTITY_NOT_FOUND"
	ReasonDependencyUnavailable = "DEPENDENCY_UNAVAILABLE"
	ReasonCircuitOpen           = "CIRCUIT_OPEN"
	ReasonBadGateway            = "BAD_GATEWAY"
	ReasonWorkoutNotFound       = "WORKOUT_NOT_FOUND"
	ReasonWorkoutConflict       = "WORKOUT_CONFLICT"
	ReasonDatabaseError         = "DATABASE_ERROR"
	ReasonInvalidArgument       = "INVALID_ARGUMENT"
)

const statusBadGateway = 502

func outcomeMetadata(o model.Outcome, id int64) map[string]string {
	md := map[string]string{
		"dependency": o.Dependency,
		"id":         strconv.FormatInt(id, 10),
	}
	if o.Reason != "" {
		md["cause"] = o.Reason
	}
	if o.StatusCode != 0 {
		md["status_code"] = strconv.Itoa(o.StatusCode)
	}
	return md
}

// writeDependencyError maps a failed owner check to the error a write returns.
func writeDependencyError(o model.Outcome, id int64) error {
	md := outcomeMetadata(o, id)

	switch {
	case o.Kind == model.OutcomeNotFound:
		return errors.NotFound(ReasonEntityNotFound,
			fmt.Sprintf("%s entity %d not found", o.Dependency, id)).WithMetadata(md)
	case o.Kind == model.OutcomeUnavailable && o.Reason == model.ReasonCircuitOpen:
		return errors.ServiceUnavailable(ReasonCircuitOpen,
			fmt.Sprintf("%s service unavailable: circuit open", o.Dependency)).WithMetadata(md)
	default:
		msg := fmt.Sprintf("%s service unavailable", o.Dependency)
		if o.Detail != "" {
			msg += ": " + o.Detail
		}
		return errors.ServiceUnavailable(ReasonDependencyUnavailable, msg).WithMetadata(md)
	}
}

// aggregationDependencyError maps a failed mandatory fetch to the error the
// summary returns. Unlike writes, a dependency failure is a gateway error.
func aggregationDependencyError(o model.Outcome, id int64) error {
	md := outcomeMetadata(o, id)

	switch {
	case o.Kind == model.OutcomeNotFound:
		return errors.NotFound(ReasonEntityNotFound,
			fmt.Sprintf("%s entity %d not found", o.Dependency, id)).WithMetadata(md)
	case o.Kind == model.OutcomeUnavailable && o.Reason == model.ReasonCircuitOpen:
		return errors.New(statusBadGateway, ReasonCircuitOpen,
			fmt.Sprintf("%s service unavailable: circuit open", o.Dependency)).WithMetadata(md)
	default:
		msg := fmt.Sprintf("%s service unavailable", o.Dependency)
		if o.Detail != "" {
			msg += ": " + o.Detail
		}
		return errors.New(statusBadGateway, ReasonBadGateway, msg).WithMetadata(md)
	}
}

// persistenceError maps a classified repository error to a transport error.
func persistenceError(op string, id int64, err error) error {
	switch {
	case pkgerrors.IsNotFoundError(err):
		return errors.NotFound(ReasonWorkoutNotFound, fmt.Sprintf("workout %d not found", id))
	case pkgerrors.IsIntegrityError(err):
		return errors.Conflict(ReasonWorkoutConflict, fmt.Sprintf("failed to %s workout: conflicting data", op)).
			WithCause(err)
	default:
		return errors.InternalServer(ReasonDatabaseError, fmt.Sprintf("failed to %s workout", op)).
			WithCause(err)
	}
}

func invalidArgument(format string, args ...interface{}) error {
	return errors.BadRequest(ReasonInvalidArgument, fmt.Sprintf(format, args...))
}

package biz

import (
	"context"

	"FitTrack/internal/conf"
	"FitTrack/internal/data"
	"FitTrack/internal/model"
	pkglog "FitTrack/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

// Summary is the composed view of one user.
type Summary struct {
	// Primary is the mandatory dependency's document.
	Primary any `json:"primary"`
	// Local is the user's workouts.
	Local []*data.Workout `json:"local"`
	// Optional holds one document per optional dependency that answered.
	Optional map[string]any `json:"optional"`
}

// SummaryUsecase composes a mandatory dependency, the local workouts and any
// number of optional dependencies into one Summary.
type SummaryUsecase struct {
	deps      DependencyChecker
	repo      WorkoutRepo
	mandatory string
	optional  []string
	logger    *pkglog.LogHelper
}

// NewSummaryUsecase creates a summary usecase.
func NewSummaryUsecase(deps DependencyChecker, repo WorkoutRepo, c *conf.Summary, logger log.Logger) *SummaryUsecase {
	return &SummaryUsecase{
		deps:      deps,
		repo:      repo,
		mandatory: c.Mandatory,
		optional:  append([]string(nil), c.Optional...),
		logger:    pkglog.NewLogHelper(logger),
	}
}

// Aggregate issues all calls concurrently. A mandatory failure cancels the
// remaining calls and is the error returned; optional failures only drop
// their key from the result.
func (uc *SummaryUsecase) Aggregate(ctx context.Context, userID int64) (*Summary, error) {
	if userID <= 0 {
		return nil, invalidArgument("user id must be a positive integer")
	}

	g, gctx := errgroup.WithContext(ctx)

	var primary model.Outcome
	g.Go(func() error {
		primary = uc.deps.Fetch(gctx, uc.mandatory, userID)
		if !primary.OK() {
			return aggregationDependencyError(primary, userID)
		}
		return nil
	})

	var (
		local    []*data.Workout
		localErr error
	)
	g.Go(func() error {
		// Reported after Wait so that a mandatory failure always wins.
		local, localErr = uc.repo.ListWorkoutsByUser(gctx, userID)
		return nil
	})

	optional := make([]model.Outcome, len(uc.optional))
	for i, name := range uc.optional {
		i, name := i, name
		g.Go(func() error {
			optional[i] = uc.deps.Fetch(gctx, name, userID)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		uc.logger.Warnw("msg", "summary aborted by mandatory dependency",
			"type", "dependency",
			"dependency", uc.mandatory,
			"user_id", userID,
			"outcome", primary.Kind.String(),
			"reason", primary.Reason)
		return nil, err
	}
	if localErr != nil {
		return nil, persistenceError("list", userID, localErr)
	}

	s := &Summary{
		Primary:  primary.Body,
		Local:    local,
		Optional: make(map[string]any, len(optional)),
	}
	for i, o := range optional {
		name := uc.optional[i]
		if !o.OK() {
			uc.logger.DependencyFailure("optional dependency omitted from summary",
				"dependency", name,
				"user_id", userID,
				"outcome", o.String())
			continue
		}
		s.Optional[name] = o.Body
	}

	uc.logger.Success("summary composed",
		"user_id", userID,
		"workouts", len(local),
		"optional", len(s.Optional))
	return s, nil
}

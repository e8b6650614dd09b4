package repos

import (
	"gorm.io/gorm"

	"github.com/khchop/kickscore/internal/data/repos/analyses"
	"github.com/khchop/kickscore/internal/data/repos/circuits"
	"github.com/khchop/kickscore/internal/data/repos/jobs"
	"github.com/khchop/kickscore/internal/data/repos/matches"
	"github.com/khchop/kickscore/internal/data/repos/models"
	"github.com/khchop/kickscore/internal/data/repos/predictions"
	"github.com/khchop/kickscore/internal/platform/logger"
)

// Bundle wires every repository once at startup and is passed explicitly to
// the components that need storage access.
type Bundle struct {
	Matches     matches.MatchRepo
	Models      models.ModelRepo
	Predictions predictions.PredictionRepo
	Analyses    analyses.AnalysisRepo
	Jobs        jobs.JobRunRepo
	Circuits    circuits.CircuitStateRepo
}

func New(db *gorm.DB, baseLog *logger.Logger) *Bundle {
	return &Bundle{
		Matches:     matches.NewMatchRepo(db, baseLog),
		Models:      models.NewModelRepo(db, baseLog),
		Predictions: predictions.NewPredictionRepo(db, baseLog),
		Analyses:    analyses.NewAnalysisRepo(db, baseLog),
		Jobs:        jobs.NewJobRunRepo(db, baseLog),
		Circuits:    circuits.NewCircuitStateRepo(db, baseLog),
	}
}

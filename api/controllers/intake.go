package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marcvilanova/raceday-backend/api/responses"
	"github.com/marcvilanova/raceday-backend/internal/intake"
	"github.com/marcvilanova/raceday-backend/pkg/db/models"
	pkgerrors "github.com/marcvilanova/raceday-backend/pkg/errors"
	"github.com/marcvilanova/raceday-backend/pkg/logger"
)

type intakeSyncer interface {
	SyncFromSource(ctx context.Context, sourceID uuid.UUID) (*intake.SyncResult, error)
}

type raceSourceLister interface {
	ListSourcesByRace(ctx context.Context, raceID uuid.UUID) ([]models.SheetSource, error)
}

type sourceSyncResult struct {
	SourceID string             `json:"source_id"`
	Result   *intake.SyncResult `json:"result,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// TriggerRaceSync runs an on-demand intake pass over every enabled source of
// the race. Per-source failures are reported inline rather than failing the
// whole request.
func TriggerRaceSync(engine intakeSyncer, sources raceSourceLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if engine == nil || sources == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "intake engine unavailable"))
			return
		}

		raceID, err := uuid.Parse(chi.URLParam(r, "raceID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid race id"))
			return
		}

		raceSources, err := sources.ListSourcesByRace(r.Context(), raceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "listing race sources"))
			return
		}
		if len(raceSources) == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no enabled sources for this race"))
			return
		}

		results := make([]sourceSyncResult, 0, len(raceSources))
		for _, source := range raceSources {
			entry := sourceSyncResult{SourceID: source.ID.String()}
			result, err := engine.SyncFromSource(r.Context(), source.ID)
			if err != nil {
				entry.Error = err.Error()
			} else {
				entry.Result = result
			}
			results = append(results, entry)
		}

		responses.WriteSuccess(w, map[string]any{"race_id": raceID.String(), "sources": results})
	}
}

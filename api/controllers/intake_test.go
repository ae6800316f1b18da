package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/marcvilanova/raceday-backend/internal/intake"
	"github.com/marcvilanova/raceday-backend/pkg/db/models"
)

type testIntakeSyncer struct {
	syncFn func(ctx context.Context, sourceID uuid.UUID) (*intake.SyncResult, error)
}

func (s *testIntakeSyncer) SyncFromSource(ctx context.Context, sourceID uuid.UUID) (*intake.SyncResult, error) {
	if s.syncFn != nil {
		return s.syncFn(ctx, sourceID)
	}
	return &intake.SyncResult{}, nil
}

type testSourceLister struct {
	sources []models.SheetSource
	err     error
}

func (l *testSourceLister) ListSourcesByRace(context.Context, uuid.UUID) ([]models.SheetSource, error) {
	return l.sources, l.err
}

func TestTriggerRaceSync(t *testing.T) {
	raceID := uuid.New()
	healthy := models.SheetSource{ID: uuid.New()}
	broken := models.SheetSource{ID: uuid.New()}
	syncer := &testIntakeSyncer{
		syncFn: func(_ context.Context, sourceID uuid.UUID) (*intake.SyncResult, error) {
			if sourceID == broken.ID {
				return nil, errors.New("sheet unreachable")
			}
			return &intake.SyncResult{Added: 2, Skipped: 1}, nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/races/"+raceID.String()+"/sync", nil)
	req = withURLParam(req, "raceID", raceID.String())
	resp := httptest.NewRecorder()

	TriggerRaceSync(syncer, &testSourceLister{sources: []models.SheetSource{healthy, broken}}, discardLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data struct {
			Sources []sourceSyncResult `json:"sources"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(envelope.Data.Sources) != 2 {
		t.Fatalf("expected 2 source results, got %d", len(envelope.Data.Sources))
	}
	if envelope.Data.Sources[0].Result == nil || envelope.Data.Sources[0].Result.Added != 2 {
		t.Fatalf("unexpected first result %+v", envelope.Data.Sources[0])
	}
	if envelope.Data.Sources[1].Error == "" {
		t.Fatal("expected second source to report an error")
	}
}

func TestTriggerRaceSyncNoSources(t *testing.T) {
	raceID := uuid.NewString()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/races/"+raceID+"/sync", nil)
	req = withURLParam(req, "raceID", raceID)
	resp := httptest.NewRecorder()

	TriggerRaceSync(&testIntakeSyncer{}, &testSourceLister{}, discardLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

func TestTriggerRaceSyncInvalidRaceID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/races/not-a-uuid/sync", nil)
	req = withURLParam(req, "raceID", "not-a-uuid")
	resp := httptest.NewRecorder()

	TriggerRaceSync(&testIntakeSyncer{}, &testSourceLister{}, discardLogger())(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}

package interactive_map

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	"github.com/yungbote/qalam-backend/internal/data/repos/testutil"
	types "github.com/yungbote/qalam-backend/internal/domain"
	"github.com/yungbote/qalam-backend/internal/jobs/pipeline/pipelinetest"
	"github.com/yungbote/qalam-backend/internal/narrative/generators"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
	"github.com/yungbote/qalam-backend/internal/platform/geocoder"
)

type fakeGeocoder map[string]*geocoder.LatLng

func (f fakeGeocoder) Locate(_ context.Context, name string) (*geocoder.LatLng, error) {
	return f[name], nil
}

type memBlobs struct {
	mu   sync.Mutex
	keys []string
}

func (m *memBlobs) Put(_ context.Context, projectID uuid.UUID, key string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return "projects/" + projectID.String() + "/" + key, nil
}

func TestInteractiveMapGeocodesAndStores(t *testing.T) {
	h := pipelinetest.New(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	project := testutil.SeedProject(t, ctx, h.DB, uuid.New())
	gen, err := h.Repos.UKB.Swap(dbc, project.ID, &repos.UKBContent{})
	if err != nil {
		t.Fatalf("swap: %v", err)
	}
	cairo := testutil.SeedEntity(t, ctx, h.DB, project.ID, gen, types.EntityPlace, "Cairo")
	testutil.SeedEntity(t, ctx, h.DB, project.ID, gen, types.EntityPlace, "Atlantis")
	testutil.SeedEntity(t, ctx, h.DB, project.ID, gen, types.EntityCharacter, "Layla")

	geo := fakeGeocoder{"Cairo": {Lat: 30.04, Lng: 31.24}}
	blobs := &memBlobs{}
	p := New(h.Log, h.Repos.Entities, generators.NewMapBuilder(h.Log, geo), blobs, h.Repos.Artifacts)

	row, _ := h.Run(t, p, &project.ID, nil)
	if row.Status != types.TaskSucceeded {
		t.Fatalf("status=%q", row.Status)
	}
	var res struct {
		Features  int `json:"features"`
		Unlocated int `json:"unlocated"`
	}
	pipelinetest.Result(t, row, &res)
	if res.Features != 1 || res.Unlocated != 1 {
		t.Fatalf("unexpected result %+v", res)
	}

	stored, err := h.Repos.Entities.GetByID(dbc, cairo.ID)
	if err != nil || !stored.ValidCoordinates() {
		t.Fatalf("coordinates not stored: %+v %v", stored, err)
	}
	if len(blobs.keys) != 1 || !strings.HasPrefix(blobs.keys[0], "maps/"+row.ID.String()) {
		t.Fatalf("preview keys %v", blobs.keys)
	}
	arts, _ := h.Repos.Artifacts.ListByProject(dbc, project.ID, types.ArtifactInteractiveMap)
	if len(arts) != 1 || !strings.Contains(string(arts[0].Payload), "previewRef") {
		t.Fatalf("map artifact missing preview: %+v", arts)
	}
}

func TestInteractiveMapWithoutPlaces(t *testing.T) {
	h := pipelinetest.New(t)
	project := testutil.SeedProject(t, context.Background(), h.DB, uuid.New())
	p := New(h.Log, h.Repos.Entities, generators.NewMapBuilder(h.Log, nil), nil, h.Repos.Artifacts)

	row, _ := h.Run(t, p, &project.ID, nil)
	if row.Status != types.TaskSucceeded {
		t.Fatalf("status=%q", row.Status)
	}
}

package interactive_map

import (
	"fmt"

	types "github.com/yungbote/qalam-backend/internal/domain"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	jobrt "github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/narrative/generators"
	"github.com/yungbote/qalam-backend/internal/pkg/dbctx"
)

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Task == nil {
		return nil
	}
	projectID, ok := pipelines.ProjectArg(jc)
	if !ok {
		return nil
	}
	dbc := dbctx.Context{Ctx: jc.Ctx}

	if err := jc.Report("context", 10, "Loading places"); err != nil {
		return err
	}
	places, err := p.entities.ListCurrent(dbc, projectID, types.EntityPlace)
	if err != nil {
		jc.Fail("context", fmt.Errorf("list places: %w", err))
		return nil
	}

	if err := jc.Report("geocode", 20, fmt.Sprintf("Locating %d places", len(places))); err != nil {
		return err
	}
	m, located, err := p.builder.Build(jc.Ctx, places)
	if err != nil {
		jc.Fail("geocode", err)
		return nil
	}
	// Coordinates found now are written back so the next build and the live novel reuse them.
	for _, l := range located {
		if err := p.entities.SetCoordinates(dbc, l.EntityID, l.Point.Lat, l.Point.Lng); err != nil {
			p.log.Warn("failed to store coordinates", "entity_id", l.EntityID.String(), "error", err)
		}
	}

	if err := jc.Report("preview", 70, "Rendering preview"); err != nil {
		return err
	}
	if p.blobs != nil {
		png, rerr := generators.RenderPreview(m)
		if rerr != nil {
			p.log.Warn("map preview render failed", "project_id", projectID.String(), "error", rerr)
		} else {
			key := fmt.Sprintf("maps/%s-%d.png", jc.Task.ID, jc.Task.Attempts)
			if path, perr := p.blobs.Put(jc.Ctx, projectID, key, png); perr != nil {
				p.log.Warn("map preview upload failed", "project_id", projectID.String(), "error", perr)
			} else {
				m.PreviewRef = path
			}
		}
	}

	if err := jc.Report("persist", 90, "Saving map"); err != nil {
		return err
	}
	art, err := pipelines.SaveArtifact(jc, p.artifacts, projectID, types.ArtifactInteractiveMap, m, "", "")
	if err != nil {
		jc.Fail("persist", err)
		return nil
	}
	p.log.Info("interactive map built",
		"project_id", projectID.String(),
		"features", len(m.Features),
		"unlocated", len(m.Unlocated),
		"geocoded", len(located),
	)

	jc.Succeed("done", map[string]any{
		"artifact_id": art.ID.String(),
		"features":    len(m.Features),
		"unlocated":   len(m.Unlocated),
		"center":      m.Center,
	})
	return nil
}

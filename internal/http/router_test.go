package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/qalam-backend/internal/data/repos"
	"github.com/yungbote/qalam-backend/internal/data/repos/testutil"
	httpH "github.com/yungbote/qalam-backend/internal/http/handlers"
	httpMW "github.com/yungbote/qalam-backend/internal/http/middleware"
	pipelines "github.com/yungbote/qalam-backend/internal/jobs/pipeline"
	"github.com/yungbote/qalam-backend/internal/jobs/progress"
	"github.com/yungbote/qalam-backend/internal/jobs/runtime"
	"github.com/yungbote/qalam-backend/internal/services"
)

const routerSecret = "router-test-secret"

type apiClient struct {
	t      *testing.T
	engine *gin.Engine
}

func newAPI(t *testing.T) *apiClient {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := testutil.DB(t)
	log := testutil.Logger(t)
	set := repos.NewSet(db, log)

	reg := runtime.NewRegistry()
	for _, kind := range []string{pipelines.KindAnalyzeSources, pipelines.KindPlanSeries} {
		reg.MustRegister(runtime.HandlerFunc{Kind: kind, Fn: func(*runtime.Context) error { return nil }})
	}
	tasks := services.NewTaskService(db, log, set.Tasks, progress.NewMemoryStore(time.Hour), reg, nil)
	narrative := services.NewNarrativeService(db, log, tasks, set)
	projects := services.NewProjectService(db, log, set.Projects)
	writing := services.NewWritingService(db, log, set.Projects, set.Sessions, set.Edits)

	engine := NewRouter(RouterConfig{
		Log:              log,
		AuthMiddleware:   httpMW.NewGatewayAuth(log, routerSecret),
		HealthHandler:    httpH.NewHealthHandler(),
		ProjectHandler:   httpH.NewProjectHandler(log, projects),
		NarrativeHandler: httpH.NewNarrativeHandler(log, narrative),
		TaskHandler:      httpH.NewTaskHandler(log, narrative),
		WritingHandler:   httpH.NewWritingHandler(log, writing),
	})
	return &apiClient{t: t, engine: engine}
}

func (a *apiClient) token(user uuid.UUID) string {
	a.t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	s, err := tok.SignedString([]byte(routerSecret))
	if err != nil {
		a.t.Fatalf("sign: %v", err)
	}
	return s
}

func (a *apiClient) do(user uuid.UUID, method, path string, body any, out any) int {
	a.t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd).WithContext(context.Background())
	req.Header.Set("Content-Type", "application/json")
	if user != uuid.Nil {
		req.Header.Set("Authorization", "Bearer "+a.token(user))
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	if out != nil && w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), out); err != nil {
			a.t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
		}
	}
	return w.Code
}

func TestRouterHealthIsPublic(t *testing.T) {
	api := newAPI(t)
	if code := api.do(uuid.Nil, http.MethodGet, "/healthcheck", nil, nil); code != http.StatusOK {
		t.Fatalf("healthcheck=%d", code)
	}
	if code := api.do(uuid.Nil, http.MethodGet, "/api/projects", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("anonymous list=%d", code)
	}
}

func TestRouterProjectAndTaskFlow(t *testing.T) {
	api := newAPI(t)
	owner, stranger := uuid.New(), uuid.New()

	var created struct {
		Project struct {
			ID    string `json:"id"`
			Title string `json:"title"`
		} `json:"project"`
	}
	if code := api.do(owner, http.MethodPost, "/api/projects", map[string]string{"title": "القلعة"}, &created); code != http.StatusCreated {
		t.Fatalf("create=%d", code)
	}
	pid := created.Project.ID
	if code := api.do(stranger, http.MethodGet, "/api/projects/"+pid, nil, nil); code != http.StatusNotFound {
		t.Fatalf("stranger get=%d", code)
	}
	if code := api.do(owner, http.MethodGet, "/api/projects/not-a-uuid", nil, nil); code != http.StatusBadRequest {
		t.Fatalf("bad id=%d", code)
	}

	var accepted struct {
		TaskID string `json:"task_id"`
	}
	if code := api.do(owner, http.MethodPost, "/api/projects/"+pid+"/analyze", nil, &accepted); code != http.StatusAccepted {
		t.Fatalf("analyze=%d", code)
	}
	if accepted.TaskID == "" {
		t.Fatalf("no task id returned")
	}

	var status struct {
		Task progress.Snapshot `json:"task"`
	}
	if code := api.do(owner, http.MethodGet, "/api/tasks/"+accepted.TaskID, nil, &status); code != http.StatusOK {
		t.Fatalf("status=%d", code)
	}
	if status.Task.State != progress.StatePending || status.Task.Kind != pipelines.KindAnalyzeSources {
		t.Fatalf("unexpected snapshot %+v", status.Task)
	}
	if code := api.do(stranger, http.MethodPost, "/api/tasks/"+accepted.TaskID+"/cancel", nil, nil); code != http.StatusNotFound {
		t.Fatalf("stranger cancel=%d", code)
	}
	if code := api.do(owner, http.MethodPost, "/api/tasks/"+accepted.TaskID+"/cancel", nil, nil); code != http.StatusAccepted {
		t.Fatalf("cancel=%d", code)
	}
}

func TestRouterRejectsInvalidSeries(t *testing.T) {
	api := newAPI(t)
	owner := uuid.New()
	var created struct {
		Project struct {
			ID string `json:"id"`
		} `json:"project"`
	}
	api.do(owner, http.MethodPost, "/api/projects", map[string]string{"title": "Series"}, &created)

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	code := api.do(owner, http.MethodPost, "/api/projects/"+created.Project.ID+"/series", map[string]int{"numEpisodes": 0}, &body)
	if code != http.StatusBadRequest || body.Error.Code != "invalid_argument" {
		t.Fatalf("series=%d code=%q", code, body.Error.Code)
	}
}

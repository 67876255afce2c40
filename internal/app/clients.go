package app

import (
	"context"
	"fmt"

	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/qalam-backend/internal/jobs/progress"
	"github.com/yungbote/qalam-backend/internal/platform/blobstore"
	"github.com/yungbote/qalam-backend/internal/platform/gcp"
	"github.com/yungbote/qalam-backend/internal/platform/geocoder"
	"github.com/yungbote/qalam-backend/internal/platform/localmedia"
	"github.com/yungbote/qalam-backend/internal/platform/logger"
	"github.com/yungbote/qalam-backend/internal/platform/neo4jdb"
	"github.com/yungbote/qalam-backend/internal/platform/openai"
	"github.com/yungbote/qalam-backend/internal/temporalx"
)

/*
Clients holds the external adapters. Everything except the blob store and the progress
store is optional: a nil adapter surfaces as dependency_missing on the tasks that need it.
*/
type Clients struct {
	Blobs    blobstore.BlobStore
	Progress progress.Store
	redis    *progress.RedisStore

	OpenAI   openai.Client
	Media    localmedia.Tools
	Document *gcp.Document
	Speech   gcp.Speech
	Vision   gcp.Vision
	Video    gcp.Video
	Geocoder geocoder.Geocoder
	Neo4j    *neo4jdb.Client
	Temporal temporalsdkclient.Client
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (*Clients, error) {
	log.Info("Wiring clients...")
	c := &Clients{}

	// Blob store
	blobs, err := resolveBlobStore(ctx, log, cfg.Blob)
	if err != nil {
		return nil, err
	}
	c.Blobs = blobs

	// Progress snapshots: Redis when configured so API and worker processes share them.
	if cfg.Redis.Addr != "" {
		rs, err := progress.NewRedisStore(cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("init redis progress store: %w", err)
		}
		c.redis = rs
		c.Progress = rs
	} else {
		if cfg.RunServer != cfg.RunWorker {
			log.Warn("REDIS_ADDR is empty; split API and worker processes will not share progress snapshots")
		}
		c.Progress = progress.NewMemoryStore(cfg.Redis.TTL)
	}

	// OpenAI
	if oc, err := openai.NewClient(log, cfg.OpenAI); err != nil {
		log.Warn("OpenAI client disabled", "error", err)
	} else {
		c.OpenAI = oc
	}

	c.Media = localmedia.New(log)
	if err := c.Media.AssertReady(ctx); err != nil {
		log.Warn("ffmpeg/ffprobe not available; video and audio analysis will fail", "error", err)
	}

	// Gcp
	if cfg.Document.Enabled() {
		doc, err := gcp.NewDocument(log, cfg.Document)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init document client: %w", err)
		}
		c.Document = doc
	}
	if cfg.GCPEnabled {
		speech, err := gcp.NewSpeech(log)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init speech client: %w", err)
		}
		c.Speech = speech
		vision, err := gcp.NewVision(log)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init vision client: %w", err)
		}
		c.Vision = vision
		video, err := gcp.NewVideo(log)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init video client: %w", err)
		}
		c.Video = video
	} else {
		log.Warn("GCP credentials not configured; speech, OCR and shot detection are disabled")
	}

	c.Geocoder = geocoder.New(log, cfg.Geocoder)

	// Neo4j graph mirror
	graph, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("Neo4j mirror disabled", "error", err)
	} else {
		c.Neo4j = graph
	}

	// Temporal
	if cfg.Temporal.Enabled() {
		if cfg.Temporal.AutoRegisterNamespace {
			if err := temporalx.EnsureNamespace(ctx, cfg.Temporal, log); err != nil {
				c.Close()
				return nil, fmt.Errorf("temporal namespace: %w", err)
			}
		}
		tc, err := temporalx.NewClient(cfg.Temporal, log)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init temporal client: %w", err)
		}
		c.Temporal = tc
	} else if cfg.Temporal.Executor == temporalx.ExecutorTemporal {
		c.Close()
		return nil, fmt.Errorf("TASK_EXECUTOR=temporal requires TEMPORAL_ADDRESS")
	}

	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Temporal != nil {
		c.Temporal.Close()
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(context.Background())
	}
	if c.Video != nil {
		_ = c.Video.Close()
	}
	if c.Vision != nil {
		_ = c.Vision.Close()
	}
	if c.Speech != nil {
		_ = c.Speech.Close()
	}
	if c.Document != nil {
		_ = c.Document.Close()
	}
	if c.redis != nil {
		_ = c.redis.Close()
	}
}

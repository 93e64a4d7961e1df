package app

import (
	"fmt"

	"github.com/yungbote/biologidex-backend/internal/clients/checklistbank"
	"github.com/yungbote/biologidex-backend/internal/clients/gcp"
	"github.com/yungbote/biologidex-backend/internal/clients/openai"
	"github.com/yungbote/biologidex-backend/internal/clients/redis"
	"github.com/yungbote/biologidex-backend/internal/pkg/logger"
)

type Clients struct {
	Cache         redis.CacheClient
	Bucket        gcp.BucketService
	Vision        openai.VisionClient
	Checklistbank checklistbank.Client
}

func wireClients(log *logger.Logger) (Clients, error) {
	log.Info("Wiring clients...")

	cache, err := redis.NewCacheClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init redis cache: %w", err)
	}

	bucket, err := gcp.NewBucketService(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init bucket client: %w", err)
	}

	vision, err := openai.NewVisionClient(log)
	if err != nil {
		return Clients{}, fmt.Errorf("init vision client: %w", err)
	}

	return Clients{
		Cache:         cache,
		Bucket:        bucket,
		Vision:        vision,
		Checklistbank: checklistbank.NewClient(log),
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
}

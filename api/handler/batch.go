package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/use-agent/unhide/cache"
	"github.com/use-agent/unhide/config"
	"github.com/use-agent/unhide/models"
	"github.com/use-agent/unhide/resolver"
	"github.com/use-agent/unhide/webhook"
	"golang.org/x/sync/errgroup"
)

// batchStore holds all in-flight and completed batch jobs.
var batchStore sync.Map

func init() {
	// Expire batch jobs older than 1 hour.
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			cutoff := time.Now().Add(-1 * time.Hour).Unix()
			batchStore.Range(func(key, value any) bool {
				if value.(*models.BatchJob).CreatedAt < cutoff {
					batchStore.Delete(key)
				}
				return true
			})
		}
	}()
}

// Batch bundles what the batch handlers share.
type Batch struct {
	Resolver      *resolver.Resolver
	Cache         *cache.Cache
	Webhooks      *webhook.Sender
	Config        config.BatchConfig
	MaxStepsLimit int
}

// PostBatch returns a handler for POST /api/v1/batch/resolve. It stores a
// job, resolves every URL in the background and answers immediately.
func PostBatch(b *Batch) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewResolveError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}

		if b.Config.MaxURLs > 0 && len(req.URLs) > b.Config.MaxURLs {
			respondError(c, models.NewResolveError(models.ErrCodeInvalidInput,
				fmt.Sprintf("maximum %d URLs per batch", b.Config.MaxURLs), nil))
			return
		}

		job := models.NewBatchJob(uuid.NewString(), len(req.URLs), time.Now().Unix())
		batchStore.Store(job.ID, job)

		go b.run(job, req)

		c.JSON(http.StatusOK, models.BatchResponse{
			ID:     job.ID,
			Status: models.BatchProcessing,
			Total:  len(req.URLs),
		})
	}
}

// GetBatch returns a handler for GET /api/v1/batch/:id.
func GetBatch() gin.HandlerFunc {
	return func(c *gin.Context) {
		val, ok := batchStore.Load(c.Param("id"))
		if !ok {
			respondError(c, models.NewResolveError(models.ErrCodeNotFound, "batch job not found", nil))
			return
		}
		c.JSON(http.StatusOK, val.(*models.BatchJob).Snapshot())
	}
}

// run resolves every URL of the job with at most Config.Concurrency
// resolutions in flight, then fires the webhook if one was given.
func (b *Batch) run(job *models.BatchJob, req models.BatchRequest) {
	limit := b.Config.Concurrency
	if limit <= 0 {
		limit = 5
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, rawURL := range req.URLs {
		g.Go(func() error {
			one := req.Options.Request(rawURL)
			one.Defaults(b.Resolver.MaxSteps(), b.MaxStepsLimit)
			job.Record(i, resolveOne(context.Background(), b.Resolver, b.Cache, one))
			return nil
		})
	}
	_ = g.Wait()
	job.Finish()

	snap := job.Snapshot()
	slog.Info("batch job finished",
		"id", job.ID,
		"status", snap.Status,
		"found", snap.Found,
		"total", snap.Total,
	)

	if req.WebhookURL != "" && b.Webhooks != nil {
		b.Webhooks.DeliverAsync(req.WebhookURL, req.WebhookSecret, &webhook.Event{
			Type:      webhook.EventBatchCompleted,
			JobID:     job.ID,
			Timestamp: time.Now().Unix(),
			Data:      snap,
		})
	}
}

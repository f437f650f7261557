package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/unhide/cache"
	"github.com/use-agent/unhide/models"
	"github.com/use-agent/unhide/preview"
	"github.com/use-agent/unhide/resolver"
)

// Resolve returns a handler for POST /api/v1/resolve.
//
// Orchestration flow:
//  1. Parse & validate request, apply defaults (max_steps clamped to limit).
//  2. Cache lookup when max_age is set.
//  3. Resolver.Resolve → history + verdict   (records fetch_ms)
//  4. preview.Build on the destination page  (records preview_ms)
//  5. Cache store, respond 200.
//
// A resolution that ends in error or too_many_redirects is still a 200:
// the history is the answer, and success=false carries the verdict.
func Resolve(rv *resolver.Resolver, cc *cache.Cache, maxStepsLimit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ResolveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewResolveError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}
		req.Defaults(rv.MaxSteps(), maxStepsLimit)

		c.JSON(http.StatusOK, resolveOne(c.Request.Context(), rv, cc, &req))
	}
}

// resolveOne runs a single resolution, going through the cache when the
// request opts in with max_age.
func resolveOne(ctx context.Context, rv *resolver.Resolver, cc *cache.Cache, req *models.ResolveRequest) *models.ResolveResponse {
	totalStart := time.Now()
	useCache := cc != nil && req.MaxAge > 0
	key := cache.Key(req.URL, req.MaxSteps, req.Preview, req.IncludeBody)

	if useCache {
		if cached, hit := cc.Get(key, time.Duration(req.MaxAge)*time.Second); hit {
			out := *cached
			out.CacheStatus = "hit"
			out.Timing = models.TimingInfo{TotalMs: time.Since(totalStart).Milliseconds()}
			return &out
		}
	}

	res := rv.WithMaxSteps(req.MaxSteps).Resolve(ctx, req.URL)
	resp := models.NewResolveResponse(req.URL, res, req.IncludeBody)

	if req.Preview && res.Status == resolver.StatusFound {
		previewStart := time.Now()
		resp.Preview = preview.Build(res.Last().Fetch.Body, res.EndURL)
		resp.Timing.PreviewMs = time.Since(previewStart).Milliseconds()
	}
	resp.Timing.TotalMs = time.Since(totalStart).Milliseconds()

	// Transport errors are usually transient; only settled verdicts are cached.
	if useCache && res.Status != resolver.StatusError {
		stored := *resp
		cc.Set(key, &stored)
		resp.CacheStatus = "miss"
	}
	return resp
}

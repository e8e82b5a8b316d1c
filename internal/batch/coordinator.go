// Package batch runs many downloads with a concurrency cap and collects one
// outcome per request, in input order.
package batch

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"filedownloader/internal/apperr"
	"filedownloader/internal/config"
	"filedownloader/internal/download"
	"filedownloader/internal/metrics"
)

// Fetcher performs a single transfer.
type Fetcher interface {
	Download(ctx context.Context, rawURL, dir, filename string) (*download.Result, error)
}

// DirectoryEnsurer prepares a target directory.
type DirectoryEnsurer interface {
	Ensure(dir string) error
}

// Coordinator dispatches batches. Item failures never fail the batch; only
// precondition violations do.
type Coordinator struct {
	fetcher Fetcher
	dirs    DirectoryEnsurer
	limits  config.Limits
	metrics *metrics.Metrics
}

// NewCoordinator creates a coordinator. dirs may be nil when callers ensure
// directories themselves.
func NewCoordinator(fetcher Fetcher, dirs DirectoryEnsurer, limits config.Limits, m *metrics.Metrics) *Coordinator {
	return &Coordinator{fetcher: fetcher, dirs: dirs, limits: limits, metrics: m}
}

// Run validates the batch as a whole, then downloads every admissible request
// with at most min(len(requests), MaxConcurrent) transfers in flight.
// Requests beyond the concurrency cap wait for a free slot.
func (c *Coordinator) Run(ctx context.Context, requests []Request) (*Result, error) {
	if len(requests) == 0 {
		return nil, apperr.New(apperr.KindBatchRejected, "batch is empty")
	}
	if len(requests) > c.limits.MaxBatchSize {
		return nil, apperr.New(apperr.KindBatchRejected, "batch of %d exceeds the limit of %d downloads", len(requests), c.limits.MaxBatchSize)
	}

	logger := zerolog.Ctx(ctx)
	outcomes := make([]Outcome, len(requests))
	ensured := make(map[string]error)

	g := new(errgroup.Group)
	g.SetLimit(max(1, min(len(requests), c.limits.MaxConcurrent)))

	for i, req := range requests {
		i, req := i, req
		outcomes[i] = Outcome{Index: i, URL: strings.TrimSpace(req.URL), Filename: strings.TrimSpace(req.Filename)}
		if err := c.precheck(req, ensured); err != nil {
			outcomes[i].Err = err
			c.metrics.Rejected(err)
			continue
		}
		g.Go(func() error {
			res, err := c.fetcher.Download(ctx, req.URL, req.Directory, req.Filename)
			// each goroutine owns exactly one slot of outcomes
			outcomes[i].Result = res
			outcomes[i].Err = err
			if res != nil {
				outcomes[i].Filename = res.Filename
			}
			return nil
		})
	}
	_ = g.Wait()

	result := &Result{Outcomes: outcomes, Total: len(outcomes)}
	for _, o := range outcomes {
		if o.OK() {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	c.metrics.BatchFinished(string(result.Status()))
	logger.Info().
		Int("total", result.Total).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Msg("batch finished")
	return result, nil
}

func (c *Coordinator) precheck(req Request, ensured map[string]error) error {
	if strings.TrimSpace(req.URL) == "" {
		return apperr.New(apperr.KindMalformedRequest, "url is required")
	}
	if err := download.ValidateFilename(req.Filename); err != nil {
		return err
	}
	if c.dirs == nil {
		return nil
	}
	err, seen := ensured[req.Directory]
	if !seen {
		err = c.dirs.Ensure(req.Directory)
		ensured[req.Directory] = err
	}
	return err
}

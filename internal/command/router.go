package command

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"filedownloader/internal/apperr"
	"filedownloader/internal/batch"
	"filedownloader/internal/download"
	"filedownloader/internal/filetype"
)

// Fetcher performs a single transfer.
type Fetcher interface {
	Download(ctx context.Context, rawURL, dir, filename string) (*download.Result, error)
}

// BatchRunner runs a batch of transfers.
type BatchRunner interface {
	Run(ctx context.Context, requests []batch.Request) (*batch.Result, error)
}

// DirectoryResolver maps categories to directories and prepares them.
type DirectoryResolver interface {
	Resolve(category filetype.Category, explicit string) string
	Ensure(dir string) error
}

// Router dispatches decoded commands.
type Router struct {
	fetcher Fetcher
	batches BatchRunner
	dirs    DirectoryResolver
}

// NewRouter creates a router.
func NewRouter(fetcher Fetcher, batches BatchRunner, dirs DirectoryResolver) *Router {
	return &Router{fetcher: fetcher, batches: batches, dirs: dirs}
}

// Handle decodes and runs one raw command. It never fails: errors are
// rendered as error responses. Every call gets its own request_id in the
// context logger.
func (r *Router) Handle(ctx context.Context, raw []byte) Response {
	logger := zerolog.Ctx(ctx).With().Str("request_id", uuid.NewString()).Logger()
	ctx = logger.WithContext(ctx)

	cmd, err := Decode(raw)
	if err != nil {
		logger.Warn().Err(err).Msg("rejected command")
		return ErrorResponse(err)
	}
	logger.Debug().Str("command", cmd.Name()).Msg("command received")

	resp, err := r.Dispatch(ctx, cmd)
	if err != nil {
		logger.Warn().Err(err).Str("command", cmd.Name()).Msg("command failed")
		return ErrorResponse(err)
	}
	return resp
}

// Dispatch runs cmd. Errors that fail the whole command are returned; item
// failures inside a batch are part of the response.
func (r *Router) Dispatch(ctx context.Context, cmd Command) (Response, error) {
	switch c := cmd.(type) {
	case Single:
		name := filetype.ResolveName(c.Filename, c.URL)
		return r.single(ctx, c.URL, r.dirs.Resolve(filetype.Classify(name), c.TargetDirectory), name)
	case ByType:
		// unknown types fall back to the "other" directory
		category, _ := filetype.ParseCategory(c.FileType)
		return r.single(ctx, c.URL, r.dirs.Resolve(category, ""), filetype.ResolveName(c.Filename, c.URL))
	case Batch:
		return r.batch(ctx, c)
	default:
		return Response{}, apperr.New(apperr.KindUnknownCommand,
			"unknown command: %q. supported commands: %s", cmd.Name(), supportedCommands)
	}
}

func (r *Router) single(ctx context.Context, rawURL, dir, filename string) (Response, error) {
	if err := r.dirs.Ensure(dir); err != nil {
		return Response{}, err
	}
	res, err := r.fetcher.Download(ctx, rawURL, dir, filename)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Status:  StatusSuccess,
		Message: "file downloaded: " + res.Filename,
		Result:  fileResult(res),
	}, nil
}

func (r *Router) batch(ctx context.Context, c Batch) (Response, error) {
	requests := make([]batch.Request, len(c.Items))
	for i, item := range c.Items {
		name := filetype.ResolveName(item.Filename, item.URL)
		requests[i] = batch.Request{
			URL:       item.URL,
			Filename:  item.Filename,
			Directory: r.dirs.Resolve(filetype.Classify(name), c.TargetDirectory),
		}
	}

	res, err := r.batches.Run(ctx, requests)
	if err != nil {
		return Response{}, err
	}

	resp := Response{
		Message: fmt.Sprintf("batch download finished: %d succeeded, %d failed", res.Succeeded, res.Failed),
		Result:  batchResult(res),
	}
	switch res.Status() {
	case batch.StatusSuccess:
		resp.Status = StatusSuccess
	case batch.StatusPartial:
		resp.Status = StatusPartial
	default:
		resp.Status = StatusError
		resp.Code = string(apperr.KindBatchFailed)
		resp.Message = fmt.Sprintf("batch download failed: all %d downloads failed", res.Total)
	}
	return resp, nil
}

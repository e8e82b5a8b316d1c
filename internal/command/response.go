package command

import (
	"errors"

	"filedownloader/internal/apperr"
	"filedownloader/internal/batch"
	"filedownloader/internal/download"
)

const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusError   = "error"
)

// Response is the object written back for every command.
type Response struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Result  any    `json:"result,omitempty"`
}

// FileResult is the result of download and download_by_type.
type FileResult struct {
	Filename string `json:"filename"`
	FilePath string `json:"filePath"`
	Size     int64  `json:"size"`
	SizeText string `json:"sizeText"`
}

type BatchSuccess struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	FilePath string `json:"filePath"`
	Size     int64  `json:"size"`
	Status   string `json:"status"`
}

type BatchFailure struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
	Error    string `json:"error"`
	Status   string `json:"status"`
}

type BatchSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// BatchResult is the result of batch_download.
type BatchResult struct {
	Successful []BatchSuccess `json:"successful"`
	Failed     []BatchFailure `json:"failed"`
	Summary    BatchSummary   `json:"summary"`
}

// ErrorResponse renders err. Only *apperr.Error messages reach the caller.
func ErrorResponse(err error) Response {
	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		return Response{Status: StatusError, Message: "internal error", Code: string(apperr.KindInternal)}
	}
	return Response{Status: StatusError, Message: appErr.Error(), Code: string(appErr.Kind)}
}

func fileResult(res *download.Result) FileResult {
	return FileResult{
		Filename: res.Filename,
		FilePath: res.FilePath,
		Size:     res.Bytes,
		SizeText: download.SizeText(res.Bytes),
	}
}

func batchResult(res *batch.Result) BatchResult {
	out := BatchResult{
		Successful: make([]BatchSuccess, 0, res.Succeeded),
		Failed:     make([]BatchFailure, 0, res.Failed),
		Summary:    BatchSummary{Total: res.Total, Success: res.Succeeded, Failed: res.Failed},
	}
	for _, o := range res.Outcomes {
		if o.OK() {
			out.Successful = append(out.Successful, BatchSuccess{
				Index:    o.Index + 1,
				Filename: o.Result.Filename,
				FilePath: o.Result.FilePath,
				Size:     o.Result.Bytes,
				Status:   "success",
			})
			continue
		}
		name := o.Filename
		if name == "" {
			name = "unknown"
		}
		msg := "no result"
		if o.Err != nil {
			msg = o.Err.Error()
		}
		out.Failed = append(out.Failed, BatchFailure{
			Index:    o.Index + 1,
			Filename: name,
			Error:    msg,
			Status:   "failed",
		})
	}
	return out
}

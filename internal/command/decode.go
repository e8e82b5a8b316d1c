// Package command decodes download commands, routes them to the download
// core and renders their responses.
package command

import (
	"bytes"
	"encoding/json"
	"strings"

	"filedownloader/internal/apperr"
	"filedownloader/internal/download"
)

const (
	NameDownload       = "download"
	NameBatchDownload  = "batch_download"
	NameDownloadByType = "download_by_type"

	supportedCommands = NameDownload + ", " + NameBatchDownload + ", " + NameDownloadByType
)

// Command is one of Single, Batch or ByType.
type Command interface {
	Name() string
	command()
}

// Single downloads one file. An empty TargetDirectory means the directory of
// the category implied by the final filename.
type Single struct {
	URL             string
	Filename        string
	TargetDirectory string
}

// Batch downloads several files into one optional target directory.
type Batch struct {
	Items           []BatchItem
	TargetDirectory string
}

// BatchItem is not validated at decode time; bad items fail individually.
type BatchItem struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// ByType downloads one file into the default directory of FileType.
type ByType struct {
	URL      string
	Filename string
	FileType string
}

func (Single) Name() string { return NameDownload }
func (Batch) Name() string  { return NameBatchDownload }
func (ByType) Name() string { return NameDownloadByType }

func (Single) command() {}
func (Batch) command()  {}
func (ByType) command() {}

type envelope struct {
	Command         string          `json:"command"`
	URL             string          `json:"url"`
	Filename        string          `json:"filename"`
	TargetDirectory string          `json:"target_directory"`
	FileType        string          `json:"file_type"`
	Downloads       json.RawMessage `json:"downloads"`
}

// Decode parses one JSON command object into its typed variant.
func Decode(raw []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperr.Wrap(apperr.KindMalformedRequest, err, "invalid JSON input")
	}

	switch strings.TrimSpace(env.Command) {
	case NameDownload:
		if err := requireFields(map[string]string{"url": env.URL, "filename": env.Filename}, "url", "filename"); err != nil {
			return nil, err
		}
		if err := download.ValidateFilename(env.Filename); err != nil {
			return nil, err
		}
		return Single{
			URL:             strings.TrimSpace(env.URL),
			Filename:        strings.TrimSpace(env.Filename),
			TargetDirectory: strings.TrimSpace(env.TargetDirectory),
		}, nil

	case NameBatchDownload:
		items, err := decodeDownloads(env.Downloads)
		if err != nil {
			return nil, err
		}
		return Batch{Items: items, TargetDirectory: strings.TrimSpace(env.TargetDirectory)}, nil

	case NameDownloadByType:
		fields := map[string]string{"url": env.URL, "file_type": env.FileType, "filename": env.Filename}
		if err := requireFields(fields, "url", "file_type", "filename"); err != nil {
			return nil, err
		}
		if err := download.ValidateFilename(env.Filename); err != nil {
			return nil, err
		}
		return ByType{
			URL:      strings.TrimSpace(env.URL),
			Filename: strings.TrimSpace(env.Filename),
			FileType: strings.TrimSpace(env.FileType),
		}, nil

	default:
		return nil, apperr.New(apperr.KindUnknownCommand,
			"unknown command: %q. supported commands: %s", env.Command, supportedCommands)
	}
}

func requireFields(values map[string]string, order ...string) error {
	for _, name := range order {
		if strings.TrimSpace(values[name]) == "" {
			return apperr.New(apperr.KindMalformedRequest, "missing required parameters: %s", strings.Join(order, ", "))
		}
	}
	return nil
}

// decodeDownloads accepts either an array or a JSON string holding the array.
func decodeDownloads(raw json.RawMessage) ([]BatchItem, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, apperr.New(apperr.KindMalformedRequest, "downloads must be an array")
	}
	if raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, apperr.Wrap(apperr.KindMalformedRequest, err, "downloads is not valid JSON")
		}
		raw = []byte(encoded)
	}
	var items []BatchItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, apperr.Wrap(apperr.KindMalformedRequest, err, "downloads must be an array of {url, filename}")
	}
	return items, nil
}

package file

import (
	"errors"
	"os"
	"strings"

	"filedownloader/internal/apperr"
	"filedownloader/internal/config"
	"filedownloader/internal/filetype"
)

// Resolver maps categories onto storage directories and guarantees they exist.
type Resolver struct {
	dirs       config.Directories
	autoCreate bool
}

// NewResolver creates a resolver from the configured directories.
func NewResolver(dirs config.Directories, autoCreate bool) *Resolver {
	return &Resolver{dirs: dirs, autoCreate: autoCreate}
}

// Resolve returns explicit when given, otherwise the default directory of category.
func (r *Resolver) Resolve(category filetype.Category, explicit string) string {
	if dir := strings.TrimSpace(explicit); dir != "" {
		return dir
	}
	switch category {
	case filetype.Image:
		return r.dirs.Image
	case filetype.Video:
		return r.dirs.Video
	case filetype.Document:
		return r.dirs.Document
	default:
		return r.dirs.Other
	}
}

// Ensure makes dir usable as a download target. With auto-create enabled it is
// created idempotently; otherwise it must already exist.
func (r *Resolver) Ensure(dir string) error {
	if r.autoCreate {
		if err := EnsureDir(dir); err != nil {
			return apperr.Wrap(apperr.KindDirectory, err, "cannot create directory %s", dir)
		}
		return nil
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperr.New(apperr.KindDirectory, "directory %s does not exist and auto-create is disabled", dir)
		}
		return apperr.Wrap(apperr.KindDirectory, err, "cannot access directory %s", dir)
	}
	if !info.IsDir() {
		return apperr.New(apperr.KindDirectory, "%s is not a directory", dir)
	}
	return nil
}

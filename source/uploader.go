// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package source

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/storage"
)

// Upload report statuses.
const (
	StatusSuccess        = "success"
	StatusPartialSuccess = "partial_success"
	StatusFailed         = "failed"
)

// UploadedFile describes one file that reached the bucket and was registered.
type UploadedFile struct {
	LocalPath  string
	AbsPath    string
	URL        string
	ResourceId core.ID
}

// FailedFile describes one file that could not be uploaded or registered.
type FailedFile struct {
	Path  string
	URL   string
	Error string
}

// UploadReport summarizes an UploadDirectory run.
type UploadReport struct {
	Status   string
	Total    int
	Uploaded []UploadedFile
	// Skipped holds absolute paths already registered as a resource's source location.
	Skipped []string
	Failed  []FailedFile
}

// Uploader copies local files into a company's bucket prefix and registers them as resources.
type Uploader struct {
	store     ObjectStore
	resources storage.ResourceRepository
	region    string
	logger    *slog.Logger
}

// NewUploader creates an Uploader. An empty region uses DefaultRegion.
func NewUploader(store ObjectStore, resources storage.ResourceRepository, region string) *Uploader {
	if region == "" {
		region = DefaultRegion
	}
	return &Uploader{
		store:     store,
		resources: resources,
		region:    region,
		logger:    slog.Default().With("component", "uploader"),
	}
}

// UploadDirectory uploads every regular file under dir to the company's
// storage location, keeping the relative directory structure.
// Files whose absolute path is already registered are skipped.
func (u *Uploader) UploadDirectory(ctx context.Context, company *core.Company, dir string) (*UploadReport, error) {
	bucket, prefix, err := ParseStorageLocation(company.StorageLocation)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFiles, dir)
	}

	report := &UploadReport{Total: len(files)}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		abs, err := filepath.Abs(file)
		if err != nil {
			report.Failed = append(report.Failed, FailedFile{Path: file, Error: err.Error()})
			continue
		}

		if _, err := u.resources.FindBySourceLocation(ctx, abs); err == nil {
			u.logger.Debug("file already registered, skipping", "path", abs)
			report.Skipped = append(report.Skipped, abs)
			continue
		} else if !errors.Is(err, storage.ErrNotFound) {
			report.Failed = append(report.Failed, FailedFile{Path: file, Error: err.Error()})
			continue
		}

		rel, err := filepath.Rel(dir, file)
		if err != nil {
			report.Failed = append(report.Failed, FailedFile{Path: file, Error: err.Error()})
			continue
		}
		key := path.Join(prefix, filepath.ToSlash(rel))
		objectURL := ObjectURL(bucket, u.region, key)

		if err := u.store.Put(ctx, bucket, key, file); err != nil {
			u.logger.Warn("upload failed", "path", file, "key", key, "err", err)
			report.Failed = append(report.Failed, FailedFile{Path: file, URL: objectURL, Error: err.Error()})
			continue
		}

		resource, err := u.RegisterResource(ctx, company.Id, objectURL, abs)
		if err != nil {
			u.logger.Warn("uploaded file could not be registered", "path", file, "url", objectURL, "err", err)
			report.Failed = append(report.Failed, FailedFile{Path: file, URL: objectURL, Error: err.Error()})
			continue
		}

		report.Uploaded = append(report.Uploaded, UploadedFile{
			LocalPath:  file,
			AbsPath:    abs,
			URL:        objectURL,
			ResourceId: resource.Id,
		})
	}

	switch {
	case len(report.Failed) == 0:
		report.Status = StatusSuccess
	case len(report.Failed) == report.Total:
		report.Status = StatusFailed
	default:
		report.Status = StatusPartialSuccess
	}

	u.logger.Info("upload finished",
		"company", company.Ticker,
		"status", report.Status,
		"uploaded", len(report.Uploaded),
		"skipped", len(report.Skipped),
		"failed", len(report.Failed))
	return report, nil
}

// RegisterResource records an existing object URL or local path as a pending resource.
// sourceLocation may be empty.
func (u *Uploader) RegisterResource(ctx context.Context, companyID core.ID, location, sourceLocation string) (*core.Resource, error) {
	added, err := u.resources.AddResources(ctx, &core.Resource{
		CompanyId:       companyID,
		StorageLocation: strings.TrimSpace(location),
		SourceLocation:  strings.TrimSpace(sourceLocation),
	})
	if err != nil {
		return nil, err
	}
	return added[0], nil
}

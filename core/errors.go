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


package core

import (
	"context"
	"errors"
	"fmt"
)

// Processing failure classes
var (
	// ErrSourceUnavailable indicates the source bytes could not be fetched.
	// The resource should be retried later.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrNotAPDF indicates the fetched bytes do not carry a PDF signature.
	ErrNotAPDF = errors.New("not a pdf")

	// ErrSkipped indicates a payload known to be a non-PDF artifact.
	ErrSkipped = errors.New("skipped non-pdf artifact")

	// ErrUnreadablePDF indicates the bytes could not be parsed as a PDF.
	ErrUnreadablePDF = errors.New("unreadable pdf")

	// ErrDataIntegrity indicates a record references a parent that does not exist.
	ErrDataIntegrity = errors.New("data integrity warning")

	// ErrCapabilityTimeout indicates an external capability call timed out.
	ErrCapabilityTimeout = errors.New("capability timeout")

	// ErrCapability indicates an external capability call failed.
	ErrCapability = errors.New("capability error")

	// ErrInvalidArgument indicates a caller contract violation.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Domain validation errors
var (
	// ErrInvalidCompany indicates a Company failed validation.
	ErrInvalidCompany = errors.New("invalid company")

	// ErrInvalidResource indicates a Resource failed validation.
	ErrInvalidResource = errors.New("invalid resource")

	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmptyText indicates a required text field is empty.
	ErrEmptyText = errors.New("text cannot be empty")

	// ErrMissingOwner indicates a required owning identifier is zero.
	ErrMissingOwner = errors.New("owning identifier is required")
)

// IsPermanent reports whether err means the resource content will never ingest.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrNotAPDF) ||
		errors.Is(err, ErrSkipped) ||
		errors.Is(err, ErrUnreadablePDF)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) ||
		errors.Is(err, ErrCapabilityTimeout) ||
		errors.Is(err, ErrCapability) ||
		errors.Is(err, context.DeadlineExceeded)
}

// CapabilityError classifies an error returned by an external capability call.
// Deadline expiry becomes ErrCapabilityTimeout, everything else ErrCapability.
// Caller cancellation is passed through untouched.
func CapabilityError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrCapabilityTimeout) || errors.Is(err, ErrCapability) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrCapabilityTimeout, err)
	}
	return fmt.Errorf("%w: %w", ErrCapability, err)
}

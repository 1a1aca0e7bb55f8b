// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package utils

import "github.com/google/uuid"

// NewUUID returns a time-ordered v7 identifier, falling back to v4 when
// the platform cannot produce one. Row ids are generated client-side so
// that replaying a create after a lost response is idempotent.
func NewUUID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// SPDX-License-Identifier: ice License 1.0

package terror

// Public API.

type (
	// Err decorates an error with structured, loggable data; the data must never hold secrets.
	Err struct {
		error
		Data map[string]any `json:"data"`
	}
)

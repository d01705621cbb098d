// Copyright (c) Bas van Beek 2022.
// Copyright (c) Tetrate, Inc 2021.
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

// Package pkg holds shared helper types for this module.
package pkg

import "errors"

// Error allows the creation of constant error messages.
type Error string

// Error implements the error interface.
func (e Error) Error() string {
	return string(e)
}

const (
	// ErrRequired signals a required configuration value was not provided.
	ErrRequired Error = "required value not provided"

	// FlagErr is the standard formatting directive for flag validation
	// errors. It takes the flag name and the underlying error.
	FlagErr = "invalid value for flag --%s: %w"
)

// wrappedErrors is implemented by multierror containers.
type wrappedErrors interface {
	WrappedErrors() []error
}

// HasError tests if target can be found in err. It inspects standard wrapped
// error chains as well as multierror containers, including ones created by
// packages predating Go 1.13 error wrapping semantics.
func HasError(err, target error) bool {
	if err == nil {
		return target == nil
	}
	if target == nil {
		return false
	}
	for {
		if errors.Is(err, target) {
			return true
		}
		if we, ok := err.(wrappedErrors); ok {
			for _, e := range we.WrappedErrors() {
				if HasError(e, target) {
					return true
				}
			}
		}
		if err = errors.Unwrap(err); err == nil {
			return false
		}
	}
}

// Copyright 2025 Tom Barlow
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

package errors

// UserVisibleError is implemented by errors that akctl prints with a
// suggestion line.
type UserVisibleError interface {
	error

	// IsUserVisible returns true if this error should be shown to users.
	IsUserVisible() bool

	// UserMessage returns a user-friendly error message.
	UserMessage() string

	// Suggestion returns actionable guidance, or "".
	Suggestion() string
}

// ErrorClassifier lets metrics and logs label an error by category.
// Nothing in appkiller retries, so IsRetryable is false for every
// type in this package.
type ErrorClassifier interface {
	error

	// ErrorType returns the category: "transport", "timeout", "script",
	// "registration" or "config".
	ErrorType() string

	// IsRetryable returns true if the operation could be retried.
	IsRetryable() bool
}

/*-
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package version pkg/version/version.go implements semantic version
// handling and target-version resolution for managed components.
package version

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"
)

// semverRe requires the full MAJOR.MINOR.PATCH core; x/mod/semver alone
// would also accept truncated forms like "1.2".
var semverRe = regexp.MustCompile(
	`^v?(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
		`(-[0-9A-Za-z-]+(\.[0-9A-Za-z-]+)*)?` +
		`(\+[0-9A-Za-z-]+(\.[0-9A-Za-z-]+)*)?$`)

// IsValid reports whether s is a well-formed MAJOR.MINOR.PATCH version,
// with optional prerelease and build metadata. A leading "v" is tolerated.
func IsValid(s string) bool {
	return semverRe.MatchString(s) && semver.IsValid(canonical(s))
}

// Validate returns ErrInvalidVersion if s is not a well-formed version.
func Validate(s string) error {
	if !IsValid(s) {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}

	return nil
}

// Normalize strips a leading "v" and surrounding whitespace.
func Normalize(s string) string {
	return strings.TrimPrefix(strings.TrimSpace(s), "v")
}

func canonical(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}

	return s
}

// Compare returns -1, 0, or +1 comparing a and b as semantic versions.
// Major, minor and patch compare numerically; a release is greater than
// the same core with a prerelease tag; build metadata is ignored.
func Compare(a, b string) int {
	return semver.Compare(canonical(a), canonical(b))
}

// Less reports whether a sorts before b.
func Less(a, b string) bool {
	return Compare(a, b) < 0
}

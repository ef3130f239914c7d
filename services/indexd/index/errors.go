// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package index

import "errors"

var (
	// ErrNoConfigurations indicates a codemodel reply with no build
	// configurations to index.
	ErrNoConfigurations = errors.New("codemodel contains no configurations")

	// ErrSquashedTarget indicates an operation that needs a single real
	// target was attempted against a squashed one. A squashed target's
	// composite name never names anything buildable.
	ErrSquashedTarget = errors.New("target is a squashed merge, not independently buildable")
)

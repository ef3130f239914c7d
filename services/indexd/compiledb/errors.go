// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package compiledb

import "errors"

// ErrNilIndex indicates a database write was requested without an index.
var ErrNilIndex = errors.New("no index to export")

// Package appfs holds the files embedded in the binaries: SQL migrations, static assets and demo fixtures.
package appfs

import "embed"

//go:embed migrations assets fixtures
var FS embed.FS

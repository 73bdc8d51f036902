// Package loader blank-imports every cache driver so the registry (§B.6)
// has "memory" and "redis" available without each call site needing to
// know which packages back them.
//
//	import _ "github.com/an-empty-string/amethyst/internal/cache/loader"
package loader

import (
	_ "github.com/an-empty-string/amethyst/internal/cache/memory"
	_ "github.com/an-empty-string/amethyst/internal/cache/redis"
)

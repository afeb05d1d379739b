package main

import "github.com/xyproto/env/v2"

// envOr resolves an environment-variable override, falling back to a
// default when unset, exactly as the teacher's own go.mod dependency is
// meant to be used.
func envOr(key, fallback string) string {
	return env.Str(key, fallback)
}

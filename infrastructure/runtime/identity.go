// Package runtime provides environment/runtime detection helpers shared across the warehouse core.
package runtime

import (
	"os"
	"strings"
	"sync"
)

// strictIdentityModeOnce caches the strict identity mode check at startup.
var (
	strictIdentityModeOnce  sync.Once
	strictIdentityModeValue bool
)

// ResetStrictIdentityModeCache resets the cached strict identity mode value.
// This should only be used in tests.
func ResetStrictIdentityModeCache() {
	strictIdentityModeOnce = sync.Once{}
	strictIdentityModeValue = false
}

// StrictIdentityMode returns true when the service should fail closed on identity/security
// boundaries (e.g. only trust sessions/API keys carried over a verified transport).
//
// Production always runs strict. WAREHOUSE_STRICT_IDENTITY lets an operator opt a
// non-production environment into the same posture (e.g. a staging environment that
// mirrors production trust boundaries) without a mis-set WAREHOUSE_ENV silently
// weakening it.
func StrictIdentityMode() bool {
	strictIdentityModeOnce.Do(func() {
		env := Env()
		override := strings.TrimSpace(os.Getenv("WAREHOUSE_STRICT_IDENTITY"))
		strictIdentityModeValue = env == Production || override == "1" || strings.EqualFold(override, "true")
	})
	return strictIdentityModeValue
}

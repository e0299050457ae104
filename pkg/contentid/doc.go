// Package contentid provides typed identifiers and version numbers for
// repository content.
//
// # Core Concepts
//
//  1. Kind: the entity family an identifier belongs to (module, collection,
//     resource). Each kind has a fixed external prefix.
//
//  2. ID: a kind plus a positive number. The external form is the kind
//     prefix followed by decimal digits, e.g. "m10001" or "col42".
//
//  3. Version: either a concrete ordinal or the "latest" sentinel.
//
// # Forced Identifiers
//
// The legacy system and the repository share one numeric namespace split at
// ForcedThreshold. Numbers below it are historical identifiers that must be
// reserved explicitly when migrated; numbers at or above it are always
// assigned by the repository.
//
//	id, err := contentid.ParseID(contentid.KindModule, "m1234")
//	if err != nil {
//	    return err
//	}
//	if id.IsForced() {
//	    // ask the repository to honor the legacy number
//	}
//
// # Database Integration
//
// ID implements sql.Scanner and driver.Valuer so it can be stored directly in
// ledger tables.
package contentid

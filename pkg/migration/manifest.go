package migration

import (
	"sort"
	"strings"

	"github.com/hashicorp-forge/repomigrate/pkg/contentid"
)

// RewriteManifest replaces every quoted occurrence of a legacy identifier in
// manifest with its new identifier. Both double and single quotes are
// recognized. All replacements happen in one left-to-right pass, so a new
// identifier is never itself rewritten and "m1" never matches inside "m10".
func RewriteManifest(manifest string, mapping map[contentid.ID]contentid.ID) string {
	if len(mapping) == 0 {
		return manifest
	}

	olds := make([]contentid.ID, 0, len(mapping))
	for old := range mapping {
		olds = append(olds, old)
	}
	sort.Slice(olds, func(i, j int) bool {
		return olds[i].String() < olds[j].String()
	})

	pairs := make([]string, 0, len(olds)*4)
	for _, old := range olds {
		next := mapping[old].String()
		for _, q := range []string{`"`, `'`} {
			pairs = append(pairs, q+old.String()+q, q+next+q)
		}
	}
	return strings.NewReplacer(pairs...).Replace(manifest)
}

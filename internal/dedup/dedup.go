// Package dedup collapses opportunities that share an identity key within
// one run. Cross-run reconciliation is the store's job; this package only
// guarantees that a single batch never carries the same key twice.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"procurepulse/aggregator-service/internal/model"
)

// IdentityKey returns the stable key used for upserts. When a solicitation
// number exists the key is "STATE:NUMBER"; otherwise it falls back to a
// content hash of the normalized title, agency, and state. The fallback can
// merge two genuinely distinct postings that happen to share title and
// agency text — the sources do not give us enough to tell them apart, so
// the store logs suspected collisions instead of resolving them.
func IdentityKey(opp *model.Opportunity) string {
	if opp.SolicitationNumber != "" {
		return opp.State + ":" + strings.ToUpper(opp.SolicitationNumber)
	}

	agency := ""
	if opp.Agency != nil {
		agency = *opp.Agency
	}
	h := sha256.Sum256([]byte(strings.ToLower(opp.Title) + "|" + strings.ToLower(agency) + "|" + opp.State))
	return "h:" + hex.EncodeToString(h[:16])
}

// Deduplicate keeps at most one opportunity per identity key. priority
// lists source names from most to least trusted; when two sources report
// the same key in one run, the higher-priority source's version wins
// regardless of arrival order. Sources missing from the list rank below
// all listed ones. Dropped counts are returned per source.
func Deduplicate(batch []*model.Opportunity, priority []string) (kept []*model.Opportunity, dropped map[string]int) {
	rank := make(map[string]int, len(priority))
	for i, src := range priority {
		rank[src] = i
	}
	sourceRank := func(src string) int {
		if r, ok := rank[src]; ok {
			return r
		}
		return len(priority)
	}

	dropped = make(map[string]int)
	index := make(map[string]int) // identity key → position in kept

	for _, opp := range batch {
		key := IdentityKey(opp)
		at, seen := index[key]
		if !seen {
			index[key] = len(kept)
			kept = append(kept, opp)
			continue
		}

		held := kept[at]
		if sourceRank(opp.Source) < sourceRank(held.Source) {
			kept[at] = opp
			dropped[held.Source]++
		} else {
			dropped[opp.Source]++
		}
	}
	return kept, dropped
}

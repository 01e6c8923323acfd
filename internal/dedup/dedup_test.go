package dedup_test

import (
	"testing"

	"procurepulse/aggregator-service/internal/dedup"
	"procurepulse/aggregator-service/internal/model"
)

func opp(state, title, solNum, agency, source string) *model.Opportunity {
	o := &model.Opportunity{
		State:              state,
		Title:              title,
		SolicitationNumber: solNum,
		Source:             source,
	}
	if agency != "" {
		o.Agency = &agency
	}
	return o
}

// ── IdentityKey ────────────────────────────────────────────────────────────

func TestIdentityKey_WithSolicitationNumber(t *testing.T) {
	a := opp("TX", "Janitorial services", "ABC-123", "DIR", "tx_esbd")
	if got := dedup.IdentityKey(a); got != "TX:ABC-123" {
		t.Errorf("IdentityKey = %q, want TX:ABC-123", got)
	}
}

// Solicitation numbers differing only by case must collide.
func TestIdentityKey_SolicitationNumberCaseInsensitive(t *testing.T) {
	a := opp("TX", "Janitorial services", "abc-123", "DIR", "tx_esbd")
	b := opp("TX", "Different title entirely", "ABC-123", "Other", "sam_gov")
	if dedup.IdentityKey(a) != dedup.IdentityKey(b) {
		t.Error("keys should match regardless of solicitation number case")
	}
}

func TestIdentityKey_FallbackIsStable(t *testing.T) {
	a := opp("FL", "Custodial services", "", "DMS", "fl_vendor_bid")
	b := opp("FL", "Custodial services", "", "DMS", "fl_vendor_bid")
	if dedup.IdentityKey(a) != dedup.IdentityKey(b) {
		t.Error("fallback key must be deterministic for identical inputs")
	}
}

func TestIdentityKey_FallbackIgnoresCase(t *testing.T) {
	a := opp("FL", "Custodial Services", "", "DMS", "fl_vendor_bid")
	b := opp("FL", "CUSTODIAL SERVICES", "", "dms", "fl_vendor_bid")
	if dedup.IdentityKey(a) != dedup.IdentityKey(b) {
		t.Error("fallback key must normalize title/agency case")
	}
}

func TestIdentityKey_FallbackDistinguishesStates(t *testing.T) {
	a := opp("FL", "Custodial services", "", "DMS", "fl_vendor_bid")
	b := opp("GA", "Custodial services", "", "DMS", "sam_gov")
	if dedup.IdentityKey(a) == dedup.IdentityKey(b) {
		t.Error("fallback keys for different states must differ")
	}
}

// A record with a solicitation number never shares a key with a
// fallback-hashed record.
func TestIdentityKey_NumberAndFallbackNeverCollide(t *testing.T) {
	a := opp("TX", "Custodial services", "ABC", "DIR", "tx_esbd")
	b := opp("TX", "Custodial services", "", "DIR", "tx_esbd")
	if dedup.IdentityKey(a) == dedup.IdentityKey(b) {
		t.Error("numbered and fallback keys must not collide")
	}
}

// ── Deduplicate ────────────────────────────────────────────────────────────

func TestDeduplicate_CollapsesSharedKey(t *testing.T) {
	batch := []*model.Opportunity{
		opp("TX", "Janitorial services", "ABC-123", "DIR", "tx_esbd"),
		opp("TX", "Janitorial services (federal listing)", "ABC-123", "GSA", "sam_gov"),
	}
	kept, dropped := dedup.Deduplicate(batch, []string{"tx_esbd", "sam_gov"})

	if len(kept) != 1 {
		t.Fatalf("kept %d records, want 1", len(kept))
	}
	if kept[0].Source != "tx_esbd" {
		t.Errorf("kept source = %s, want tx_esbd", kept[0].Source)
	}
	if dropped["sam_gov"] != 1 {
		t.Errorf("dropped[sam_gov] = %d, want 1", dropped["sam_gov"])
	}
}

// The higher-priority source wins even when it arrives second.
func TestDeduplicate_PriorityBeatsArrivalOrder(t *testing.T) {
	batch := []*model.Opportunity{
		opp("TX", "Janitorial services", "ABC-123", "GSA", "sam_gov"),
		opp("TX", "Janitorial services", "ABC-123", "DIR", "tx_esbd"),
	}
	kept, dropped := dedup.Deduplicate(batch, []string{"tx_esbd", "sam_gov"})

	if len(kept) != 1 {
		t.Fatalf("kept %d records, want 1", len(kept))
	}
	if kept[0].Source != "tx_esbd" {
		t.Errorf("kept source = %s, want tx_esbd", kept[0].Source)
	}
	if dropped["sam_gov"] != 1 {
		t.Errorf("dropped[sam_gov] = %d, want 1", dropped["sam_gov"])
	}
}

func TestDeduplicate_DistinctKeysUntouched(t *testing.T) {
	batch := []*model.Opportunity{
		opp("TX", "Janitorial services", "ABC-123", "DIR", "tx_esbd"),
		opp("TX", "Janitorial services", "XYZ-999", "DIR", "tx_esbd"),
		opp("CA", "Janitorial services", "ABC-123", "DGS", "ca_caleprocure"),
	}
	kept, dropped := dedup.Deduplicate(batch, nil)

	if len(kept) != 3 {
		t.Errorf("kept %d records, want 3", len(kept))
	}
	if len(dropped) != 0 {
		t.Errorf("dropped = %v, want empty", dropped)
	}
}

// Sources missing from the priority list rank below every listed source.
func TestDeduplicate_UnlistedSourceLoses(t *testing.T) {
	batch := []*model.Opportunity{
		opp("TX", "Janitorial services", "ABC-123", "Unknown", "mystery_source"),
		opp("TX", "Janitorial services", "ABC-123", "DIR", "tx_esbd"),
	}
	kept, _ := dedup.Deduplicate(batch, []string{"tx_esbd"})

	if len(kept) != 1 {
		t.Fatalf("kept %d records, want 1", len(kept))
	}
	if kept[0].Source != "tx_esbd" {
		t.Errorf("listed source should win over unlisted one, kept %s", kept[0].Source)
	}
}

// First record wins when two duplicates come from the same source.
func TestDeduplicate_SameSourceKeepsFirst(t *testing.T) {
	first := opp("TX", "Janitorial services", "ABC-123", "DIR", "tx_esbd")
	second := opp("TX", "Janitorial services updated", "ABC-123", "DIR", "tx_esbd")
	kept, dropped := dedup.Deduplicate([]*model.Opportunity{first, second}, nil)

	if len(kept) != 1 || kept[0] != first {
		t.Error("first occurrence from the same source should be kept")
	}
	if dropped["tx_esbd"] != 1 {
		t.Errorf("dropped[tx_esbd] = %d, want 1", dropped["tx_esbd"])
	}
}

func TestDeduplicate_EmptyBatch(t *testing.T) {
	kept, dropped := dedup.Deduplicate(nil, []string{"tx_esbd"})
	if len(kept) != 0 || len(dropped) != 0 {
		t.Errorf("empty batch should stay empty, got kept=%d dropped=%v", len(kept), dropped)
	}
}

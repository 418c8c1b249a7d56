package overlay

import "testing"

func TestNormalizeAddressStripsV4MappedAndLowercases(t *testing.T) {
	got := NormalizeAddress("::ffff:Peer1:26781")
	want := "peer1:26781"
	if got != want {
		t.Fatalf("NormalizeAddress() = %q, want %q", got, want)
	}
}

func TestNormalizeAddressPreservesScheme(t *testing.T) {
	got := NormalizeAddress("WS://Peer1:26781")
	want := "ws://peer1:26781"
	if got != want {
		t.Fatalf("NormalizeAddress() = %q, want %q", got, want)
	}
}

func TestHasPortAndHasScheme(t *testing.T) {
	if HasPort("peer1") {
		t.Fatal("HasPort(\"peer1\") = true, want false")
	}
	if !HasPort("peer1:9000") {
		t.Fatal("HasPort(\"peer1:9000\") = false, want true")
	}
	if !HasScheme("ws://peer1:9000") {
		t.Fatal("HasScheme(\"ws://peer1:9000\") = false, want true")
	}
	if HasScheme("peer1:9000") {
		t.Fatal("HasScheme(\"peer1:9000\") = true, want false")
	}
}

func TestExpandPortRangeBuildsEveryPort(t *testing.T) {
	got := ExpandPortRange("peer1", 9000, 9002)
	want := []string{"peer1:9000", "peer1:9001", "peer1:9002"}
	if len(got) != len(want) {
		t.Fatalf("ExpandPortRange() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ExpandPortRange()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCandidateQueueDedupesNormalizedSpellings(t *testing.T) {
	q := NewCandidateQueue()

	if !q.Offer(Candidate{Address: "::ffff:Peer1:26781"}) {
		t.Fatal("first offer should be new")
	}
	if q.Offer(Candidate{Address: "peer1:26781"}) {
		t.Fatal("equivalent spelling should be deduped")
	}
	if q.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", q.Len())
	}
}

func TestCandidateQueuePopIsFIFO(t *testing.T) {
	q := NewCandidateQueue()
	q.OfferAll([]Candidate{{Address: "a:1"}, {Address: "b:2"}})

	first, ok := q.Pop()
	if !ok || first.Address != "a:1" {
		t.Fatalf("Pop() = %+v, %v, want a:1, true", first, ok)
	}
	second, ok := q.Pop()
	if !ok || second.Address != "b:2" {
		t.Fatalf("Pop() = %+v, %v, want b:2, true", second, ok)
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("Pop() on empty queue should return false")
	}
}

func TestCandidateQueueForgetAllowsReoffer(t *testing.T) {
	q := NewCandidateQueue()
	q.Offer(Candidate{Address: "a:1"})
	q.DrainAll()

	if q.Offer(Candidate{Address: "a:1"}) {
		t.Fatal("offer should still be deduped before Forget")
	}
	q.Forget("a:1")
	if !q.Offer(Candidate{Address: "a:1"}) {
		t.Fatal("offer after Forget should succeed")
	}
}

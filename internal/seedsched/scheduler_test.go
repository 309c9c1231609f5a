package seedsched

import "testing"

// Invariant 4: given identical config and an identical call sequence, two
// independently constructed scheduler instances of the same kind produce
// identical Next() sequences and Stats.
func TestScheduler_Determinism(t *testing.T) {
	kinds := []Kind{KindQueue, KindHeap, KindUCBTree}
	for _, kind := range kinds {
		t.Run(string(kind), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Kind = kind

			a, err := New(cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			b, err := New(cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			sig := &RunResult{CoverageKey: "cov:A", BugKey: "none"}
			for _, s := range []Scheduler{a, b} {
				s.Add(Seed{ID: 1}, sig)
				s.Add(Seed{ID: 2}, sig)
				s.Add(Seed{ID: 3}, sig)
			}

			for i := 0; i < 6; i++ {
				itemA, okA := a.Next()
				itemB, okB := b.Next()
				if okA != okB {
					t.Fatalf("call %d: Next() ok mismatch a=%v b=%v", i, okA, okB)
				}
				if !okA {
					break
				}
				if itemA.Seed.ID != itemB.Seed.ID {
					t.Fatalf("call %d: seed mismatch a=%d b=%d", i, itemA.Seed.ID, itemB.Seed.ID)
				}
				if err := a.Update(itemA, 0.5, RunResult{NewCoverage: true}); err != nil {
					t.Fatalf("update a: %v", err)
				}
				if err := b.Update(itemB, 0.5, RunResult{NewCoverage: true}); err != nil {
					t.Fatalf("update b: %v", err)
				}
			}

			statsA, statsB := a.Stats(), b.Stats()
			if statsA.Size != statsB.Size || statsA.TotalLeased != statsB.TotalLeased || statsA.TotalUpdated != statsB.TotalUpdated {
				t.Errorf("stats diverged: a=%+v b=%+v", statsA, statsB)
			}
		})
	}
}

// Invariant 3: for the UCB backend, N(parent) == sum of N(children) after
// any sequence of updates, since every reward event walks a full
// leaf-to-root path.
func TestScheduler_UCBParentCountsSumOfChildren(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Kind = KindUCBTree
	s, _ := New(cfg)

	sigA := &RunResult{CoverageKey: "cov:A", BugKey: "none"}
	sigB := &RunResult{CoverageKey: "cov:B", BugKey: "none"}
	s.Add(Seed{ID: 1}, sigA)
	s.Add(Seed{ID: 2}, sigA)
	s.Add(Seed{ID: 3}, sigB)

	for i := 0; i < 5; i++ {
		item, ok := s.Next()
		if !ok {
			break
		}
		s.Update(item, 0, RunResult{NewCoverage: i%2 == 0})
	}

	tree := s.(*ucbTreeScheduler)
	var checkSum func(node *ucbNode)
	checkSum = func(node *ucbNode) {
		if len(node.childOrd) == 0 {
			return
		}
		var sum int64
		for _, key := range node.childOrd {
			child := node.children[key]
			sum += child.n
			checkSum(child)
		}
		if sum != node.n {
			t.Errorf("node %q: N=%d but children sum to %d", node.fullPath, node.n, sum)
		}
	}
	checkSum(tree.root)
}

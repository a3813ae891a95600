package connmap

import (
	"testing"

	"github.com/mstoeckl/waypipe-go/internal/token"
)

func TestAddPreservesArrivalOrder(t *testing.T) {
	m := New()
	for i := 0; i < 5; i++ {
		m.Add(&Row{ChildPID: i})
	}
	rows := m.Rows()
	for i, r := range rows {
		if r.ChildPID != i {
			t.Errorf("row %d has ChildPID %d, want %d", i, r.ChildPID, i)
		}
	}
}

func TestRemoveByPIDRemovesExactlyOneRow(t *testing.T) {
	m := New()
	m.Add(&Row{ChildPID: 1})
	m.Add(&Row{ChildPID: 2})
	m.Add(&Row{ChildPID: 3})

	row, found := m.RemoveByPID(2)
	if !found || row.ChildPID != 2 {
		t.Fatalf("RemoveByPID(2) = %v, %v", row, found)
	}
	if m.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", m.Len())
	}
	if _, found := m.RemoveByPID(2); found {
		t.Errorf("removed row should not be found again")
	}
}

func TestQuarantineDoesNotRemoveRow(t *testing.T) {
	m := New()
	row := &Row{Token: token.Mint(token.Token{}, true, false), ChildPID: 7}
	m.Add(row)
	m.Quarantine(row)
	if m.Len() != 1 {
		t.Fatalf("quarantining should not remove the row")
	}
	if !m.Rows()[0].Quarantined {
		t.Errorf("row should be marked quarantined")
	}
}

func TestReapExitedRemovesEveryReadyChild(t *testing.T) {
	m := New()
	m.Add(&Row{ChildPID: 10})
	m.Add(&Row{ChildPID: 11})
	m.Add(&Row{ChildPID: 12})

	ready := []int{10, 12}
	wait := func() (int, int, bool) {
		if len(ready) == 0 {
			return 0, 0, false
		}
		pid := ready[0]
		ready = ready[1:]
		return pid, 0, true
	}

	removed := ReapExited(m, wait)
	if len(removed) != 2 {
		t.Fatalf("removed %d rows, want 2", len(removed))
	}
	if m.Len() != 1 || m.Rows()[0].ChildPID != 11 {
		t.Errorf("unexpected remaining rows: %+v", m.Rows())
	}
}

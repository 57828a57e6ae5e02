package nodetable_test

import (
	"testing"

	"github.com/alxayo/go-replay/internal/replay/nodetable"
	"github.com/alxayo/go-replay/internal/replay/notify"
	"github.com/alxayo/go-replay/internal/replay/record"
)

type removeSink struct {
	notify.NopSink
	removed []string
}

func (s *removeSink) OnNodeRemoved(name string) error {
	s.removed = append(s.removed, name)
	return nil
}

func TestAddFindRemove(t *testing.T) {
	sink := &removeSink{}
	table := nodetable.New(4, nil, sink)

	row := table.Add(1, "depth", record.NodeTypeDepth)
	if row == nil || !row.Valid || !row.IsGenerator {
		t.Fatalf("expected valid generator row, got %+v", row)
	}
	if table.FindByName("depth") != row {
		t.Fatalf("expected FindByName to return the added row")
	}

	if err := table.Remove(1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if table.FindByName("depth") != nil {
		t.Fatalf("expected FindByName to miss after remove")
	}
	if len(sink.removed) != 1 || sink.removed[0] != "depth" {
		t.Fatalf("expected OnNodeRemoved(depth), got %v", sink.removed)
	}
	if row.Valid {
		t.Fatalf("expected row invalidated after remove")
	}
}

func TestAddOutOfRangeReturnsNil(t *testing.T) {
	table := nodetable.New(2, nil, notify.NopSink{})
	if row := table.Add(5, "x", record.NodeTypeDepth); row != nil {
		t.Fatalf("expected nil row for out-of-range id, got %+v", row)
	}
}

func TestGeneratorsAndAllFilterInvalid(t *testing.T) {
	table := nodetable.New(4, nil, notify.NopSink{})
	table.Add(0, "depth", record.NodeTypeDepth)
	table.Add(1, "audio", record.NodeTypeAudio)

	gens := table.Generators()
	if len(gens) != 1 || gens[0].Name != "depth" {
		t.Fatalf("expected one generator (depth), got %+v", gens)
	}

	all := table.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 valid rows, got %d", len(all))
	}
}

func TestResetAllInvalidatesEverything(t *testing.T) {
	table := nodetable.New(4, nil, notify.NopSink{})
	table.Add(0, "depth", record.NodeTypeDepth)
	table.ResetAll()
	if table.FindByName("depth") != nil {
		t.Fatalf("expected no valid rows after ResetAll")
	}
	if row := table.Get(0); row.Valid {
		t.Fatalf("expected row 0 invalid after ResetAll")
	}
}

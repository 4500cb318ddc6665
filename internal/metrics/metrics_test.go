package metrics

import (
	"strings"
	"testing"
)

func TestRegistryCounters(t *testing.T) {
	registry := &Registry{}
	registry.IncEditCreated()
	registry.IncEditCreated()
	registry.IncEditDeleted()
	registry.IncTaskExecuted()
	registry.IncTaskFailed()
	registry.AddActiveWatches(3)
	registry.AddActiveWatches(-1)

	snapshot := registry.Snapshot()
	if snapshot.EditsCreated != 2 {
		t.Fatalf("expected 2 creations, got %d", snapshot.EditsCreated)
	}
	if snapshot.EditsDeleted != 1 {
		t.Fatalf("expected 1 deletion, got %d", snapshot.EditsDeleted)
	}
	if snapshot.TaskFailures != 1 {
		t.Fatalf("expected 1 task failure, got %d", snapshot.TaskFailures)
	}
	if snapshot.ActiveWatches != 2 {
		t.Fatalf("expected 2 active watches, got %d", snapshot.ActiveWatches)
	}
}

func TestRegistryBusStatsInDump(t *testing.T) {
	registry := &Registry{}
	registry.IncBusPublished("creations")
	registry.IncBusPublished("creations")
	registry.IncBusDropped("creations")
	registry.SetBusSubscribers("creations", 4)
	registry.IncBusEvent("creations", "edit_creation")

	builder := &strings.Builder{}
	registry.Dump(builder)
	output := builder.String()

	for _, line := range []string{
		`bus_published{bus="creations"} 2`,
		`bus_dropped{bus="creations"} 1`,
		`bus_subscribers{bus="creations"} 4`,
		`bus_events{bus="creations",type="edit_creation"} 1`,
	} {
		if !strings.Contains(output, line) {
			t.Fatalf("dump missing %q:\n%s", line, output)
		}
	}
}

func TestNilRegistryIsSafe(t *testing.T) {
	var registry *Registry
	registry.IncEditCreated()
	registry.IncBusPublished("x")
	registry.IncBusEvent("x", "edit_creation")
	registry.Dump(nil)
	if snapshot := registry.Snapshot(); snapshot.EditsCreated != 0 {
		t.Fatalf("nil registry should report zero counters")
	}
}

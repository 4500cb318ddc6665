package metrics

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"
)

// Registry accumulates process-local counters for the watch engine.
// All methods are safe for concurrent use and tolerate a nil receiver.
type Registry struct {
	editsCreated   atomic.Int64
	editsDeleted   atomic.Int64
	editsModified  atomic.Int64
	tasksExecuted  atomic.Int64
	taskFailures   atomic.Int64
	batchesEmitted atomic.Int64
	overflows      atomic.Int64
	activeWatches  atomic.Int64
	buses          sync.Map
}

type busStats struct {
	published   atomic.Int64
	dropped     atomic.Int64
	subscribers atomic.Int64
	events      sync.Map
}

var Default = &Registry{}

func (registry *Registry) IncEditCreated() {
	if registry == nil {
		return
	}
	registry.editsCreated.Add(1)
}

func (registry *Registry) IncEditDeleted() {
	if registry == nil {
		return
	}
	registry.editsDeleted.Add(1)
}

func (registry *Registry) IncEditModified() {
	if registry == nil {
		return
	}
	registry.editsModified.Add(1)
}

func (registry *Registry) IncTaskExecuted() {
	if registry == nil {
		return
	}
	registry.tasksExecuted.Add(1)
}

func (registry *Registry) IncTaskFailed() {
	if registry == nil {
		return
	}
	registry.taskFailures.Add(1)
}

func (registry *Registry) IncBatchEmitted() {
	if registry == nil {
		return
	}
	registry.batchesEmitted.Add(1)
}

func (registry *Registry) IncOverflow() {
	if registry == nil {
		return
	}
	registry.overflows.Add(1)
}

func (registry *Registry) AddActiveWatches(delta int) {
	if registry == nil {
		return
	}
	registry.activeWatches.Add(int64(delta))
}

func (registry *Registry) IncBusPublished(bus string) {
	if registry == nil {
		return
	}
	registry.statsFor(bus).published.Add(1)
}

func (registry *Registry) IncBusDropped(bus string) {
	if registry == nil {
		return
	}
	registry.statsFor(bus).dropped.Add(1)
}

// IncBusEvent counts a published value that carries a type tag.
func (registry *Registry) IncBusEvent(bus, eventType string) {
	if registry == nil || eventType == "" {
		return
	}
	stats := registry.statsFor(bus)
	counter, ok := stats.events.Load(eventType)
	if !ok {
		counter, _ = stats.events.LoadOrStore(eventType, &atomic.Int64{})
	}
	counter.(*atomic.Int64).Add(1)
}

func (registry *Registry) SetBusSubscribers(bus string, count int) {
	if registry == nil {
		return
	}
	registry.statsFor(bus).subscribers.Store(int64(count))
}

func (registry *Registry) statsFor(bus string) *busStats {
	if bus == "" {
		bus = "unknown"
	}
	if stats, ok := registry.buses.Load(bus); ok {
		return stats.(*busStats)
	}
	stats, _ := registry.buses.LoadOrStore(bus, &busStats{})
	return stats.(*busStats)
}

// Snapshot reports the current counter values.
type Snapshot struct {
	EditsCreated   int64
	EditsDeleted   int64
	EditsModified  int64
	TasksExecuted  int64
	TaskFailures   int64
	BatchesEmitted int64
	Overflows      int64
	ActiveWatches  int64
}

func (registry *Registry) Snapshot() Snapshot {
	if registry == nil {
		return Snapshot{}
	}
	return Snapshot{
		EditsCreated:   registry.editsCreated.Load(),
		EditsDeleted:   registry.editsDeleted.Load(),
		EditsModified:  registry.editsModified.Load(),
		TasksExecuted:  registry.tasksExecuted.Load(),
		TaskFailures:   registry.taskFailures.Load(),
		BatchesEmitted: registry.batchesEmitted.Load(),
		Overflows:      registry.overflows.Load(),
		ActiveWatches:  registry.activeWatches.Load(),
	}
}

// Dump writes all counters in a stable text form.
func (registry *Registry) Dump(w io.Writer) {
	if registry == nil || w == nil {
		return
	}
	snapshot := registry.Snapshot()
	fmt.Fprintf(w, "edits_created %d\n", snapshot.EditsCreated)
	fmt.Fprintf(w, "edits_deleted %d\n", snapshot.EditsDeleted)
	fmt.Fprintf(w, "edits_modified %d\n", snapshot.EditsModified)
	fmt.Fprintf(w, "tasks_executed %d\n", snapshot.TasksExecuted)
	fmt.Fprintf(w, "task_failures %d\n", snapshot.TaskFailures)
	fmt.Fprintf(w, "batches_emitted %d\n", snapshot.BatchesEmitted)
	fmt.Fprintf(w, "overflows %d\n", snapshot.Overflows)
	fmt.Fprintf(w, "active_watches %d\n", snapshot.ActiveWatches)

	names := make([]string, 0)
	registry.buses.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	for _, name := range names {
		stats := registry.statsFor(name)
		fmt.Fprintf(w, "bus_published{bus=%q} %d\n", name, stats.published.Load())
		fmt.Fprintf(w, "bus_dropped{bus=%q} %d\n", name, stats.dropped.Load())
		fmt.Fprintf(w, "bus_subscribers{bus=%q} %d\n", name, stats.subscribers.Load())

		types := make([]string, 0)
		stats.events.Range(func(key, _ any) bool {
			types = append(types, key.(string))
			return true
		})
		sort.Strings(types)
		for _, eventType := range types {
			counter, _ := stats.events.Load(eventType)
			fmt.Fprintf(w, "bus_events{bus=%q,type=%q} %d\n", name, eventType, counter.(*atomic.Int64).Load())
		}
	}
}

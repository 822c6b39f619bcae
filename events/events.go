// Package events defines the event shape spec §6 specifies
// ("{operation: enum, data: map}") and the Monitor channel idiom C7's
// worker uses to report progress, done, and error back to the caller.
//
// Grounded on api/rio/rioCmds.go's Monitor/Event types, adapted from rio's
// Progress/Result union (which carries a WareID result) to vault's simpler
// {operation, data} payload shape (spec §6).
package events

// Operation names one of the engine's C6 verbs, used both to route a
// request to the worker and to tag the events it produces.
type Operation string

const (
	OpConnect             Operation = "connect"
	OpBackup              Operation = "backup"
	OpRestore             Operation = "restore"
	OpRemoveSnapshot      Operation = "remove-snapshot"
	OpExportImportPrepare Operation = "export-import-prepare"
	OpExportImportExecute Operation = "export-import-execute"
	OpResolveBlob         Operation = "resolve-blob"
)

// Kind distinguishes the three event shapes an operation may emit.
type Kind string

const (
	KindProgress Kind = "progress"
	KindDone     Kind = "done"
	KindError    Kind = "error"
)

// Event is the single concrete message type sent over a Monitor's channel.
// Data is a loosely-typed payload map, matching spec §6: progress data
// includes {unit, stage, ...}; error data includes {msg, error, ...paths}.
type Event struct {
	Operation Operation
	Kind      Kind
	Data      map[string]interface{}
}

// Monitor is the channel a caller supplies to receive Events for one
// submitted operation. A nil Chan disables reporting, same as rio's
// Monitor.Chan contract.
type Monitor struct {
	Chan chan<- Event
}

func (m Monitor) send(e Event) {
	if m.Chan == nil {
		return
	}
	m.Chan <- e
}

// Progress emits a progress event with the given data fields.
func (m Monitor) Progress(op Operation, data map[string]interface{}) {
	m.send(Event{Operation: op, Kind: KindProgress, Data: data})
}

// Done emits a done event.
func (m Monitor) Done(op Operation, data map[string]interface{}) {
	m.send(Event{Operation: op, Kind: KindDone, Data: data})
}

// Error emits an error event.
func (m Monitor) Error(op Operation, data map[string]interface{}) {
	m.send(Event{Operation: op, Kind: KindError, Data: data})
}

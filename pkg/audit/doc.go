// Package audit records mutating actions for traceability and the activity feed.
//
// # Overview
//
// Every mutating route is wrapped by Recorder.Audited with a declared action
// name. When the wrapped handler answers with a 2xx status the wrapper emits
// exactly one Entry; failed requests are not recorded. Handlers attach
// route-specific metadata with Annotate:
//
//	router.Handle("/api/inventory", recorder.Audited("CREATE_INVENTORY")(createItem))
//
//	func createItem(w http.ResponseWriter, r *http.Request) {
//		item := ...
//		audit.Annotate(r.Context(), "itemId", item.ID)
//		httputil.WriteCreated(w, item)
//	}
//
// # Delivery
//
// Recording is best effort. Entries are handed to a Dispatcher which writes
// them to the sink in the background; a full buffer drops the entry and a
// failing sink is logged, so neither can change the response the caller sees.
// Close drains whatever is still buffered.
//
// # Sinks
//
// DBLogger appends to the audit_logs table in PostgreSQL. MemoryLogger keeps
// entries in process and is used by tests and single-node development setups.
package audit

// Package fault defines the failure taxonomy of the document gateway.
//
// # Kinds
//
// Every failure that can reach an HTTP handler carries one of a small set of
// kinds:
//
//   - BadInput: the submission itself is malformed (unreadable archive, broken multipart)
//   - CompilationFailed: the submission is well formed but the template or data is invalid
//   - UnsupportedFormat: the requested target format is unknown
//   - BackendUnavailable: the renderer or converter cannot service requests right now
//   - Generic: anything else
//   - Disconnected: the peer went away mid-request; not an error for the caller
//
// Collaborators tag their errors with New or Wrap. Handlers recover the kind
// with KindOf, which walks the wrap chain with errors.As.
//
// # Classification
//
// Classify maps an error onto the wire:
//
//	BadInput           -> 400
//	CompilationFailed  -> 422
//	UnsupportedFormat  -> 501
//	BackendUnavailable -> 503
//	everything else    -> 500
//
// The message is the error text, or the literal "null" when there is none.
// Disconnected errors are filtered out by the handlers before they get here.
package fault

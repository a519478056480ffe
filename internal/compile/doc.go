// Package compile dispatches template packages to the rendering backend.
//
// # Overview
//
// The Dispatcher turns a CompilationRequest (a template package stream, a
// target format and the embed-errors flag) into an artifact.Result:
//
//  1. spool the submission into a private workspace (raw body or the first
//     file part of a multipart/form-data body)
//  2. check the package is a readable zip archive
//  3. resolve the target format
//  4. render the template to ODT through the Renderer
//  5. convert to the target format through the Converter, unless it is ODT
//
// Failures carry fault kinds: BadInput for unreadable submissions,
// UnsupportedFormat for unknown formats, and whatever kind the collaborators
// report (CompilationFailed, BackendUnavailable, ...). The workspace is
// removed on every failure; on success it is owned by the returned result.
//
// # Backend calls
//
// Backend calls are detached from the request context: a client hanging up
// does not cancel an in-flight render. They are bounded by the configured
// backend timeout instead. The dispatcher never retries.
//
// # Variables
//
// Vars spools and validates a package the same way, asks the Renderer for
// the variable names it references, and keeps the ones matching a prefix.
package compile

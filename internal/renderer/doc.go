// Package renderer is the HTTP client for the template render service.
//
// The render service compiles a zipped template package into an ODT
// document and lists the variables a template references. Its status codes
// are translated into fault kinds so the gateway can classify them the same
// way as local failures:
//
//	400            -> fault.BadInput
//	422            -> fault.CompilationFailed
//	501            -> fault.UnsupportedFormat
//	502, 503, 504  -> fault.BackendUnavailable
//	anything else  -> fault.Generic
//
// Transport errors are reported as fault.BackendUnavailable.
package renderer

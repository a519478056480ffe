// Package office adapts a headless office suite to the gateway.
//
// It converts rendered ODT documents into other formats by running the
// office binary in headless mode, and serves the editor extension
// installers kept under the configured extensions directory.
package office

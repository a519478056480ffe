// Package gateway wires the document gateway's HTTP surface together.
//
// # Routes
//
//	GET  /api, /          capability page (HTML)
//	GET  /how-it-works    walkthrough PDF, ?inline to display in the browser
//	GET  /example         compiled example PDF, ?raw for the template, ?inline
//	POST /compile         compile a template package, ?format=pdf, ?error
//	GET  /extension       editor extension installer, ?os=linux|windows|mac
//	POST /vars            template variables as a JSON array, ?prefix=
//
// Ambient routes: /health, /health/ready, the metrics endpoint, /api/stats
// and /static/ when a static directory is configured.
//
// # Failure policy
//
// The demo routes (capability page, walkthrough, example, extension) answer
// every failure with a bodiless 404. Compile and vars failures are
// classified by the fault package into a status code and a plain-text
// message. A client that hangs up is never answered; the connection is
// dropped and the compiled artifact is still released.
//
// # Concurrency
//
// Every route runs inside the bounded worker pool, so a request is handled
// start to finish by one worker. A caller that gives up while queued is
// dropped; after shutdown begins requests are answered with 503.
package gateway

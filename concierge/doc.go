// Package concierge implements the real-estate business layer on top of the
// generic agent framework: task kinds for replying, searching the listing
// catalog and booking property visits, plus the validating merge agent that
// enforces the concierge's reply style.
//
// External capabilities (catalog, appointment book, owner notification) are
// consumed through small interfaces; in-memory implementations ship for
// tests and demos. Every write performed mid-cycle is tagged with the
// executionID so an aborted cycle's cleanup can find and reverse it.
package concierge

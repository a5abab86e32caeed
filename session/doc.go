// Package session defines the conversation history boundary and its concrete
// implementations. Agents read recent history through the Store interface to
// keep replies coherent across cycles; the queue appends the batch and the
// final reply after a successful cycle.
//
// Additional backends (the Redis store lives in the redis sub-package) can be
// added without changing any calling code – only the wiring layer needs to
// decide which implementation to instantiate.
package session

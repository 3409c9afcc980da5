// Package indiserver is a pure Go implementation of an INDI server. It
// speaks indiserver protocol version 1.7 to any number of clients while
// hosting in-process drivers, forked external driver subprocesses, and
// bridged remote servers as a single device space.
//
// See http://indilib.org/develop/developer-manual/106-client-development.html
//
// See http://www.clearskyinstitute.com/INDI/INDI.pdf
//
// A device belongs to exactly one owner for its entire lifetime; a
// second owner announcing the same device name is treated as a
// configuration mistake and brings the whole server down rather than
// silently routing traffic to the wrong place.
package indiserver

// Per-client authentication is out of scope: any TCP peer that can reach
// the listener is treated as a trusted client.

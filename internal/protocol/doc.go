// Package protocol defines the records exchanged between the host and the
// renderer process.
//
// A record is a tag plus a fixed positional argument list. On the wire each
// record is one JSON object:
//
//	{"browser":"brw_01H...","tag":"invoke","args":["<target>","log",["hello"]]}
//
// Records are decoded once, at the channel boundary, into one Go struct per
// tag (the Message implementations in message.go). Dispatchers switch on the
// concrete type.
//
// Argument values are restricted to null, bool, int, float, string and nested
// lists (Value). Integers and floats keep their kind across a round trip.
package protocol

// Package value implements the dynamically-typed data model exchanged with
// out-of-process pipeline plugins.
//
// A Value is a tagged union over exactly nine kinds: null, string, int64,
// double, bool, timestamp, bytes, struct, and list. Struct and list payloads
// contain Values recursively, so arbitrarily nested documents can cross the
// plugin boundary without a schema.
//
// Design principles:
//   - Type-strict: an int64 Value and a double Value never compare equal,
//     even when their numeric magnitudes match.
//   - Structural equality: struct comparison ignores key order, list
//     comparison respects element order.
//   - Exact round-trip: Encode followed by Decode reproduces the original
//     Value for every kind, including timestamps at nanosecond precision.
//
// Values convert to and from native Go representations (nested
// map[string]any / []any / scalars) for use by in-process components, and to
// and from wire bytes (CBOR) for the plugin transport.
package value

// Package ir provides the constrained value model shared by scenarios,
// tree snapshots and the pass journal, plus its canonical JSON form.
//
// ir imports nothing internal. Key constraints:
//   - NO float types: numbers are int64, so encodings are exact
//   - Object keys serialize in RFC 8785 order (UTF-16 code units)
//   - Strings are NFC-normalized at the serialization boundary, so two
//     scenario files differing only in Unicode composition produce the
//     same golden bytes
package ir

// Package core loads CSV files into relational tables.
//
// The package is independent of any transport or storage backend. Web
// handlers, the CLI and tests all drive it through the same calls:
//
//  1. [ValidateIdentifier] and [ValidateQualifiedTable] accept only plain
//     identifiers, which makes table and column names safe to place in SQL.
//  2. [ParseType] is the one place that decides whether type text is
//     supported.
//  3. [ValidateMappings] checks a mapping against the schema and the CSV
//     header and reports every problem at once.
//  4. [Loader] streams the file in chunks, casts each cell with [Cast] and
//     inserts through a [Store] inside a single transaction.
//
// # Failure classes
//
// Callers can tell three kinds of failure apart with errors.As:
//
//   - *ValidationError: the request is wrong. Nothing reached the store.
//   - *ConversionError: the data did not convert. The load was rolled back.
//   - *StoreError: the store rejected an operation. The load was rolled back.
//
// [MapError] turns any of them into a user-facing message with a support
// code.
//
// # Service
//
// [Service] wraps the steps above for uploaded files: it resolves the
// schema, reads the header, validates, limits concurrency and records
// metrics.
package core

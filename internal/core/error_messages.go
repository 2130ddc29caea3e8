// Package core error codes.
//
// Errors shown to users carry a short code that support staff can look up
// here. Core error types are classified first with errors.Is/errors.As;
// anything else (driver errors in particular) falls back to case-insensitive
// substring patterns, first match wins.
//
// # Validation (VAL)
//
//	VAL001 - mapping or schema has one or more problems (*ValidationError)
//	VAL002 - table name is not schema.table or [schema].[table]
//	VAL003 - column name is not a valid identifier
//	VAL004 - type is not supported
//
// # Conversion (CNV)
//
//	CNV001 - one or more cells could not be cast (*ConversionError)
//
// # Store (DB)
//
//	DB001 - duplicate key / primary key violation
//	DB002 - unique constraint
//	DB003 - foreign key
//	DB004 - connection refused
//	DB005 - connection reset
//	DB006 - timeout
//	DB007 - deadlock
//	DB008 - value longer than the column allows
//	DB009 - numeric overflow
//	DB010 - table or schema does not exist
//	DB011 - store rejected a value for its column type
//	DB000 - any other *StoreError
//
// # Files, schemas, capacity
//
//	FILE001 - uploaded file not found
//	FILE002 - file too large
//	FILE003 - not a .csv file
//	FILE004 - no header row
//	SCH001  - schema not found
//	SCH002  - invalid schema name
//	SCH003  - schema file is malformed
//	RATE001 - request rate limited
//	RATE002 - too many concurrent loads
//	REQ001  - request cancelled
//	REQ002  - request timed out
//	ERR000  - anything else
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorKind matches a core error by identity or type.
type errorKind struct {
	match func(error) bool
	msg   UserMessage
}

func isErr(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

func asErr[T error]() func(error) bool {
	return func(err error) bool {
		var target T
		return errors.As(err, &target)
	}
}

var errorKinds = []errorKind{
	{isErr(ErrTooManyLoads), UserMessage{"The system is busy processing other loads", "Please wait a moment and try again", "RATE002"}},
	{isErr(ErrFileNotFound), UserMessage{"Uploaded file not found", "Upload the file again", "FILE001"}},
	{isErr(ErrNoHeader), UserMessage{"The CSV file has no header row", "Add a header row naming each column", "FILE004"}},
	{isErr(ErrSchemaNotFound), UserMessage{"Schema not found", "Check the schema name against the schema list", "SCH001"}},
	{isErr(ErrInvalidSchemaName), UserMessage{"Invalid schema name", "Use letters, digits, '_', '-' or '.' with a .txt, .json or .yaml extension", "SCH002"}},
	{asErr[*ValidationError](), UserMessage{"The mapping or schema is invalid", "Fix every listed problem and resubmit", "VAL001"}},
	{isErr(ErrInvalidTableName), UserMessage{"Invalid table name", "Use schema.table or [schema].[table]", "VAL002"}},
	{isErr(ErrInvalidIdentifier), UserMessage{"Invalid column name", "Use letters, digits and underscores, starting with a letter or underscore", "VAL003"}},
	{isErr(ErrUnsupportedType), UserMessage{"Unsupported column type", "Use INT, BIGINT, FLOAT, REAL, BIT, DATE, DATETIME, DATETIME2, DECIMAL(p,s), NUMERIC(p,s), VARCHAR(n), NVARCHAR(n) or CHAR(n)", "VAL004"}},
	{asErr[*ConversionError](), UserMessage{"Some values could not be converted to their column types", "Fix the listed rows or change the mapping, then resubmit", "CNV001"}},
	{isErr(context.Canceled), UserMessage{"Request was cancelled", "Please try again", "REQ001"}},
	{isErr(context.DeadlineExceeded), UserMessage{"Request timed out", "Try a smaller file or try again later", "REQ002"}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps driver and collaborator messages (lowercase) to user
// messages. More specific patterns come first.
var errorPatterns = []errorPattern{
	// Constraints
	{"violation of primary key", UserMessage{"A record with this key already exists", "Remove duplicate keys from the file or the table", "DB001"}},
	{"duplicate key", UserMessage{"A record with this key already exists", "Remove duplicate keys from the file or the table", "DB001"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Check for duplicate entries in your CSV", "DB002"}},
	{"violates unique", UserMessage{"A duplicate value was found", "Review your data for duplicate key values", "DB002"}},
	{"foreign key", UserMessage{"Referenced record does not exist", "Load parent records first", "DB003"}},

	// Connectivity
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB006"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},

	// Value rejected by the store
	{"would be truncated", UserMessage{"A value is longer than its column allows", "Shorten the value or widen the column", "DB008"}},
	{"value too long", UserMessage{"A value is longer than its column allows", "Shorten the value or widen the column", "DB008"}},
	{"arithmetic overflow", UserMessage{"A number is too large for its column", "Check numeric values against the column type", "DB009"}},
	{"out of range", UserMessage{"A number is too large for its column", "Check numeric values against the column type", "DB009"}},
	{"invalid object name", UserMessage{"Table or schema does not exist", "Create the database schema or check the table name", "DB010"}},
	{"does not exist", UserMessage{"Table or schema does not exist", "Create the database schema or check the table name", "DB010"}},
	{"no such table", UserMessage{"Table does not exist", "Check the table name", "DB010"}},
	{"invalid input syntax", UserMessage{"The database rejected a value for its column type", "Check that the mapping types match the existing table", "DB011"}},
	{"operand type clash", UserMessage{"The database rejected a value for its column type", "Check that the mapping types match the existing table", "DB011"}},

	// Files and schemas
	{"file too large", UserMessage{"File exceeds the maximum upload size", "Split the file into smaller files", "FILE002"}},
	{"only .csv", UserMessage{"Only .csv files are supported", "Save the file as CSV and upload it again", "FILE003"}},
	{"invalid schema file", UserMessage{"The schema file is malformed", "Fix the schema file; see the server log for details", "SCH003"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

// storeFallback is used for a *StoreError no pattern recognizes.
var storeFallback = UserMessage{
	Message: "The database rejected the load",
	Action:  "Nothing was written. Contact an operator if this persists",
	Code:    "DB000",
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, k := range errorKinds {
		if k.match(err) {
			return k.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeFallback
	}
	return defaultMessage
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something more specific than
// ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error with the message shown for it.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}

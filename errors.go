package binlog

import "fmt"

// BadMagicError is returned when a byte source does not begin with the
// binlog magic number (0xFE 0x62 0x69 0x6E).
type BadMagicError struct {
	Got []byte
}

func (e *BadMagicError) Error() string {
	return fmt.Sprintf("binlog: bad magic number %x", e.Got)
}

// BadFirstRecordError is returned when the first event in a binlog is missing
// or is not a Format Description Event, or declares an unsupported binlog
// version. A Format Description Event whose body cannot be decoded yields an
// EventParseError instead.
type BadFirstRecordError struct {
	Reason string
}

func (e *BadFirstRecordError) Error() string {
	return fmt.Sprintf("binlog: bad first record: %s", e.Reason)
}

// OpenError wraps a failure to open a binlog source (open, decompress).
type OpenError struct {
	Path string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("binlog: open %s: %v", e.Path, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// IoError wraps an underlying I/O failure encountered while reading events.
type IoError struct {
	Err error
}

func (e *IoError) Error() string { return fmt.Sprintf("binlog: io: %v", e.Err) }

func (e *IoError) Unwrap() error { return e.Err }

// EventParseError is returned when an event's header or body cannot be
// decoded according to its declared type and length.
type EventParseError struct {
	EventType EventType
	Offset    uint32
	Err       error
}

func (e *EventParseError) Error() string {
	return fmt.Sprintf("binlog: parse %s event at offset %d: %v", e.EventType, e.Offset, e.Err)
}

func (e *EventParseError) Unwrap() error { return e.Err }

// ColumnParseKind classifies why a column value could not be decoded.
type ColumnParseKind int

const (
	// ColumnParseUnimplementedType means the column's MySQL type is
	// recognized but intentionally not decoded (tiny/medium/long blob,
	// varstring, bit, geometry, legacy date, decimal v1, and similar).
	ColumnParseUnimplementedType ColumnParseKind = iota
	ColumnParseJSON
	ColumnParseDecimal
	ColumnParseIo
)

// ColumnParseError is returned by Column.decodeValue when a column's raw
// bytes cannot be turned into a normalized value.
type ColumnParseError struct {
	Kind ColumnParseKind
	Type ColumnType
	Err  error
}

func (e *ColumnParseError) Error() string {
	switch e.Kind {
	case ColumnParseUnimplementedType:
		return fmt.Sprintf("binlog: decode of mysql type %s is not implemented", e.Type)
	case ColumnParseJSON:
		return fmt.Sprintf("binlog: decode of mysql type %s: json: %v", e.Type, e.Err)
	case ColumnParseDecimal:
		return fmt.Sprintf("binlog: decode of mysql type %s: decimal: %v", e.Type, e.Err)
	default:
		return fmt.Sprintf("binlog: decode of mysql type %s: %v", e.Type, e.Err)
	}
}

func (e *ColumnParseError) Unwrap() error { return e.Err }

func unimplementedType(t ColumnType) error {
	return &ColumnParseError{Kind: ColumnParseUnimplementedType, Type: t}
}

// JsonErrorKind classifies a JSON-document decode failure.
type JsonErrorKind int

const (
	JsonErrorInvalidTypeByte JsonErrorKind = iota
	JsonErrorInvalidLiteral
	JsonErrorIo
	JsonErrorEncoding
	JsonErrorOpaqueColumn
)

// JsonError is returned by the JSON-document decoder.
type JsonError struct {
	Kind JsonErrorKind
	Err  error
}

func (e *JsonError) Error() string {
	switch e.Kind {
	case JsonErrorInvalidTypeByte:
		return fmt.Sprintf("binlog: json: invalid type byte: %v", e.Err)
	case JsonErrorInvalidLiteral:
		return fmt.Sprintf("binlog: json: invalid literal: %v", e.Err)
	case JsonErrorEncoding:
		return fmt.Sprintf("binlog: json: encoding: %v", e.Err)
	case JsonErrorOpaqueColumn:
		return fmt.Sprintf("binlog: json: opaque column: %v", e.Err)
	default:
		return fmt.Sprintf("binlog: json: io: %v", e.Err)
	}
}

func (e *JsonError) Unwrap() error { return e.Err }

// DecimalErrorKind classifies a packed-decimal decode failure.
type DecimalErrorKind int

const (
	DecimalErrorIo DecimalErrorKind = iota
	DecimalErrorParse
)

// DecimalError is returned when a packed NEWDECIMAL value cannot be decoded.
type DecimalError struct {
	Kind DecimalErrorKind
	Err  error
}

func (e *DecimalError) Error() string {
	if e.Kind == DecimalErrorParse {
		return fmt.Sprintf("binlog: decimal: parse: %v", e.Err)
	}
	return fmt.Sprintf("binlog: decimal: io: %v", e.Err)
}

func (e *DecimalError) Unwrap() error { return e.Err }

// UuidError is returned when a GTID's UUID half cannot be parsed.
type UuidError struct {
	Err error
}

func (e *UuidError) Error() string { return fmt.Sprintf("binlog: gtid: uuid: %v", e.Err) }

func (e *UuidError) Unwrap() error { return e.Err }

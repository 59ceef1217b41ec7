package binlog

import (
	"bytes"
	"io"
	"testing"
)

// buildEvent prepends the 19-byte common header (binlog version 4, so both
// NextPos and Flags are present) to body, filling in EventSize from body's
// length.
func buildEvent(eventType EventType, body []byte) []byte {
	eventSize := uint32(commonHeaderLength + len(body))
	buf := make([]byte, 0, eventSize)
	buf = append(buf, le32(0)...)        // timestamp
	buf = append(buf, byte(eventType))   // event type
	buf = append(buf, le32(0)...)        // server id
	buf = append(buf, le32(eventSize)...) // event size
	buf = append(buf, le32(0)...)        // next position
	buf = append(buf, le16(0)...)        // flags
	buf = append(buf, body...)
	return buf
}

// buildFDE constructs a minimal Format Description Event body: binlog
// version 4, a server version string, and a 20-byte event-type-header-length
// array whose 15th entry (self-referential post-header length of the FDE
// itself) is set so the declared event size implies zero checksum bytes —
// i.e. BINLOG_CHECKSUM_ALG_OFF, the last array byte.
func buildFDE() []byte {
	body := make([]byte, 0, 77)
	body = append(body, le16(4)...) // binlog version
	serverVersion := make([]byte, 50)
	copy(serverVersion, "5.7.26-log")
	body = append(body, serverVersion...)
	body = append(body, le32(0)...)     // create timestamp
	body = append(body, commonHeaderLength)
	array := make([]byte, 20)
	array[14] = 76 // see events.go: eventSize - 19 - fmeSize - 1 == 0
	body = append(body, array...)       // last byte (index 19) is checksum type: 0 = OFF
	return body
}

func buildQueryEvent(schema, query string) []byte {
	body := make([]byte, 0)
	body = append(body, le32(0)...)       // slave proxy id
	body = append(body, le32(0)...)       // execution time
	body = append(body, byte(len(schema)))
	body = append(body, le16(0)...) // error code
	body = append(body, le16(0)...) // status vars length
	body = append(body, schema...)
	body = append(body, 0) // reserved
	body = append(body, query...)
	return body
}

func buildTableMapEvent(tableID uint64, schema, table string, colType ColumnType) []byte {
	body := make([]byte, 0)
	body = append(body, le48(tableID)...)
	body = append(body, le16(0)...) // flags
	body = append(body, byte(len(schema)))
	body = append(body, schema...)
	body = append(body, 0)
	body = append(body, byte(len(table)))
	body = append(body, table...)
	body = append(body, 0)
	body = append(body, 1)           // column count (intVar, single byte < 0xfb)
	body = append(body, byte(colType))
	body = append(body, 0) // meta length (intVar, unused for TypeLong)
	body = append(body, 0) // null bitmap: 1 column, not nullable
	return body
}

func buildWriteRowsEventV2(tableID uint64, value int32) []byte {
	body := make([]byte, 0)
	body = append(body, le48(tableID)...)
	body = append(body, le16(0)...) // flags
	body = append(body, le16(2)...) // extra data length (2 == no extra data)
	body = append(body, 1)          // column count
	body = append(body, 1)          // present-columns bitmap: column 0 present
	body = append(body, 0)          // row null bitmap: column 0 not null
	body = append(body, le32(uint32(value))...)
	return body
}

// buildTableMap2Col and buildPartialWriteRowsEventV2 build a two-column
// table and a Write Rows Event whose columns-present bitmap clears the
// second column's bit, as happens under binlog_row_image=MINIMAL/NOBLOB
// when a column is omitted from the row image entirely.
func buildTableMap2Col(tableID uint64, schema, table string) []byte {
	body := make([]byte, 0)
	body = append(body, le48(tableID)...)
	body = append(body, le16(0)...) // flags
	body = append(body, byte(len(schema)))
	body = append(body, schema...)
	body = append(body, 0)
	body = append(body, byte(len(table)))
	body = append(body, table...)
	body = append(body, 0)
	body = append(body, 2)            // column count (intVar)
	body = append(body, byte(TypeLong), byte(TypeLong))
	body = append(body, 0) // meta length (intVar, unused for TypeLong)
	body = append(body, 0) // null bitmap: 2 columns, none nullable
	return body
}

func buildPartialWriteRowsEventV2(tableID uint64, value int32) []byte {
	body := make([]byte, 0)
	body = append(body, le48(tableID)...)
	body = append(body, le16(0)...) // flags
	body = append(body, le16(2)...) // extra data length (2 == no extra data)
	body = append(body, 2)          // column count
	body = append(body, 1)          // present-columns bitmap: column 0 present, column 1 absent
	body = append(body, 0)          // row null bitmap (sized to popcount==1): not null
	body = append(body, le32(uint32(value))...)
	return body
}

func le16(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }
func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
func le48(v uint64) []byte {
	b := make([]byte, 6)
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
	return b
}

func buildBinlog() []byte {
	var buf bytes.Buffer
	buf.Write(magic)
	buf.Write(buildEvent(FORMAT_DESCRIPTION_EVENT, buildFDE()))
	buf.Write(buildEvent(QUERY_EVENT, buildQueryEvent("test", "BEGIN")))
	buf.Write(buildEvent(TABLE_MAP_EVENT, buildTableMapEvent(1, "test", "t1", TypeLong)))
	buf.Write(buildEvent(WRITE_ROWS_EVENTv2, buildWriteRowsEventV2(1, 42)))
	buf.Write(buildEvent(QUERY_EVENT, buildQueryEvent("test", "COMMIT")))
	return buf.Bytes()
}

func TestIteratorEndToEnd(t *testing.T) {
	it, err := OpenReader(bytes.NewReader(buildBinlog()))
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	var changes []*ChangeEvent
	for {
		ev, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		changes = append(changes, ev)
	}

	if len(changes) != 3 {
		t.Fatalf("got %d change events, want 3 (BEGIN, insert, COMMIT)", len(changes))
	}

	if changes[0].Query == nil || changes[0].Query.Query != "BEGIN" {
		t.Fatalf("changes[0] = %+v, want Query BEGIN", changes[0])
	}

	rows := changes[1].Rows
	if rows == nil {
		t.Fatalf("changes[1].Rows is nil")
	}
	if rows.Schema != "test" || rows.Table != "t1" {
		t.Fatalf("rows = %+v, want schema=test table=t1", rows)
	}
	if rows.Kind != RowsInsert {
		t.Fatalf("Kind = %v, want RowsInsert", rows.Kind)
	}
	if len(rows.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows.Rows))
	}
	if got := rows.Rows[0].After[0]; got != int32(42) {
		t.Fatalf("row value = %#v, want int32(42)", got)
	}

	if changes[2].Query == nil || changes[2].Query.Query != "COMMIT" {
		t.Fatalf("changes[2] = %+v, want Query COMMIT", changes[2])
	}
}

// TestIteratorPartialRowImage covers binlog_row_image=MINIMAL/NOBLOB: a
// Rows Event whose columns-present bitmap omits a column entirely must
// still yield a row slice as long as the table's column count, with the
// omitted column set to Absent rather than nil or simply missing.
func TestIteratorPartialRowImage(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(magic)
	buf.Write(buildEvent(FORMAT_DESCRIPTION_EVENT, buildFDE()))
	buf.Write(buildEvent(TABLE_MAP_EVENT, buildTableMap2Col(1, "test", "t1")))
	buf.Write(buildEvent(WRITE_ROWS_EVENTv2, buildPartialWriteRowsEventV2(1, 7)))

	it, err := OpenReader(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	ev, err := it.Next()
	if err != nil {
		t.Fatal(err)
	}
	rows := ev.Rows
	if rows == nil {
		t.Fatal("ev.Rows is nil")
	}
	if len(rows.Columns) != 2 {
		t.Fatalf("len(rows.Columns) = %d, want 2", len(rows.Columns))
	}
	if len(rows.Rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows.Rows))
	}
	after := rows.Rows[0].After
	if len(after) != 2 {
		t.Fatalf("len(row.After) = %d, want 2 (table column count)", len(after))
	}
	if after[0] != int32(7) {
		t.Fatalf("after[0] = %#v, want int32(7)", after[0])
	}
	if after[1] != Absent {
		t.Fatalf("after[1] = %#v, want Absent", after[1])
	}
}

func TestIteratorFingerprintStable(t *testing.T) {
	it, err := OpenReader(bytes.NewReader(buildBinlog()))
	if err != nil {
		t.Fatal(err)
	}
	defer it.Close()

	var first *ChangeEvent
	for {
		ev, err := it.Next()
		if err == io.EOF {
			t.Fatal("expected at least one change event")
		}
		if err != nil {
			t.Fatal(err)
		}
		first = ev
		break
	}

	it2, err := OpenReader(bytes.NewReader(buildBinlog()))
	if err != nil {
		t.Fatal(err)
	}
	defer it2.Close()
	second, err := it2.Next()
	if err != nil {
		t.Fatal(err)
	}

	if first.Fingerprint() != second.Fingerprint() {
		t.Fatalf("Fingerprint() not stable across identical replays: %d != %d", first.Fingerprint(), second.Fingerprint())
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	_, err := OpenReader(bytes.NewReader([]byte("nope")))
	var bme *BadMagicError
	if !asBadMagicError(err, &bme) {
		t.Fatalf("err = %v (%T), want *BadMagicError", err, err)
	}
}

func asBadMagicError(err error, target **BadMagicError) bool {
	bme, ok := err.(*BadMagicError)
	if ok {
		*target = bme
	}
	return ok
}

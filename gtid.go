package binlog

import (
	"fmt"

	"github.com/google/uuid"
)

// Gtid identifies a transaction globally across a replication topology: a
// 128-bit source identifier plus a monotonically increasing per-source
// coordinate.
//
// https://dev.mysql.com/doc/refman/5.7/en/replication-gtids-concepts.html
type Gtid struct {
	Source     uuid.UUID
	Coordinate uint64
}

func (g Gtid) String() string {
	return fmt.Sprintf("%s:%d", g.Source, g.Coordinate)
}

// LogicalTimestamp is the GTID v2 commit-ordering pair carried by a Gtid Log
// Event: a transaction's last_committed sequence number establishes which
// earlier transactions it does not conflict with, and sequence_number is its
// own position in commit order.
type LogicalTimestamp struct {
	LastCommitted  int64
	SequenceNumber int64
}

// GtidEvent is the Gtid Log Event: it assigns a Gtid (and, from MySQL 5.7's
// GTID v2 format on, a LogicalTimestamp) to the transaction that follows.
//
// https://dev.mysql.com/doc/dev/mysql-server/latest/classbinary__log_1_1Gtid__event.html
type GtidEvent struct {
	CommitFlag bool
	Gtid       Gtid
	// Timestamp is zero-valued when the source server did not emit a GTID
	// v2 trailer (pre-5.7, or no concurrent-commit info available).
	Timestamp LogicalTimestamp
}

func (e *GtidEvent) decode(r *reader) error {
	flags := r.int1()
	e.CommitFlag = flags&1 != 0
	uuidBytes := r.bytesInternal(16)
	if r.err != nil {
		return r.err
	}
	src, err := uuid.FromBytes(uuidBytes)
	if err != nil {
		return &UuidError{Err: err}
	}
	e.Gtid.Source = src
	e.Gtid.Coordinate = r.int8()
	if r.err != nil {
		return r.err
	}
	if !r.more() {
		return nil
	}
	marker := r.int1()
	if r.err != nil {
		return r.err
	}
	if marker != 0x02 {
		// not a GTID v2 trailer; nothing more to decode.
		return nil
	}
	e.Timestamp.LastCommitted = int64(r.int8())
	e.Timestamp.SequenceNumber = int64(r.int8())
	return r.err
}

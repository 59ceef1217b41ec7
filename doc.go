/*
Package binlog decodes the MySQL/MariaDB 5.6/5.7-dialect binary replication
log: a sequence of self-describing event records written to a file, or any
seekable byte source, by the server's row-based replication (RBR).

It does not speak the live replication network protocol — it reads binlog
files directly, the way an offline replay, auditing, or indexing tool would:

	it, err := binlog.Open("mysql-bin.000001")
	if err != nil {
		return err
	}
	defer it.Close()

	for {
		ev, err := it.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		switch {
		case ev.Rows != nil:
			rows := ev.Rows
			fmt.Printf("%s: %s.%s\n", rows.Kind, rows.Schema, rows.Table)
			for _, row := range rows.Rows {
				for i, v := range row.After {
					col := rows.Columns[i]
					fmt.Printf("  col=%s ordinal=%d value=%v\n", col.Name, col.Ordinal, v)
				}
			}
		case ev.Query != nil:
			fmt.Printf("query: %s.%s: %s\n", ev.Query.Schema, "", ev.Query.Query)
		}
	}

OpenAt resumes iteration from a previously recorded file offset, and
OpenGzip reads a gzip-archived binlog file. For example usage see
cmd/binlogcat.
*/
package binlog

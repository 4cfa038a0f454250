/*
Package store is the revision repository: the append-only DocumentRecord
log, the vault access checker, and the pending-upload tracker, all backed
by a single SQLite file opened with a one-connection pool.

SQLite allows exactly one writer at a time; rather than let database/sql
hand out concurrent connections that would collide on the same file with
"database is locked", Store pins MaxOpenConns to 1 and additionally
serializes each write statement behind a mutex. The mutex is held for one
statement at a time: a multi-statement sequence such as the purger's sweep
is not atomic, and other writes may run between its statements.

Record queries (GetUpdates, GetDeleted) express "latest record per path"
as a join against a per-path MAX(id) subquery rather than a window
function, for portability across the sqlite3 versions vendored by
mattn/go-sqlite3.
*/
package store

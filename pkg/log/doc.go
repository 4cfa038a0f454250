/*
Package log provides structured logging for the sync server using zerolog.

A single package-level zerolog.Logger is configured once via Init and then
narrowed per subsystem with WithComponent ("syncconn", "vaultchannel",
"purger", "store") and per connection with WithConnID, so a single sync
session's log lines can be grepped out of a busy server. Callers attach
vault_id and other per-call fields directly with zerolog's own .With().

Init chooses JSON output in production and zerolog.ConsoleWriter when
JSONOutput is false, matching the console/JSON split most operators expect
from a local development run versus a deployed one.

	{"level":"info","component":"vaultchannel","vault_id":1,"conn_id":"c1","time":"2024-01-01T00:00:00Z","message":"joined vault channel"}
*/
package log

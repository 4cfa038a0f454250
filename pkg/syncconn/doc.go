/*
Package syncconn implements the sync connection state machine (C5): one
Conn per duplex socket, carrying it through Opening (the first init
message), Authenticating (token + vault keyhash), a CatchingUp goroutine
racing against Live dispatch, and Closing.

The wire protocol interleaves a JSON control channel with binary blob
frames on the same socket. writeMu on Conn serializes the three goroutines
that may write to it — the dispatch loop, the catch-up task, and
vaultchannel's live-broadcast forwarder — so a push reply and a broadcast
push never interleave into a torn frame.
*/
package syncconn

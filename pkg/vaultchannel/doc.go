/*
Package vaultchannel is the vault channel hub (C4): a process-wide map from
vault id to the set of connections currently joined to it.

Join verifies access through pkg/access and the vault keyhash through
pkg/security's constant-time comparison before registering a connection.
Broadcast fans a committed record out to every member; each member has its
own buffered queue drained by a dedicated goroutine (a publish/subscribe
shape for decoupled fan-out), so a slow connection's socket writes never
block delivery to its
peers — only its own queue, once full, blocks the broadcaster.
*/
package vaultchannel

/*
Package blobstore is the local-disk, content-addressed blob store. Each
blob lives at <root>/<vault_id>/<hash[0:2]>/<hash[2:4]>/<hash[4:]>, split
into two levels of two-character directories so a single vault directory
never accumulates an unmanageable number of entries at one level.

Readers and writers are plain os.File streams; chunking into protocol-sized
pieces is pkg/syncconn's concern, not this package's.
*/
package blobstore

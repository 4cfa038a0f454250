package syncconn

import "github.com/cuemby/vaultsync/pkg/store"

// inboundMsg is the union of every field any client->server message may
// carry. Parsing once into this shape and switching on Op avoids a
// per-message type assertion dance; unused fields for a given op are simply
// left at their zero value.
type inboundMsg struct {
	Op string `json:"op"`

	// init
	Token   string `json:"token,omitempty"`
	Device  string `json:"device,omitempty"`
	ID      int64  `json:"id,omitempty"`
	Keyhash string `json:"keyhash,omitempty"`
	Version int64  `json:"version,omitempty"`
	Initial bool   `json:"initial,omitempty"`

	// push
	Path        string `json:"path,omitempty"`
	RelatedPath string `json:"relatedpath,omitempty"`
	Hash        string `json:"hash,omitempty"`
	Folder      bool   `json:"folder,omitempty"`
	Deleted     bool   `json:"deleted,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Pieces      int    `json:"pieces,omitempty"`
	Ctime       int64  `json:"ctime,omitempty"`
	Mtime       int64  `json:"mtime,omitempty"`

	// pull / restore
	UID int64 `json:"uid,omitempty"`

	// history
	Last int64 `json:"last,omitempty"`
}

// pushMsg is the server->client shape for both catch-up replay and live
// broadcast: the wire name is always "push" regardless of which path
// produced it.
type pushMsg struct {
	Op      string `json:"op"`
	UID     int64  `json:"uid"`
	Path    string `json:"path"`
	Hash    string `json:"hash"`
	Folder  bool   `json:"folder"`
	Deleted bool   `json:"deleted"`
	Ctime   int64  `json:"ctime"`
	Mtime   int64  `json:"mtime"`
	Size    *int64 `json:"size,omitempty"`
}

// recordToMsg converts a DocumentRecord into the push message shape. size is
// omitted entirely for folders and tombstones, matching the client's
// expectation that those never carry blob metadata.
func recordToMsg(r store.DocumentRecord) pushMsg {
	m := pushMsg{
		Op:      "push",
		UID:     r.ID,
		Path:    r.Path,
		Hash:    r.Hash,
		Folder:  r.Folder,
		Deleted: r.Deleted,
		Ctime:   r.Ctime,
		Mtime:   r.Mtime,
	}
	if !r.Folder && !r.Deleted {
		size := r.Size
		m.Size = &size
	}
	return m
}

// historyItem is the shape used by both the "deleted" and "history" replies:
// unlike pushMsg it always carries size, relatedpath, device, and a
// millisecond timestamp derived from the record's commit time.
type historyItem struct {
	UID         int64  `json:"uid"`
	Path        string `json:"path"`
	RelatedPath string `json:"relatedpath"`
	Folder      bool   `json:"folder"`
	Device      string `json:"device"`
	Size        int64  `json:"size"`
	Deleted     bool   `json:"deleted"`
	Ts          int64  `json:"ts"`
}

func recordToHistory(r store.DocumentRecord) historyItem {
	return historyItem{
		UID:         r.ID,
		Path:        r.Path,
		RelatedPath: r.RelatedPath,
		Folder:      r.Folder,
		Device:      r.Device,
		Size:        r.Size,
		Deleted:     r.Deleted,
		Ts:          r.CreatedAt.UnixMilli(),
	}
}

func recordsToHistory(records []store.DocumentRecord) []historyItem {
	items := make([]historyItem, len(records))
	for i, r := range records {
		items[i] = recordToHistory(r)
	}
	return items
}

package session

// MediaItem is what the host player knows about one entry of its playlist
type MediaItem struct {
	Index    int
	Infohash string
	Checksum string
	URL      string
}

// HostPlayer is the media player a session feeds.  Calls never happen while the session lock is held.
type HostPlayer interface {
	// Play opens the stream address the engine produced.
	Play(url string) error
	// Stop halts playback of the current stream.
	Stop()
	// Item returns the playlist entry at index.
	Item(index int) (MediaItem, bool)
}

// detacher is implemented by players that want to know when a session stops driving them.
type detacher interface {
	Detach()
}

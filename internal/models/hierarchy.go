package models

// GameObjectInfo describes one indexed game object.
// Name is the slash-separated hierarchical path from the scene root.
type GameObjectInfo struct {
	Name             string `json:"name"`
	GameObjectPathID int64  `json:"game_object_path_id"`
	TransformPathID  int64  `json:"transform_path_id"`
}

// ContainerEntry maps a container path to an asset and its preload range
type ContainerEntry struct {
	Path         string `json:"path"`
	Asset        PPtr   `json:"asset"`
	PreloadIndex int    `json:"preload_index"`
	PreloadSize  int    `json:"preload_size"`
}

// PreloadEnd returns the index one past the last preload entry of the range
func (c ContainerEntry) PreloadEnd() int {
	return c.PreloadIndex + c.PreloadSize
}

package models

import "time"

// RepackParams are the inputs of one repack run
type RepackParams struct {
	// BundlePath is the scene bundle to read.
	BundlePath string `json:"bundle_path"`
	// ObjectNames are hierarchical game object names to keep. Each one ends up
	// under a container entry, either its own or its rootmost retained ancestor's.
	ObjectNames []string `json:"object_names"`
	// ContainerPrefix is prepended to every container path.
	ContainerPrefix string `json:"container_prefix"`
	// OutBundlePath is where the repacked bundle is written.
	OutBundlePath string `json:"out_bundle_path"`
	// BundleName overrides the name derived from OutBundlePath.
	BundleName string `json:"bundle_name,omitempty"`
}

// RepackResult summarises a finished repack run
type RepackResult struct {
	ID          int64     `json:"id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	BundlePath  string    `json:"bundle_path"`
	OutPath     string    `json:"out_path"`
	BundleName  string    `json:"bundle_name"`
	CabName     string    `json:"cab_name"`
	Redirected  int       `json:"redirected"`
	MovedPathID int64     `json:"moved_path_id,omitempty"` // new id of the object evicted from path id 1

	// GameObjectAssets maps container path -> game object name.
	GameObjectAssets map[string]string `json:"game_object_assets"`
	// Targets maps each requested name -> container path that exposes it.
	Targets map[string]string `json:"targets"`
	// NonRepackedAssets lists requested names that could not be exposed.
	NonRepackedAssets []string `json:"non_repacked_assets"`

	Containers []ContainerEntry `json:"containers,omitempty"`
}

// NewRepackResult creates an empty result
func NewRepackResult() *RepackResult {
	return &RepackResult{
		GameObjectAssets:  make(map[string]string),
		Targets:           make(map[string]string),
		NonRepackedAssets: []string{},
	}
}

package assets

import "github.com/spaghettifunk/instancer/engine/renderer/metadata"

type Loader interface {
	Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) // Data holds the loader specific type
	Unload(*metadata.Resource) error
}

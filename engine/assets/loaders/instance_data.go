package loaders

import (
	"os"

	"github.com/spaghettifunk/instancer/engine/instancing"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
)

// InstanceDataLoader reads a cooked instance store (.ismdata).
type InstanceDataLoader struct{}

func (il *InstanceDataLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	store, err := instancing.DeserializeStaticMeshInstanceData(f)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &metadata.Resource{
		Name:     resourceName(path, params),
		FullPath: path,
		DataSize: uint64(info.Size()),
		Data:     store,
	}, nil
}

func (il *InstanceDataLoader) Unload(*metadata.Resource) error {
	return nil
}

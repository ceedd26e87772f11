package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/instancer/engine/assets/loaders"
	"github.com/spaghettifunk/instancer/engine/core"
	"github.com/spaghettifunk/instancer/engine/renderer/metadata"
)

type AssetInfo struct {
	Path       string
	Type       metadata.ResourceType
	LastLoaded time.Time
}

// ChangeHandler is called from the watcher goroutine when an indexed asset is created or written.
type ChangeHandler func(info AssetInfo)

/**
 * @brief Indexes the files of an asset directory by type and keeps the index
 * current with fsnotify. Subscribers are told about changed files so they can
 * reload them.
 */
type AssetManager struct {
	assetsDir   string
	assets      map[string]AssetInfo
	loaders     map[metadata.ResourceType]Loader
	subscribers map[metadata.ResourceType][]ChangeHandler

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	started  bool
	isClosed bool
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &AssetManager{
		assets:      make(map[string]AssetInfo),
		loaders:     make(map[metadata.ResourceType]Loader),
		subscribers: make(map[metadata.ResourceType][]ChangeHandler),
		fsnotify:    fsWatch,
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}, nil
}

func (am *AssetManager) Initialize(assetsDir string) error {
	am.assetsDir = filepath.Clean(assetsDir)

	// Register loaders
	am.registerLoader(metadata.ResourceTypeBinary, &loaders.BinaryLoader{})
	am.registerLoader(metadata.ResourceTypeConfig, &loaders.ConfigLoader{})
	am.registerLoader(metadata.ResourceTypeInstanceData, &loaders.InstanceDataLoader{})
	am.registerLoader(metadata.ResourceTypeNanite, &loaders.NaniteLoader{})

	if err := am.addRecursive(am.assetsDir); err != nil {
		return err
	}
	am.started = true
	go am.start()

	core.LogInfo("asset manager watching '%s' (%d assets)", am.assetsDir, am.NumAssets())
	return nil
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return errors.New("asset watcher already closed")
	}
	return am.watchRecursive(name)
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

/**
 * @brief Calls fn whenever a file of assetType is created or written. Must be
 * called before the change happens; handlers run on the watcher goroutine.
 */
func (am *AssetManager) Subscribe(assetType metadata.ResourceType, fn ChangeHandler) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.subscribers[assetType] = append(am.subscribers[assetType], fn)
}

// AssetPath returns the path an asset of the given name and type has in the asset directory.
func (am *AssetManager) AssetPath(filename string, resourceType metadata.ResourceType) (string, error) {
	ext := extensionOf(resourceType)
	if ext == "" {
		return "", fmt.Errorf("unknown resource type %d", resourceType)
	}
	return filepath.Join(am.assetsDir, filename+ext), nil
}

// Load an asset using the appropriate loader
func (am *AssetManager) LoadAsset(filename string, resourceType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	path, err := am.AssetPath(filename, resourceType)
	if err != nil {
		return nil, err
	}
	return am.LoadPath(path, params)
}

/**
 * @brief Loads an indexed asset by its path.
 */
func (am *AssetManager) LoadPath(path string, params interface{}) (*metadata.Resource, error) {
	path = filepath.Clean(path)

	am.mutex.Lock()
	asset, exists := am.assets[path]
	if exists {
		asset.LastLoaded = time.Now()
		am.assets[path] = asset
	}
	am.mutex.Unlock()
	if !exists {
		return nil, fmt.Errorf("asset not found: %s", path)
	}

	loader, loaderExists := am.loaders[asset.Type]
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type: %d", asset.Type)
	}

	res, err := loader.Load(path, asset.Type, params)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}
	res.LoaderID = uint32(asset.Type)
	return res, nil
}

func (am *AssetManager) UnloadAsset(asset *metadata.Resource) error {
	loader, ok := am.loaders[metadata.ResourceType(asset.LoaderID)]
	if !ok {
		return fmt.Errorf("no loader registered for asset type: %d", asset.LoaderID)
	}
	return loader.Unload(asset)
}

func (am *AssetManager) Asset(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[filepath.Clean(path)]
	return info, ok
}

func (am *AssetManager) NumAssets() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

/**
 * @brief Stops the watcher goroutine and closes the fsnotify watcher.
 */
func (am *AssetManager) Shutdown() error {
	if am.isClosed {
		return nil
	}
	am.isClosed = true
	close(am.done)
	if !am.started {
		return am.fsnotify.Close()
	}
	<-am.stopped
	return nil
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {

		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s != nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name); err != nil {
						core.LogWarn("failed to watch new directory %s: %s", e.Name, err.Error())
					}
				}
				continue
			}
			// Handle create or modify events
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if info, ok := am.handleFileEvent(e.Name); ok {
					am.notify(info)
				}
			}
			// A renamed file is gone from its old path too.
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			am.fsnotify.Close()
			return
		}
	}
}

func (am *AssetManager) notify(info AssetInfo) {
	am.mutex.RLock()
	handlers := append([]ChangeHandler(nil), am.subscribers[info.Type]...)
	am.mutex.RUnlock()
	for _, fn := range handlers {
		fn(info)
	}
}

// watchRecursive adds all directories under the given one to the watch list
// and indexes the files found on the way.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) (AssetInfo, bool) {
	assetType, ok := determineAssetType(path)
	if !ok {
		return AssetInfo{}, false
	}
	path = filepath.Clean(path)

	am.mutex.Lock()
	defer am.mutex.Unlock()
	info := am.assets[path]
	info.Path = path
	info.Type = assetType
	am.assets[path] = info
	return info, true
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, filepath.Clean(path))
}

func determineAssetType(path string) (metadata.ResourceType, bool) {
	switch filepath.Ext(path) {
	case ".toml":
		return metadata.ResourceTypeConfig, true
	case ".ismdata":
		return metadata.ResourceTypeInstanceData, true
	case ".nanite":
		return metadata.ResourceTypeNanite, true
	case loaders.BULK_DATA_EXTENSION:
		return metadata.ResourceTypeBinary, true
	default:
		return metadata.ResourceTypeCustom, false
	}
}

func extensionOf(resourceType metadata.ResourceType) string {
	switch resourceType {
	case metadata.ResourceTypeConfig:
		return ".toml"
	case metadata.ResourceTypeInstanceData:
		return ".ismdata"
	case metadata.ResourceTypeNanite:
		return ".nanite"
	case metadata.ResourceTypeBinary:
		return loaders.BULK_DATA_EXTENSION
	}
	return ""
}

package renderer

import "github.com/spaghettifunk/instancer/engine/renderer/metadata"

/**
 * @brief The GPU-facing contract the instancing and streaming code talks to.
 * Only the render thread calls into a backend.
 */
type RendererBackend interface {
	Initialize(config *metadata.RendererBackendConfig) error
	Shutdown() error
	BeginFrame(deltaTime float64) error
	EndFrame(deltaTime float64) error
	IsMultithreaded() bool
	RenderBufferCreate(name string, renderbufferType metadata.RenderBufferType, totalSize uint64) (*metadata.RenderBuffer, error)
	RenderBufferDestroy(buffer *metadata.RenderBuffer)
	RenderBufferResize(buffer *metadata.RenderBuffer, newTotalSize uint64) bool
	RenderBufferLoadRange(buffer *metadata.RenderBuffer, offset uint64, data []byte) bool
	RenderBufferRead(buffer *metadata.RenderBuffer, offset, size uint64) ([]byte, error)
}

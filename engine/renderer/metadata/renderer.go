package metadata

import "fmt"

type RendererBackendConfig struct {
	/** @brief The name of the application */
	ApplicationName string
	/** @brief The feature level the backend renders at. */
	FeatureLevel FeatureLevel
}

/** @brief The shader model tier a platform or viewport supports. */
type FeatureLevel int

const (
	FEATURE_LEVEL_ES31 FeatureLevel = iota
	FEATURE_LEVEL_SM5
	FEATURE_LEVEL_SM6
)

func (f FeatureLevel) String() string {
	switch f {
	case FEATURE_LEVEL_ES31:
		return "es3_1"
	case FEATURE_LEVEL_SM5:
		return "sm5"
	case FEATURE_LEVEL_SM6:
		return "sm6"
	}
	return fmt.Sprintf("feature_level(%d)", int(f))
}

/**
 * @brief Parses the textual name used in config files. Unknown names
 * resolve to SM5.
 */
func ParseFeatureLevel(s string) FeatureLevel {
	switch s {
	case "es3_1", "es31":
		return FEATURE_LEVEL_ES31
	case "sm6":
		return FEATURE_LEVEL_SM6
	}
	return FEATURE_LEVEL_SM5
}

/**
 * @brief Describes what a cook/serialize target can consume. Conversions
 * (half to full float, Nanite stripping) are driven by these flags.
 */
type TargetPlatform struct {
	Name string
	/** @brief The platform can fetch half-float vertex attributes. */
	SupportsHalfFloatVertexFormat bool
	/** @brief The platform can render virtualized geometry. */
	SupportsNanite bool
}

type RenderBufferType int

const (
	/** @brief Buffer is use is unknown. Default, but usually invalid. */
	RENDERBUFFER_TYPE_UNKNOWN RenderBufferType = iota
	/** @brief Buffer is used for vertex data. */
	RENDERBUFFER_TYPE_VERTEX
	/** @brief Buffer is used for index data. */
	RENDERBUFFER_TYPE_INDEX
	/** @brief Buffer is used for uniform data. */
	RENDERBUFFER_TYPE_UNIFORM
	/** @brief Buffer is used for staging purposes (i.e. from host-visible to device-local memory) */
	RENDERBUFFER_TYPE_STAGING
	/** @brief Buffer is used for data storage. */
	RENDERBUFFER_TYPE_STORAGE
)

/** @brief The element format a shader resource view reads a buffer as. */
type PixelFormat int

const (
	PIXEL_FORMAT_UNKNOWN PixelFormat = iota
	PIXEL_FORMAT_R32_FLOAT
	PIXEL_FORMAT_R32G32B32A32_FLOAT
	PIXEL_FORMAT_R16G16B16A16_FLOAT
	PIXEL_FORMAT_R16G16B16A16_SNORM
	PIXEL_FORMAT_R32_UINT
)

type RenderBuffer struct {
	/** @brief A debug name for the buffer. */
	Name string
	/** @brief The type of buffer, which typically determines its use. */
	RenderBufferType RenderBufferType
	/** @brief The total size of the buffer in bytes. */
	TotalSize uint64
	/** @brief Contains internal data for the renderer-API-specific buffer. */
	InternalData interface{}
}

/**
 * @brief A typed view over a render buffer as shaders see it.
 */
type ShaderResourceView struct {
	Buffer *RenderBuffer
	/** @brief Size in bytes of one element. */
	Stride uint32
	Format PixelFormat
	/** @brief Number of elements visible through the view. */
	NumElements uint32
}

func (srv *ShaderResourceView) IsValid() bool {
	return srv != nil && srv.Buffer != nil
}

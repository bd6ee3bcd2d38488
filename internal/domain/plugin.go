package domain

// Layout of the marketplace repository.
const (
	PluginsDir          = "plugins"
	DeclarationFile     = "plugin.yaml"
	ThumbnailBasename   = "thumbnail"
	MaxThumbnailBytes   = 20 * 1024
	MaxTags             = 5
	MaxTitleLength      = 50
	MaxDescriptionLen   = 500
	ReservedPrefix      = "_"
	DiscussionTitleStem = "Plugin: "
)

// ImageExtensions lists the allowed thumbnail extensions, lower case.
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}

// AllowedFields is the complete key set of a plugin declaration.
var AllowedFields = []string{"title", "description", "github", "tags"}

// RequiredFields must be present in every plugin declaration.
var RequiredFields = []string{"title", "description", "github"}

// PluginRecord is a plugin declaration as written by its author in
// plugins/<name>/plugin.yaml.
type PluginRecord struct {
	Title       string   `validate:"required,max=50"`
	Description string   `validate:"required,max=500"`
	GitHub      string   `validate:"required,http_url"`
	Tags        []string `validate:"omitempty,max=5,dive,required"`
}

// IsImageExt reports whether ext (with leading dot, lower case) is an
// allowed thumbnail extension.
func IsImageExt(ext string) bool {
	for _, e := range ImageExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// IsReserved reports whether a plugin folder name is hidden from the index.
func IsReserved(name string) bool {
	return len(name) > 0 && name[:1] == ReservedPrefix
}

// DiscussionTitle is the title of the discussion thread for a plugin.
func DiscussionTitle(name string) string {
	return DiscussionTitleStem + name
}

package lang

// Language represents a supported programming language.
type Language string

const (
	Python Language = "python"
	Java   Language = "java"
)

// AllLanguages returns all supported languages.
func AllLanguages() []Language {
	return []Language{Python, Java}
}

// LanguageSpec defines the tree-sitter node types for a language.
type LanguageSpec struct {
	Language          Language
	FileExtensions    []string
	FunctionNodeTypes []string
	ClassNodeTypes    []string
	ModuleNodeTypes   []string
	CallNodeTypes     []string
	ImportNodeTypes   []string
	ImportFromTypes   []string

	// DecoratorNodeTypes lists decorator/annotation node kinds.
	DecoratorNodeTypes []string
	// PackageIndicators lists file names that mark a directory as a package
	// and re-export its contents (e.g. Python "__init__.py").
	PackageIndicators []string
}

// registry maps file extensions to language specs.
var registry = map[string]*LanguageSpec{}

// Register adds a LanguageSpec to the global registry.
func Register(spec *LanguageSpec) {
	for _, ext := range spec.FileExtensions {
		registry[ext] = spec
	}
}

// ForExtension returns the LanguageSpec for a file extension (e.g. ".py").
func ForExtension(ext string) *LanguageSpec {
	return registry[ext]
}

// ForLanguage returns the LanguageSpec for a language.
func ForLanguage(lang Language) *LanguageSpec {
	for _, spec := range registry {
		if spec.Language == lang {
			return spec
		}
	}
	return nil
}

// LanguageForExtension returns the Language for a file extension.
func LanguageForExtension(ext string) (Language, bool) {
	spec := registry[ext]
	if spec == nil {
		return "", false
	}
	return spec.Language, true
}

// IsAggregator reports whether base is a package aggregator file name.
func (s *LanguageSpec) IsAggregator(base string) bool {
	for _, ind := range s.PackageIndicators {
		if base == ind {
			return true
		}
	}
	return false
}

// Package i18n serves the kiosk screen copy in the languages shipped under locales/.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var embedded embed.FS

const localesDir = "locales"

// Translator resolves localized strings using dot-separated keys.
type Translator interface {
	T(key string) string
	// Format resolves key and replaces {name} placeholders with vars.
	Format(key string, vars map[string]string) string
	Lang() string
}

// Catalog stores all available translations.
type Catalog struct {
	translations map[string]map[string]string
	defaultLang  string
}

// Load reads the embedded kiosk copy.
func Load(defaultLang string) (*Catalog, error) {
	return LoadFS(embedded, localesDir, defaultLang)
}

// LoadFS reads every YAML file in dir of fsys. Each file maps language codes to nested keys.
func LoadFS(fsys fs.FS, dir, defaultLang string) (*Catalog, error) {
	translations, err := parseDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	if defaultLang == "" {
		defaultLang = "en"
	}
	defaultLang = normalize(defaultLang)

	if _, ok := translations[defaultLang]; !ok {
		return nil, fmt.Errorf("i18n: default language %q is missing", defaultLang)
	}

	return &Catalog{translations: translations, defaultLang: defaultLang}, nil
}

// Translator returns a translator for lang, falling back to the default language.
// Region suffixes are ignored, so "es-MX" resolves to "es".
func (c *Catalog) Translator(lang string) Translator {
	if c == nil {
		return translator{}
	}

	norm := normalize(lang)
	if c.translations[norm] == nil {
		norm = c.defaultLang
	}

	return translator{
		lang:         norm,
		fallback:     c.defaultLang,
		translations: c.translations,
	}
}

// Languages returns the loaded language codes in sorted order.
func (c *Catalog) Languages() []string {
	if c == nil {
		return nil
	}

	languages := make([]string, 0, len(c.translations))
	for lang := range c.translations {
		languages = append(languages, lang)
	}
	sort.Strings(languages)
	return languages
}

func normalize(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if idx := strings.IndexAny(lang, "-_"); idx > 0 {
		lang = lang[:idx]
	}
	return lang
}

type translator struct {
	lang         string
	fallback     string
	translations map[string]map[string]string
}

func (t translator) Lang() string {
	return t.lang
}

// T returns the key itself when no language defines it.
func (t translator) T(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}

	if value, ok := t.lookup(t.lang, key); ok {
		return value
	}

	if value, ok := t.lookup(t.fallback, key); ok {
		return value
	}

	return key
}

func (t translator) Format(key string, vars map[string]string) string {
	text := t.T(key)
	if len(vars) == 0 {
		return text
	}

	pairs := make([]string, 0, len(vars)*2)
	for name, value := range vars {
		pairs = append(pairs, "{"+name+"}", value)
	}

	return strings.NewReplacer(pairs...).Replace(text)
}

func (t translator) lookup(lang, key string) (string, bool) {
	entries := t.translations[lang]
	if entries == nil {
		return "", false
	}

	value, ok := entries[key]
	return value, ok
}

func parseDir(fsys fs.FS, dir string) (map[string]map[string]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("i18n: read dir %s: %w", dir, err)
	}

	translations := make(map[string]map[string]string)
	var processed bool

	for _, entry := range entries {
		if entry.IsDir() || !isYAML(entry.Name()) {
			continue
		}

		processed = true

		file := path.Join(dir, entry.Name())
		fileTranslations, err := parseFile(fsys, file)
		if err != nil {
			return nil, err
		}

		for lang, values := range fileTranslations {
			if _, ok := translations[lang]; !ok {
				translations[lang] = make(map[string]string)
			}
			for key, value := range values {
				translations[lang][key] = value
			}
		}
	}

	if !processed {
		return nil, fmt.Errorf("i18n: no yaml files found in %s", dir)
	}

	return translations, nil
}

func isYAML(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

func parseFile(fsys fs.FS, file string) (map[string]map[string]string, error) {
	data, err := fs.ReadFile(fsys, file)
	if err != nil {
		return nil, fmt.Errorf("i18n: read file %s: %w", file, err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("i18n: parse file %s: %w", file, err)
	}

	out := make(map[string]map[string]string, len(raw))
	for lang, value := range raw {
		tree, ok := value.(map[string]any)
		if !ok {
			continue
		}

		flat := make(map[string]string)
		flatten("", tree, flat)
		if len(flat) > 0 {
			out[normalize(lang)] = flat
		}
	}

	return out, nil
}

func flatten(prefix string, in map[string]any, out map[string]string) {
	for key, value := range in {
		nextKey := key
		if prefix != "" {
			nextKey = prefix + "." + key
		}

		switch v := value.(type) {
		case string:
			out[nextKey] = v
		case map[string]any:
			flatten(nextKey, v, out)
		}
	}
}

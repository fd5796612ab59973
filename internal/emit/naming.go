package emit

import (
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\[(name|id|contenthash|chunkhash|hash)(?::(\d+))?\]`)

type nameData struct {
	Name string
	ID   string
	Hash string
}

// expandTemplate replaces [name], [id] and [contenthash] in a naming template.
// [chunkhash] and [hash] are aliases of [contenthash]; a :N suffix truncates a
// hash to N characters. Unknown placeholders are left as written.
func expandTemplate(tmpl string, data nameData) string {
	return placeholderPattern.ReplaceAllStringFunc(tmpl, func(match string) string {
		sub := placeholderPattern.FindStringSubmatch(match)

		switch sub[1] {
		case "name":
			return data.Name
		case "id":
			return data.ID
		}

		hash := data.Hash
		if sub[2] != "" {
			if n, err := strconv.Atoi(sub[2]); err == nil && n < len(hash) {
				hash = hash[:n]
			}
		}
		return hash
	})
}

// cleanName normalises an expanded name into a slash separated path relative
// to the output root. It reports false for names that escape the root.
func cleanName(name string) (string, bool) {
	name = path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || !filepath.IsLocal(filepath.FromSlash(name)) {
		return "", false
	}
	return name, true
}

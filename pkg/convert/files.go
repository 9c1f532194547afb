package convert

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattn/go-zglob"
)

// DefaultExtensions are the data file extensions readable by the built-in frame reader.
var DefaultExtensions = []string{".csv"}

// FindFiles collects the data files below the given directories, paired with the GCD file
// of their folder. A file whose name contains "gcd" is the GCD file of its folder; folders
// without one fall back to gcdRescue.
func FindFiles(directories []string, gcdRescue string, extensions []string) ([]string, []string, error) {
	folders := map[string][]string{}
	for _, dir := range directories {
		matches, err := zglob.Glob(filepath.Join(dir, "**", "*"))
		if err != nil {
			return nil, nil, fmt.Errorf("error listing %s: %w", dir, err)
		}
		for _, m := range matches {
			if hasExtension(m, extensions) {
				folder := filepath.Dir(m)
				folders[folder] = append(folders[folder], m)
			}
		}
	}

	names := make([]string, 0, len(folders))
	for folder := range folders {
		names = append(names, folder)
	}
	sort.Strings(names)

	var dataFiles, gcdFiles []string
	for _, folder := range names {
		gcd := gcdRescue
		var data []string
		for _, f := range folders[folder] {
			if isGCD(f) {
				gcd = f
			} else {
				data = append(data, f)
			}
		}
		if len(data) == 0 {
			continue
		}
		if gcd == "" {
			return nil, nil, fmt.Errorf("no GCD file found in %s and no rescue GCD file given", folder)
		}
		sort.Strings(data)
		for _, f := range data {
			dataFiles = append(dataFiles, f)
			gcdFiles = append(gcdFiles, gcd)
		}
	}
	return dataFiles, gcdFiles, nil
}

func isGCD(path string) bool {
	return strings.Contains(strings.ToLower(filepath.Base(path)), "gcd")
}

func hasExtension(path string, extensions []string) bool {
	for _, ext := range extensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

package naming

import "strings"

// PublicURL joins the public path prefix and an output path.
func PublicURL(publicPath, outputPath string) string {
	if publicPath == "" {
		return outputPath
	}
	return strings.TrimSuffix(publicPath, "/") + "/" + strings.TrimPrefix(outputPath, "/")
}

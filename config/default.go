package config

// DefaultTOML is used when no configuration file is given: it checks
// BagIt-style manifests and metadata, and recurses into nested packages.
const DefaultTOML = `
root = "package"

[[processor]]
name = "package"
kind = "container"

  [[processor.action]]
  method = "process"
  target = "package"
  name-re = '.*\.(zip|jar|war|tar|tgz|tar\.gz|warc|warc\.gz)'

  [[processor.action]]
  method = "extract"
  target = "manifest"
  name-re = '(tag)?manifest-[a-z0-9]+\.txt|.*\.md5'

  [[processor.action]]
  method = "extract"
  target = "bag-info"
  name = "bag-info.txt"

[[processor]]
name = "manifest"
kind = "manifest"

[[processor]]
name = "bag-info"
kind = "properties"
`

// Default returns the built-in configuration
func Default() *Config {
	cfg, err := Parse([]byte(DefaultTOML), FormatTOML)
	if err != nil {
		panic(err)
	}
	return cfg
}

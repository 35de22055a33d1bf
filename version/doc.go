// Package version reports build metadata of the placesearch binary.
//
// Values are injected at build time:
//
//	go build -ldflags "\
//	  -X github.com/ncobase/placesearch/version.Version=1.2.3 \
//	  -X github.com/ncobase/placesearch/version.Branch=main \
//	  -X 'github.com/ncobase/placesearch/version.BuiltAt=$(date -u +%FT%TZ)'" \
//	  ./cmd/placesearch
//
// Unset values fall back to the VCS stamp the Go toolchain embeds in the
// binary.
package version

package profile

import (
	"github.com/waitprof/waitprof/pkg/cmd/options"
)

type Options struct {
	mode      string
	outputDir string
	topN      int

	chunks   int
	parallel int
	force    bool

	status     bool
	flamegraph bool

	*options.CommonOptions
}

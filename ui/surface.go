package ui

import (
	"io"

	"aethermon/render"
)

// Surface commits render trees to an output medium. Each Commit replaces the
// whole output region. Implementations must be safe for concurrent Commit
// calls; the last commit wins.
type Surface interface {
	WaitReady()
	Stop()
	Commit(tree render.Tree)
	SystemWriter() io.Writer
}

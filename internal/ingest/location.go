package ingest

import (
	"context"
	"fmt"

	"collectwise/internal/source"
)

// RunLocation opens location with o and runs the pipeline over it. When
// p.Parse is nil the parser is chosen by format ("auto" uses the location's
// extension). Open failures wrap source errors, so callers can test for
// source.ErrNotFound.
func (p *Pipeline) RunLocation(ctx context.Context, o *source.Opener, location, format string) (Stats, error) {
	run := *p
	if run.Parse == nil {
		parse, err := ParserFor(format, location)
		if err != nil {
			return Stats{}, err
		}
		run.Parse = parse
	}
	if o == nil {
		o = &source.Opener{Logger: p.Logger}
	}

	rc, err := o.Open(ctx, location)
	if err != nil {
		return Stats{}, fmt.Errorf("ingest: open %s: %w", location, err)
	}
	return run.Run(ctx, rc)
}

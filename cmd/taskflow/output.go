package main

import (
	"encoding/json"
	"fmt"
	"io"
)

// output routes command results: data to w (JSON or a rendered view),
// status messages to errW.
type output struct {
	jsonMode bool
	w        io.Writer
	errW     io.Writer
}

// Print writes v as indented JSON in JSON mode, otherwise calls render.
func (o *output) Print(v any, render func(io.Writer)) error {
	if o.jsonMode {
		return o.JSON(v)
	}
	render(o.w)
	return nil
}

// JSON writes v with indentation.
func (o *output) JSON(v any) error {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Info writes a status message to stderr.
func (o *output) Info(msg string) {
	fmt.Fprintln(o.errW, msg)
}

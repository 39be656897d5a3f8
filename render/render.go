// Package render writes streamed reply fragments to a terminal writer.
package render

import (
	"fmt"
	"io"

	"github.com/pmeller/verba/llm"
)

// Stream consumes reply events and writes each text fragment to w as it
// arrives, ending the line once the done event is seen.
func Stream(w io.Writer, events *llm.EventQueue) error {
	for {
		event, ok := events.Next()
		if !ok {
			return nil
		}
		if event.Done {
			fmt.Fprintln(w)
			return nil
		}
		if _, err := fmt.Fprint(w, event.Text); err != nil {
			return err
		}
	}
}

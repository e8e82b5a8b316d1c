package command

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"filedownloader/internal/apperr"
)

// MaxLineSize bounds a single command line on the line protocol.
const MaxLineSize = 4 << 20

// Serve reads newline-delimited JSON commands from in and writes one JSON
// response per command to out, in order. Blank lines are skipped. Only
// failures to read in or write out are returned.
func (r *Router) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineSize)
	encoder := json.NewEncoder(out)
	encoder.SetEscapeHTML(false)

	handled := 0
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		handled++
		if err := encoder.Encode(r.Handle(ctx, line)); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	if handled == 0 {
		resp := ErrorResponse(apperr.New(apperr.KindMalformedRequest, "no input received"))
		if err := encoder.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	return nil
}

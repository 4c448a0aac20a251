package csvconfig

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/roach88/harpi/internal/hapcan"
	"github.com/roach88/harpi/internal/ir"
)

// maxLineLen bounds a single configuration line.
const maxLineLen = 64 * 1024

// Source is one named configuration input.
type Source struct {
	Name string
	R    io.Reader
}

// Offsets are the identifier shifts applied to one source.
type Offsets struct {
	StateMachine uint32 `json:"state_machine"`
	ActionSet    uint32 `json:"action_set"`
	EventSet     uint32 `json:"event_set"`
}

// SourceInfo describes how one source was ingested.
type SourceInfo struct {
	Name    string  `json:"name"`
	Lines   int     `json:"lines"`
	Records int     `json:"records"`
	Offsets Offsets `json:"offsets"`
}

// Result is the record stream of one ingestion.
type Result struct {
	Records []ir.Record
	Counts  map[ir.Kind]int
	Sources []SourceInfo
}

// Count returns the number of records of kind k.
func (r *Result) Count(k ir.Kind) int {
	return r.Counts[k]
}

// Ingest parses sources in order into one record stream. The first
// malformed line aborts ingestion with a *ParseError and no records.
func Ingest(sources []Source) (*Result, error) {
	res := &Result{Counts: make(map[ir.Kind]int, len(ir.Kinds))}
	ids := newRemapper()

	for _, src := range sources {
		info := SourceInfo{Name: src.Name, Offsets: ids.offsets()}
		before := len(res.Records)

		lines, err := ingestSource(src, ids, func(r ir.Record) {
			res.Records = append(res.Records, r)
			res.Counts[r.Kind()]++
		})
		if err != nil {
			return nil, err
		}

		info.Lines = lines
		info.Records = len(res.Records) - before
		res.Sources = append(res.Sources, info)
		ids.advance()

		slog.Debug("config source ingested",
			"source", src.Name,
			"lines", info.Lines,
			"records", info.Records,
			"sm_offset", info.Offsets.StateMachine,
			"action_offset", info.Offsets.ActionSet,
			"event_offset", info.Offsets.EventSet,
		)
	}

	return res, nil
}

// ingestSource reads one source line by line and returns the number of
// lines read.
func ingestSource(src Source, ids *remapper, emit func(ir.Record)) (int, error) {
	// Spreadsheet exports often start with a UTF-8 BOM.
	r := transform.NewReader(src.R, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLen)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		rec, err := parseLine(text, ids)
		if err != nil {
			return lineNo, wrapLineError(src.Name, lineNo, text, err)
		}
		if rec != nil {
			emit(rec)
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return lineNo + 1, &ParseError{
				Source: src.Name,
				Line:   lineNo + 1,
				Err:    fmt.Errorf("line longer than %d bytes: %w", maxLineLen, err),
			}
		}
		return lineNo, fmt.Errorf("read %s: %w", src.Name, err)
	}
	return lineNo, nil
}

// sectionError marks a failure of the section token itself.
type sectionError struct{ err error }

func (e *sectionError) Error() string { return e.err.Error() }

// lineError carries the section whose fields failed.
type lineError struct {
	section string
	err     error
}

func (e *lineError) Error() string { return e.err.Error() }
func (e *lineError) Unwrap() error { return e.err }

func wrapLineError(source string, line int, text string, err error) error {
	pe := &ParseError{Source: source, Line: line, Text: text, Err: err}

	var se *sectionError
	if errors.As(err, &se) {
		pe.Err = se.err
		return pe
	}

	var le *lineError
	if errors.As(err, &le) {
		pe.Section = le.section
		pe.Err = le.err
		var fe *fieldError
		if errors.As(le.err, &fe) {
			pe.Field = fe.field
			pe.Err = fe.err
		}
	}
	return pe
}

// splitFields splits a line on commas, trims each field and drops empty
// trailing fields left by spreadsheet padding.
func splitFields(line string) []string {
	line = strings.TrimRight(line, "\r")
	fields := strings.Split(line, ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	for len(fields) > 0 && fields[len(fields)-1] == "" {
		fields = fields[:len(fields)-1]
	}
	return fields
}

// parseLine returns the record declared by one line, or nil for blank
// and header lines.
func parseLine(line string, ids *remapper) (ir.Record, error) {
	fields := splitFields(line)
	if len(fields) == 0 {
		return nil, nil
	}

	kind, ok := ir.KindForSection(fields[0])
	if !ok {
		return nil, &sectionError{err: fmt.Errorf("unknown section %q", fields[0])}
	}
	if len(fields) == 1 {
		return nil, nil
	}

	c := &fieldCursor{fields: fields[1:]}
	var (
		rec ir.Record
		err error
	)
	switch kind {
	case ir.KindLoadBinding:
		rec, err = parseLoadBinding(c, ids)
	case ir.KindEventBinding:
		rec, err = parseEventBinding(c, ids)
	case ir.KindActionSet:
		rec, err = parseActionSet(c, ids)
	case ir.KindStateAction:
		rec, err = parseStateAction(c, ids)
	case ir.KindStateTransition:
		rec, err = parseStateTransition(c, ids)
	case ir.KindEventSet:
		rec, err = parseEventSet(c, ids)
	}
	if err == nil {
		err = c.done()
	}
	if err != nil {
		return nil, &lineError{section: kind.Section(), err: err}
	}
	return rec, nil
}

// remapField reads a decimal id and shifts it into the global space.
func remapField(c *fieldCursor, space *idSpace) (uint16, error) {
	raw, err := c.uint16Dec()
	if err != nil {
		return 0, err
	}
	id, err := space.remap(raw)
	if err != nil {
		return 0, c.fail(err)
	}
	return id, nil
}

func parseLoadBinding(c *fieldCursor, ids *remapper) (ir.Record, error) {
	var (
		rec ir.LoadBinding
		err error
	)
	if rec.StateMachineID, err = remapField(c, &ids.stateMachines); err != nil {
		return nil, err
	}
	if rec.Load, err = c.loadKind(); err != nil {
		return nil, err
	}
	if rec.Node, err = c.hexByte(); err != nil {
		return nil, err
	}
	if rec.Group, err = c.hexByte(); err != nil {
		return nil, err
	}
	if rec.Channel, err = c.uint8Dec(); err != nil {
		return nil, err
	}
	return rec, nil
}

func parseEventBinding(c *fieldCursor, ids *remapper) (ir.Record, error) {
	var (
		rec ir.EventBinding
		err error
	)
	if rec.StateMachineID, err = remapField(c, &ids.stateMachines); err != nil {
		return nil, err
	}
	if rec.EventSetID, err = remapField(c, &ids.eventSets); err != nil {
		return nil, err
	}
	return rec, nil
}

func parseActionSet(c *fieldCursor, ids *remapper) (ir.Record, error) {
	var (
		rec ir.ActionSet
		err error
	)
	if rec.ID, err = remapField(c, &ids.actionSets); err != nil {
		return nil, err
	}
	for i := 0; i < hapcan.FrameLen; i++ {
		if rec.Frame[i], err = c.hexByte(); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func parseStateAction(c *fieldCursor, ids *remapper) (ir.Record, error) {
	var (
		rec ir.StateAction
		err error
	)
	if rec.StateMachineID, err = remapField(c, &ids.stateMachines); err != nil {
		return nil, err
	}
	if rec.CurrentState, err = c.uint16Dec(); err != nil {
		return nil, err
	}
	if rec.EventSetID, err = remapField(c, &ids.eventSets); err != nil {
		return nil, err
	}
	if rec.ActionSetID, err = remapField(c, &ids.actionSets); err != nil {
		return nil, err
	}
	return rec, nil
}

func parseStateTransition(c *fieldCursor, ids *remapper) (ir.Record, error) {
	var (
		rec ir.StateTransition
		err error
	)
	if rec.StateMachineID, err = remapField(c, &ids.stateMachines); err != nil {
		return nil, err
	}
	if rec.CurrentState, err = c.uint16Dec(); err != nil {
		return nil, err
	}
	if rec.EventSetID, err = remapField(c, &ids.eventSets); err != nil {
		return nil, err
	}
	if rec.NewState, err = c.uint16Dec(); err != nil {
		return nil, err
	}
	return rec, nil
}

func parseEventSet(c *fieldCursor, ids *remapper) (ir.Record, error) {
	var (
		rec ir.EventSet
		err error
	)
	if rec.ID, err = remapField(c, &ids.eventSets); err != nil {
		return nil, err
	}
	for i := 0; i < hapcan.FrameLen; i++ {
		if rec.Conditions[i], err = c.filterOp(); err != nil {
			return nil, err
		}
	}
	for i := 0; i < hapcan.FrameLen; i++ {
		if rec.Values[i], err = c.hexByte(); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/roach88/harpi/internal/csvconfig"
	"github.com/roach88/harpi/internal/rules"
)

// loaded is a configuration directory ingested and built without being
// published anywhere.
type loaded struct {
	Dir        string
	Ingest     *csvconfig.Result
	Generation *rules.Generation
}

// loadDir ingests and builds the *.csv files of dir.
func loadDir(dir string, ids rules.IDGenerator) (*loaded, error) {
	sources, err := csvconfig.DirSources(dir)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no *.csv files in %s: %w", dir, fs.ErrNotExist)
	}

	res, err := csvconfig.Ingest(sources)
	if err != nil {
		return nil, err
	}
	gen, err := rules.Build(res.Records, ids)
	if err != nil {
		return nil, err
	}
	return &loaded{Dir: dir, Ingest: res, Generation: gen}, nil
}

// loadErrorCode classifies a loadDir failure.
func loadErrorCode(err error) (code string, details any) {
	var pe *csvconfig.ParseError
	switch {
	case errors.As(err, &pe):
		return ErrCodeParse, map[string]any{
			"source":  pe.Source,
			"line":    pe.Line,
			"section": pe.Section,
			"field":   pe.Field,
			"text":    pe.Text,
		}
	case rules.IsCapacityError(err):
		return ErrCodeBuild, nil
	case errors.Is(err, fs.ErrNotExist):
		return ErrCodeNotFound, nil
	default:
		return ErrCodeGeneric, nil
	}
}

// reportLoadError writes err through formatter and returns the matching
// exit error. Rejected configuration exits 1, a missing directory 2.
func reportLoadError(formatter *OutputFormatter, err error) error {
	code, details := loadErrorCode(err)
	_ = formatter.Error(code, err.Error(), details)

	exit := ExitFailure
	if code == ErrCodeNotFound || code == ErrCodeGeneric {
		exit = ExitCommandError
	}
	return WrapExitError(exit, "configuration rejected", err)
}

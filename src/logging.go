package asciicall

/*------------------------------------------------------------------
 *
 * Purpose:   	Log setup shared by both binaries.
 *
 * Description:	Logs always go to a file: on the client the terminal
 *		is the video surface, and on the SFU the operator asked
 *		for a --log-file anyway.  The path may contain strftime
 *		patterns (e.g. "debug-%Y%m%d.log") which are expanded
 *		at open time; a plain path passes through unchanged.
 *
 *----------------------------------------------------------------*/

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// NewFileLogger opens (appending) the given path and returns a logger
// writing to it.  verbose selects debug level.
func NewFileLogger(path string, verbose bool) (*log.Logger, io.Closer, error) {
	var expanded, expandErr = strftime.Format(path, time.Now())
	if expandErr != nil {
		return nil, nil, fmt.Errorf("bad log file pattern %q: %w", path, expandErr)
	}

	var f, openErr = os.OpenFile(expanded, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if openErr != nil {
		return nil, nil, openErr
	}

	var level = log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}

	var logger = log.NewWithOptions(f, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "2006-01-02 15:04:05.000",
		Level:           level,
	})

	return logger, f, nil
}

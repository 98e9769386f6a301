package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	RunLogFile   = "sparqlbench.log"
	BriefLogFile = "sparqlbench_brief.log"
)

// Discard is a logger that writes nothing.
var Discard = &logrus.Logger{
	Out:       io.Discard,
	Formatter: new(logrus.TextFormatter),
	Hooks:     make(logrus.LevelHooks),
	Level:     logrus.PanicLevel,
}

// Loggers holds the run logger (summaries, warnings, verbose dumps) and the
// brief logger (one line per execution).
type Loggers struct {
	Run   *logrus.Logger
	Brief *logrus.Logger

	files []*os.File
}

// New opens both log files under dir, creating it if needed.
func New(dir string, verbose bool) (*Loggers, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating log directory %s", dir)
	}
	l := &Loggers{}
	var err error
	if l.Run, err = l.open(filepath.Join(dir, RunLogFile), verbose); err != nil {
		l.Close()
		return nil, err
	}
	if l.Brief, err = l.open(filepath.Join(dir, BriefLogFile), verbose); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

func (l *Loggers) open(path string, verbose bool) (*logrus.Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening log file %s", path)
	}
	l.files = append(l.files, f)
	return NewLogger(f, verbose), nil
}

// NewLogger returns a text logger writing to w with full timestamps.
func NewLogger(w io.Writer, verbose bool) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	return log
}

// Close closes the log files.
func (l *Loggers) Close() error {
	var result error
	for _, f := range l.files {
		if err := f.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	l.files = nil
	return result
}

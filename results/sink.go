package results

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/forestsim/go-forestsim-geoprocess/config"
)

// Sink is an append-only accumulator file. Every processed dataset appends one "<value>," cell and every
// completed pass appends a newline, so each row of the file is one pass over an experiment directory.
//
// The file is opened, appended to and closed on every call; nothing is held open between datasets.
// There is no locking, two runs writing to the same sink will interleave their output.
type Sink struct {
	path string
}

// NewSink returns a Sink appending to path. The file is created on the first write.
func NewSink(path string) *Sink {
	return &Sink{
		path: path,
	}
}

// Path returns the path of the file backing the sink.
func (s *Sink) Path() string {
	return s.path
}

// AppendValue appends a single "<value>," cell.
func (s *Sink) AppendValue(v float64) error {
	return s.append(FormatValue(v) + ",")
}

// EndPass terminates the current row.
func (s *Sink) EndPass() error {
	return s.append("\n")
}

func (s *Sink) append(str string) error {

	fh, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)

	if err != nil {
		return fmt.Errorf("Failed to open %s for appending, %w", s.path, err)
	}

	_, err = fh.WriteString(str)

	if err != nil {
		fh.Close()
		return fmt.Errorf("Failed to append to %s, %w", s.path, err)
	}

	err = fh.Close()

	if err != nil {
		return fmt.Errorf("Failed to close %s, %w", s.path, err)
	}

	return nil
}

// Experiment pairs the two sinks kept for each experiment.
type Experiment struct {
	Aesthetics          *Sink
	HabitatConnectivity *Sink
}

// NewExperiment returns the sinks for an experiment whose output files live in dir.
func NewExperiment(dir string, outputs config.OutputsConfig) *Experiment {
	return &Experiment{
		Aesthetics:          NewSink(filepath.Join(dir, outputs.Aesthetics)),
		HabitatConnectivity: NewSink(filepath.Join(dir, outputs.HabitatConnectivity)),
	}
}

// Record appends the metric pair for one dataset.
func (e *Experiment) Record(area float64, connectivity float64) error {

	err := e.Aesthetics.AppendValue(area)

	if err != nil {
		return err
	}

	return e.HabitatConnectivity.AppendValue(connectivity)
}

// EndPass terminates the current row of both sinks.
func (e *Experiment) EndPass() error {

	err := e.Aesthetics.EndPass()

	if err != nil {
		return err
	}

	return e.HabitatConnectivity.EndPass()
}

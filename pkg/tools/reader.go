package tools

import (
	"path/filepath"
	"strconv"
)

// Command files shipped with the reader's resources.
const (
	ReadCmd      = "read.cmd.json"
	SelfTestCmd  = "self-test.cmd.json"
	LogPage02Cmd = "logpage02.cmd.json"
	LogPage03Cmd = "logpage03.cmd.json"
)

// Rules files shipped with the reader's resources.
const (
	UserFeaturesRules = "user-features.rules.json"
	UnusedDriveRules  = "unused-drive.rules.json"
	DefaultRules      = "default.rules.json"
)

// Files the reader writes into its --dir.
const (
	InfoFile    = "nvme.info.json"
	SummaryFile = "read.summary.json"
)

// Reader locates the reader tool and its resources directory.
type Reader struct {
	Path      string
	Resources string
}

// ReaderArgs describes one reader invocation.
type ReaderArgs struct {
	// CmdFile is resolved against the resources directory unless absolute.
	CmdFile string
	Dir     string
	NVMe    int
	// Rules is resolved like CmdFile. Empty means no rules check.
	Rules string
	// Samples and IntervalMS are only passed when Samples is positive.
	Samples    int
	IntervalMS int
	Extended   bool
	// Compare is a reference info file to compare against.
	Compare string
}

// Argv builds the argument vector for a.
func (r Reader) Argv(a ReaderArgs) []string {
	argv := []string{r.Path, r.resource(a.CmdFile), "--dir", a.Dir}

	if a.Rules != "" {
		argv = append(argv, "--rules", r.resource(a.Rules))
	}

	if a.Samples > 0 {
		argv = append(argv,
			"--samples", strconv.Itoa(a.Samples),
			"--interval", strconv.Itoa(a.IntervalMS),
		)
	}

	if a.Extended {
		argv = append(argv, "--extended")
	}

	if a.Compare != "" {
		argv = append(argv, "--compare", a.Compare)
	}

	return append(argv, "--nvme", strconv.Itoa(a.NVMe))
}

func (r Reader) resource(name string) string {
	if r.Resources == "" || filepath.IsAbs(name) {
		return name
	}

	return filepath.Join(r.Resources, name)
}

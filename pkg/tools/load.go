package tools

import (
	"strconv"
	"strings"
	"time"
)

// LoadResultFile is the JSON result file name of a load step.
const LoadResultFile = "fio.json"

// LoadArgs describes one load generator job. Zero values are omitted.
type LoadArgs struct {
	Name      string
	IOEngine  string
	Direct    bool
	NumJobs   int
	Thread    bool
	RW        string
	IODepth   int
	BlockSize string
	// ThinkTimeBlocks and ThinkTimeUS pace the job between blocks.
	ThinkTimeBlocks int
	ThinkTimeUS     int
	// Runtime switches the job to time based.
	Runtime time.Duration
	// RWMixRead is the read percentage of a mixed job.
	RWMixRead *int
	Output    string
	Filename  string
	Size      string
}

// Argv builds the argument vector for the load tool at path.
func (a LoadArgs) Argv(path string) []string {
	argv := []string{path}

	add := func(flag, value string) {
		if value != "" {
			argv = append(argv, "--"+flag+"="+value)
		}
	}

	addInt := func(flag string, value int) {
		if value > 0 {
			add(flag, strconv.Itoa(value))
		}
	}

	add("name", a.Name)
	add("ioengine", a.IOEngine)

	if a.Direct {
		add("direct", "1")
	}

	addInt("numjobs", a.NumJobs)

	if a.Thread {
		argv = append(argv, "--thread")
	}

	add("rw", a.RW)
	addInt("iodepth", a.IODepth)
	addInt("thinktime_blocks", a.ThinkTimeBlocks)
	add("bs", a.BlockSize)

	if a.Runtime > 0 {
		addInt("runtime", int(a.Runtime/time.Second))
		argv = append(argv, "--time_based")
	}

	add("output-format", "json")
	add("filename", escapeFilename(a.Filename))
	add("size", a.Size)
	add("output", a.Output)

	if a.RWMixRead != nil {
		add("rwmixread", strconv.Itoa(*a.RWMixRead))
	}

	addInt("thinktime", a.ThinkTimeUS)

	return argv
}

// escapeFilename escapes drive colons, which the load tool otherwise
// treats as a file list separator.
func escapeFilename(name string) string {
	return strings.ReplaceAll(name, ":", `\:`)
}

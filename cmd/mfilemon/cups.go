package main

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/lomo74/mfilemon/monitor"
	"github.com/lomo74/mfilemon/monitor/spooler"
)

// CUPS backend exit codes.
const (
	cupsOK     = 0
	cupsFailed = 1
	cupsStop   = 4
)

const uriScheme = "mfilemon"

// runBackend implements the CUPS backend interface:
//
//	mfilemon                                    device discovery
//	mfilemon job user title copies options [file]
//
// The port is taken from DEVICE_URI, mfilemon:/PortName.
func runBackend(args []string, stdin io.Reader, stdout, stderr io.Writer, getenv func(string) string) int {
	c := &cli{configPath: getenv("MFILEMON_CONFIG"), stdin: stdin, stdout: stdout}

	if len(args) == 0 {
		discover(c, stdout)
		return cupsOK
	}
	if len(args) != 5 && len(args) != 6 {
		fmt.Fprintln(stderr, "Usage: mfilemon job-id user title copies options [file]")
		return cupsFailed
	}

	portName, err := portFromURI(getenv("DEVICE_URI"))
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return cupsStop
	}
	jobID, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: bad job id %q\n", args[0])
		return cupsFailed
	}
	printer := getenv("PRINTER")
	if printer == "" {
		printer = uriScheme
	}

	job := printJob{
		port:     portName,
		printer:  printer,
		title:    args[2],
		user:     args[1],
		jobID:    uint32(jobID),
		datatype: "RAW",
		data:     stdin,
	}
	if len(args) == 6 {
		f, err := os.Open(args[5])
		if err != nil {
			fmt.Fprintf(stderr, "ERROR: %v\n", err)
			return cupsFailed
		}
		defer f.Close()
		job.data = f
	}

	q := spooler.NewQueue()
	m, err := c.openMonitor(q)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return cupsStop
	}
	defer m.Shutdown()

	fmt.Fprintf(stderr, "INFO: printing job %d to port %s\n", jobID, portName)
	file, err := printThrough(m, q, job)
	if err != nil {
		fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return cupsFailed
	}
	if file != "" {
		fmt.Fprintf(stderr, "INFO: job written to %s\n", filepath.Base(file))
	}
	return cupsOK
}

// discover prints one device line per configured port, or a generic line
// when no port can be read.
func discover(c *cli, stdout io.Writer) {
	m, err := c.openMonitor(nil)
	if err == nil {
		defer m.Shutdown()
		infos, err := enumPorts(m)
		if err == nil && len(infos) > 0 {
			for _, info := range infos {
				fmt.Fprintf(stdout, "file %s:/%s \"Unknown\" \"%s %s\"\n",
					uriScheme, url.PathEscape(info.Name), info.Description, info.Name)
			}
			return
		}
	}
	fmt.Fprintf(stdout, "file %s:/ \"Unknown\" \"%s\"\n", uriScheme, monitor.DefaultSettings().Description)
}

// portFromURI extracts the port name from mfilemon:/Name or
// mfilemon://Name.
func portFromURI(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, uriScheme+":")
	if !ok {
		return "", fmt.Errorf("device URI %q is not a %s URI", uri, uriScheme)
	}
	name, err := url.PathUnescape(strings.TrimLeft(rest, "/"))
	if err != nil {
		return "", fmt.Errorf("device URI %q: %w", uri, err)
	}
	if name == "" {
		return "", fmt.Errorf("device URI %q names no port", uri)
	}
	return name, nil
}

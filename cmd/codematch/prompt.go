package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/localrivet/codematch/internal/ingest"
)

var errInvalidChoice = errors.New("invalid choice")

// sourceArgs returns the target directory and files spec for
// make-source-db, asking on in for whatever args does not supply.
func sourceArgs(in io.Reader, out io.Writer, args []string) (dir, spec string, err error) {
	r := bufio.NewReader(in)

	if len(args) > 0 {
		dir = args[0]
	} else if dir, err = ask(r, out, "Enter the directory path to create db source: "); err != nil {
		return "", "", err
	}

	if len(args) > 1 {
		return dir, args[1], nil
	}

	choice, err := ask(r, out, "Which one? [1] files (require file extension) [2] files-list (require comma-separated pair of filenames): ")
	if err != nil {
		return "", "", err
	}
	switch choice {
	case "1":
		ext, err := ask(r, out, "Enter the file extensions: ")
		if err != nil {
			return "", "", err
		}
		return dir, ingest.ExtensionSpec(ext), nil
	case "2":
		files, err := ask(r, out, "Enter the files with comma-separated: ")
		if err != nil {
			return "", "", err
		}
		return dir, files, nil
	default:
		return "", "", fmt.Errorf("%w: %q", errInvalidChoice, choice)
	}
}

// ask prints prompt and reads one trimmed line. A final line without a
// newline is accepted.
func ask(r *bufio.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

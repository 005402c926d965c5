package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/five82/tally/internal/classapi"
)

// inputMode selects what the prompt line is collecting.
type inputMode int

const (
	inputNone inputMode = iota
	inputValues
	inputCommand
)

// command is a parsed ":" command line.
type command struct {
	Name  string
	Index int
	Text  string
	Value float64
	Point classapi.Point
}

var errEmptyInput = errors.New("nothing entered")

// parseValues reads numbers separated by commas or whitespace.
func parseValues(s string) ([]float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, errEmptyInput
	}
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := parseNumber(f)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// parsePairs reads points separated by ';'. Each point is "x y" or "x,y".
func parsePairs(s string) ([]classapi.Point, error) {
	var out []classapi.Point
	for part := range strings.SplitSeq(s, ";") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		values, err := parseValues(part)
		if err != nil {
			return nil, err
		}
		if len(values) != 2 {
			return nil, fmt.Errorf("point %q needs two values", strings.TrimSpace(part))
		}
		out = append(out, classapi.Point{X: values[0], Y: values[1]})
	}
	if len(out) == 0 {
		return nil, errEmptyInput
	}
	return out, nil
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	return v, nil
}

// commandUsage lists the accepted ":" commands.
var commandUsage = []string{
	"delete <value>            remove one value from the selected group",
	"delete <x> <y>            remove one paired point",
	"rename-var <n> <name>     rename variable n (admin)",
	"rename-group <n> <name>   rename group n (admin)",
	"add-group <name>          add a group (admin)",
	"delete-group <n>          remove group n and its data (admin)",
	"clear-group <n>           remove group n's data (admin)",
	"clear-all                 remove all data (admin)",
	"open | close              open or close collection (admin)",
	"renew                     restart the collection window (admin)",
	"extend                    extend the session expiry (admin)",
	"refresh                   fetch now",
}

// parseCommand parses a ":" command line. paired selects how delete reads
// its arguments.
func parseCommand(line string, paired bool) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, errEmptyInput
	}
	cmd := command{Name: strings.ToLower(fields[0])}
	args := fields[1:]

	switch cmd.Name {
	case "delete", "del":
		cmd.Name = "delete"
		if paired {
			points, err := parsePairs(strings.Join(args, " "))
			if err != nil {
				return command{}, err
			}
			if len(points) != 1 {
				return command{}, errors.New("delete takes one point")
			}
			cmd.Point = points[0]
			return cmd, nil
		}
		if len(args) != 1 {
			return command{}, errors.New("usage: delete <value>")
		}
		v, err := parseNumber(args[0])
		if err != nil {
			return command{}, err
		}
		cmd.Value = v
	case "rename-var", "rename-group":
		if len(args) < 2 {
			return command{}, fmt.Errorf("usage: %s <n> <name>", cmd.Name)
		}
		idx, err := parseIndex(args[0])
		if err != nil {
			return command{}, err
		}
		cmd.Index = idx
		cmd.Text = strings.Join(args[1:], " ")
	case "add-group":
		if len(args) == 0 {
			return command{}, errors.New("usage: add-group <name>")
		}
		cmd.Text = strings.Join(args, " ")
	case "delete-group", "clear-group":
		if len(args) != 1 {
			return command{}, fmt.Errorf("usage: %s <n>", cmd.Name)
		}
		idx, err := parseIndex(args[0])
		if err != nil {
			return command{}, err
		}
		cmd.Index = idx
	case "clear-all", "open", "close", "renew", "extend", "refresh":
		if len(args) != 0 {
			return command{}, fmt.Errorf("%s takes no arguments", cmd.Name)
		}
	default:
		return command{}, fmt.Errorf("unknown command %q", cmd.Name)
	}
	return cmd, nil
}

func parseIndex(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%q is not a position (1, 2, ...)", s)
	}
	return n, nil
}

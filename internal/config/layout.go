package config

import (
	"strconv"
	"strings"

	nkerr "github.com/23skdu/numakit/internal/errors"
)

// ParseLayout parses "NODESxCPUS" (e.g. "2x8") into node and per-node CPU counts
func ParseLayout(s string) (nodes, cpusPerNode int, err error) {
	left, right, found := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !found {
		return 0, 0, nkerr.NewInvalidArgumentError("parse_layout", "expected NODESxCPUS").WithContext("layout", s)
	}
	nodes, err = strconv.Atoi(left)
	if err != nil || nodes < 1 {
		return 0, 0, nkerr.NewInvalidArgumentError("parse_layout", "invalid node count").WithContext("layout", s)
	}
	cpusPerNode, err = strconv.Atoi(right)
	if err != nil || cpusPerNode < 1 {
		return 0, 0, nkerr.NewInvalidArgumentError("parse_layout", "invalid cpus per node").WithContext("layout", s)
	}
	return nodes, cpusPerNode, nil
}

package hubapi

import (
	"strconv"

	"github.com/netresearch/hub-server/internal/herr"
	"github.com/netresearch/hub-server/internal/node"
)

// stringParam reads a required string-valued key from params.
func stringParam(params *node.Mapping, key string) (string, error) {
	v, ok := params.Get(key)
	if !ok {
		return "", herr.New(herr.MissingArg, "missing parameter: "+key)
	}

	sc, ok := v.(*node.Scalar)
	if !ok {
		return "", herr.New(herr.IllegalArg, "parameter "+key+" is not a scalar")
	}

	return sc.Text(), nil
}

// optionalStringParam reads key if present, returning "" otherwise.
func optionalStringParam(params *node.Mapping, key string) string {
	v, ok := params.Get(key)
	if !ok {
		return ""
	}

	sc, ok := v.(*node.Scalar)
	if !ok {
		return ""
	}

	return sc.Text()
}

// intParam reads key as a base-10 integer.
func intParam(params *node.Mapping, key string) (int, bool, error) {
	s := optionalStringParam(params, key)
	if s == "" {
		return 0, false, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false, herr.New(herr.IllegalArg, "parameter "+key+" is not an integer")
	}

	return n, true, nil
}

// mtimeParam reads key as a Unix-seconds timestamp, used by store/update's
// optimistic-concurrency check.
func mtimeParam(params *node.Mapping, key string) (int64, bool, error) {
	s := optionalStringParam(params, key)
	if s == "" {
		return 0, false, nil
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false, herr.New(herr.IllegalArg, "parameter "+key+" is not a timestamp")
	}

	return n, true, nil
}

// intSliceParam reads key as a Sequence of integer-valued Scalars, used by
// reorder's permutation argument.
func intSliceParam(params *node.Mapping, key string) ([]int, error) {
	v, ok := params.Get(key)
	if !ok {
		return nil, herr.New(herr.MissingArg, "missing parameter: "+key)
	}

	seq, ok := v.(*node.Sequence)
	if !ok {
		return nil, herr.New(herr.IllegalArg, "parameter "+key+" is not an array")
	}

	out := make([]int, 0, seq.Len())

	for _, item := range seq.Items() {
		sc, ok := item.(*node.Scalar)
		if !ok {
			return nil, herr.New(herr.IllegalArg, "parameter "+key+" must contain scalars")
		}

		n, err := strconv.Atoi(sc.Text())
		if err != nil {
			return nil, herr.New(herr.IllegalArg, "parameter "+key+" must contain integers")
		}

		out = append(out, n)
	}

	return out, nil
}

// stringSliceParam reads key as a Sequence of string-valued Scalars, used
// by reorder's new-key-order argument on ordered mappings.
func stringSliceParam(params *node.Mapping, key string) ([]string, error) {
	v, ok := params.Get(key)
	if !ok {
		return nil, herr.New(herr.MissingArg, "missing parameter: "+key)
	}

	seq, ok := v.(*node.Sequence)
	if !ok {
		return nil, herr.New(herr.IllegalArg, "parameter "+key+" is not an array")
	}

	out := make([]string, 0, seq.Len())

	for _, item := range seq.Items() {
		sc, ok := item.(*node.Scalar)
		if !ok {
			return nil, herr.New(herr.IllegalArg, "parameter "+key+" must contain scalars")
		}

		out = append(out, sc.Text())
	}

	return out, nil
}

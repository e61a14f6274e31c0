package stdlib

import (
	"github.com/lemonberrylabs/sheetroll/pkg/types"
)

// registerMath registers the integer math functions, each under its bare
// name and a math.* alias.
func (r *Registry) registerMath() {
	for name, fn := range map[string]StdlibFunc{
		"abs":   mathAbs,
		"floor": mathFloor,
		"max":   mathMax,
		"min":   mathMin,
		"clamp": mathClamp,
		"sign":  mathSign,
	} {
		r.Register(name, fn)
		r.Register("math."+name, fn)
	}
}

func mathAbs(args []int) (int, error) {
	if err := requireArgs("abs", args, 1, 1); err != nil {
		return 0, err
	}
	if args[0] < 0 {
		return -args[0], nil
	}
	return args[0], nil
}

// mathFloor is the identity on integers. Division already floors, so
// floor((str - 10) / 2) reads naturally in sheet formulas.
func mathFloor(args []int) (int, error) {
	if err := requireArgs("floor", args, 1, 1); err != nil {
		return 0, err
	}
	return args[0], nil
}

func mathMax(args []int) (int, error) {
	if err := requireArgs("max", args, 1, -1); err != nil {
		return 0, err
	}
	m := args[0]
	for _, a := range args[1:] {
		if a > m {
			m = a
		}
	}
	return m, nil
}

func mathMin(args []int) (int, error) {
	if err := requireArgs("min", args, 1, -1); err != nil {
		return 0, err
	}
	m := args[0]
	for _, a := range args[1:] {
		if a < m {
			m = a
		}
	}
	return m, nil
}

func mathClamp(args []int) (int, error) {
	if err := requireArgs("clamp", args, 3, 3); err != nil {
		return 0, err
	}
	v, lo, hi := args[0], args[1], args[2]
	if lo > hi {
		return 0, types.NewValueError("clamp lower bound exceeds upper bound")
	}
	if v < lo {
		return lo, nil
	}
	if v > hi {
		return hi, nil
	}
	return v, nil
}

func mathSign(args []int) (int, error) {
	if err := requireArgs("sign", args, 1, 1); err != nil {
		return 0, err
	}
	switch {
	case args[0] > 0:
		return 1, nil
	case args[0] < 0:
		return -1, nil
	}
	return 0, nil
}

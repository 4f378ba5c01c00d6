//go:build cornercase_debug

package capture

func onInvariantViolation(err error) {
	panic(err)
}

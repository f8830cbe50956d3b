package cron

import "testing"

func FuzzValidateSchedule(f *testing.F) {
	f.Add("*/5 * * * *")
	f.Add("0 0 * * *")
	f.Add("@every 10m")
	f.Add("@hourly")
	f.Add("invalid")
	f.Add("")
	f.Add("60 * * * *")
	f.Add("@every -1s")

	f.Fuzz(func(_ *testing.T, expr string) {
		// Errors are fine; panics are not.
		_ = ValidateSchedule(expr)
	})
}

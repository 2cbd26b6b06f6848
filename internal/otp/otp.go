// Package otp generates the one-time codes guests confirm their mobile
// number with.
package otp

import (
	"math/rand"
	"strconv"
)

// codeLength is fixed by the SMS template and the verification
// procedure's column width.
const codeLength = 4

// Generate returns a 4-digit numeric code. The code gates a single
// low-value reservation and expires with its timeslot, so a plain
// pseudo-random digit generator is used rather than a CSPRNG.
func Generate() string {
	code := make([]byte, 0, codeLength)
	for i := 0; i < codeLength; i++ {
		code = strconv.AppendInt(code, int64(rand.Intn(10)), 10)
	}
	return string(code)
}

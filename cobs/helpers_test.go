package cobs_test

// encode is a reference COBS encoder, used to produce decoder input.  It
// appends the trailing delimiter.  framed/helpers_test.go carries the same
// encoder; keep the two in sync.
func encode(payload []byte) []byte {
	out := []byte{0}
	codeIdx := 0
	code := byte(1)
	finish := func() {
		out[codeIdx] = code
		codeIdx = len(out)
		out = append(out, 0)
		code = 1
	}
	for _, b := range payload {
		if b == 0 {
			finish()
			continue
		}
		out = append(out, b)
		code++
		if code == 0xff {
			finish()
		}
	}
	out[codeIdx] = code
	return append(out, 0)
}

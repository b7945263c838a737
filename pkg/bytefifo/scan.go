package bytefifo

import (
	"context"
	"io"
)

// SkipPast consumes bytes from f up to and including the first occurrence
// of pattern. It returns the number of bytes discarded before the pattern.
//
// Bytes read while probing a partial match that turns out wrong are pushed
// back and examined again, so self-overlapping patterns such as "aab" in
// "aaab" are found. An empty pattern consumes nothing. If the FIFO runs dry
// (io.EOF or ErrNoData) the probe is pushed back and that error returned.
func SkipPast(ctx context.Context, f *FIFO, pattern []byte) (int, error) {
	if len(pattern) == 0 {
		return 0, nil
	}

	skipped := 0
	probe := make([]byte, 0, len(pattern))
	var one [1]byte
	for {
		n, err := f.ReadContext(ctx, one[:])
		if n == 0 {
			if err == nil {
				err = io.EOF
			}
			f.Unread(probe)
			return skipped, err
		}
		if one[0] == pattern[len(probe)] {
			probe = append(probe, one[0])
			if len(probe) == len(pattern) {
				return skipped, nil
			}
			continue
		}
		if len(probe) == 0 {
			skipped++
			continue
		}
		// mismatch after a partial match: drop the first probed byte and
		// re-read everything after it, including the byte just seen
		rest := append(append([]byte(nil), probe[1:]...), one[0])
		f.Unread(rest)
		skipped++
		probe = probe[:0]
	}
}

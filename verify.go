package remotefs

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

func (p VerifyPolicy) downloads() bool {
	return p == VerifyDownload || p == VerifyAll
}

func (p VerifyPolicy) uploads() bool {
	return p == VerifyAll
}

// compareSizes returns ErrSizeMismatch when the two sizes differ.
func compareSizes(src string, srcSize int64, dst string, dstSize int64) error {
	if srcSize != dstSize {
		return fmt.Errorf("%w, src %s: %s vs dst %s: %s", ErrSizeMismatch,
			src, humanize.Bytes(uint64(srcSize)), dst, humanize.Bytes(uint64(dstSize)))
	}
	return nil
}

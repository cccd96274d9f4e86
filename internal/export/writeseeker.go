package export

import (
	"errors"
	"io"
)

// writeSeeker is an in-memory io.WriteSeeker. The wav encoder seeks back to
// patch the RIFF and data chunk sizes once all samples are written.
type writeSeeker struct {
	buf []byte
	pos int
}

func newWriteSeeker(capacity int) *writeSeeker {
	return &writeSeeker{buf: make([]byte, 0, capacity)}
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		if end > cap(w.buf) {
			grown := make([]byte, len(w.buf), end*2)
			copy(grown, w.buf)
			w.buf = grown
		}
		w.buf = w.buf[:end]
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, errors.New("writeseeker: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("writeseeker: negative position")
	}
	w.pos = int(abs)
	return abs, nil
}

func (w *writeSeeker) Bytes() []byte {
	return w.buf
}

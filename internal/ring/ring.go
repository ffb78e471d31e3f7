// Package ring provides a fixed size circular byte buffer used to split a
// serial byte stream into delimiter terminated records without allocating
// per read.
package ring

// Circular buffer. One slot is kept free to distinguish full from empty.
type Ring struct {
	buffer   []byte
	writePos int
	readPos  int
}

func New(size int) *Ring {
	if size < 2 {
		size = 2
	}
	return &Ring{buffer: make([]byte, size)}
}

func (r *Ring) Reset() {
	r.readPos = 0
	r.writePos = 0
}

func (r *Ring) Space() int {
	space := r.readPos - r.writePos - 1
	if space < 0 {
		space += len(r.buffer)
	}
	return space
}

func (r *Ring) Occupied() int {
	occupied := r.writePos - r.readPos
	if occupied < 0 {
		occupied += len(r.buffer)
	}
	return occupied
}

// Write appends bytes to the buffer and returns the number of bytes
// actually stored. Bytes that do not fit are dropped.
func (r *Ring) Write(data []byte) int {
	written := 0
	for _, element := range data {
		writePosNext := r.writePos + 1
		if writePosNext == len(r.buffer) {
			writePosNext = 0
		}
		if writePosNext == r.readPos {
			break
		}
		r.buffer[r.writePos] = element
		r.writePos = writePosNext
		written++
	}
	return written
}

// ReadRecord extracts the next record terminated by delim, excluding the
// delimiter itself, into out. It returns the record length and whether a
// complete record was found. Records longer than out are truncated.
func (r *Ring) ReadRecord(delim byte, out []byte) (int, bool) {
	end := -1
	for pos := r.readPos; pos != r.writePos; {
		if r.buffer[pos] == delim {
			end = pos
			break
		}
		pos++
		if pos == len(r.buffer) {
			pos = 0
		}
	}
	if end < 0 {
		return 0, false
	}
	length := 0
	for pos := r.readPos; pos != end; {
		if length < len(out) {
			out[length] = r.buffer[pos]
			length++
		}
		pos++
		if pos == len(r.buffer) {
			pos = 0
		}
	}
	r.readPos = end + 1
	if r.readPos == len(r.buffer) {
		r.readPos = 0
	}
	return length, true
}

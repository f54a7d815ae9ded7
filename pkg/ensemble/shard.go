package ensemble

// Split cuts v into at most n contiguous shards of near-equal size.
// Scalars are returned unchanged in every shard.
func (v Vector) Split(n int) []Vector {
	if n < 1 {
		n = 1
	}
	if v.IsScalar() {
		out := make([]Vector, n)
		for i := range out {
			out[i] = v
		}
		return out
	}
	if n > len(v.data) {
		n = len(v.data)
	}
	out := make([]Vector, 0, n)
	for _, r := range Ranges(len(v.data), n) {
		out = append(out, New(v.data[r[0]:r[1]]...))
	}
	return out
}

// Ranges returns n half-open [start, end) index ranges covering size elements.
func Ranges(size, n int) [][2]int {
	if n < 1 {
		n = 1
	}
	if n > size {
		n = size
	}
	out := make([][2]int, 0, n)
	base, rem := size/n, size%n
	start := 0
	for i := 0; i < n; i++ {
		end := start + base
		if i < rem {
			end++
		}
		out = append(out, [2]int{start, end})
		start = end
	}
	return out
}

// Concat joins shards back into one Vector, in order.
func Concat(shards ...Vector) Vector {
	switch len(shards) {
	case 0:
		return Vector{}
	case 1:
		return shards[0]
	}
	var data []float64
	for _, s := range shards {
		data = append(data, s.Values()...)
	}
	return Vector{data: data}
}

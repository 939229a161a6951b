package utils

// ASCII case-insensitive strings.Index.
// Bytes outside A-Z are compared exactly, so needle should be ASCII.
func IndexFold(s, needle string) int {
	n := len(needle)
	if n == 0 {
		return 0
	}
	for i := 0; i+n <= len(s); i++ {
		if lower(s[i]) != lower(needle[0]) {
			continue
		}
		j := 1
		for j < n && lower(s[i+j]) == lower(needle[j]) {
			j++
		}
		if j == n {
			return i
		}
	}
	return -1
}

func lower(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + 'a' - 'A'
	}
	return b
}

// Index of the longest suffix of s that is a proper prefix of needle,
// compared like IndexFold. Returns -1 when there is none.
func PartialSuffixFold(s, needle string) int {
	n := len(needle) - 1
	if n > len(s) {
		n = len(s)
	}
	for ; n > 0; n-- {
		at := len(s) - n
		if IndexFold(s[at:], needle[:n]) == 0 {
			return at
		}
	}
	return -1
}

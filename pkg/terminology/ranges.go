package terminology

import (
	"fmt"
	"strconv"
	"strings"
)

// expandCode turns a reference-table entry into concrete prefixes. A plain
// entry yields itself; "430-438" or "I425-I429" yields every same-width
// prefix in the closed range. Both ends must share the non-numeric head.
func expandCode(entry string) ([]string, error) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return nil, fmt.Errorf("empty code")
	}
	parts := strings.Split(entry, "-")
	switch len(parts) {
	case 1:
		code := NormalizeCode(parts[0])
		if code == "" {
			return nil, fmt.Errorf("empty code %q", entry)
		}
		return []string{code}, nil
	case 2:
	default:
		return nil, fmt.Errorf("malformed range %q", entry)
	}

	lo, hi := NormalizeCode(parts[0]), NormalizeCode(parts[1])
	if len(lo) != len(hi) || lo == "" {
		return nil, fmt.Errorf("range %q: ends differ in width", entry)
	}
	loHead, loNum := splitNumericTail(lo)
	hiHead, hiNum := splitNumericTail(hi)
	if loHead != hiHead || loNum == "" || len(loNum) != len(hiNum) {
		return nil, fmt.Errorf("range %q: ends differ in prefix", entry)
	}
	start, err := strconv.Atoi(loNum)
	if err != nil {
		return nil, fmt.Errorf("range %q: %w", entry, err)
	}
	end, err := strconv.Atoi(hiNum)
	if err != nil {
		return nil, fmt.Errorf("range %q: %w", entry, err)
	}
	if end < start {
		return nil, fmt.Errorf("range %q is descending", entry)
	}

	width := len(loNum)
	out := make([]string, 0, end-start+1)
	for n := start; n <= end; n++ {
		out = append(out, fmt.Sprintf("%s%0*d", loHead, width, n))
	}
	return out, nil
}

func splitNumericTail(code string) (string, string) {
	i := len(code)
	for i > 0 && code[i-1] >= '0' && code[i-1] <= '9' {
		i--
	}
	return code[:i], code[i:]
}

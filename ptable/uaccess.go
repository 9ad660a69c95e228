package ptable

import (
	"fmt"

	"strideos/frame"
	sp "strideos/stridep"
)

//
// Helpers for dereferencing user pointers: a syscall argument lives in the
// caller's address space and may straddle a page boundary, so a byte range
// becomes a sequence of physically discontiguous slices.
//

// TranslatedBytes maps [va, va+length) in the address space named by token
// to the covering physical byte slices, in order.
func TranslatedBytes(mem *frame.PhysMem, token sp.Ttoken, va sp.Tvaddr, length int) ([][]byte, error) {
	pt := FromToken(mem, token)
	bufs := make([][]byte, 0, 2)
	start := va
	end := va + sp.Tvaddr(length)
	for start < end {
		vpn := start.Floor()
		pte, ok := pt.Translate(vpn)
		if !ok {
			return nil, fmt.Errorf("untranslatable va %#x", uint64(start))
		}
		pageEnd := (vpn + 1).Addr()
		if pageEnd > end {
			pageEnd = end
		}
		b := mem.PageBytes(pte.Ppn())
		bufs = append(bufs, b[start.PageOffset():start.PageOffset()+uint64(pageEnd-start)])
		start = pageEnd
	}
	return bufs, nil
}

// CopyOut writes src through token starting at va.
func CopyOut(mem *frame.PhysMem, token sp.Ttoken, va sp.Tvaddr, src []byte) error {
	bufs, err := TranslatedBytes(mem, token, va, len(src))
	if err != nil {
		return err
	}
	for _, b := range bufs {
		copy(b, src[:len(b)])
		src = src[len(b):]
	}
	return nil
}

// CopyIn reads length bytes from va through token.
func CopyIn(mem *frame.PhysMem, token sp.Ttoken, va sp.Tvaddr, length int) ([]byte, error) {
	bufs, err := TranslatedBytes(mem, token, va, length)
	if err != nil {
		return nil, err
	}
	dst := make([]byte, 0, length)
	for _, b := range bufs {
		dst = append(dst, b...)
	}
	return dst, nil
}

// TranslatedString reads the NUL-terminated byte sequence at va, walking
// one byte at a time so each page boundary gets a fresh translation.
func TranslatedString(mem *frame.PhysMem, token sp.Ttoken, va sp.Tvaddr) (string, error) {
	pt := FromToken(mem, token)
	s := make([]byte, 0)
	for {
		pa, ok := pt.TranslateAddr(va)
		if !ok {
			return "", fmt.Errorf("untranslatable va %#x", uint64(va))
		}
		c := mem.PageBytes(pa.Floor())[pa.PageOffset()]
		if c == 0 {
			return string(s), nil
		}
		s = append(s, c)
		va += 1
	}
}

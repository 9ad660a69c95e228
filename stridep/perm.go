package stridep

// Tmapperm is the permission set of one mapped region. Bit positions
// match the page-table entry flag bits, one left of the valid bit.
type Tmapperm uint8

const (
	PERM_R Tmapperm = 1 << 1
	PERM_W Tmapperm = 1 << 2
	PERM_X Tmapperm = 1 << 3
	PERM_U Tmapperm = 1 << 4
)

func (p Tmapperm) Readable() bool {
	return p&PERM_R != 0
}

func (p Tmapperm) Writable() bool {
	return p&PERM_W != 0
}

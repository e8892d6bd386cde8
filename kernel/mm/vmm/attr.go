package vmm

import "strings"

// Attr describes the access permissions and caching policy of a mapping
// independently of the paging level that ends up holding the leaf entry.
type Attr uint16

// Permission bits.
const (
	// AttrRead makes the mapping readable. All present mappings are
	// readable on x86-64; the bit exists for symmetry.
	AttrRead Attr = 1 << iota

	// AttrWrite makes the mapping writable.
	AttrWrite

	// AttrExec allows instruction fetches from the mapping.
	AttrExec

	// AttrUser makes the mapping accessible from user mode.
	AttrUser

	// AttrGlobal keeps the mapping's TLB entries across CR3 reloads.
	AttrGlobal
)

// The cache type occupies a 3-bit field above the permission bits.
const (
	cacheShift = 8
	cacheMask  = Attr(7) << cacheShift
)

// Cache types.
const (
	// CacheWriteBack is the default cache type.
	CacheWriteBack Attr = iota << cacheShift

	// CacheWriteThrough selects write-through caching.
	CacheWriteThrough

	// CacheUncachedMinus selects UC- caching, which MTRRs may override to WC.
	CacheUncachedMinus

	// CacheUncached disables caching.
	CacheUncached

	// CacheWriteCombining selects PAT entry 4, which must be programmed as
	// write-combining before the tables are used. Used for framebuffers.
	CacheWriteCombining
)

// Common permission sets.
const (
	AttrRO  = AttrRead
	AttrRW  = AttrRead | AttrWrite
	AttrRX  = AttrRead | AttrExec
	AttrRWX = AttrRead | AttrWrite | AttrExec
)

// Cache returns the cache type of the attribute set.
func (a Attr) Cache() Attr {
	return a & cacheMask
}

// leafFlags encodes the attributes as page table entry flags for a leaf
// entry. huge selects the PAT bit position used by 2MiB and 1GiB leaves.
// If nx is false the no-execute bit is never emitted.
func (a Attr) leafFlags(huge, nx bool) PageTableEntryFlag {
	flags := FlagPresent
	if a&AttrWrite != 0 {
		flags |= FlagRW
	}
	if a&AttrUser != 0 {
		flags |= FlagUserAccessible
	}
	if a&AttrGlobal != 0 {
		flags |= FlagGlobal
	}
	if a&AttrExec == 0 && nx {
		flags |= FlagNoExecute
	}

	switch a.Cache() {
	case CacheWriteThrough:
		flags |= FlagWriteThroughCaching
	case CacheUncachedMinus:
		flags |= FlagDoNotCache
	case CacheUncached:
		flags |= FlagDoNotCache | FlagWriteThroughCaching
	case CacheWriteCombining:
		if huge {
			flags |= FlagHugePAT
		} else {
			flags |= FlagPAT
		}
	}

	return flags
}

// attrFromEntry decodes the attributes of a leaf entry.
func attrFromEntry(pte PageTableEntry, huge bool) Attr {
	a := AttrRead
	if pte.HasFlags(FlagRW) {
		a |= AttrWrite
	}
	if !pte.HasFlags(FlagNoExecute) {
		a |= AttrExec
	}
	if pte.HasFlags(FlagUserAccessible) {
		a |= AttrUser
	}
	if pte.HasFlags(FlagGlobal) {
		a |= AttrGlobal
	}

	patFlag := FlagPAT
	if huge {
		patFlag = FlagHugePAT
	}

	switch {
	case pte.HasFlags(patFlag):
		a |= CacheWriteCombining
	case pte.HasFlags(FlagDoNotCache | FlagWriteThroughCaching):
		a |= CacheUncached
	case pte.HasFlags(FlagDoNotCache):
		a |= CacheUncachedMinus
	case pte.HasFlags(FlagWriteThroughCaching):
		a |= CacheWriteThrough
	}

	return a
}

// String returns a compact description such as "rw- user global wc".
func (a Attr) String() string {
	perm := []byte("r--")
	if a&AttrWrite != 0 {
		perm[1] = 'w'
	}
	if a&AttrExec != 0 {
		perm[2] = 'x'
	}

	parts := []string{string(perm)}
	if a&AttrUser != 0 {
		parts = append(parts, "user")
	}
	if a&AttrGlobal != 0 {
		parts = append(parts, "global")
	}

	switch a.Cache() {
	case CacheWriteThrough:
		parts = append(parts, "wt")
	case CacheUncachedMinus:
		parts = append(parts, "uc-")
	case CacheUncached:
		parts = append(parts, "uc")
	case CacheWriteCombining:
		parts = append(parts, "wc")
	}

	return strings.Join(parts, " ")
}

var cacheNames = map[string]Attr{
	"wb":  CacheWriteBack,
	"wt":  CacheWriteThrough,
	"uc-": CacheUncachedMinus,
	"uc":  CacheUncached,
	"wc":  CacheWriteCombining,
}

// ParseAttr parses the format produced by String. The permission triplet
// comes first and must grant read access; "user", "global" and a cache type
// may follow in any order.
func ParseAttr(s string) (Attr, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}

	perm := fields[0]
	if len(perm) != 3 || perm[0] != 'r' {
		return 0, false
	}

	a := AttrRead
	switch perm[1] {
	case 'w':
		a |= AttrWrite
	case '-':
	default:
		return 0, false
	}
	switch perm[2] {
	case 'x':
		a |= AttrExec
	case '-':
	default:
		return 0, false
	}

	for _, field := range fields[1:] {
		switch field {
		case "user":
			a |= AttrUser
		case "global":
			a |= AttrGlobal
		default:
			cache, ok := cacheNames[field]
			if !ok || a.Cache() != 0 {
				return 0, false
			}
			a |= cache
		}
	}

	return a, true
}

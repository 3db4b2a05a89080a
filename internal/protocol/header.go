package protocol

// Header is a standard packet type tag. The mask is the three-digit on-wire
// integer: the hundreds digit is the category (0 operations, 1 data,
// 2 responses), the remaining digits distinguish tags within it. Masks
// written with fewer than three digits are operations. The catalog is
// advisory only; unknown masks travel on the wire without error.
type Header int32

const (
	// HeaderNop is a no-operation or placeholder packet.
	HeaderNop Header = 0
	// HeaderOp is a caller-defined operation; the footer carries the subtype.
	HeaderOp Header = 1
	// HeaderBoolean marks a body holding UTF-8 "true" or "false".
	HeaderBoolean Header = 100
	// HeaderInteger marks a body holding a UTF-8 decimal integer.
	HeaderInteger Header = 101
	// HeaderDouble marks a body holding a UTF-8 decimal double.
	HeaderDouble Header = 102
	// HeaderString marks a body holding UTF-8 text.
	HeaderString Header = 103
	// HeaderBad is a negative response.
	HeaderBad Header = 200
	// HeaderOK is a positive response.
	HeaderOK Header = 201
)

// Categories, the first decimal digit of a mask.
const (
	CategoryOperation = 0
	CategoryDatum     = 1
	CategoryResponse  = 2
)

// Mask returns the on-wire integer for h.
func (h Header) Mask() int32 { return int32(h) }

// Category returns the hundreds digit of the mask; masks below 100 are
// operations. Negative masks have no category and report -1.
func (h Header) Category() int {
	m := int32(h)
	if m < 0 {
		return -1
	}
	return int(m / 100)
}

// Catalog maps between symbolic tag names and wire masks. Foreign catalogs
// may register additional tags but must not reuse standard masks; the wire
// never carries names, only masks.
type Catalog interface {
	Mask(name string) (int32, bool)
	Name(mask int32) (string, bool)
}

// Std is the standard catalog.
var Std Catalog = stdCatalog{}

type stdCatalog struct{}

var stdNames = map[int32]string{
	0:   "NOP",
	1:   "OP",
	100: "BOOLEAN",
	101: "INTEGER",
	102: "DOUBLE",
	103: "STRING",
	200: "BAD",
	201: "OK",
}

var stdMasks = func() map[string]int32 {
	m := make(map[string]int32, len(stdNames))
	for mask, name := range stdNames {
		m[name] = mask
	}
	return m
}()

func (stdCatalog) Mask(name string) (int32, bool) {
	mask, ok := stdMasks[name]
	return mask, ok
}

func (stdCatalog) Name(mask int32) (string, bool) {
	name, ok := stdNames[mask]
	return name, ok
}

// Name returns the standard catalog name for mask, or "none" if the mask
// is not registered.
func Name(mask int32) string {
	if name, ok := Std.Name(mask); ok {
		return name
	}
	return "none"
}

package objid

import "strconv"

// Type identifies the kind of resource an ID refers to.
type Type uint8

const (
	TypeUndefined Type = iota
	TypeTask
	TypeQueue
	TypeCountSem
	TypeBinSem
	TypeMutex
	TypeStream
	TypeDir
	TypeTimeBase
	TypeTimeCB
	TypeModule
	TypeFileSys
	TypeConsole
	TypeCondVar
	TypeRWLock
	TypeSocket

	// NumTypes is one past the last valid type.
	NumTypes
)

var typeNames = [NumTypes]string{
	TypeUndefined: "undefined",
	TypeTask:      "task",
	TypeQueue:     "queue",
	TypeCountSem:  "countsem",
	TypeBinSem:    "binsem",
	TypeMutex:     "mutex",
	TypeStream:    "stream",
	TypeDir:       "dir",
	TypeTimeBase:  "timebase",
	TypeTimeCB:    "timecb",
	TypeModule:    "module",
	TypeFileSys:   "filesys",
	TypeConsole:   "console",
	TypeCondVar:   "condvar",
	TypeRWLock:    "rwlock",
	TypeSocket:    "socket",
}

// String returns the lower-case type name.
func (t Type) String() string {
	if t < NumTypes {
		return typeNames[t]
	}
	return "type(" + strconv.Itoa(int(t)) + ")"
}

// Valid reports whether t names a real resource type.
func (t Type) Valid() bool {
	return t > TypeUndefined && t < NumTypes
}

// Types returns every valid type in ascending order.
func Types() []Type {
	out := make([]Type, 0, NumTypes-1)
	for t := TypeUndefined + 1; t < NumTypes; t++ {
		out = append(out, t)
	}
	return out
}

// ParseType maps a name produced by Type.String back to its Type.
func ParseType(name string) (Type, bool) {
	for t := TypeUndefined + 1; t < NumTypes; t++ {
		if typeNames[t] == name {
			return t, true
		}
	}
	return TypeUndefined, false
}

// Field layout.
const (
	SerialBits = 14
	IndexBits  = 10
	TypeBits   = 8

	SerialMask = 1<<SerialBits - 1
	IndexMask  = 1<<IndexBits - 1

	indexShift = SerialBits
	typeShift  = SerialBits + IndexBits

	// MaxIndex is the largest encodable table index.
	MaxIndex = IndexMask
	// MaxCapacity bounds the size of any per-type table.
	MaxCapacity = MaxIndex + 1
)

// ID is an opaque object identifier.
type ID uint32

const (
	// Undefined is the zero ID: no object, or a free slot.
	Undefined ID = 0
	// Reserved marks a slot whose object is being created or deleted.
	Reserved ID = 0xFFFFFFFF
)

// Compose packs type, index and serial into an ID.
// Out of range index or serial bits are masked off.
func Compose(t Type, index int, serial uint32) ID {
	return ID(uint32(t)<<typeShift |
		(uint32(index)&IndexMask)<<indexShift |
		serial&SerialMask)
}

// Decompose is the inverse of Compose.
func Decompose(id ID) (Type, int, uint32) {
	return id.Type(), id.Index(), id.Serial()
}

// Type returns the type field.
func (id ID) Type() Type { return Type(uint32(id) >> typeShift) }

// Index returns the table index field.
func (id ID) Index() int { return int(uint32(id) >> indexShift & IndexMask) }

// Serial returns the serial number field.
func (id ID) Serial() uint32 { return uint32(id) & SerialMask }

// Defined reports whether id is neither Undefined nor Reserved.
func (id ID) Defined() bool { return id != Undefined && id != Reserved }

// Equal reports whether both IDs carry the same type, index and serial.
func (id ID) Equal(other ID) bool { return id == other }

func (id ID) String() string {
	switch id {
	case Undefined:
		return "undefined"
	case Reserved:
		return "reserved"
	}
	return id.Type().String() + ":" + strconv.Itoa(id.Index()) + "#" + strconv.FormatUint(uint64(id.Serial()), 10)
}

// NextSerial returns the serial that follows s, wrapping to zero past SerialMask.
func NextSerial(s uint32) uint32 {
	return (s + 1) & SerialMask
}
